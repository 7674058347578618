// Package presentation traduce el resultado decodificado al único estado
// visual que muestra el popup mientras corre el handshake.
package presentation

import (
	"fmt"

	"github.com/dropDatabas3/oauthpopup/internal/popup/result"
)

// State es el estado visual del popup. No hay estado "loading": el resultado
// se decodifica de forma síncrona antes del primer render.
type State string

const (
	StateSuccess State = "success"
	StateFailure State = "failure"
)

// Códigos de error conocidos del flujo de conexión.
const (
	CodeCallbackFailed      = "callback_failed"
	CodeAccessDenied        = "access_denied"
	CodeInvalidState        = "invalid_state"
	CodeInvalidHMAC         = "invalid_hmac"
	CodeTokenExchangeFailed = "token_exchange_failed"
)

const (
	successTitle = "Store connected"
	failureTitle = "Connection failed"

	successMessage  = "Your store was connected successfully. This window will close automatically."
	fallbackMessage = "Something went wrong while connecting your store. Please close this window and try again."
)

var failureMessages = map[string]string{
	CodeCallbackFailed:      "There was an error processing the authorization. Please close this window and try again.",
	CodeAccessDenied:        "The authorization request was declined. No changes were made to your store.",
	CodeInvalidState:        "This authorization link has expired or was already used. Please start the connection again.",
	CodeInvalidHMAC:         "The authorization response could not be verified. Please start the connection again.",
	CodeTokenExchangeFailed: "The store accepted the request but access could not be granted. Please try again in a few minutes.",
}

// Presentation es lo que renderiza el popup. Lo arma New una sola vez.
type Presentation struct {
	State   State  `json:"state"`
	Title   string `json:"title"`
	Message string `json:"message"`

	// Busy marca el aviso al opener como pendiente. La página lo limpia cuando
	// corre el paso de aviso; nunca demora el handshake.
	Busy bool `json:"busy"`

	ShopIdentifier      string `json:"shop_identifier,omitempty"`
	WebhooksOK          bool   `json:"webhooks_ok"`
	WebhooksFailedCount int    `json:"webhooks_failed_count"`
	WebhookNotice       string `json:"webhook_notice,omitempty"`
}

// New hace la única transición de resultado decodificado a estado.
func New(res result.Result) Presentation {
	if !res.Succeeded() {
		return Presentation{
			State:   StateFailure,
			Title:   failureTitle,
			Message: MessageFor(res.ErrorCode),
		}
	}

	return Presentation{
		State:               StateSuccess,
		Title:               successTitle,
		Message:             successMessage,
		Busy:                true,
		ShopIdentifier:      res.Shop(),
		WebhooksOK:          res.WebhooksOK,
		WebhooksFailedCount: res.WebhooksFailedCount,
		WebhookNotice:       webhookNotice(res),
	}
}

// MessageFor devuelve el mensaje de error para un código. Códigos
// desconocidos o ausentes usan el fallback genérico: nunca es vacío.
func MessageFor(code *string) string {
	if code == nil {
		return fallbackMessage
	}
	if msg, ok := failureMessages[*code]; ok {
		return msg
	}
	return fallbackMessage
}

// IsKnownCode indica si code tiene un mensaje propio.
func IsKnownCode(code string) bool {
	_, ok := failureMessages[code]
	return ok
}

func webhookNotice(res result.Result) string {
	switch {
	case res.WebhooksFailedCount == 1:
		return "1 webhook could not be registered. Some updates may be delayed until it is retried."
	case res.WebhooksFailedCount > 1:
		return fmt.Sprintf("%d webhooks could not be registered. Some updates may be delayed until they are retried.", res.WebhooksFailedCount)
	case res.WebhooksOK:
		return "Webhooks registered."
	default:
		return ""
	}
}
