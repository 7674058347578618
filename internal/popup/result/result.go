// Package result decodifica el query string del redirect OAuth final en un
// Result inmutable.
//
// La decodificación es total: cualquier query, incluso mal formado, produce un
// Result válido. Todo lo que no sea un success explícito es failure.
package result

import (
	"net/url"
	"strconv"
	"strings"
)

// Status es el resultado que reporta el redirect.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// Nombres de los parámetros del redirect final.
const (
	ParamStatus         = "status"
	ParamShop           = "shop"
	ParamError          = "error"
	ParamWebhooksFailed = "webhooks_failed"
	ParamWebhooks       = "webhooks"
)

// webhooksOKMarker es el único valor de ParamWebhooks que cuenta como ok.
const webhooksOKMarker = "ok"

// Result es el resultado decodificado del redirect. Se construye con Decode o
// DecodeQuery y no se modifica después.
type Result struct {
	Status              Status  `json:"status"`
	ShopIdentifier      *string `json:"shop_identifier,omitempty"`
	ErrorCode           *string `json:"error_code,omitempty"`
	WebhooksFailedCount int     `json:"webhooks_failed_count"`
	WebhooksOK          bool    `json:"webhooks_ok"`
}

// Succeeded indica si el redirect trajo un success explícito.
func (r Result) Succeeded() bool { return r.Status == StatusSuccess }

// Shop devuelve el identificador de la tienda o "" si no vino.
func (r Result) Shop() string {
	if r.ShopIdentifier == nil {
		return ""
	}
	return *r.ShopIdentifier
}

// Code devuelve el código de error o "" si no vino.
func (r Result) Code() string {
	if r.ErrorCode == nil {
		return ""
	}
	return *r.ErrorCode
}

// Decode arma un Result a partir de valores ya parseados.
func Decode(q url.Values) Result {
	res := Result{Status: StatusFailure}

	if first(q, ParamStatus) == string(StatusSuccess) {
		res.Status = StatusSuccess
	}
	res.ShopIdentifier = optional(q, ParamShop)
	res.ErrorCode = optional(q, ParamError)
	res.WebhooksFailedCount = parseCount(first(q, ParamWebhooksFailed))
	res.WebhooksOK = first(q, ParamWebhooks) == webhooksOKMarker

	return res
}

// DecodeQuery arma un Result desde un query crudo, con o sin '?' inicial. Los
// pares que no se pueden des-escapar se descartan.
func DecodeQuery(raw string) Result {
	raw = strings.TrimPrefix(raw, "?")
	// ParseQuery conserva los pares válidos aunque devuelva error.
	q, _ := url.ParseQuery(raw)
	return Decode(q)
}

func first(q url.Values, key string) string {
	vs, ok := q[key]
	if !ok || len(vs) == 0 {
		return ""
	}
	return vs[0]
}

func optional(q url.Values, key string) *string {
	vs, ok := q[key]
	if !ok || len(vs) == 0 {
		return nil
	}
	v := vs[0]
	return &v
}

// parseCount acepta enteros base 10 no negativos; cualquier otra cosa es 0.
func parseCount(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
