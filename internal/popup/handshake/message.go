package handshake

import "github.com/dropDatabas3/oauthpopup/internal/popup/result"

// MessageKind es el discriminante que escucha el opener.
const MessageKind = "shopify-oauth-complete"

// Message es el payload que se postea al opener: una proyección del
// resultado más el discriminante.
type Message struct {
	Kind                string  `json:"kind"`
	Status              string  `json:"status"`
	ShopIdentifier      *string `json:"shopIdentifier,omitempty"`
	ErrorCode           *string `json:"errorCode,omitempty"`
	WebhooksFailedCount int     `json:"webhooksFailedCount"`
	WebhooksOK          bool    `json:"webhooksOk"`
}

// NewMessage proyecta res en un Message. Los opcionales se copian para no
// compartir memoria con el resultado.
func NewMessage(res result.Result) Message {
	return Message{
		Kind:                MessageKind,
		Status:              string(res.Status),
		ShopIdentifier:      clone(res.ShopIdentifier),
		ErrorCode:           clone(res.ErrorCode),
		WebhooksFailedCount: res.WebhooksFailedCount,
		WebhooksOK:          res.WebhooksOK,
	}
}

func clone(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
