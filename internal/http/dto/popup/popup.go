// Package popup contiene los DTOs del endpoint de cierre del popup OAuth.
package popup

import (
	"net/url"

	"github.com/dropDatabas3/oauthpopup/internal/popup/handshake"
	"github.com/dropDatabas3/oauthpopup/internal/popup/presentation"
	"github.com/dropDatabas3/oauthpopup/internal/popup/result"
)

// CompleteRequest es el input de Service.Complete.
type CompleteRequest struct {
	Query url.Values
	// Origin propio del popup; scopea la entrega al opener.
	Origin string
}

// CompleteResponse es todo lo que la página necesita para renderizar y
// reproducir el handshake. También es el cuerpo de la variante JSON.
type CompleteResponse struct {
	Result       result.Result             `json:"result"`
	Presentation presentation.Presentation `json:"presentation"`
	Message      handshake.Message         `json:"message"`
	Plan         handshake.Plan            `json:"plan"`
}
