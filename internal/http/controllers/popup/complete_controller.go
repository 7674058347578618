// Package popup contiene el controller de la página de cierre del popup OAuth.
package popup

import (
	"bytes"
	"embed"
	"encoding/json"
	"html/template"
	"mime"
	"net/http"
	"strings"

	dto "github.com/dropDatabas3/oauthpopup/internal/http/dto/popup"
	httperrors "github.com/dropDatabas3/oauthpopup/internal/http/errors"
	mw "github.com/dropDatabas3/oauthpopup/internal/http/middlewares"
	svc "github.com/dropDatabas3/oauthpopup/internal/http/services/popup"
	"github.com/dropDatabas3/oauthpopup/internal/observability/logger"
	"github.com/dropDatabas3/oauthpopup/internal/popup/handshake"
	"github.com/dropDatabas3/oauthpopup/internal/popup/presentation"
)

//go:embed templates/complete.html
var templatesFS embed.FS

var completeTmpl = template.Must(template.ParseFS(templatesFS, "templates/complete.html"))

// Options configura cómo el controller resuelve el origin propio del popup.
type Options struct {
	// PublicOrigin fijo (scheme://host[:port]); vacío => derivado del request.
	PublicOrigin string
	// TrustForwardedHeaders habilita X-Forwarded-Proto / X-Forwarded-Host.
	TrustForwardedHeaders bool
	Brand                 string
}

// CompleteController maneja GET {popup_path}/complete.
type CompleteController struct {
	service svc.CompleteService
	opts    Options
}

// NewCompleteController crea el controller.
func NewCompleteController(service svc.CompleteService, opts Options) *CompleteController {
	return &CompleteController{service: service, opts: opts}
}

type pageData struct {
	Brand        string
	Nonce        string
	Presentation presentation.Presentation
	Plan         handshake.Plan
}

// Complete renderiza el resultado OAuth y el script que notifica al opener
// y cierra el popup. Con Accept: application/json o ?format=json devuelve el
// mismo modelo como JSON.
func (c *CompleteController) Complete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("CompleteController.Complete"))

	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
		return
	}

	resp := c.service.Complete(ctx, dto.CompleteRequest{
		Query:  r.URL.Query(),
		Origin: c.origin(r),
	})

	if wantsJSON(r) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(resp)
		return
	}

	var buf bytes.Buffer
	err := completeTmpl.Execute(&buf, pageData{
		Brand:        c.opts.Brand,
		Nonce:        mw.GetNonce(ctx),
		Presentation: resp.Presentation,
		Plan:         resp.Plan,
	})
	if err != nil {
		log.Error("render popup page", logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrInternalServerError.WithCause(err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// origin devuelve el origin con el que el popup fue servido.
func (c *CompleteController) origin(r *http.Request) string {
	if c.opts.PublicOrigin != "" {
		return c.opts.PublicOrigin
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	host := r.Host
	if c.opts.TrustForwardedHeaders {
		if p := firstHeaderValue(r, "X-Forwarded-Proto"); p == "http" || p == "https" {
			scheme = p
		}
		if h := firstHeaderValue(r, "X-Forwarded-Host"); h != "" {
			host = h
		}
	}
	if host == "" {
		return ""
	}
	return scheme + "://" + strings.ToLower(host)
}

func firstHeaderValue(r *http.Request, name string) string {
	v := r.Header.Get(name)
	if i := strings.IndexByte(v, ','); i >= 0 {
		v = v[:i]
	}
	return strings.ToLower(strings.TrimSpace(v))
}

// wantsJSON: ?format=json gana; si no, Accept JSON sin text/html.
func wantsJSON(r *http.Request) bool {
	if f := r.URL.Query().Get("format"); f != "" {
		return strings.EqualFold(f, "json")
	}
	accept := r.Header.Get("Accept")
	if accept == "" {
		return false
	}
	sawJSON := false
	for _, part := range strings.Split(accept, ",") {
		mt, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		switch mt {
		case "text/html":
			return false
		case "application/json":
			sawJSON = true
		}
	}
	return sawJSON
}
