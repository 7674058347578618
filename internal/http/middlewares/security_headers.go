package middlewares

import (
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"strings"
)

// isHTTPS detecta si el request llegó por HTTPS. X-Forwarded-Proto sólo
// cuenta con trustForwarded.
func isHTTPS(r *http.Request, trustForwarded bool) bool {
	if r.TLS != nil {
		return true
	}
	return trustForwarded && strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

func newNonce() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}

// WithSecurityHeaders inyecta cabeceras de seguridad por defecto.
//
// La página del popup lleva un único <script> inline; la CSP solo lo permite
// vía nonce (ver GetNonce). El popup no debe poder embeberse en frames.
// trustForwarded habilita HSTS detrás de un proxy que termina TLS.
func WithSecurityHeaders(trustForwarded bool) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			nonce := newNonce()

			h.Set("Referrer-Policy", "no-referrer")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-DNS-Prefetch-Control", "off")
			h.Set("X-Permitted-Cross-Domain-Policies", "none")
			h.Set("Cross-Origin-Resource-Policy", "same-origin")
			h.Set("X-Frame-Options", "DENY")

			// Cualquier otro valor de COOP corta window.opener en el popup.
			h.Set("Cross-Origin-Opener-Policy", "unsafe-none")

			h.Set("Content-Security-Policy",
				"default-src 'none'; script-src 'nonce-"+nonce+"'; style-src 'nonce-"+nonce+"'; "+
					"img-src 'self' data:; frame-ancestors 'none'; base-uri 'none'; form-action 'none'")
			h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=()")

			if isHTTPS(r, trustForwarded) {
				h.Set("Strict-Transport-Security", "max-age=15552000; includeSubDomains")
			}

			next.ServeHTTP(w, r.WithContext(setNonce(r.Context(), nonce)))
		})
	}
}
