// Package popup contiene el service que arma la página de cierre del popup.
package popup

import (
	"context"
	"time"

	dto "github.com/dropDatabas3/oauthpopup/internal/http/dto/popup"
	"github.com/dropDatabas3/oauthpopup/internal/metrics"
	"github.com/dropDatabas3/oauthpopup/internal/observability/logger"
	"github.com/dropDatabas3/oauthpopup/internal/popup/handshake"
	"github.com/dropDatabas3/oauthpopup/internal/popup/presentation"
	"github.com/dropDatabas3/oauthpopup/internal/popup/result"
)

// CompleteService decodifica el resultado, lo presenta y compila el handshake.
type CompleteService interface {
	Complete(ctx context.Context, req dto.CompleteRequest) dto.CompleteResponse
}

// Config son los tiempos del handshake.
type Config struct {
	NotifyDelay        time.Duration
	CloseDelay         time.Duration
	CloseWithoutOpener bool
}

// Deps contiene las dependencias del service.
type Deps struct {
	Config  Config
	Metrics *metrics.Metrics // nil => sin métricas
}

type completeService struct {
	deps Deps
}

// NewCompleteService crea el service.
func NewCompleteService(deps Deps) CompleteService {
	return &completeService{deps: deps}
}

const componentPopup = "popup"

func (s *completeService) Complete(ctx context.Context, req dto.CompleteRequest) dto.CompleteResponse {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component(componentPopup),
		logger.Op("Complete"),
	)

	res := result.Decode(req.Query)
	pres := presentation.New(res)
	msg := handshake.NewMessage(res)

	plan := handshake.Compile(msg, req.Origin,
		handshake.WithNotifyDelay(s.deps.Config.NotifyDelay),
		handshake.WithCloseDelay(s.deps.Config.CloseDelay),
		handshake.WithCloseWithoutOpener(s.deps.Config.CloseWithoutOpener),
		handshake.WithObserver(func(ev handshake.Event) {
			s.deps.Metrics.RecordHandshakeEvent(string(ev.Kind))
		}),
	)

	codeLabel := errorCodeLabel(res)
	s.deps.Metrics.RecordResult(string(res.Status), codeLabel)

	if _, ok := plan.Step(handshake.OpNotify); !ok {
		log.Warn("popup origin unusable as target, opener will not be notified",
			logger.TargetOrigin(req.Origin),
		)
	}

	log.Info("popup result rendered",
		logger.ResultStatus(string(res.Status)),
		logger.Shop(res.Shop()),
		logger.ErrorCode(codeLabel),
		logger.Int("webhooks_failed", res.WebhooksFailedCount),
	)

	return dto.CompleteResponse{
		Result:       res,
		Presentation: pres,
		Message:      msg,
		Plan:         plan,
	}
}

// errorCodeLabel acota la cardinalidad: solo códigos conocidos, resto "other".
func errorCodeLabel(res result.Result) string {
	code := res.Code()
	switch {
	case code == "":
		return ""
	case presentation.IsKnownCode(code):
		return code
	default:
		return "other"
	}
}
