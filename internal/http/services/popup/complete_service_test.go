package popup

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dto "github.com/dropDatabas3/oauthpopup/internal/http/dto/popup"
	"github.com/dropDatabas3/oauthpopup/internal/metrics"
	"github.com/dropDatabas3/oauthpopup/internal/popup/handshake"
	"github.com/dropDatabas3/oauthpopup/internal/popup/presentation"
	"github.com/dropDatabas3/oauthpopup/internal/popup/result"
)

const origin = "https://app.example.com"

func newService(t *testing.T, cfg Config) (CompleteService, *metrics.Metrics) {
	t.Helper()
	m, err := metrics.New(false)
	require.NoError(t, err)
	return NewCompleteService(Deps{Config: cfg, Metrics: m}), m
}

func defaultConfig() Config {
	return Config{
		NotifyDelay:        handshake.DefaultNotifyDelay,
		CloseDelay:         handshake.DefaultCloseDelay,
		CloseWithoutOpener: true,
	}
}

func query(t *testing.T, raw string) url.Values {
	t.Helper()
	q, err := url.ParseQuery(raw)
	require.NoError(t, err)
	return q
}

func scrape(t *testing.T, m *metrics.Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	return rr.Body.String()
}

func TestComplete_Success(t *testing.T) {
	s, m := newService(t, defaultConfig())

	resp := s.Complete(context.Background(), dto.CompleteRequest{
		Query:  query(t, "status=success&shop=myshop&webhooks=ok&webhooks_failed=0"),
		Origin: origin,
	})

	assert.Equal(t, result.StatusSuccess, resp.Result.Status)
	assert.Equal(t, presentation.StateSuccess, resp.Presentation.State)
	assert.True(t, resp.Presentation.Busy)
	assert.Equal(t, "myshop", resp.Presentation.ShopIdentifier)
	assert.Equal(t, handshake.MessageKind, resp.Message.Kind)

	notify, ok := resp.Plan.Step(handshake.OpNotify)
	require.True(t, ok)
	assert.Equal(t, origin, notify.TargetOrigin)
	require.NotNil(t, notify.Message)
	assert.Equal(t, resp.Message, *notify.Message)

	out := scrape(t, m)
	assert.Contains(t, out, `oauth_popup_results_total{error_code="none",status="success"} 1`)
	assert.Contains(t, out, `oauth_popup_handshake_events_total{event="notified"} 1`)
	assert.Contains(t, out, `oauth_popup_handshake_events_total{event="closed"} 1`)
}

func TestComplete_Failure(t *testing.T) {
	s, m := newService(t, defaultConfig())

	resp := s.Complete(context.Background(), dto.CompleteRequest{
		Query:  query(t, "status=failure&error=callback_failed"),
		Origin: origin,
	})

	assert.Equal(t, presentation.StateFailure, resp.Presentation.State)
	assert.False(t, resp.Presentation.Busy)
	assert.Equal(t, presentation.MessageFor(resp.Result.ErrorCode), resp.Presentation.Message)
	require.NotNil(t, resp.Message.ErrorCode)
	assert.Equal(t, "callback_failed", *resp.Message.ErrorCode)

	assert.Contains(t, scrape(t, m), `oauth_popup_results_total{error_code="callback_failed",status="failure"} 1`)
}

func TestComplete_UnknownCodeLabel(t *testing.T) {
	s, m := newService(t, defaultConfig())
	s.Complete(context.Background(), dto.CompleteRequest{
		Query:  query(t, "error=something_new"),
		Origin: origin,
	})
	assert.Contains(t, scrape(t, m), `oauth_popup_results_total{error_code="other",status="failure"} 1`)
}

func TestComplete_UnusableOrigin(t *testing.T) {
	s, m := newService(t, defaultConfig())
	resp := s.Complete(context.Background(), dto.CompleteRequest{
		Query:  query(t, "status=success"),
		Origin: "",
	})

	_, ok := resp.Plan.Step(handshake.OpNotify)
	assert.False(t, ok)
	require.Len(t, resp.Plan.Steps, 1)
	assert.Equal(t, handshake.OpClose, resp.Plan.Steps[0].Op)
	assert.Contains(t, scrape(t, m), `oauth_popup_handshake_events_total{event="notify_refused"} 1`)
}

func TestComplete_ConfiguredDelays(t *testing.T) {
	s, _ := newService(t, Config{
		NotifyDelay:        200 * time.Millisecond,
		CloseDelay:         300 * time.Millisecond,
		CloseWithoutOpener: false,
	})
	resp := s.Complete(context.Background(), dto.CompleteRequest{Query: url.Values{}, Origin: origin})

	assert.False(t, resp.Plan.CloseWithoutOpener)
	require.Len(t, resp.Plan.Steps, 2)
	assert.Equal(t, int64(200), resp.Plan.Steps[0].AtMs)
	assert.Equal(t, int64(500), resp.Plan.Steps[1].AtMs)
}

func TestComplete_NilMetrics(t *testing.T) {
	s := NewCompleteService(Deps{Config: defaultConfig()})
	resp := s.Complete(context.Background(), dto.CompleteRequest{Query: url.Values{}, Origin: origin})
	assert.Equal(t, result.StatusFailure, resp.Result.Status)
}
