package handshake

import (
	"time"

	"go.uber.org/zap"
)

// Op es un paso de un plan compilado.
type Op string

const (
	OpNotify Op = "notify"
	OpClose  Op = "close"
)

// Step es una acción del handshake. Los pasos se encadenan: cada uno se
// programa recién cuando corrió el anterior, DelayMs después.
type Step struct {
	Op           Op       `json:"op"`
	DelayMs      int64    `json:"delay_ms"`
	AtMs         int64    `json:"at_ms"`
	TargetOrigin string   `json:"target_origin,omitempty"`
	Message      *Message `json:"message,omitempty"`
}

// Plan es el handshake tal como lo reproduce la página. Los pasos notify
// asumen un opener vivo; si la página no lo encuentra saltea el paso y sólo
// sigue hasta el cierre con CloseWithoutOpener.
type Plan struct {
	TargetOrigin       string `json:"target_origin"`
	CloseWithoutOpener bool   `json:"close_without_opener"`
	Steps              []Step `json:"steps"`
}

// Step devuelve el primer paso con op.
func (p Plan) Step(op Op) (Step, bool) {
	for _, s := range p.Steps {
		if s.Op == op {
			return s, true
		}
	}
	return Step{}, false
}

// Compile corre un Scheduler para msg sobre un VirtualClock y una ventana que
// graba, con origin como origin propio, y devuelve los pasos que tomó. El
// observer ve los eventos de compilación; la opción de logger se ignora.
func Compile(msg Message, origin string, opts ...Option) Plan {
	cfg := buildOptions(opts)

	clock := NewVirtualClock(time.Unix(0, 0))
	rec := &recordingWindow{origin: origin, clock: clock, start: clock.Now()}

	s := New(rec, clock, msg,
		WithNotifyDelay(cfg.notifyDelay),
		WithCloseDelay(cfg.closeDelay),
		WithCloseWithoutOpener(cfg.closeWithoutOpener),
		WithObserver(cfg.observer),
		WithLogger(zap.NewNop()),
	)
	_ = s.Start()
	clock.Advance(cfg.notifyDelay + cfg.closeDelay)

	return Plan{
		TargetOrigin:       origin,
		CloseWithoutOpener: cfg.closeWithoutOpener,
		Steps:              rec.steps,
	}
}

// recordingWindow es su propio opener y graba lo que hace el scheduler.
type recordingWindow struct {
	origin string
	clock  Clock
	start  time.Time
	lastMs int64
	steps  []Step
}

func (w *recordingWindow) Origin() string { return w.origin }

func (w *recordingWindow) Opener() Opener { return w }

func (w *recordingWindow) PostMessage(msg Message, targetOrigin string) error {
	m := msg
	w.record(Step{Op: OpNotify, TargetOrigin: targetOrigin, Message: &m})
	return nil
}

func (w *recordingWindow) Close() error {
	w.record(Step{Op: OpClose})
	return nil
}

// record redondea hacia arriba a milisegundos enteros. Cada paso queda al
// menos 1ms después del anterior, igual que dos setTimeout encadenados.
func (w *recordingWindow) record(st Step) {
	at := ceilMillis(w.clock.Now().Sub(w.start))
	if len(w.steps) > 0 && at <= w.lastMs {
		at = w.lastMs + 1
	}
	st.AtMs = at
	st.DelayMs = at - w.lastMs
	w.lastMs = at
	w.steps = append(w.steps, st)
}

func ceilMillis(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64((d + time.Millisecond - 1) / time.Millisecond)
}
