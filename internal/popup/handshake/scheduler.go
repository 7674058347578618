// Package handshake implementa el protocolo de un solo uso popup → opener:
// mostrar el resultado, avisar al opener restringido al origin propio del
// popup y después cerrar el popup.
//
// La ventana y el reloj se inyectan, así el protocolo corre igual contra un
// adaptador de navegador, time.AfterFunc o un VirtualClock en tests.
//
//	Idle ──Start──▶ PendingNotify ──notify──▶ PendingClose ──close──▶ Closed
//	                      │                         │
//	                      └──────Teardown───────────┴──▶ Cancelled
//
// Si no hay opener al momento de avisar, el popup se cierra igual o, con
// WithCloseWithoutOpener(false), se queda en Detached.
//
// Window, Opener y Observer se invocan siempre sin locks internos tomados:
// pueden llamar a Teardown o State de forma síncrona.
package handshake

import (
	"errors"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/oauthpopup/internal/observability/logger"
)

const (
	// DefaultNotifyDelay deja el resultado en pantalla antes de hacer nada.
	DefaultNotifyDelay = 1500 * time.Millisecond
	// DefaultCloseDelay separa el aviso del auto cierre.
	DefaultCloseDelay = 1000 * time.Millisecond
)

// ErrAlreadyStarted lo devuelve Start si el scheduler ya salió de Idle.
var ErrAlreadyStarted = errors.New("handshake: already started")

// Opener es la ventana que abrió el popup.
type Opener interface {
	// PostMessage entrega msg sólo si el origin del opener es targetOrigin.
	PostMessage(msg Message, targetOrigin string) error
}

// Window es el browsing context propio del popup.
type Window interface {
	// Origin del popup, p.ej. "https://app.example.com".
	Origin() string
	// Opener devuelve nil si el popup no tiene opener vivo.
	Opener() Opener
	// Close pide cerrar el popup. La plataforma puede negarse.
	Close() error
}

// State del scheduler.
type State string

const (
	StateIdle          State = "idle"
	StatePendingNotify State = "pending_notify"
	StatePendingClose  State = "pending_close"
	StateClosed        State = "closed"
	StateDetached      State = "detached"
	StateCancelled     State = "cancelled"
)

// Terminal indica si ya no hay transiciones posibles.
func (s State) Terminal() bool {
	return s == StateClosed || s == StateDetached || s == StateCancelled
}

// EventKind nombra lo que pasó en una transición.
type EventKind string

const (
	EventNotified      EventKind = "notified"
	EventNotifySkipped EventKind = "notify_skipped" // sin opener
	EventNotifyRefused EventKind = "notify_refused" // origin propio inválido como target
	EventNotifyFailed  EventKind = "notify_failed"
	EventClosed        EventKind = "closed"
	EventCloseFailed   EventKind = "close_failed"
	EventCancelled     EventKind = "cancelled"
)

// Event se reporta al observer después de cada transición.
type Event struct {
	Kind         EventKind
	State        State
	At           time.Time
	TargetOrigin string
	Err          error
}

// Observer recibe los eventos. Se llama sin locks internos tomados.
type Observer func(Event)

type options struct {
	notifyDelay        time.Duration
	closeDelay         time.Duration
	closeWithoutOpener bool
	observer           Observer
	log                *zap.Logger
}

// Option configura un Scheduler.
type Option func(*options)

// WithNotifyDelay fija la espera antes de avisar al opener.
func WithNotifyDelay(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.notifyDelay = d
		}
	}
}

// WithCloseDelay fija la espera entre el aviso y el auto cierre.
func WithCloseDelay(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.closeDelay = d
		}
	}
}

// WithCloseWithoutOpener controla si un popup huérfano se cierra igual.
func WithCloseWithoutOpener(v bool) Option {
	return func(o *options) { o.closeWithoutOpener = v }
}

// WithObserver registra fn para cada evento.
func WithObserver(fn Observer) Option {
	return func(o *options) { o.observer = fn }
}

// WithLogger fija el logger. Por defecto el logger del proceso.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		notifyDelay:        DefaultNotifyDelay,
		closeDelay:         DefaultCloseDelay,
		closeWithoutOpener: true,
	}
	for _, fn := range opts {
		fn(&o)
	}
	if o.log == nil {
		o.log = logger.Named("handshake")
	}
	return o
}

// Scheduler es dueño de los dos timers encadenados de la vida de un popup.
type Scheduler struct {
	win   Window
	clock Clock
	msg   Message
	cfg   options

	mu          sync.Mutex
	state       State
	notifyTimer Timer
	closeTimer  Timer
}

// New devuelve un Scheduler en Idle. msg se entrega tal cual.
func New(win Window, clock Clock, msg Message, opts ...Option) *Scheduler {
	if clock == nil {
		clock = RealClock()
	}
	return &Scheduler{
		win:   win,
		clock: clock,
		msg:   msg,
		cfg:   buildOptions(opts),
		state: StateIdle,
	}
}

// State devuelve el estado actual.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start arma el timer de aviso. Se puede llamar una sola vez.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		return ErrAlreadyStarted
	}
	s.state = StatePendingNotify
	s.notifyTimer = s.clock.AfterFunc(s.cfg.notifyDelay, s.fireNotify)
	s.cfg.log.Debug("handshake started",
		logger.Op("Start"),
		zap.Duration("notify_delay", s.cfg.notifyDelay),
		zap.Duration("close_delay", s.cfg.closeDelay),
	)
	return nil
}

// Teardown cancela todos los timers pendientes. Los callbacks que ya vencieron
// pero no tomaron el lock quedan sin efecto. Es idempotente, vale desde
// cualquier estado y también desde dentro de Close o PostMessage.
func (s *Scheduler) Teardown() {
	s.mu.Lock()
	s.stopTimers()
	if s.state.Terminal() {
		s.mu.Unlock()
		return
	}
	s.state = StateCancelled
	ev := Event{Kind: EventCancelled, State: s.state, At: s.clock.Now()}
	s.mu.Unlock()

	s.cfg.log.Debug("handshake cancelled", logger.Op("Teardown"))
	s.emit(ev)
}

func (s *Scheduler) stopTimers() {
	if s.notifyTimer != nil {
		s.notifyTimer.Stop()
		s.notifyTimer = nil
	}
	if s.closeTimer != nil {
		s.closeTimer.Stop()
		s.closeTimer = nil
	}
}

func (s *Scheduler) fireNotify() {
	s.mu.Lock()
	if s.state != StatePendingNotify || s.notifyTimer == nil {
		s.mu.Unlock()
		return
	}
	s.notifyTimer = nil
	win, msg := s.win, s.msg
	s.mu.Unlock()

	ev := s.deliver(win, msg)

	// Un Teardown durante la entrega gana: no se arma el cierre.
	s.mu.Lock()
	if s.state == StatePendingNotify {
		if ev.Kind == EventNotifySkipped && !s.cfg.closeWithoutOpener {
			s.state = StateDetached
		} else {
			s.state = StatePendingClose
			s.closeTimer = s.clock.AfterFunc(s.cfg.closeDelay, s.fireClose)
		}
	}
	ev.State = s.state
	s.mu.Unlock()

	s.emit(ev)
}

// deliver corre sin s.mu tomado.
func (s *Scheduler) deliver(win Window, msg Message) Event {
	now := s.clock.Now()
	log := s.cfg.log.With(logger.Op("notify"))

	opener := win.Opener()
	if opener == nil {
		log.Debug("no opener, notification skipped")
		return Event{Kind: EventNotifySkipped, At: now}
	}

	target := win.Origin()
	if !ValidTargetOrigin(target) {
		log.Warn("popup origin unusable as target, notification refused", zap.String("origin", target))
		return Event{Kind: EventNotifyRefused, At: now, TargetOrigin: target}
	}

	if err := opener.PostMessage(msg, target); err != nil {
		log.Debug("notification not delivered", logger.TargetOrigin(target), logger.Err(err))
		return Event{Kind: EventNotifyFailed, At: now, TargetOrigin: target, Err: err}
	}
	log.Debug("opener notified", logger.TargetOrigin(target))
	return Event{Kind: EventNotified, At: now, TargetOrigin: target}
}

func (s *Scheduler) fireClose() {
	s.mu.Lock()
	if s.state != StatePendingClose {
		s.mu.Unlock()
		return
	}
	s.closeTimer = nil
	s.state = StateClosed
	win := s.win
	ev := Event{Kind: EventClosed, State: s.state, At: s.clock.Now()}
	s.mu.Unlock()

	if err := win.Close(); err != nil {
		ev.Kind = EventCloseFailed
		ev.Err = err
		s.cfg.log.Debug("close refused", logger.Op("close"), logger.Err(err))
	}

	s.emit(ev)
}

func (s *Scheduler) emit(ev Event) {
	if s.cfg.observer != nil {
		s.cfg.observer(ev)
	}
}

// ValidTargetOrigin indica si origin sirve para acotar una entrega: un origin
// http(s) absoluto con host y nada después. "*" y "null" nunca pasan.
func ValidTargetOrigin(origin string) bool {
	if origin == "" || origin == "*" || origin == "null" {
		return false
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return false
	}
	if u.Host == "" || u.User != nil {
		return false
	}
	return u.Path == "" && u.RawQuery == "" && u.Fragment == "" && !u.ForceQuery
}
