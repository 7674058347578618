package handshake

import (
	"sort"
	"sync"
	"time"
)

// Timer es un callback programado pendiente.
type Timer interface {
	// Stop evita que corra el callback. Devuelve false si ya corrió o ya
	// estaba detenido.
	Stop() bool
}

// Clock programa callbacks diferidos.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// RealClock devuelve un Clock sobre el paquete time. Los callbacks corren en
// su propia goroutine.
func RealClock() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// VirtualClock es un Clock que se avanza a mano. Los callbacks sólo corren
// dentro de Advance, en la goroutine del llamador y por deadline (los empates
// respetan el orden en que se programaron).
type VirtualClock struct {
	mu     sync.Mutex
	now    time.Time
	seq    uint64
	timers []*virtualTimer
}

// NewVirtualClock devuelve un VirtualClock que arranca en start.
func NewVirtualClock(start time.Time) *VirtualClock {
	return &VirtualClock{now: start}
}

type virtualTimer struct {
	clock *VirtualClock
	at    time.Time
	seq   uint64
	f     func()
	done  bool
}

func (t *virtualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	t.clock.remove(t)
	return true
}

// Now devuelve el tiempo virtual actual.
func (c *VirtualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AfterFunc programa f para cuando el reloj avance d.
func (c *VirtualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d < 0 {
		d = 0
	}
	c.seq++
	t := &virtualTimer{clock: c, at: c.now.Add(d), seq: c.seq, f: f}
	c.timers = append(c.timers, t)
	sort.SliceStable(c.timers, func(i, j int) bool {
		if c.timers[i].at.Equal(c.timers[j].at) {
			return c.timers[i].seq < c.timers[j].seq
		}
		return c.timers[i].at.Before(c.timers[j].at)
	})
	return t
}

// Advance mueve el reloj d hacia adelante y corre cada callback que vence.
// Los callbacks que programa un callback en curso también corren si caen
// dentro de la misma ventana.
func (c *VirtualClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		if len(c.timers) == 0 || c.timers[0].at.After(target) {
			c.now = target
			c.mu.Unlock()
			return
		}
		t := c.timers[0]
		c.timers = c.timers[1:]
		t.done = true
		c.now = t.at
		c.mu.Unlock()

		t.f()
	}
}

// Pending devuelve cuántos callbacks programados no corrieron.
func (c *VirtualClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

func (c *VirtualClock) remove(t *virtualTimer) {
	for i, v := range c.timers {
		if v == t {
			c.timers = append(c.timers[:i], c.timers[i+1:]...)
			return
		}
	}
}
