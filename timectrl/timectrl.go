package timectrl

import (
	"context"
	"sync"
	"time"
)

// Clock is an interface for reading simulation time, so display and
// recording components can depend on an abstraction rather than the
// concrete pacer.
type Clock interface {
	// SimHours returns the simulation time reached so far, in hours.
	SimHours() float64
}

// Mode describes how the Pacer advances simulation time.
type Mode int

const (
	// RealTime paces simulation hours against wall-clock time scaled by
	// the speed factor.
	RealTime Mode = iota
	// Accelerated advances as quickly as the loop can run while still
	// stepping by the fixed step size.
	Accelerated
)

// Advancer consumes one fixed simulation step.
type Advancer func(ctx context.Context, dtHours float64) error

// Pacer drives a fixed-step simulation loop and notifies registered
// listeners after every step. It implements Clock.
type Pacer struct {
	mu        sync.RWMutex
	stepHours float64
	mode      Mode
	speed     float64 // simulation hours per wall-clock hour in RealTime mode

	simHours  float64
	listeners []func(simHours float64)
}

// NewPacer constructs a pacer. A non-positive speed factor defaults to 1.
func NewPacer(stepHours float64, mode Mode, speed float64) *Pacer {
	if speed <= 0 {
		speed = 1
	}
	return &Pacer{stepHours: stepHours, mode: mode, speed: speed}
}

// SimHours returns the simulation time reached so far. Implements Clock.
func (p *Pacer) SimHours() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.simHours
}

// AddListener registers a callback invoked after every completed step.
// Listeners run on the Run goroutine; register before calling Run.
func (p *Pacer) AddListener(fn func(simHours float64)) {
	p.listeners = append(p.listeners, fn)
}

// Run advances the loop until durationHours of simulation time have elapsed,
// the context is cancelled, or the advancer returns an error.
func (p *Pacer) Run(ctx context.Context, durationHours float64, step Advancer) error {
	var ticker *time.Ticker
	if p.mode == RealTime {
		wallStep := time.Duration(float64(time.Hour) * p.stepHours / p.speed)
		if wallStep < time.Millisecond {
			wallStep = time.Millisecond
		}
		ticker = time.NewTicker(wallStep)
		defer ticker.Stop()
	}

	for elapsed := 0.0; elapsed < durationHours-1e-12; elapsed += p.stepHours {
		if ticker != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}

		if err := step(ctx, p.stepHours); err != nil {
			return err
		}

		p.mu.Lock()
		p.simHours = elapsed + p.stepHours
		reached := p.simHours
		p.mu.Unlock()

		for _, fn := range p.listeners {
			fn(reached)
		}
	}
	return nil
}
