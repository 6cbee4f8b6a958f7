package lifecycle

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
)

type Component interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type registration struct {
	name      string
	component Component
}

// Runtime starts registered components in order and stops them in
// reverse on shutdown.
type Runtime struct {
	registrations []registration
}

func NewRuntime() *Runtime {
	return &Runtime{}
}

func (r *Runtime) Register(name string, component Component) {
	if component == nil {
		return
	}
	r.registrations = append(r.registrations, registration{name: name, component: component})
}

func (r *Runtime) Start(ctx context.Context) error {
	started := make([]registration, 0, len(r.registrations))
	for _, reg := range r.registrations {
		if err := reg.component.Start(ctx); err != nil {
			_ = stopAll(ctx, started)
			return fmt.Errorf("start %s: %w", reg.name, err)
		}
		log.WithField("component", reg.name).Debug("started")
		started = append(started, reg)
	}
	return nil
}

func (r *Runtime) Stop(ctx context.Context) error {
	return stopAll(ctx, r.registrations)
}

func stopAll(ctx context.Context, regs []registration) error {
	var stopErr error
	for i := len(regs) - 1; i >= 0; i-- {
		reg := regs[i]
		if err := reg.component.Stop(ctx); err != nil {
			stopErr = errors.Join(stopErr, fmt.Errorf("stop %s: %w", reg.name, err))
			continue
		}
		log.WithField("component", reg.name).Debug("stopped")
	}
	return stopErr
}
