package notify

import (
	"context"
	"fmt"
	"log/slog"
)

type Dispatcher struct {
	providers []Provider
}

// NewDispatcher takes providers in priority order: index 0 is tried first.
func NewDispatcher(providers []Provider) *Dispatcher {
	return &Dispatcher{providers: providers}
}

// Dispatch attempts delivery through each provider in order and returns the
// name of the first one that succeeds. Failed attempts are logged and the
// next provider is tried; if every provider fails, the last provider's
// error is returned. Retrying is the queue's job, not the dispatcher's.
func (d *Dispatcher) Dispatch(ctx context.Context, recipient, message string) (string, error) {
	if len(d.providers) == 0 {
		return "", fmt.Errorf("no providers configured")
	}

	var lastErr error
	for _, p := range d.providers {
		if err := p.Send(ctx, recipient, message); err != nil {
			slog.Warn("provider send failed", "provider", p.Name(), "recipient", recipient, "error", err)
			lastErr = err
			continue
		}
		return p.Name(), nil
	}

	return "", lastErr
}
