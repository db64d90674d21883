// Package notify delivers one message to one recipient through an ordered
// list of provider adapters. Providers are preference, not redundancy:
// attempts are sequential and stop at the first success.
package notify

import (
	"context"
	"errors"
)

// ErrMissingCredentials is returned before any network call when a provider
// was configured without the credentials it needs.
var ErrMissingCredentials = errors.New("notify: provider credentials are not configured")

type Provider interface {
	Name() string
	Send(ctx context.Context, recipient, message string) error
}
