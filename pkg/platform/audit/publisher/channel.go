package publisher

import (
	"context"

	audit "devportal/pkg/platform/audit"
)

// Channel is the in-process publisher: it hands events to the audit worker
// through a bounded channel and drops on overflow rather than blocking the
// request path.
type Channel struct {
	outbox chan<- audit.Event
}

func NewChannel(outbox chan<- audit.Event) *Channel {
	return &Channel{outbox: outbox}
}

func (p *Channel) Emit(_ context.Context, event audit.Event) error {
	select {
	case p.outbox <- event:
	default:
		// Audit is best-effort on the hot path; the worker catches up or we
		// lose the event. Never stall an authorization for audit backpressure.
	}
	return nil
}
