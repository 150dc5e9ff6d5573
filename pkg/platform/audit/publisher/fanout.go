package publisher

import (
	"context"
	"errors"

	audit "devportal/pkg/platform/audit"
)

// Fanout forwards each event to every configured publisher. Errors are
// collected, not short-circuited, so one slow sink cannot mute the others.
type Fanout struct {
	sinks []audit.Publisher
}

func NewFanout(sinks ...audit.Publisher) *Fanout {
	return &Fanout{sinks: sinks}
}

func (p *Fanout) Emit(ctx context.Context, event audit.Event) error {
	var errs []error
	for _, sink := range p.sinks {
		if err := sink.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
