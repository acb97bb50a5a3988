package events

import (
	"context"

	"go.uber.org/zap"
)

// Fanout publishes to a primary publisher and any number of secondary
// ones. Only the primary's error is returned; secondary failures are
// logged.
type Fanout struct {
	primary     Publisher
	secondaries []Publisher
	logger      *zap.Logger
}

// NewFanout creates a Fanout.
func NewFanout(logger *zap.Logger, primary Publisher, secondaries ...Publisher) *Fanout {
	return &Fanout{
		primary:     primary,
		secondaries: secondaries,
		logger:      logger,
	}
}

func (f *Fanout) Publish(ctx context.Context, ev Event) error {
	err := f.primary.Publish(ctx, ev)

	for _, p := range f.secondaries {
		if serr := p.Publish(ctx, ev); serr != nil {
			f.logger.Warn("secondary event publish failed",
				zap.Error(serr),
				zap.String("kind", string(ev.Kind)),
				zap.Int64("application_id", ev.Application.ID),
			)
		}
	}

	return err
}
