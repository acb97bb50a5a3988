package delivery

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/time/rate"
)

// ErrThrottled marks a send that never reached the provider because no
// token became available before ctx ended.
var ErrThrottled = errors.New("send throttled")

// ThrottledChannel caps the send rate of a provider. Send blocks until a
// token is available or ctx is done.
type ThrottledChannel struct {
	channel Channel
	limiter *rate.Limiter
}

// NewThrottledChannel allows perSecond sends per second with the given burst.
func NewThrottledChannel(channel Channel, perSecond float64, burst int) *ThrottledChannel {
	if burst < 1 {
		burst = 1
	}
	return &ThrottledChannel{
		channel: channel,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

func (c *ThrottledChannel) Send(ctx context.Context, msg Message) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: %w: %w", c.channel.Name(), ErrThrottled, err)
	}
	return c.channel.Send(ctx, msg)
}

func (c *ThrottledChannel) Name() string { return c.channel.Name() }
