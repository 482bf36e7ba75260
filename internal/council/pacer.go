package council

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer spaces out upstream calls between stages. Wait must return early with
// ctx.Err() when ctx is done.
type Pacer interface {
	Wait(ctx context.Context) error
}

// DefaultStageDelay is the pause between stages.
const DefaultStageDelay = time.Second

type fixedDelay time.Duration

// FixedDelay pauses d after every stage. d <= 0 disables pausing.
func FixedDelay(d time.Duration) Pacer { return fixedDelay(d) }

func (d fixedDelay) Wait(ctx context.Context) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(time.Duration(d))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type ratePacer struct {
	lim *rate.Limiter
}

// RatePacer admits at most rpm stage transitions per minute across every
// session sharing the returned Pacer. A burst of one keeps calls evenly spread.
func RatePacer(rpm int) Pacer {
	if rpm <= 0 {
		return FixedDelay(0)
	}
	return &ratePacer{lim: rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1)}
}

func (p *ratePacer) Wait(ctx context.Context) error { return p.lim.Wait(ctx) }
