package scraper

import (
	"context"
	"math/rand"
	"time"
)

// Pacer spaces out browser actions. Delays are fixed or drawn from a range,
// and every wait returns early when ctx is cancelled.
type Pacer struct {
	rng   *rand.Rand
	sleep func(ctx context.Context, d time.Duration) error
}

func NewPacer() *Pacer {
	return &Pacer{
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep: sleepCtx,
	}
}

// NewInstantPacer never sleeps; it is seeded so ranges are reproducible.
func NewInstantPacer(seed int64) *Pacer {
	return &Pacer{
		rng:   rand.New(rand.NewSource(seed)),
		sleep: func(ctx context.Context, d time.Duration) error { return ctx.Err() },
	}
}

func (p *Pacer) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	return p.sleep(ctx, d)
}

// Between returns a value in [min, max].
func (p *Pacer) Between(min, max int) int {
	if max <= min {
		return min
	}
	return min + p.rng.Intn(max-min+1)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
