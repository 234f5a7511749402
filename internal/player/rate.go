package player

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
)

// rate paces the playback loop against absolute deadlines so decode time
// is absorbed into the period instead of added to it.
type rate struct {
	clk  clock.Clock
	next time.Time
}

func newRate(clk clock.Clock) *rate {
	return &rate{clk: clk}
}

// Sleeps until the next deadline, or until ctx is done. A loop that fell
// more than one period behind starts over from now.
func (r *rate) sleep(ctx context.Context, period time.Duration) error {
	now := r.clk.Now()
	if r.next.IsZero() || now.Sub(r.next) > period {
		r.next = now
	}
	r.next = r.next.Add(period)

	wait := r.next.Sub(now)
	if wait <= 0 {
		return ctx.Err()
	}

	timer := r.clk.Timer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Forgets the previous deadline
func (r *rate) reset() {
	r.next = time.Time{}
}
