package flow

import (
	"context"
	"time"
)

// Clock abstracts time for the flows: filing dates, ending dates and
// the pause between assignment proposals all go through it so tests
// run instantly.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// NewClock returns the wall clock.
func NewClock() Clock { return realClock{} }

// filingDate renders a filing date, e.g. "02/11/2026".
func filingDate(now time.Time) string { return now.UTC().Format("01/02/2006") }

// endingDate renders a case-log ending date, e.g. "02/11/26".
func endingDate(now time.Time) string { return now.UTC().Format("01/02/06") }
