package usecase

import (
	"context"
	"fmt"
	"time"
)

// sleep waits for d or until ctx is done, whichever comes first.
func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

func panicError(where string, r any) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("%s panicked: %w", where, err)
	}
	return fmt.Errorf("%s panicked: %v", where, r)
}
