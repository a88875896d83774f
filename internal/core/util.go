package core

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

func loggerOrNop(logger *zerolog.Logger) *zerolog.Logger {
	if logger != nil {
		return logger
	}
	nop := zerolog.Nop()
	return &nop
}

// detach keeps the caller's values but not its cancellation: a submit or claim that outlives
// its connection still has to take effect. timeout bounds the detached work when positive.
func detach(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx = context.WithoutCancel(ctx)
	if timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return ctx, func() {}
}
