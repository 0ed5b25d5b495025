package sentriq

import (
	"context"

	"github.com/Sentriq/sentriq-go/internal/hctx"
)

// SetProgress allows a task body to report progress (0..100) for the current
// task. The executor captures the last reported value when the body returns.
// It is a no-op if the context was not provided by a sentriq Executor.
func SetProgress(ctx context.Context, p int) {
	st, ok := hctx.From(ctx)
	if !ok || st == nil {
		return
	}
	if p < 0 {
		p = 0
	} else if p > 100 {
		p = 100
	}
	st.SetProgress(p)
}
