package taskhive

import (
	"context"

	"github.com/UniQw/taskhive/internal/hctx"
)

// ReportProgress records the running task's own progress (0..1) and persists it, so the
// parent sees it too. It is a no-op if the context was not provided by a Worker.
func ReportProgress(ctx context.Context, p float64) error {
	st, ok := hctx.From(ctx)
	if !ok || st == nil || st.Report == nil {
		return nil
	}
	return st.Report(p)
}

// CurrentTaskID returns the id of the task executing under ctx.
func CurrentTaskID(ctx context.Context) (int64, bool) {
	st, ok := hctx.From(ctx)
	if !ok || st == nil {
		return 0, false
	}
	return st.TaskID, true
}
