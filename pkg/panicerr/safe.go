package panicerr

import (
	"context"

	"github.com/sourcegraph/conc/panics"
)

// SafeContext wraps fn so that a panic inside it is returned as an error
// instead of crashing the process. Scheduled jobs run through it because the
// cron runner has no caller to report to.
func SafeContext(fn func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		var (
			catcher panics.Catcher
			err     error
		)
		catcher.Try(func() {
			err = fn(ctx)
		})
		if err != nil {
			return err
		}
		return catcher.Recovered().AsError()
	}
}
