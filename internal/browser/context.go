package browser

import "context"

// CombineContext creates a context canceled when either parent is canceled.
// Operations against the shared tab must respect both the browser lifecycle
// and the caller's deadline.
func CombineContext(parentCtx, secondaryCtx context.Context) (context.Context, context.CancelFunc) {
	combinedCtx, cancel := context.WithCancel(parentCtx)

	go func() {
		select {
		case <-secondaryCtx.Done():
			cancel()
		case <-combinedCtx.Done():
		}
	}()

	return combinedCtx, cancel
}
