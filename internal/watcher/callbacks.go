package watcher

import "context"

// FOVCallback runs once per completed FOV.
type FOVCallback func(ctx context.Context, runFolder, fovID string) error

// RunCallback runs once for the whole run after every FOV finishes.
type RunCallback func(ctx context.Context, runFolder string) error

// IntermediateCallback is an optional whole-run callback re-invoked after
// every per-FOV callback. The returned release func frees any state the
// invocation holds open (figures, temp resources); the Handler calls it
// before the next intermediate invocation and on Close. It may be nil.
type IntermediateCallback func(ctx context.Context, runFolder string) (release func(), err error)

// Callbacks bundles the user-supplied processing hooks. FOV and Run may
// be nil, in which case dispatch is tracked but nothing is executed.
type Callbacks struct {
	FOV          FOVCallback
	Run          RunCallback
	Intermediate IntermediateCallback
}
