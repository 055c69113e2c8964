package tasks

import (
	"context"

	"github.com/lysyi3m/rss-digest/app/feed"
	"github.com/lysyi3m/rss-digest/app/render"
)

// Fetcher turns one configured source into a FetchOutcome. Implementations
// report failures in the outcome instead of returning errors.
type Fetcher interface {
	Fetch(ctx context.Context, source feed.Source) feed.FetchOutcome
}

type Renderer interface {
	Render(d render.Digest) error
}

// DigestRunner is anything that can produce one digest run.
type DigestRunner interface {
	Execute(ctx context.Context) (*Report, error)
}

// TaskSchedulerInterface is the lifecycle of the periodic digest runner used
// by the serve command.
//
//	scheduler := NewScheduler(digestTask, interval)
//	scheduler.Start()
//	defer scheduler.Stop()
type TaskSchedulerInterface interface {
	Start()
	Stop()
}
