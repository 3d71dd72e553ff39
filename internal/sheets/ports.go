package sheets

import (
	"context"

	"winterstorm/internal/core"
)

// Ports for outbound adapters.
type (
	// TimelineExporter writes a computed payoff timeline somewhere a user can
	// open it and returns a reference to what was written.
	TimelineExporter interface {
		ExportTimeline(ctx context.Context, t core.Timeline) (ref string, err error)
	}

	// TimelineLister returns previously exported timelines, newest last.
	TimelineLister interface {
		ListTimelines(ctx context.Context) ([]core.Timeline, error)
	}
)
