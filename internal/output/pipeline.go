package output

import (
	"context"
	"fmt"

	"msmanager/internal/dashboard"
	"msmanager/internal/engine"
)

// Loader is the part of the reconciler a one-shot report needs.
type Loader interface {
	RefreshStatus(ctx context.Context) error
	RefreshTags(ctx context.Context) dashboard.Outcome
	RefreshRelease(ctx context.Context) dashboard.Outcome
	CheckAppUpdate(ctx context.Context) dashboard.Outcome
	State() dashboard.State
}

// Snapshot is one evaluated dashboard state.
type Snapshot struct {
	State  dashboard.State
	Checks []engine.CheckResult
	Report Report
}

// RunSnapshot loads everything the dashboard shows, evaluates it and builds
// the report: Status -> Tags -> Release -> App update -> Evaluate -> Report.
// Only a failed status fetch is fatal; the other steps record their
// failures in the state.
func RunSnapshot(ctx context.Context, l Loader) (*Snapshot, error) {
	if err := l.RefreshStatus(ctx); err != nil {
		return nil, fmt.Errorf("fetch status: %w", err)
	}
	l.RefreshTags(ctx)
	l.RefreshRelease(ctx)
	l.CheckAppUpdate(ctx)

	return Evaluate(l.State()), nil
}

// Evaluate grades s and builds its report without fetching anything.
func Evaluate(s dashboard.State) *Snapshot {
	checks := engine.Evaluate(s)
	return &Snapshot{
		State:  s,
		Checks: checks,
		Report: BuildReport(checks, s),
	}
}
