package api

import "context"

// Lifecycle is the subset of supervisor.Supervisor's operations a
// Plugin needs, narrowed to an interface so callers can substitute a
// fake in tests without pulling in internal/supervisor directly.
type Lifecycle interface {
	Enable(ctx context.Context, name string) error
	Disable(ctx context.Context, name string) error
	Start(ctx context.Context, name string) error
	Stop(ctx context.Context, name string) error
}
