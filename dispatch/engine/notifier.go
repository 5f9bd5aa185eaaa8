package engine

import (
	"context"
)

// Interface for a type that can handle sending operator alerts
type Notifier interface {
	// `source` identifies the unit or rule the error came from
	NotifyError(ctx context.Context, source string, err error) error
}
