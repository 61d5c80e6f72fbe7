package triggers

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// ErrReadOnly is returned by the read_only trigger for write requests.
var ErrReadOnly = errors.New("resource is read-only")

// Builtins returns the triggers available to bindings files by name.
func Builtins(logger *zap.Logger) map[string]Trigger {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("trigger")

	return map[string]Trigger{
		"log": TriggerFunc("log", func(_ context.Context, ev Event) error {
			phase := "after"
			if ev.Before {
				phase = "before"
			}
			logger.Info("Resource request",
				zap.String("resource", ev.Resource),
				zap.String("phase", phase),
				zap.String("type", string(ev.Request.Type)),
				zap.String("request_id", ev.Request.ID.String()),
				zap.Int("identifiers", len(ev.Request.ResourceIdentifiers)),
				zap.Int("parameters", len(ev.Request.Parameters)))
			return nil
		}),
		"read_only": TriggerFunc("read_only", func(_ context.Context, ev Event) error {
			if ev.Before && ev.Request.Type.IsWrite() {
				return ErrReadOnly
			}
			return nil
		}),
	}
}
