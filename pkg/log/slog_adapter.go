package log

import (
	"context"
	"log/slog"
)

// SlogAdapter mirrors protocol events to an slog.Logger at Debug level.
// It is the equivalent of a "--debug" protocol trace on the console.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a new SlogAdapter that writes to logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event to the slog logger.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("session", shortID(event.SessionID)),
		slog.String("direction", event.Direction.String()),
		slog.String("layer", event.Layer.String()),
	}
	if event.Endpoint != "" {
		attrs = append(attrs, slog.String("endpoint", event.Endpoint))
	}

	level := slog.LevelDebug
	switch {
	case event.Line != nil:
		attrs = append(attrs, slog.String("line", event.Line.Text))
	case event.Command != nil:
		attrs = append(attrs,
			slog.Uint64("token", event.Command.Token),
			slog.String("command", event.Command.Text),
		)
	case event.Record != nil:
		attrs = append(attrs, slog.String("type", event.Record.Type))
		if event.Record.Token != 0 {
			attrs = append(attrs, slog.Uint64("token", event.Record.Token))
		}
		if event.Record.Message != "" {
			attrs = append(attrs, slog.String("message", event.Record.Message))
		}
		if event.Record.Payload != "" {
			attrs = append(attrs, slog.String("payload", event.Record.Payload))
		}
		if event.Record.Results != nil {
			attrs = append(attrs, slog.Any("results", event.Record.Results))
		}
		if event.Record.Elapsed != nil {
			attrs = append(attrs, slog.Duration("elapsed", *event.Record.Elapsed))
		}
	case event.StateChange != nil:
		attrs = append(attrs,
			slog.String("entity", event.StateChange.Entity.String()),
			slog.String("old_state", event.StateChange.OldState),
			slog.String("new_state", event.StateChange.NewState),
		)
		if event.StateChange.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.StateChange.Reason))
		}
	case event.Error != nil:
		level = slog.LevelWarn
		attrs = append(attrs,
			slog.String("error_layer", event.Error.Layer.String()),
			slog.String("error_msg", event.Error.Message),
		)
		if event.Error.Context != "" {
			attrs = append(attrs, slog.String("error_context", event.Error.Context))
		}
	}

	a.logger.LogAttrs(context.Background(), level, "mi", attrs...)
}

// shortID returns the first 8 characters of a session ID.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

var _ Logger = (*SlogAdapter)(nil)
