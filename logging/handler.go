package logging

import (
	"context"
	"log/slog"
)

const componentKey = "component"

// componentHandler drops records below the level configured for the
// component the logger was derived for.
type componentHandler struct {
	next      slog.Handler
	spec      *Spec
	component string
}

// NewComponentHandler wraps next with per-component filtering.
func NewComponentHandler(next slog.Handler, spec *Spec) slog.Handler {
	return &componentHandler{next: next, spec: spec}
}

func (h *componentHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.spec.LevelFor(h.component).ToSlog()
}

func (h *componentHandler) Handle(ctx context.Context, r slog.Record) error {
	if !h.Enabled(ctx, r.Level) {
		return nil
	}
	return h.next.Handle(ctx, r)
}

func (h *componentHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	component := h.component
	for _, a := range attrs {
		if a.Key == componentKey {
			component = a.Value.String()
		}
	}
	return &componentHandler{
		next:      h.next.WithAttrs(attrs),
		spec:      h.spec,
		component: component,
	}
}

func (h *componentHandler) WithGroup(name string) slog.Handler {
	return &componentHandler{
		next:      h.next.WithGroup(name),
		spec:      h.spec,
		component: h.component,
	}
}
