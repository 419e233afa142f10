// Package reduce materializes a generation view from parsed stream frames.
package reduce

import (
	"log/slog"
	"sort"
	"sync/atomic"

	"github.com/brightclass/tutorlive/pkg/core/frame"
)

// Part is one indexed sub-artifact of a generation (a comic panel).
type Part struct {
	Index        int
	URL          string
	Caption      string
	SourcePrompt string
}

// View is the reducer's materialized output. Parts are unique by index and
// sorted ascending.
type View struct {
	PrimaryText string
	Parts       []Part
}

func (v View) clone() View {
	out := View{PrimaryText: v.PrimaryText}
	if len(v.Parts) > 0 {
		out.Parts = append([]Part(nil), v.Parts...)
	}
	return out
}

// Reducer consumes frames for one in-flight generation request and publishes
// a continuously-updated View after every applied frame. It is driven from a
// single goroutine; only Detach may be called from elsewhere.
type Reducer struct {
	publish  func(View)
	logger   *slog.Logger
	view     View
	stopped  bool
	detached atomic.Bool
}

// New creates a reducer. publish is invoked synchronously after each applied
// frame; a nil logger falls back to slog.Default().
func New(publish func(View), logger *slog.Logger) *Reducer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reducer{publish: publish, logger: logger}
}

// Apply folds one frame into the view and publishes the result.
func (r *Reducer) Apply(f frame.Frame) {
	if r.stopped || r.detached.Load() {
		return
	}
	switch f.Type {
	case frame.TypeStory:
		// Each story frame carries the full current text, not a delta.
		r.view.PrimaryText = f.Content
		r.emit()
	case frame.TypePanel:
		if !f.HasIndex() || f.URL == "" {
			r.logger.Warn("dropping panel frame without index or url",
				"has_index", f.HasIndex(), "url_empty", f.URL == "")
			return
		}
		r.upsertPart(Part{
			Index:        *f.Index,
			URL:          f.URL,
			Caption:      f.Caption,
			SourcePrompt: f.SourcePrompt,
		})
		r.emit()
	default:
		r.logger.Debug("ignoring frame of unknown type", "type", f.Type)
	}
}

func (r *Reducer) upsertPart(p Part) {
	for i := range r.view.Parts {
		if r.view.Parts[i].Index == p.Index {
			r.view.Parts[i] = p
			return
		}
	}
	r.view.Parts = append(r.view.Parts, p)
	sort.Slice(r.view.Parts, func(i, j int) bool {
		return r.view.Parts[i].Index < r.view.Parts[j].Index
	})
}

// Finish publishes the final view once and stops the reducer.
func (r *Reducer) Finish() {
	if r.stopped || r.detached.Load() {
		return
	}
	r.stopped = true
	r.publishView()
}

// Fail stops publishing. The last published view stays intact for display.
func (r *Reducer) Fail(err error) {
	if r.stopped {
		return
	}
	r.stopped = true
	r.logger.Warn("generation stream failed", "error", err)
}

// Detach makes all future publications no-ops. Called when a newer request
// supersedes this one; the underlying transport is not cancelled here.
func (r *Reducer) Detach() {
	r.detached.Store(true)
}

// View returns a snapshot of the current view.
func (r *Reducer) View() View {
	return r.view.clone()
}

func (r *Reducer) emit() {
	r.publishView()
}

func (r *Reducer) publishView() {
	if r.publish == nil || r.detached.Load() {
		return
	}
	r.publish(r.view.clone())
}
