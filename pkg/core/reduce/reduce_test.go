package reduce

import (
	"errors"
	"testing"

	"github.com/brightclass/tutorlive/pkg/core/frame"
)

func panelFrame(index int, url string) frame.Frame {
	return frame.Frame{Type: frame.TypePanel, Index: &index, URL: url}
}

func storyFrame(content string) frame.Frame {
	return frame.Frame{Type: frame.TypeStory, Content: content}
}

func TestReducer_UpsertAndSort(t *testing.T) {
	var published []View
	r := New(func(v View) { published = append(published, v) }, nil)

	// Arrival order 2, 0, 1, 0 — second index-0 frame must win in place.
	r.Apply(panelFrame(2, "u2"))
	r.Apply(panelFrame(0, "u0-old"))
	r.Apply(panelFrame(1, "u1"))
	r.Apply(panelFrame(0, "u0"))

	if len(published) != 4 {
		t.Fatalf("published %d views, want one per frame", len(published))
	}
	final := published[len(published)-1]
	if len(final.Parts) != 3 {
		t.Fatalf("parts = %d, want 3", len(final.Parts))
	}
	for i, want := range []int{0, 1, 2} {
		if final.Parts[i].Index != want {
			t.Fatalf("parts[%d].Index = %d, want %d", i, final.Parts[i].Index, want)
		}
	}
	if final.Parts[0].URL != "u0" {
		t.Fatalf("index 0 content = %q, want last write to win", final.Parts[0].URL)
	}
}

func TestReducer_StoryReplacesWholesale(t *testing.T) {
	var last View
	r := New(func(v View) { last = v }, nil)

	r.Apply(storyFrame("A"))
	r.Apply(storyFrame("A tale"))
	if last.PrimaryText != "A tale" {
		t.Fatalf("PrimaryText = %q, want full replacement", last.PrimaryText)
	}
}

func TestReducer_DropsIncompletePanels(t *testing.T) {
	count := 0
	r := New(func(View) { count++ }, nil)

	r.Apply(frame.Frame{Type: frame.TypePanel, URL: "u"}) // no index
	idx := 1
	r.Apply(frame.Frame{Type: frame.TypePanel, Index: &idx}) // no url
	if count != 0 {
		t.Fatalf("incomplete panels published %d views", count)
	}
	if len(r.View().Parts) != 0 {
		t.Fatalf("incomplete panels stored: %#v", r.View().Parts)
	}
}

func TestReducer_FinishPublishesFinalViewOnce(t *testing.T) {
	count := 0
	var last View
	r := New(func(v View) { count++; last = v }, nil)

	r.Apply(storyFrame("done"))
	r.Finish()
	r.Finish()
	if count != 2 {
		t.Fatalf("publish count = %d, want apply + one finish", count)
	}
	if last.PrimaryText != "done" {
		t.Fatalf("final view = %#v", last)
	}
	// Frames after completion are ignored.
	r.Apply(storyFrame("late"))
	if count != 2 || r.View().PrimaryText != "done" {
		t.Fatalf("reducer accepted frames after Finish")
	}
}

func TestReducer_FailKeepsLastGoodView(t *testing.T) {
	var last View
	r := New(func(v View) { last = v }, nil)

	r.Apply(storyFrame("partial"))
	r.Fail(errors.New("connection reset"))
	r.Apply(storyFrame("after failure"))
	if last.PrimaryText != "partial" {
		t.Fatalf("view after failure = %q, want last good view preserved", last.PrimaryText)
	}
}

func TestReducer_DetachSilencesPublications(t *testing.T) {
	count := 0
	r := New(func(View) { count++ }, nil)

	r.Apply(storyFrame("a"))
	r.Detach()
	r.Apply(storyFrame("b"))
	r.Finish()
	if count != 1 {
		t.Fatalf("detached reducer still published, count = %d", count)
	}
}

func TestReducer_PublishedViewIsSnapshot(t *testing.T) {
	var views []View
	r := New(func(v View) { views = append(views, v) }, nil)

	r.Apply(panelFrame(0, "u0"))
	r.Apply(panelFrame(0, "u0-replaced"))
	if views[0].Parts[0].URL != "u0" {
		t.Fatalf("earlier published view mutated: %#v", views[0])
	}
}
