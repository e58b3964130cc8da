package library

import (
	"errors"
	"testing"

	"framecut/pkg/models"

	"github.com/sirupsen/logrus"
)

func newTestLibrary() *Library {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel) // Reduce noise in tests
	return NewLibrary(logger)
}

func TestImportDeduplicatesByPath(t *testing.T) {
	l := newTestLibrary()

	first := l.Import("/media/a.mp4", "a", 100)
	second := l.Import("/media/a.mp4", "a again", 100)

	if first.ID != second.ID {
		t.Errorf("re-importing the same path created a new source")
	}
	if l.Count() != 1 {
		t.Errorf("Count() = %d, want 1", l.Count())
	}
}

func TestAttachMetadata(t *testing.T) {
	l := newTestLibrary()
	clip := l.Import("/media/a.mp4", "a", 100)

	res := &models.Resolution{Width: 1920, Height: 1080}
	if err := l.AttachMetadata(clip.ID, 12.5, res); err != nil {
		t.Fatalf("AttachMetadata() error: %v", err)
	}

	got, err := l.Get(clip.ID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.Duration == nil || *got.Duration != 12.5 {
		t.Errorf("duration not recorded: %v", got.Duration)
	}
	if got.Resolution == nil || got.Resolution.Width != 1920 {
		t.Errorf("resolution not recorded: %v", got.Resolution)
	}

	// Attaching again is idempotent.
	if err := l.AttachMetadata(clip.ID, 12.5, res); err != nil {
		t.Errorf("second AttachMetadata() error: %v", err)
	}

	// Attaching to a removed source is a reported no-op.
	l.Remove(clip.ID)
	if err := l.AttachMetadata(clip.ID, 12.5, res); !errors.Is(err, ErrSourceNotFound) {
		t.Errorf("AttachMetadata() after removal error = %v, want %v", err, ErrSourceNotFound)
	}
}

func TestAttachHandle(t *testing.T) {
	l := newTestLibrary()
	clip := l.Import("/media/a.mp4", "a", 100)

	if err := l.AttachHandle(clip.ID, "blob:handle-1"); err != nil {
		t.Fatalf("AttachHandle() error: %v", err)
	}
	got, _ := l.Get(clip.ID)
	if got.MediaHandle != "blob:handle-1" {
		t.Errorf("handle = %q, want blob:handle-1", got.MediaHandle)
	}

	if err := l.AttachHandle("missing", "h"); !errors.Is(err, ErrSourceNotFound) {
		t.Errorf("AttachHandle(unknown) error = %v, want %v", err, ErrSourceNotFound)
	}
}

func TestRemoveFiresCascades(t *testing.T) {
	l := newTestLibrary()

	var cascaded []string
	l.OnRemove(func(sourceID string) {
		cascaded = append(cascaded, "first:"+sourceID)
	})
	l.OnRemove(func(sourceID string) {
		cascaded = append(cascaded, "second:"+sourceID)
	})

	clip := l.Import("/media/a.mp4", "a", 100)
	if err := l.Remove(clip.ID); err != nil {
		t.Fatalf("Remove() error: %v", err)
	}

	if len(cascaded) != 2 {
		t.Fatalf("cascade hooks fired %d times, want 2", len(cascaded))
	}
	if cascaded[0] != "first:"+clip.ID || cascaded[1] != "second:"+clip.ID {
		t.Errorf("cascade order/ids wrong: %v", cascaded)
	}

	// Removing again is a reported no-op and must not re-fire cascades.
	if err := l.Remove(clip.ID); !errors.Is(err, ErrSourceNotFound) {
		t.Errorf("second Remove() error = %v, want %v", err, ErrSourceNotFound)
	}
	if len(cascaded) != 2 {
		t.Errorf("cascades fired for an already-removed source")
	}
}

func TestRemoveByPath(t *testing.T) {
	l := newTestLibrary()
	clip := l.Import("/media/a.mp4", "a", 100)

	if err := l.RemoveByPath("/media/a.mp4"); err != nil {
		t.Fatalf("RemoveByPath() error: %v", err)
	}
	if _, err := l.Get(clip.ID); !errors.Is(err, ErrSourceNotFound) {
		t.Errorf("source still present after RemoveByPath")
	}

	if err := l.RemoveByPath("/media/unknown.mp4"); !errors.Is(err, ErrSourceNotFound) {
		t.Errorf("RemoveByPath(unknown) error = %v, want %v", err, ErrSourceNotFound)
	}
}

func TestClipsPreserveImportOrder(t *testing.T) {
	l := newTestLibrary()
	a := l.Import("/media/a.mp4", "a", 1)
	b := l.Import("/media/b.mp4", "b", 2)
	c := l.Import("/media/c.mp4", "c", 3)

	l.Remove(b.ID)

	clips := l.Clips()
	if len(clips) != 2 || clips[0].ID != a.ID || clips[1].ID != c.ID {
		t.Errorf("listing order wrong after removal: %v", clips)
	}
}

func TestReplaceRebuildsPathIndex(t *testing.T) {
	l := newTestLibrary()
	l.Import("/media/old.mp4", "old", 1)

	l.Replace([]models.SourceClip{
		{ID: "n1", Path: "/media/new1.mp4", Name: "new1"},
		{ID: "n2", Path: "/media/new2.mp4", Name: "new2"},
	})

	if l.Count() != 2 {
		t.Errorf("Count() after Replace = %d, want 2", l.Count())
	}
	if _, err := l.GetByPath("/media/old.mp4"); !errors.Is(err, ErrSourceNotFound) {
		t.Errorf("stale path still resolvable after Replace")
	}
	got, err := l.GetByPath("/media/new2.mp4")
	if err != nil || got.ID != "n2" {
		t.Errorf("GetByPath(new2) = %v, %v", got.ID, err)
	}
}
