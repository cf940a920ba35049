package remediate

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/tenebris-tech/docxblank/internal/logging"
)

func TestTrackerLifecycle(t *testing.T) {
	tr := NewTracker([]int{5, 3, 3, 0, -1, 7})
	if tr.Len() != 3 {
		t.Fatalf("expected 3 tracked pages, got %d", tr.Len())
	}

	if got := tr.StartRound(); !reflect.DeepEqual(got, []int{3, 5, 7}) {
		t.Fatalf("StartRound() = %v", got)
	}
	if err := tr.MarkProcessed(5, MethodSectionFix, SpecialNone); err != nil {
		t.Fatalf("MarkProcessed failed: %v", err)
	}
	if err := tr.MarkProcessed(5, MethodPageRemove, SpecialNone); err == nil {
		t.Errorf("processed is terminal")
	}
	if err := tr.MarkProcessed(9, MethodPageRemove, SpecialNone); err == nil {
		t.Errorf("untracked page should fail")
	}

	tr.NoteError([]int{3, 5}, errors.New("engine hiccup"))
	if got := tr.Remaining(); !reflect.DeepEqual(got, []int{3, 7}) {
		t.Errorf("Remaining() = %v", got)
	}

	// Pages stay processing between rounds and count another attempt
	if got := tr.StartRound(); !reflect.DeepEqual(got, []int{3, 7}) {
		t.Errorf("second StartRound() = %v", got)
	}

	if got := tr.FailRemaining("gave up"); !reflect.DeepEqual(got, []int{3, 7}) {
		t.Errorf("FailRemaining() = %v", got)
	}

	s3 := tr.State(3)
	if s3.Status != StatusFailed || s3.Attempts != 2 || s3.LastError != "engine hiccup" {
		t.Errorf("page 3 state = %+v", s3)
	}
	s7 := tr.State(7)
	if s7.LastError != "gave up" {
		t.Errorf("page 7 should carry the failure reason, got %+v", s7)
	}
	s5 := tr.State(5)
	if s5.Status != StatusProcessed || s5.Method != MethodSectionFix || s5.Attempts != 1 || s5.LastError != "" {
		t.Errorf("page 5 state = %+v", s5)
	}

	if got := tr.Processed(); !reflect.DeepEqual(got, []int{5}) {
		t.Errorf("Processed() = %v", got)
	}
	if got := tr.Unresolved(); !reflect.DeepEqual(got, []int{3, 7}) {
		t.Errorf("Unresolved() = %v", got)
	}

	// Failed pages are revisited by a later round
	if got := tr.StartRound(); !reflect.DeepEqual(got, []int{3, 7}) {
		t.Errorf("failed pages should be picked up again, got %v", got)
	}

	// States are copies
	states := tr.States()
	states[0].Status = StatusProcessed
	if tr.State(3).Status == StatusProcessed {
		t.Errorf("States() must not expose internal state")
	}
}

func TestRevisionStore(t *testing.T) {
	dir := t.TempDir()
	store := NewRevisionStore(dir, "/in/report.docx", logging.Discard())

	first := store.NewPath(MethodSectionFix)
	second := store.NewPath(MethodPageRemove)
	if first == second {
		t.Fatalf("paths must be unique")
	}
	if filepath.Dir(first) != dir || filepath.Ext(first) != ".docx" {
		t.Errorf("unexpected path %s", first)
	}
	if !strings.Contains(filepath.Base(first), store.Session()) || !strings.Contains(first, "section-fix") {
		t.Errorf("path should carry session and method: %s", first)
	}

	for _, p := range []string{first, second} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	foreign := filepath.Join(dir, "input.docx")
	if err := os.WriteFile(foreign, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	store.Release(foreign)
	if _, err := os.Stat(foreign); err != nil {
		t.Errorf("paths the store does not own must survive Release")
	}

	store.Release(first)
	if _, err := os.Stat(first); !os.IsNotExist(err) {
		t.Errorf("released revision should be deleted")
	}
	if store.Owns(first) || !store.Owns(second) {
		t.Errorf("ownership not updated: %v", store.Owned())
	}

	store.Cleanup()
	if _, err := os.Stat(second); !os.IsNotExist(err) {
		t.Errorf("Cleanup should delete remaining revisions")
	}
	if len(store.Owned()) != 0 {
		t.Errorf("store should own nothing after Cleanup")
	}
	// A second cleanup is harmless
	store.Cleanup()
}

func TestDefaultOutputPath(t *testing.T) {
	tests := map[string]string{
		"/tmp/report.docx":  "/tmp/report_processed.docx",
		"report.v2.docx":    "report.v2_processed.docx",
		"/tmp/no-extension": "/tmp/no-extension_processed",
	}
	for in, want := range tests {
		if got := DefaultOutputPath(in); got != want {
			t.Errorf("DefaultOutputPath(%q) = %q, want %q", in, got, want)
		}
	}
}
