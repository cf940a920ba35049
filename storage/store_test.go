package storage

import (
	"context"
	"errors"
	"reflect"
	"testing"

	apperrors "github.com/tenebris-tech/docxblank/internal/errors"
	"github.com/tenebris-tech/docxblank/remediate"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	record := &JobRecord{ID: "job-1", Filename: "book.docx", Status: JobQueued, MarkedPages: []int{2, 4}}
	if err := store.SaveResult(ctx, record); err != nil {
		t.Fatalf("SaveResult failed: %v", err)
	}

	// Mutating the caller's record must not change the stored copy
	record.MarkedPages[0] = 99

	got, err := store.GetResult(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetResult failed: %v", err)
	}
	if !reflect.DeepEqual(got.MarkedPages, []int{2, 4}) || got.Status != JobQueued {
		t.Errorf("unexpected record %+v", got)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Errorf("timestamps not set")
	}

	created := got.CreatedAt
	got.Status = JobCompleted
	if err := store.SaveResult(ctx, got); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	updated, _ := store.GetResult(ctx, "job-1")
	if updated.Status != JobCompleted || !updated.CreatedAt.Equal(created) {
		t.Errorf("update lost data: %+v", updated)
	}
}

func TestMemoryStoreErrors(t *testing.T) {
	store := NewMemoryStore()
	if _, err := store.GetResult(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := store.SaveResult(context.Background(), &JobRecord{}); err == nil {
		t.Errorf("expected error for a record without ID")
	}
}

func TestApplyResult(t *testing.T) {
	result := &remediate.Result{
		State:          remediate.StateConverged,
		ProcessedPages: []int{3},
		RemainingPages: []int{5},
		Attempts:       2,
		OutputPath:     "/tmp/out.docx",
		Message:        "processed 1/2 pages after 2 rounds (converged)",
		Pages: []remediate.PageTrackingState{
			{PageNumber: 3, Status: remediate.StatusProcessed, Method: remediate.MethodSectionFix, Attempts: 1},
			{PageNumber: 5, Status: remediate.StatusFailed, Attempts: 2, LastError: "still blank"},
		},
	}

	var record JobRecord
	record.ApplyResult(result, nil)
	if record.Status != JobCompleted || record.Progress != 100 || record.State != "converged" {
		t.Errorf("unexpected record %+v", record)
	}
	if len(record.Pages) != 2 || record.Pages[0].Method != "section_fix" || record.Pages[1].LastError != "still blank" {
		t.Errorf("unexpected pages %+v", record.Pages)
	}

	var failed JobRecord
	failed.ApplyResult(nil, apperrors.NewSaveError("/tmp/out.docx", errors.New("disk full")))
	if failed.Status != JobFailed || failed.ErrorCode != string(apperrors.ErrorSaveFailed) || failed.ErrorMessage == "" {
		t.Errorf("unexpected failed record %+v", failed)
	}
}

func TestNewPostgresStoreRequiresURL(t *testing.T) {
	if _, err := NewPostgresStore(""); err == nil {
		t.Error("expected error for empty database URL")
	}
}

func TestInt64Conversion(t *testing.T) {
	pages := []int{1, 3, 7}
	if got := fromInt64s(toInt64s(pages)); !reflect.DeepEqual(got, pages) {
		t.Errorf("got %v", got)
	}
	if got := toInt64s(nil); len(got) != 0 {
		t.Errorf("nil pages should convert to an empty array, got %v", got)
	}
}
