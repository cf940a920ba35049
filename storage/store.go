// Package storage persists remediation job results. PostgresStore backs the
// server when DATABASE_URL is set; MemoryStore serves otherwise and in tests.
package storage

import (
	"context"
	"errors"
	"sync"
	"time"

	apperrors "github.com/tenebris-tech/docxblank/internal/errors"
	"github.com/tenebris-tech/docxblank/remediate"
)

// ErrNotFound is returned when no job has the requested ID
var ErrNotFound = errors.New("job not found")

// JobStatus is the lifecycle status of a remediation job
type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// PageState is the persisted tracking state of one marked page
type PageState struct {
	Page        int    `json:"page"`
	Status      string `json:"status"`
	Method      string `json:"method,omitempty"`
	SpecialCase string `json:"specialCase,omitempty"`
	Attempts    int    `json:"attempts"`
	LastError   string `json:"lastError,omitempty"`
}

// JobRecord is the stored view of a remediation job
type JobRecord struct {
	ID             string      `json:"id"`
	Filename       string      `json:"filename"`
	Status         JobStatus   `json:"status"`
	Progress       int         `json:"progress"`
	MarkedPages    []int       `json:"markedPages"`
	ProcessedPages []int       `json:"processedPages"`
	RemainingPages []int       `json:"remainingPages"`
	State          string      `json:"state,omitempty"`
	Attempts       int         `json:"attempts"`
	Message        string      `json:"message,omitempty"`
	OutputPath     string      `json:"outputPath,omitempty"`
	ErrorCode      string      `json:"errorCode,omitempty"`
	ErrorMessage   string      `json:"errorMessage,omitempty"`
	Pages          []PageState `json:"pages,omitempty"`
	CreatedAt      time.Time   `json:"createdAt"`
	UpdatedAt      time.Time   `json:"updatedAt"`
}

// ApplyResult copies a remediation outcome into the record. A run that ends
// without error is completed even when some pages remain blank.
func (r *JobRecord) ApplyResult(result *remediate.Result, err error) {
	r.Progress = 100
	r.Status = JobCompleted
	if result != nil {
		r.ProcessedPages = result.ProcessedPages
		r.RemainingPages = result.RemainingPages
		r.State = string(result.State)
		r.Attempts = result.Attempts
		r.Message = result.Message
		r.OutputPath = result.OutputPath
		r.Pages = make([]PageState, 0, len(result.Pages))
		for _, p := range result.Pages {
			r.Pages = append(r.Pages, PageState{
				Page:        p.PageNumber,
				Status:      string(p.Status),
				Method:      string(p.Method),
				SpecialCase: string(p.SpecialCase),
				Attempts:    p.Attempts,
				LastError:   p.LastError,
			})
		}
	}
	if err != nil {
		r.Status = JobFailed
		r.ErrorCode = string(apperrors.CodeOf(err))
		r.ErrorMessage = err.Error()
	}
}

// Clone returns a deep copy of the record
func (r *JobRecord) Clone() *JobRecord {
	clone := *r
	clone.MarkedPages = append([]int(nil), r.MarkedPages...)
	clone.ProcessedPages = append([]int(nil), r.ProcessedPages...)
	clone.RemainingPages = append([]int(nil), r.RemainingPages...)
	clone.Pages = append([]PageState(nil), r.Pages...)
	return &clone
}

// Store saves and loads job records
type Store interface {
	SaveResult(ctx context.Context, record *JobRecord) error
	GetResult(ctx context.Context, id string) (*JobRecord, error)
	Close() error
}

// MemoryStore keeps job records in process memory
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*JobRecord
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*JobRecord)}
}

// SaveResult inserts or replaces a record
func (m *MemoryStore) SaveResult(ctx context.Context, record *JobRecord) error {
	if record == nil || record.ID == "" {
		return errors.New("job ID is required")
	}
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	clone := record.Clone()
	if existing, ok := m.jobs[record.ID]; ok {
		clone.CreatedAt = existing.CreatedAt
	} else if clone.CreatedAt.IsZero() {
		clone.CreatedAt = now
	}
	clone.UpdatedAt = now
	m.jobs[record.ID] = clone
	return nil
}

// GetResult returns a copy of the record with the given ID
func (m *MemoryStore) GetResult(ctx context.Context, id string) (*JobRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, ok := m.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return record.Clone(), nil
}

// Close is a no-op
func (m *MemoryStore) Close() error {
	return nil
}
