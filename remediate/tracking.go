package remediate

import (
	"fmt"
	"sort"
)

// PageStatus is the remediation status of one marked page
type PageStatus string

const (
	StatusPending    PageStatus = "pending"
	StatusProcessing PageStatus = "processing"
	StatusProcessed  PageStatus = "processed"
	StatusFailed     PageStatus = "failed"
)

// PageTrackingState follows one originally marked page across rounds. The page
// number is fixed when remediation starts.
type PageTrackingState struct {
	PageNumber  int
	Status      PageStatus
	Method      Method
	SpecialCase SpecialCase
	Attempts    int
	LastError   string
}

// Clone returns a copy of the state
func (p *PageTrackingState) Clone() *PageTrackingState {
	clone := *p
	return &clone
}

// Tracker holds the tracking state of every marked page
type Tracker struct {
	pages map[int]*PageTrackingState
	order []int
}

// NewTracker creates pending states for marked pages. Duplicates and
// non-positive page numbers are dropped.
func NewTracker(marked []int) *Tracker {
	t := &Tracker{pages: make(map[int]*PageTrackingState)}
	for _, page := range marked {
		if page < 1 {
			continue
		}
		if _, ok := t.pages[page]; ok {
			continue
		}
		t.pages[page] = &PageTrackingState{PageNumber: page, Status: StatusPending}
		t.order = append(t.order, page)
	}
	sort.Ints(t.order)
	return t
}

// Len returns the number of tracked pages
func (t *Tracker) Len() int {
	return len(t.order)
}

// StartRound moves pending and failed pages to processing and returns them
func (t *Tracker) StartRound() []int {
	var out []int
	for _, page := range t.order {
		st := t.pages[page]
		switch st.Status {
		case StatusPending, StatusFailed:
			st.Status = StatusProcessing
			fallthrough
		case StatusProcessing:
			st.Attempts++
			out = append(out, page)
		}
	}
	return out
}

// MarkProcessed records that a processing page was resolved
func (t *Tracker) MarkProcessed(page int, method Method, special SpecialCase) error {
	st, ok := t.pages[page]
	if !ok {
		return fmt.Errorf("page %d is not tracked", page)
	}
	if st.Status != StatusProcessing {
		return fmt.Errorf("page %d is %s, not processing", page, st.Status)
	}
	st.Status = StatusProcessed
	st.Method = method
	st.SpecialCase = special
	st.LastError = ""
	return nil
}

// NoteError records the last error seen for the processing pages
func (t *Tracker) NoteError(pages []int, err error) {
	for _, page := range pages {
		if st, ok := t.pages[page]; ok && st.Status == StatusProcessing {
			st.LastError = err.Error()
		}
	}
}

// FailRemaining moves every processing page to failed and returns them. Pages
// still pending when a run stops early go through processing first.
func (t *Tracker) FailRemaining(reason string) []int {
	var out []int
	for _, page := range t.order {
		st := t.pages[page]
		if st.Status == StatusPending {
			st.Status = StatusProcessing
		}
		if st.Status != StatusProcessing {
			continue
		}
		st.Status = StatusFailed
		if st.LastError == "" {
			st.LastError = reason
		}
		out = append(out, page)
	}
	return out
}

// Remaining returns the pages still processing
func (t *Tracker) Remaining() []int {
	return t.withStatus(StatusProcessing)
}

// Processed returns the resolved pages
func (t *Tracker) Processed() []int {
	return t.withStatus(StatusProcessed)
}

// Unresolved returns every page that is not processed
func (t *Tracker) Unresolved() []int {
	var out []int
	for _, page := range t.order {
		if t.pages[page].Status != StatusProcessed {
			out = append(out, page)
		}
	}
	return out
}

// State returns a copy of the tracking state of page, or nil
func (t *Tracker) State(page int) *PageTrackingState {
	if st, ok := t.pages[page]; ok {
		return st.Clone()
	}
	return nil
}

// States returns copies of all states ordered by page number
func (t *Tracker) States() []PageTrackingState {
	out := make([]PageTrackingState, 0, len(t.order))
	for _, page := range t.order {
		out = append(out, *t.pages[page])
	}
	return out
}

func (t *Tracker) withStatus(status PageStatus) []int {
	var out []int
	for _, page := range t.order {
		if t.pages[page].Status == status {
			out = append(out, page)
		}
	}
	return out
}
