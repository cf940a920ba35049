// Package enginetest provides a scriptable in-memory document engine for tests
package enginetest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tenebris-tech/docxblank/engine"
	apperrors "github.com/tenebris-tech/docxblank/internal/errors"
)

// State is the full content of one scripted document revision
type State struct {
	Pages      []engine.ContentSnapshot
	Sections   []engine.SectionInfo
	Paragraphs []string
	Bodies     []engine.SectionBody
}

// Clone returns a deep copy
func (s *State) Clone() *State {
	c := &State{
		Pages:      make([]engine.ContentSnapshot, len(s.Pages)),
		Sections:   make([]engine.SectionInfo, len(s.Sections)),
		Paragraphs: append([]string(nil), s.Paragraphs...),
		Bodies:     make([]engine.SectionBody, len(s.Bodies)),
	}
	for i, p := range s.Pages {
		p.TableCells = append([]string(nil), p.TableCells...)
		c.Pages[i] = p
	}
	copy(c.Sections, s.Sections)
	for i, b := range s.Bodies {
		c.Bodies[i].TextBlocks = append([]string(nil), b.TextBlocks...)
		c.Bodies[i].Tables = append([][][]string(nil), b.Tables...)
	}
	return c
}

// SectionOf returns the index of the section owning a 1-based page, or -1
func (s *State) SectionOf(page int) int {
	for _, sec := range s.Sections {
		if page >= sec.StartPage && page <= sec.EndPage {
			return sec.Index
		}
	}
	return -1
}

// RemovePages drops pages start..end and shifts section ranges
func (s *State) RemovePages(start, end int) {
	n := end - start + 1
	s.Pages = append(s.Pages[:start-1], s.Pages[end:]...)
	for i := range s.Sections {
		sec := &s.Sections[i]
		removed := 0
		for p := start; p <= end; p++ {
			if p >= sec.StartPage && p <= sec.EndPage {
				removed++
			}
		}
		before := 0
		if sec.StartPage > end {
			before = n
		} else if sec.StartPage > start {
			before = sec.StartPage - start
		}
		sec.StartPage -= before
		sec.EndPage = sec.EndPage - before - removed
	}
}

// Engine is a scriptable engine. Documents are keyed by path; Save stores the
// revision under the target path so later Opens see it.
type Engine struct {
	mu   sync.Mutex
	docs map[string]*State

	// Optional behavior overrides; nil means the default behavior
	OnSetBreakType     func(s *State, section int, breakType string) (bool, error)
	OnDeletePages      func(s *State, start, end int) error
	OnClearHeaders     func(s *State, section int) (bool, error)
	OnRemoveWatermarks func(s *State, section int) (bool, error)
	OnUnprotect        func(s *State) (bool, error)

	// Failure injection
	FailOpen        error
	FailSave        error
	FailPageContent error

	delay  time.Duration
	opened int
	closed int
	calls  []string
}

// New creates an empty fake engine
func New() *Engine {
	return &Engine{docs: make(map[string]*State)}
}

// SetDelay makes every later document call sleep for d
func (e *Engine) SetDelay(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.delay = d
}

// Put stores a document revision under path
func (e *Engine) Put(path string, s *State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.docs[path] = s.Clone()
}

// Get returns a copy of the revision stored under path, or nil
func (e *Engine) Get(path string) *State {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.docs[path]; ok {
		return s.Clone()
	}
	return nil
}

// Remove forgets the revision stored under path
func (e *Engine) Remove(path string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.docs, path)
}

// Handles reports how many documents were opened and closed
func (e *Engine) Handles() (opened, closed int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.opened, e.closed
}

// Calls returns the mutating calls seen so far, e.g. "SetSectionBreakType(1,continuous)"
func (e *Engine) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

func (e *Engine) record(format string, args ...interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, fmt.Sprintf(format, args...))
}

func (e *Engine) Open(ctx context.Context, path string) (engine.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.NewDocumentAccessError(path, err)
	}
	if e.FailOpen != nil {
		return nil, apperrors.NewDocumentAccessError(path, e.FailOpen)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.docs[path]
	if !ok {
		return nil, apperrors.NewDocumentAccessError(path, fmt.Errorf("no such document"))
	}
	e.opened++
	return &Document{engine: e, state: s.Clone()}, nil
}

// Document is one open fake revision
type Document struct {
	engine *Engine
	state  *State
	closed bool
}

func (d *Document) wait() error {
	d.engine.mu.Lock()
	delay := d.engine.delay
	d.engine.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	if d.closed {
		return engine.ErrClosed
	}
	return nil
}

func (d *Document) checkSection(section int) error {
	if section < 0 || section >= len(d.state.Sections) {
		return fmt.Errorf("section %d out of range", section)
	}
	return nil
}

func (d *Document) PageCount() (int, error) {
	if err := d.wait(); err != nil {
		return 0, err
	}
	return len(d.state.Pages), nil
}

func (d *Document) PageContent(page int) (*engine.ContentSnapshot, error) {
	if err := d.wait(); err != nil {
		return nil, err
	}
	if d.engine.FailPageContent != nil {
		return nil, d.engine.FailPageContent
	}
	if page < 1 || page > len(d.state.Pages) {
		return nil, fmt.Errorf("page %d out of range", page)
	}
	snap := d.state.Pages[page-1]
	snap.TableCells = append([]string(nil), snap.TableCells...)
	return &snap, nil
}

func (d *Document) Sections() ([]engine.SectionInfo, error) {
	if err := d.wait(); err != nil {
		return nil, err
	}
	return append([]engine.SectionInfo(nil), d.state.Sections...), nil
}

func (d *Document) Paragraphs() ([]string, error) {
	if err := d.wait(); err != nil {
		return nil, err
	}
	return append([]string(nil), d.state.Paragraphs...), nil
}

func (d *Document) SectionBodies() ([]engine.SectionBody, error) {
	if err := d.wait(); err != nil {
		return nil, err
	}
	return d.state.Clone().Bodies, nil
}

func (d *Document) SetSectionBreakType(section int, breakType string) (bool, error) {
	if err := d.wait(); err != nil {
		return false, err
	}
	if err := d.checkSection(section); err != nil {
		return false, err
	}
	d.engine.record("SetSectionBreakType(%d,%s)", section, breakType)
	if d.engine.OnSetBreakType != nil {
		return d.engine.OnSetBreakType(d.state, section, breakType)
	}
	if d.state.Sections[section].BreakType == breakType {
		return false, nil
	}
	d.state.Sections[section].BreakType = breakType
	return true, nil
}

func (d *Document) DeletePageRange(start, end int) error {
	if err := d.wait(); err != nil {
		return err
	}
	if start < 1 || end < start || end > len(d.state.Pages) {
		return fmt.Errorf("invalid page range %d-%d", start, end)
	}
	d.engine.record("DeletePageRange(%d,%d)", start, end)
	if d.engine.OnDeletePages != nil {
		return d.engine.OnDeletePages(d.state, start, end)
	}
	d.state.RemovePages(start, end)
	return nil
}

func (d *Document) ClearHeadersFooters(section int) (bool, error) {
	if err := d.wait(); err != nil {
		return false, err
	}
	if err := d.checkSection(section); err != nil {
		return false, err
	}
	d.engine.record("ClearHeadersFooters(%d)", section)
	if d.engine.OnClearHeaders != nil {
		return d.engine.OnClearHeaders(d.state, section)
	}
	changed := false
	sec := d.state.Sections[section]
	for p := sec.StartPage; p <= sec.EndPage; p++ {
		if d.state.Pages[p-1].HeaderFooterPresent {
			d.state.Pages[p-1].HeaderFooterPresent = false
			changed = true
		}
	}
	return changed, nil
}

func (d *Document) RemoveWatermarks(section int) (bool, error) {
	if err := d.wait(); err != nil {
		return false, err
	}
	if err := d.checkSection(section); err != nil {
		return false, err
	}
	d.engine.record("RemoveWatermarks(%d)", section)
	if d.engine.OnRemoveWatermarks != nil {
		return d.engine.OnRemoveWatermarks(d.state, section)
	}
	changed := false
	sec := d.state.Sections[section]
	for p := sec.StartPage; p <= sec.EndPage; p++ {
		if d.state.Pages[p-1].WatermarkPresent {
			d.state.Pages[p-1].WatermarkPresent = false
			changed = true
		}
	}
	return changed, nil
}

func (d *Document) Unprotect() (bool, error) {
	if err := d.wait(); err != nil {
		return false, err
	}
	d.engine.record("Unprotect()")
	if d.engine.OnUnprotect != nil {
		return d.engine.OnUnprotect(d.state)
	}
	changed := false
	for i := range d.state.Pages {
		if d.state.Pages[i].Protected {
			d.state.Pages[i].Protected = false
			changed = true
		}
	}
	return changed, nil
}

func (d *Document) Save(ctx context.Context, path string) error {
	if err := d.wait(); err != nil {
		return apperrors.NewSaveError(path, err)
	}
	if err := ctx.Err(); err != nil {
		return apperrors.NewSaveError(path, err)
	}
	if d.engine.FailSave != nil {
		return apperrors.NewSaveError(path, d.engine.FailSave)
	}
	d.engine.Put(path, d.state)
	return nil
}

func (d *Document) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	d.engine.mu.Lock()
	d.engine.closed++
	d.engine.mu.Unlock()
	return nil
}
