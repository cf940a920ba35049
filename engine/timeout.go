package engine

import (
	"context"
	"time"

	apperrors "github.com/tenebris-tech/docxblank/internal/errors"
)

// WithTimeout bounds every call made through eng and the documents it opens.
// A non-positive timeout returns eng unchanged.
func WithTimeout(eng Engine, timeout time.Duration) Engine {
	if timeout <= 0 {
		return eng
	}
	return &timeoutEngine{inner: eng, timeout: timeout}
}

type timeoutEngine struct {
	inner   Engine
	timeout time.Duration
}

func (e *timeoutEngine) Open(ctx context.Context, path string) (Document, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	type result struct {
		doc Document
		err error
	}
	ch := make(chan result, 1)
	go func() {
		doc, err := e.inner.Open(ctx, path)
		ch <- result{doc: doc, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		return &timeoutDocument{inner: r.doc, timeout: e.timeout}, nil
	case <-ctx.Done():
		// Close whatever the abandoned call eventually opens
		go func() {
			if r := <-ch; r.doc != nil {
				_ = r.doc.Close()
			}
		}()
		if ctx.Err() == context.DeadlineExceeded {
			return nil, apperrors.NewDocumentAccessError(path, apperrors.NewEngineTimeoutError("Open", e.timeout))
		}
		return nil, apperrors.NewDocumentAccessError(path, ctx.Err())
	}
}

// timeoutDocument wraps a Document so no call blocks longer than timeout.
// After a timeout the document is unusable: the abandoned call may still be
// running against it.
type timeoutDocument struct {
	inner   Document
	timeout time.Duration
	failed  error
	pending chan struct{}
}

func callWithTimeout[T any](ctx context.Context, timeout time.Duration, op string, done chan struct{}, fn func() (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		value T
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		defer close(done)
		v, err := fn()
		ch <- result{value: v, err: err}
	}()

	select {
	case r := <-ch:
		return r.value, r.err
	case <-ctx.Done():
		var zero T
		if ctx.Err() == context.DeadlineExceeded {
			return zero, apperrors.NewEngineTimeoutError(op, timeout)
		}
		return zero, ctx.Err()
	}
}

func run[T any](ctx context.Context, d *timeoutDocument, op string, fn func() (T, error)) (T, error) {
	if d.failed != nil {
		var zero T
		return zero, d.failed
	}
	done := make(chan struct{})
	d.pending = done
	v, err := callWithTimeout(ctx, d.timeout, op, done, fn)
	if err != nil && apperrors.HasCode(err, apperrors.ErrorEngineTimeout) {
		d.failed = err
	}
	return v, err
}

func (d *timeoutDocument) PageCount() (int, error) {
	return run(context.Background(), d, "PageCount", d.inner.PageCount)
}

func (d *timeoutDocument) PageContent(page int) (*ContentSnapshot, error) {
	return run(context.Background(), d, "PageContent", func() (*ContentSnapshot, error) {
		return d.inner.PageContent(page)
	})
}

func (d *timeoutDocument) Sections() ([]SectionInfo, error) {
	return run(context.Background(), d, "Sections", d.inner.Sections)
}

func (d *timeoutDocument) Paragraphs() ([]string, error) {
	return run(context.Background(), d, "Paragraphs", d.inner.Paragraphs)
}

func (d *timeoutDocument) SectionBodies() ([]SectionBody, error) {
	return run(context.Background(), d, "SectionBodies", d.inner.SectionBodies)
}

func (d *timeoutDocument) SetSectionBreakType(section int, breakType string) (bool, error) {
	return run(context.Background(), d, "SetSectionBreakType", func() (bool, error) {
		return d.inner.SetSectionBreakType(section, breakType)
	})
}

func (d *timeoutDocument) DeletePageRange(start, end int) error {
	_, err := run(context.Background(), d, "DeletePageRange", func() (struct{}, error) {
		return struct{}{}, d.inner.DeletePageRange(start, end)
	})
	return err
}

func (d *timeoutDocument) ClearHeadersFooters(section int) (bool, error) {
	return run(context.Background(), d, "ClearHeadersFooters", func() (bool, error) {
		return d.inner.ClearHeadersFooters(section)
	})
}

func (d *timeoutDocument) RemoveWatermarks(section int) (bool, error) {
	return run(context.Background(), d, "RemoveWatermarks", func() (bool, error) {
		return d.inner.RemoveWatermarks(section)
	})
}

func (d *timeoutDocument) Unprotect() (bool, error) {
	return run(context.Background(), d, "Unprotect", d.inner.Unprotect)
}

func (d *timeoutDocument) Save(ctx context.Context, path string) error {
	_, err := run(ctx, d, "Save", func() (struct{}, error) {
		return struct{}{}, d.inner.Save(ctx, path)
	})
	if err != nil && apperrors.HasCode(err, apperrors.ErrorEngineTimeout) {
		return apperrors.NewSaveError(path, err)
	}
	return err
}

// Close releases the document once any abandoned call has returned
func (d *timeoutDocument) Close() error {
	if d.failed != nil && d.pending != nil {
		pending := d.pending
		go func() {
			<-pending
			_ = d.inner.Close()
		}()
		return nil
	}
	return d.inner.Close()
}
