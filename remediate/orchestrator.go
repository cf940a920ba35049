package remediate

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/tenebris-tech/docxblank/blankpage"
	"github.com/tenebris-tech/docxblank/engine"
	apperrors "github.com/tenebris-tech/docxblank/internal/errors"
	"github.com/tenebris-tech/docxblank/internal/logging"
)

// State is the global state of a remediation run
type State string

const (
	StateRunning    State = "running"
	StateConverged  State = "converged"
	StateExhausted  State = "exhausted"
	StateNoProgress State = "no_progress"
)

// Attempt is one strategy application
type Attempt struct {
	Round           int
	Method          Method
	RequestedPages  []int
	SectionsTouched []int
	ResultingPath   string
	Resolved        []int
	Err             error
}

// Result is the outcome of a remediation run. Processed and remaining pages are
// always reported separately; a run can succeed partially.
type Result struct {
	Success        bool
	State          State
	ProcessedPages []int
	RemainingPages []int
	Attempts       int
	OutputPath     string
	Message        string
	Pages          []PageTrackingState
	Log            []Attempt
	Err            error
}

// Orchestrator drives remediation rounds over successive document revisions
type Orchestrator struct {
	engine     engine.Engine
	detector   *blankpage.Detector
	strategies []Strategy
	options    *Options
	log        *logrus.Entry
}

// New creates an orchestrator using eng to open revisions
func New(eng engine.Engine, opts ...Option) (*Orchestrator, error) {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(options)
	}
	log := options.Logger
	if log == nil {
		log = logging.Component("remediate")
	}

	o := &Orchestrator{
		engine:   eng,
		detector: blankpage.NewDetector(log),
		options:  options,
		log:      log,
	}
	for _, method := range options.Methods {
		s, err := NewStrategy(method, o.detector, log.WithField("method", method))
		if err != nil {
			return nil, err
		}
		o.strategies = append(o.strategies, s)
	}
	return o, nil
}

// DefaultOutputSuffix is appended to the base name of default output files
const DefaultOutputSuffix = "_processed"

// DefaultOutputPath returns <base>_processed<ext> next to path
func DefaultOutputPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + DefaultOutputSuffix + ext
}

// Remediate resolves the marked pages of the document at path and writes the
// final revision to output (DefaultOutputPath when empty). The returned error
// is the fatal error that ended the run, if any; it is also in Result.Err.
func (o *Orchestrator) Remediate(ctx context.Context, path string, marked []int, output string) (*Result, error) {
	if output == "" {
		output = DefaultOutputPath(path)
	}
	log := o.log.WithField("path", path)

	tracker := NewTracker(marked)
	store := NewRevisionStore(o.options.TempDir, path, log)
	defer store.Cleanup()

	result := &Result{State: StateRunning, OutputPath: output}
	log.WithFields(logrus.Fields{"pages": marked, "session": store.Session()}).Info("Starting remediation")

	current := path
	report, err := o.detect(ctx, current)
	if err != nil {
		result.Err = err
		result.State = StateExhausted
		return o.finish(ctx, result, tracker, "", "detection failed")
	}

	if tracker.Len() == 0 {
		result.State = StateNoProgress
		return o.finish(ctx, result, tracker, current, "no pages marked")
	}

	for result.State == StateRunning {
		if result.Attempts >= o.options.MaxAttempts {
			result.State = StateExhausted
			break
		}
		if err := ctx.Err(); err != nil {
			result.Err = err
			result.State = StateExhausted
			break
		}

		result.Attempts++
		round := result.Attempts
		tracker.StartRound()
		o.progress(tracker, fmt.Sprintf("round %d of %d", round, o.options.MaxAttempts))
		progress := false

		for _, strategy := range o.strategies {
			remaining := tracker.Remaining()
			if len(remaining) == 0 {
				break
			}

			targets := intersect(remaining, report.BlankPages())
			attempt := Attempt{
				Round:          round,
				Method:         strategy.Method(),
				RequestedPages: targets,
			}
			if len(targets) == 0 {
				result.Log = append(result.Log, attempt)
				continue
			}

			target := Target{
				Path:     current,
				Pages:    targets,
				Sections: ImplicatedSections(report, targets),
				Report:   report,
			}
			rlog := log.WithFields(logrus.Fields{"round": round, "method": strategy.Method()})

			next, nextReport, outcome, err := o.apply(ctx, strategy, target, store)
			if err != nil {
				attempt.Err = err
				result.Log = append(result.Log, attempt)
				tracker.NoteError(targets, err)
				if apperrors.CodeOf(err) == apperrors.ErrorStrategyFailed {
					rlog.WithError(err).Warn("Strategy failed")
					continue
				}
				rlog.WithError(err).Error("Remediation stopped")
				result.Err = err
				result.State = StateExhausted
				break
			}

			attempt.SectionsTouched = outcome.SectionsTouched
			attempt.ResultingPath = next
			for _, page := range targets {
				if !nextReport.IsBlank(page) {
					attempt.Resolved = append(attempt.Resolved, page)
				}
			}
			result.Log = append(result.Log, attempt)

			rlog.WithFields(logrus.Fields{
				"applied":  outcome.Applied,
				"resolved": attempt.Resolved,
			}).Info("Strategy applied")

			if len(attempt.Resolved) == 0 {
				store.Release(next)
				continue
			}

			for _, page := range attempt.Resolved {
				if err := tracker.MarkProcessed(page, strategy.Method(), outcome.SpecialCase); err != nil {
					rlog.WithError(err).Warn("Cannot mark page processed")
					continue
				}
				if o.options.OnPageProcessed != nil {
					o.options.OnPageProcessed(page, strategy.Method())
				}
			}
			progress = true
			store.Release(current)
			current, report = next, nextReport
		}

		switch {
		case result.State != StateRunning:
		case len(tracker.Remaining()) == 0:
			result.State = StateConverged
		case !progress:
			result.State = StateNoProgress
		}
	}

	return o.finish(ctx, result, tracker, current, failureReason(result.State))
}

// apply runs one strategy against the current revision and saves the result as
// a new revision. Strategy failures come back as StrategyErrors; save and
// detection failures keep their own codes.
func (o *Orchestrator) apply(ctx context.Context, strategy Strategy, target Target, store *RevisionStore) (string, *blankpage.Report, *Outcome, error) {
	doc, err := o.engine.Open(ctx, target.Path)
	if err != nil {
		return "", nil, nil, err
	}
	defer o.close(doc)

	outcome, err := strategy.Apply(ctx, doc, target)
	if err != nil {
		return "", nil, nil, apperrors.NewStrategyError(target.Path, string(strategy.Method()), err)
	}

	next := store.NewPath(strategy.Method())
	if err := doc.Save(ctx, next); err != nil {
		store.Release(next)
		if apperrors.CodeOf(err) != apperrors.ErrorSaveFailed {
			err = apperrors.NewSaveError(next, err)
		}
		return "", nil, nil, err
	}

	report, err := o.detect(ctx, next)
	if err != nil {
		store.Release(next)
		return "", nil, nil, err
	}
	return next, report, outcome, nil
}

func (o *Orchestrator) detect(ctx context.Context, path string) (*blankpage.Report, error) {
	doc, err := o.engine.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer o.close(doc)
	return o.detector.Detect(ctx, doc, path)
}

// export writes the revision at path to the output path
func (o *Orchestrator) export(ctx context.Context, path, output string) error {
	doc, err := o.engine.Open(ctx, path)
	if err != nil {
		return err
	}
	defer o.close(doc)
	return doc.Save(ctx, output)
}

func (o *Orchestrator) close(doc engine.Document) {
	if err := doc.Close(); err != nil && !errors.Is(err, engine.ErrClosed) {
		o.log.WithError(err).Warn("Cannot close document")
	}
}

// finish fails the pages still processing, writes the last good revision and
// fills in the result
func (o *Orchestrator) finish(ctx context.Context, result *Result, tracker *Tracker, current, reason string) (*Result, error) {
	if result.Err != nil {
		reason = result.Err.Error()
	}
	for _, page := range tracker.FailRemaining(reason) {
		if o.options.OnPageFailed != nil {
			o.options.OnPageFailed(page, reason)
		}
	}

	if current != "" {
		if err := o.export(ctx, current, result.OutputPath); err != nil {
			o.log.WithError(err).WithField("output", result.OutputPath).Error("Cannot write output document")
			if result.Err == nil {
				result.Err = err
			}
		}
	} else {
		result.OutputPath = ""
	}

	result.ProcessedPages = tracker.Processed()
	result.RemainingPages = tracker.Unresolved()
	result.Pages = tracker.States()
	result.Success = tracker.Len() > 0 && len(result.RemainingPages) == 0 && result.Err == nil
	result.Message = fmt.Sprintf("processed %d/%d pages after %d rounds (%s)",
		len(result.ProcessedPages), tracker.Len(), result.Attempts, result.State)

	o.log.WithFields(logrus.Fields{
		"state":     result.State,
		"processed": result.ProcessedPages,
		"remaining": result.RemainingPages,
		"rounds":    result.Attempts,
	}).Info("Remediation finished")

	o.progress(tracker, result.Message)
	if o.options.OnComplete != nil {
		o.options.OnComplete(result)
	}
	return result, result.Err
}

func (o *Orchestrator) progress(tracker *Tracker, message string) {
	if o.options.OnProgress == nil {
		return
	}
	percent := 100
	if n := tracker.Len(); n > 0 {
		percent = len(tracker.Processed()) * 100 / n
	}
	o.options.OnProgress(percent, message)
}

func failureReason(state State) string {
	switch state {
	case StateNoProgress:
		return "no strategy made progress"
	case StateExhausted:
		return "attempt budget exhausted"
	}
	return ""
}

// intersect returns the members of a that are also in b, keeping a's order
func intersect(a, b []int) []int {
	in := make(map[int]bool, len(b))
	for _, v := range b {
		in[v] = true
	}
	var out []int
	for _, v := range a {
		if in[v] {
			out = append(out, v)
		}
	}
	return out
}
