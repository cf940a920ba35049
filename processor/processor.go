// Package processor is the entry point for blank-page detection and removal on
// a single document. A Processor is owned by its caller; separate processors
// share no state and can work on different documents concurrently.
package processor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tenebris-tech/docxblank/blankpage"
	"github.com/tenebris-tech/docxblank/engine"
	apperrors "github.com/tenebris-tech/docxblank/internal/errors"
	"github.com/tenebris-tech/docxblank/internal/logging"
	"github.com/tenebris-tech/docxblank/remediate"
)

// DefaultEngineTimeout bounds every document engine call
const DefaultEngineTimeout = 30 * time.Second

// Options holds configuration for the processor
type Options struct {
	// Engine opens documents. If nil, the DOCX engine is used
	Engine engine.Engine

	// EngineTimeout bounds each engine call; zero disables the bound
	EngineTimeout time.Duration

	// MaxAttempts is the remediation round budget
	MaxAttempts int

	// Methods overrides the remediation strategy order
	Methods []remediate.Method

	// TempDir holds intermediate revisions
	TempDir string

	// Logger receives structured logs
	Logger *logrus.Entry

	// RemediateOptions are passed to the orchestrator after the options above
	RemediateOptions []remediate.Option
}

// Option is a functional option for configuring the processor
type Option func(*Options)

// DefaultOptions returns the default options
func DefaultOptions() *Options {
	return &Options{
		EngineTimeout: DefaultEngineTimeout,
		MaxAttempts:   remediate.DefaultMaxAttempts,
	}
}

// WithEngine sets the document engine
func WithEngine(eng engine.Engine) Option {
	return func(o *Options) {
		o.Engine = eng
	}
}

// WithEngineTimeout sets the per-call engine timeout
func WithEngineTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.EngineTimeout = d
	}
}

// WithMaxAttempts sets the remediation round budget
func WithMaxAttempts(n int) Option {
	return func(o *Options) {
		o.MaxAttempts = n
	}
}

// WithMethods sets the remediation strategy order
func WithMethods(methods ...remediate.Method) Option {
	return func(o *Options) {
		o.Methods = methods
	}
}

// WithTempDir sets the directory for intermediate revisions
func WithTempDir(dir string) Option {
	return func(o *Options) {
		o.TempDir = dir
	}
}

// WithLogger sets the logger
func WithLogger(log *logrus.Entry) Option {
	return func(o *Options) {
		o.Logger = log
	}
}

// WithRemediateOptions passes extra options, such as callbacks, to the orchestrator
func WithRemediateOptions(opts ...remediate.Option) Option {
	return func(o *Options) {
		o.RemediateOptions = append(o.RemediateOptions, opts...)
	}
}

// Processor detects and removes blank pages
type Processor struct {
	engine   engine.Engine
	detector *blankpage.Detector
	options  *Options
	log      *logrus.Entry
}

// New creates a processor
func New(opts ...Option) *Processor {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(options)
	}
	log := options.Logger
	if log == nil {
		log = logging.Component("processor")
	}

	eng := options.Engine
	if eng == nil {
		eng = engine.NewDocxEngine(log)
	}
	eng = engine.WithTimeout(eng, options.EngineTimeout)

	return &Processor{
		engine:   eng,
		detector: blankpage.NewDetector(log),
		options:  options,
		log:      log,
	}
}

// Detect classifies every page of the document at path. Failures, including
// failing to open the document, are AnalysisErrors.
func (p *Processor) Detect(ctx context.Context, path string) (*blankpage.Report, error) {
	if strings.TrimSpace(path) == "" {
		err := apperrors.NewAnalysisError(path, apperrors.NewInvalidInputError("document path is required"))
		return &blankpage.Report{Path: path, Err: err}, err
	}

	doc, err := p.engine.Open(ctx, path)
	if err != nil {
		aerr := apperrors.NewAnalysisError(path, err)
		return &blankpage.Report{Path: path, Err: aerr}, aerr
	}
	defer func() {
		if err := doc.Close(); err != nil {
			p.log.WithError(err).WithField("path", path).Warn("Cannot close document")
		}
	}()

	return p.detector.Detect(ctx, doc, path)
}

// Remediate removes the marked blank pages of the document at path and writes
// the result to output, or <base>_processed<ext> next to path when empty.
// Extra options apply to this call only.
func (p *Processor) Remediate(ctx context.Context, path string, marked []int, output string, extra ...remediate.Option) (*remediate.Result, error) {
	if strings.TrimSpace(path) == "" {
		return nil, apperrors.NewInvalidInputError("document path is required")
	}
	if err := ValidatePages(marked, 0); err != nil {
		return nil, apperrors.NewInvalidInputError(err.Error())
	}
	if output != "" && output == path {
		return nil, apperrors.NewInvalidInputError("output path must differ from the input path")
	}

	opts := []remediate.Option{
		remediate.WithLogger(p.log),
		remediate.WithMaxAttempts(p.options.MaxAttempts),
		remediate.WithTempDir(p.options.TempDir),
	}
	if len(p.options.Methods) > 0 {
		opts = append(opts, remediate.WithMethods(p.options.Methods...))
	}
	opts = append(opts, p.options.RemediateOptions...)
	opts = append(opts, extra...)

	orchestrator, err := remediate.New(p.engine, opts...)
	if err != nil {
		return nil, apperrors.NewInvalidInputError(fmt.Sprintf("invalid remediation options: %v", err))
	}
	return orchestrator.Remediate(ctx, path, marked, output)
}

// DetectAndRemediate detects blank pages and removes all of them
func (p *Processor) DetectAndRemediate(ctx context.Context, path, output string, extra ...remediate.Option) (*blankpage.Report, *remediate.Result, error) {
	report, err := p.Detect(ctx, path)
	if err != nil {
		return report, nil, err
	}
	result, err := p.Remediate(ctx, path, report.BlankPages(), output, extra...)
	return report, result, err
}
