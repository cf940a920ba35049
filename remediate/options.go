package remediate

import (
	"github.com/sirupsen/logrus"
)

// DefaultMaxAttempts bounds the number of rounds
const DefaultMaxAttempts = 5

// Options holds configuration for the orchestrator
type Options struct {
	// MaxAttempts is the maximum number of rounds (default: 5)
	MaxAttempts int

	// Methods lists the strategies tried in each round, in order
	Methods []Method

	// TempDir holds intermediate revisions. If empty, the system temp dir is used
	TempDir string

	// Logger receives structured logs; a component logger is used when nil
	Logger *logrus.Entry

	// OnProgress is called at round boundaries with a completion percentage
	OnProgress func(percent int, message string)

	// OnPageProcessed is called when a marked page is resolved
	OnPageProcessed func(page int, method Method)

	// OnPageFailed is called for every page left unresolved at the end
	OnPageFailed func(page int, reason string)

	// OnComplete is called once with the final result
	OnComplete func(result *Result)
}

// Option is a functional option for configuring the orchestrator
type Option func(*Options)

// DefaultOptions returns the default options
func DefaultOptions() *Options {
	return &Options{
		MaxAttempts: DefaultMaxAttempts,
		Methods:     DefaultMethods,
	}
}

// WithMaxAttempts sets the round budget. Values below one are ignored.
func WithMaxAttempts(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.MaxAttempts = n
		}
	}
}

// WithMethods restricts and orders the strategies tried in each round
func WithMethods(methods ...Method) Option {
	return func(o *Options) {
		if len(methods) > 0 {
			o.Methods = methods
		}
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

// WithOnProgress sets the progress callback
func WithOnProgress(callback func(percent int, message string)) Option {
	return func(o *Options) {
		o.OnProgress = callback
	}
}

// WithOnPageProcessed sets the callback for resolved pages
func WithOnPageProcessed(callback func(page int, method Method)) Option {
	return func(o *Options) {
		o.OnPageProcessed = callback
	}
}

// WithOnPageFailed sets the callback for unresolved pages
func WithOnPageFailed(callback func(page int, reason string)) Option {
	return func(o *Options) {
		o.OnPageFailed = callback
	}
}

// WithOnComplete sets the completion callback
func WithOnComplete(callback func(result *Result)) Option {
	return func(o *Options) {
		o.OnComplete = callback
	}
}
