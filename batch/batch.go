// Package batch runs blank-page detection and removal over files and
// directory trees. It adds recursive traversal, symlink loop protection and
// output directory management on top of the processor package.
package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tenebris-tech/docxblank/blankpage"
	"github.com/tenebris-tech/docxblank/processor"
	"github.com/tenebris-tech/docxblank/remediate"
)

// DefaultExtensions lists the file extensions processed by default
var DefaultExtensions = []string{".docx"}

// OutputSuffix marks files written by remediation; such files are never used as input
const OutputSuffix = remediate.DefaultOutputSuffix

// Runner processes documents in batch
type Runner struct {
	options   *Options
	processor *processor.Processor
	// Track visited directories and files to avoid loops and duplicates
	visitedDirs    map[string]bool
	processedFiles map[string]bool
}

// Options holds configuration for the runner
type Options struct {
	// Recursion enables recursive directory traversal
	Recursion bool

	// Extensions lists file extensions to process (default: .docx)
	Extensions []string

	// DetectOnly reports blank pages without writing output files
	DetectOnly bool

	// SkipExisting skips files whose output already exists (default: true)
	SkipExisting bool

	// OutputDirectory writes all output files to this directory (flat structure)
	// If empty, output files are placed next to source files
	OutputDirectory string

	// ProcessorOptions are passed to the processor
	ProcessorOptions []processor.Option

	// OnFileStart is called when starting to process a file
	OnFileStart func(path string)

	// OnFileComplete is called when a file is done. result is nil in detect-only
	// mode and when the file had no blank pages.
	OnFileComplete func(path, outputPath string, report *blankpage.Report, result *remediate.Result, err error)

	// OnFileSkipped is called when a file is skipped
	OnFileSkipped func(path, outputPath, reason string)
}

// Result contains the totals of a batch run
type Result struct {
	Detected   int
	Remediated int
	Skipped    int
	Failed     int
	BlankPages int
	Errors     []error
}

// Option is a functional option for configuring the runner
type Option func(*Options)

// DefaultOptions returns the default options
func DefaultOptions() *Options {
	return &Options{
		Recursion:    false,
		Extensions:   DefaultExtensions,
		SkipExisting: true,
	}
}

// WithRecursion enables or disables recursive directory traversal
func WithRecursion(recursive bool) Option {
	return func(o *Options) {
		o.Recursion = recursive
	}
}

// WithExtensions sets the file extensions to process
func WithExtensions(exts []string) Option {
	return func(o *Options) {
		// Normalize extensions to lowercase with leading dot
		normalized := make([]string, len(exts))
		for i, ext := range exts {
			ext = strings.ToLower(ext)
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			normalized[i] = ext
		}
		o.Extensions = normalized
	}
}

// WithDetectOnly enables detect-only mode
func WithDetectOnly(detectOnly bool) Option {
	return func(o *Options) {
		o.DetectOnly = detectOnly
	}
}

// WithSkipExisting sets whether to skip files whose output already exists
func WithSkipExisting(skip bool) Option {
	return func(o *Options) {
		o.SkipExisting = skip
	}
}

// WithOutputDirectory sets the output directory for processed files
func WithOutputDirectory(dir string) Option {
	return func(o *Options) {
		o.OutputDirectory = dir
	}
}

// WithProcessorOptions sets options to pass to the processor
func WithProcessorOptions(opts ...processor.Option) Option {
	return func(o *Options) {
		o.ProcessorOptions = opts
	}
}

// WithOnFileStart sets the callback for when processing of a file starts
func WithOnFileStart(callback func(path string)) Option {
	return func(o *Options) {
		o.OnFileStart = callback
	}
}

// WithOnFileComplete sets the callback for when a file is done
func WithOnFileComplete(callback func(path, outputPath string, report *blankpage.Report, result *remediate.Result, err error)) Option {
	return func(o *Options) {
		o.OnFileComplete = callback
	}
}

// WithOnFileSkipped sets the callback for when a file is skipped
func WithOnFileSkipped(callback func(path, outputPath, reason string)) Option {
	return func(o *Options) {
		o.OnFileSkipped = callback
	}
}

// New creates a new Runner with the given options
func New(opts ...Option) *Runner {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(options)
	}
	return &Runner{
		options:        options,
		processor:      processor.New(options.ProcessorOptions...),
		visitedDirs:    make(map[string]bool),
		processedFiles: make(map[string]bool),
	}
}

// Run processes a file or directory.
// If path is a directory and Recursion is enabled, it recursively processes all matching files.
// Returns an error if path is a directory and Recursion is disabled.
func (r *Runner) Run(ctx context.Context, path string) (*Result, error) {
	// Reset tracking maps for each Run call
	r.visitedDirs = make(map[string]bool)
	r.processedFiles = make(map[string]bool)

	result := &Result{}

	// Get file info, following symlinks
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("cannot access %s: %w", path, err)
	}

	if r.options.OutputDirectory != "" && !r.options.DetectOnly {
		if err := os.MkdirAll(r.options.OutputDirectory, 0755); err != nil {
			return nil, fmt.Errorf("cannot create output directory: %w", err)
		}
	}

	if info.IsDir() {
		if !r.options.Recursion {
			return nil, fmt.Errorf("%s is a directory; use WithRecursion(true) to process directories", path)
		}
		r.walkDir(ctx, path, result)
	} else {
		r.processFile(ctx, path, result)
	}

	return result, ctx.Err()
}

// walkDir recursively walks a directory, following symlinks
func (r *Runner) walkDir(ctx context.Context, dir string, result *Result) {
	if ctx.Err() != nil {
		return
	}

	// Resolve to real path to detect loops
	realDir, err := filepath.EvalSymlinks(dir)
	if err != nil {
		result.Failed++
		result.Errors = append(result.Errors, fmt.Errorf("cannot resolve %s: %w", dir, err))
		return
	}

	if r.visitedDirs[realDir] {
		return
	}
	r.visitedDirs[realDir] = true

	entries, err := os.ReadDir(dir)
	if err != nil {
		result.Failed++
		result.Errors = append(result.Errors, fmt.Errorf("cannot read directory %s: %w", dir, err))
		return
	}

	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())

		// Get file info, following symlinks
		info, err := os.Stat(path)
		if err != nil {
			// Only count as failure if it looks like a document we would process
			if r.hasExtension(strings.ToLower(filepath.Ext(path))) {
				result.Failed++
				result.Errors = append(result.Errors, fmt.Errorf("cannot access %s: %w", path, err))
			}
			continue
		}

		if info.IsDir() {
			r.walkDir(ctx, path, result)
		} else {
			r.processFile(ctx, path, result)
		}
	}
}

// processFile handles a single file if it matches the configured extensions
func (r *Runner) processFile(ctx context.Context, path string, result *Result) {
	if ctx.Err() != nil {
		return
	}

	ext := strings.ToLower(filepath.Ext(path))
	if !r.hasExtension(ext) {
		return
	}
	// Office lock files (~$name.docx) are not documents
	if strings.HasPrefix(filepath.Base(path), "~$") {
		return
	}

	realPath, err := filepath.EvalSymlinks(path)
	if err != nil {
		result.Failed++
		result.Errors = append(result.Errors, fmt.Errorf("cannot resolve %s: %w", path, err))
		return
	}

	if r.processedFiles[realPath] {
		return
	}
	r.processedFiles[realPath] = true

	if strings.HasSuffix(strings.TrimSuffix(filepath.Base(realPath), filepath.Ext(realPath)), OutputSuffix) {
		r.skip(realPath, "", "file is a processed output", result)
		return
	}

	outputPath := ""
	if !r.options.DetectOnly {
		var skip bool
		var reason string
		outputPath, skip, reason = r.getOutputPath(realPath)
		if skip {
			r.skip(realPath, outputPath, reason, result)
			return
		}
	}

	if r.options.OnFileStart != nil {
		r.options.OnFileStart(realPath)
	}

	report, remediation, procErr := r.processDocument(ctx, realPath, outputPath)

	if r.options.OnFileComplete != nil {
		r.options.OnFileComplete(realPath, outputPath, report, remediation, procErr)
	}

	if report != nil && !report.Failed() {
		result.BlankPages += report.BlankPageCount
	}
	switch {
	case procErr != nil:
		result.Failed++
		result.Errors = append(result.Errors, fmt.Errorf("%s: %w", realPath, procErr))
	case remediation != nil:
		result.Remediated++
	default:
		result.Detected++
	}
}

// processDocument detects blank pages and, unless in detect-only mode,
// removes them. Files with no blank pages are not rewritten.
func (r *Runner) processDocument(ctx context.Context, path, outputPath string) (*blankpage.Report, *remediate.Result, error) {
	report, err := r.processor.Detect(ctx, path)
	if err != nil {
		return report, nil, err
	}
	if r.options.DetectOnly || report.BlankPageCount == 0 {
		return report, nil, nil
	}

	result, err := r.processor.Remediate(ctx, path, report.BlankPages(), outputPath)
	if err != nil {
		return report, result, err
	}
	if !result.Success {
		return report, result, fmt.Errorf("%d of %d blank pages remain (%s)",
			len(result.RemainingPages), report.BlankPageCount, processor.FormatPages(result.RemainingPages))
	}
	return report, result, nil
}

func (r *Runner) skip(path, outputPath, reason string, result *Result) {
	if r.options.OnFileSkipped != nil {
		r.options.OnFileSkipped(path, outputPath, reason)
	}
	result.Skipped++
}

// hasExtension checks if the given extension is in the configured list
func (r *Runner) hasExtension(ext string) bool {
	for _, e := range r.options.Extensions {
		if e == ext {
			return true
		}
	}
	return false
}

// getOutputPath determines the output path for a given input file.
// Returns the output path, whether to skip the file, and the skip reason.
func (r *Runner) getOutputPath(inputPath string) (string, bool, string) {
	outputPath := remediate.DefaultOutputPath(inputPath)
	if r.options.OutputDirectory != "" {
		outputPath = filepath.Join(r.options.OutputDirectory, filepath.Base(outputPath))
	}

	if _, err := os.Stat(outputPath); err == nil {
		if r.options.SkipExisting {
			return outputPath, true, "output file exists"
		}
		outputPath = r.findUniquePath(outputPath)
	}

	return outputPath, false, ""
}

// findUniquePath finds a unique output path by appending a number
func (r *Runner) findUniquePath(basePath string) string {
	ext := filepath.Ext(basePath)
	nameWithoutExt := strings.TrimSuffix(basePath, ext)

	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s-%d%s", nameWithoutExt, i, ext)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}
