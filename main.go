package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/tenebris-tech/docxblank/batch"
	"github.com/tenebris-tech/docxblank/blankpage"
	"github.com/tenebris-tech/docxblank/internal/config"
	"github.com/tenebris-tech/docxblank/internal/logging"
	"github.com/tenebris-tech/docxblank/processor"
	"github.com/tenebris-tech/docxblank/remediate"
)

func main() {
	// A missing .env file is fine
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Parse command line flags
	pages := flag.String("pages", "", "Pages to remove, e.g. \"3,5-7\" (default: every detected blank page)")
	outputFile := flag.String("output", "", "Output file path (single file mode only)")
	detectOnly := flag.Bool("detect", false, "Report blank pages without writing output")
	describe := flag.Bool("describe", false, "Print the section and page structure")
	maxAttempts := flag.Int("max-attempts", cfg.MaxAttempts, "Maximum remediation rounds")
	methods := flag.String("methods", "", "Comma-separated strategy order (section_fix,combined,page_remove,special_cases)")
	timeout := flag.Duration("timeout", cfg.EngineTimeout, "Timeout for each document operation")

	// Directory options
	recursive := flag.Bool("r", false, "Recursively process directories")
	outputDir := flag.String("output-dir", "", "Output directory for processed files (flat structure)")
	skipExisting := flag.Bool("skip-existing", true, "Skip files whose _processed output already exists")

	verbose := flag.Bool("v", false, "Show file disposition and strategy outcomes")
	debug := flag.Bool("d", false, "Debug output (includes per-page classification)")

	flag.Parse()

	// Debug implies verbose
	if *debug {
		*verbose = true
	}

	level := "warn"
	switch {
	case *debug:
		level = "debug"
	case *verbose:
		level = "info"
	}
	logging.Setup(level, cfg.LogFormat)

	inputPath := ""
	if flag.NArg() > 0 {
		inputPath = flag.Arg(0)
	}
	if inputPath == "" {
		printUsage()
		os.Exit(1)
	}

	procOpts := []processor.Option{
		processor.WithMaxAttempts(*maxAttempts),
		processor.WithEngineTimeout(*timeout),
		processor.WithTempDir(cfg.TempDir),
	}
	if *methods != "" {
		parsed, err := parseMethods(*methods)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		procOpts = append(procOpts, processor.WithMethods(parsed...))
	}
	if *verbose {
		procOpts = append(procOpts, processor.WithRemediateOptions(
			remediate.WithOnPageProcessed(func(page int, method remediate.Method) {
				fmt.Printf("  Page %d removed (%s)\n", page, method)
			}),
			remediate.WithOnPageFailed(func(page int, reason string) {
				fmt.Printf("  Page %d not removed: %s\n", page, reason)
			}),
		))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	info, err := os.Stat(inputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if !info.IsDir() {
		os.Exit(runSingleFile(ctx, inputPath, *outputFile, *pages, *detectOnly, *describe, procOpts))
	}

	if *outputFile != "" || *pages != "" {
		fmt.Fprintf(os.Stderr, "Error: -output and -pages cannot be used with directories\n")
		os.Exit(1)
	}

	batchOpts := []batch.Option{
		batch.WithRecursion(*recursive),
		batch.WithSkipExisting(*skipExisting),
		batch.WithDetectOnly(*detectOnly),
		batch.WithProcessorOptions(procOpts...),
	}
	if *outputDir != "" {
		batchOpts = append(batchOpts, batch.WithOutputDirectory(*outputDir))
	}
	if *verbose || *describe {
		batchOpts = append(batchOpts,
			batch.WithOnFileComplete(func(path, outputPath string, report *blankpage.Report, result *remediate.Result, err error) {
				switch {
				case err != nil:
					fmt.Printf("Error: %s: %v\n", path, err)
				case result != nil:
					fmt.Printf("Processed: %s -> %s (%s)\n", path, outputPath, result.Message)
				default:
					fmt.Printf("Checked: %s (blank pages: %s)\n", path, formatOrNone(report.BlankPages()))
				}
				if *describe && report != nil {
					fmt.Print(report.Describe())
				}
			}),
			batch.WithOnFileSkipped(func(path, outputPath, reason string) {
				fmt.Printf("Skipped: %s (%s)\n", path, reason)
			}),
		)
	}

	result, err := batch.New(batchOpts...).Run(ctx, inputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\nComplete: %d remediated, %d checked, %d skipped, %d failed (%d blank pages found)\n",
		result.Remediated, result.Detected, result.Skipped, result.Failed, result.BlankPages)

	if result.Failed > 0 {
		os.Exit(1)
	}
}

// runSingleFile handles one document and returns the exit code
func runSingleFile(ctx context.Context, inputPath, outputPath, pageSpec string, detectOnly, describe bool, opts []processor.Option) int {
	proc := processor.New(opts...)

	report, err := proc.Detect(ctx, inputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if describe {
		fmt.Print(report.Describe())
	}

	marked := report.BlankPages()
	if pageSpec != "" {
		marked, err = processor.ParsePages(pageSpec)
		if err == nil {
			err = processor.ValidatePages(marked, report.PageCount)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
	}

	if detectOnly {
		fmt.Printf("%s: %d pages, blank pages: %s\n", inputPath, report.PageCount, formatOrNone(report.BlankPages()))
		return 0
	}
	if len(marked) == 0 {
		fmt.Println("No blank pages found.")
		return 0
	}

	result, err := proc.Remediate(ctx, inputPath, marked, outputPath)
	if result != nil {
		fmt.Printf("%s\n", result.Message)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if !result.Success {
		fmt.Fprintf(os.Stderr, "Pages not removed: %s\n", processor.FormatPages(result.RemainingPages))
		fmt.Printf("Partial result written to %s\n", result.OutputPath)
		return 2
	}

	fmt.Printf("Written to %s\n", result.OutputPath)
	return 0
}

func parseMethods(list string) ([]remediate.Method, error) {
	var methods []remediate.Method
	for _, name := range strings.Split(list, ",") {
		m, err := remediate.ParseMethod(strings.TrimSpace(name))
		if err != nil {
			return nil, err
		}
		methods = append(methods, m)
	}
	return methods, nil
}

func formatOrNone(pages []int) string {
	if len(pages) == 0 {
		return "none"
	}
	return processor.FormatPages(pages)
}

func printUsage() {
	fmt.Println("Usage: docxblank [options] <input.docx|directory>")
	fmt.Println()
	fmt.Println("Detects and removes blank pages from DOCX files.")
	fmt.Println()
	fmt.Println("Options:")
	flag.PrintDefaults()
}
