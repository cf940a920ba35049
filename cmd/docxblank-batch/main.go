package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
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
	if len(os.Args) < 2 {
		fmt.Println("Usage: docxblank-batch <directory>")
		fmt.Println()
		fmt.Println("Recursively removes blank pages from all DOCX files.")
		fmt.Println("Follows symlinks to directories.")
		fmt.Println("Skips files that already have a _processed version.")
		fmt.Println("Tracks real paths to avoid duplicate work and loops.")
		os.Exit(1)
	}

	startDir := os.Args[1]

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	// Verify directory exists
	info, err := os.Stat(startDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if !info.IsDir() {
		fmt.Fprintf(os.Stderr, "Error: %s is not a directory\n", startDir)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := batch.New(
		batch.WithRecursion(true),
		batch.WithProcessorOptions(
			processor.WithMaxAttempts(cfg.MaxAttempts),
			processor.WithEngineTimeout(cfg.EngineTimeout),
			processor.WithTempDir(cfg.TempDir),
		),
		batch.WithOnFileStart(func(path string) {
			fmt.Printf("Checking: %s\n", path)
		}),
		batch.WithOnFileComplete(func(path, outputPath string, report *blankpage.Report, result *remediate.Result, err error) {
			switch {
			case err != nil:
				fmt.Fprintf(os.Stderr, "  Error: %v\n", err)
			case result != nil:
				fmt.Printf("  Created: %s (%s)\n", outputPath, result.Message)
			default:
				fmt.Println("  No blank pages")
			}
		}),
	)

	result, err := runner.Run(ctx, startDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Printf("Complete: %d remediated, %d clean, %d skipped, %d failed\n",
		result.Remediated, result.Detected, result.Skipped, result.Failed)

	if result.Failed > 0 {
		os.Exit(1)
	}
}
