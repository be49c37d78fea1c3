package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/efddrsn/cartorio-AI/internal/app"
	"github.com/efddrsn/cartorio-AI/internal/common"
	"github.com/efddrsn/cartorio-AI/internal/schema"
	"github.com/efddrsn/cartorio-AI/internal/server"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		writeSchema = flag.String("write-schema", "", "write the field table to this XLSX path and exit")
		exportJobs  = flag.String("export-jobs", "", "write the job ledger to this XLSX path and exit")
		limit       = flag.Int("limit", 500, "max jobs for -export-jobs")
		noLedger    = flag.Bool("no-ledger", false, "do not record the run in the job ledger")
	)
	flag.Usage = func() {
		printError("usage: extract [flags] <file.pdf>\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		printError("warning: .env: %v\n", err)
	}
	cfg := common.LoadConfig()

	// logs go to stderr so stdout carries only the response JSON
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	if *writeSchema != "" {
		s, err := schema.Load(cfg.Schema.File, cfg.Schema.Sheet, logger)
		if err == nil {
			err = s.WriteXLSX(*writeSchema)
		}
		if err != nil {
			printError("Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(*writeSchema)
		return
	}

	if *exportJobs == "" && flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	if *noLedger {
		cfg.Database.DSN = ""
	}
	if err := cfg.Validate(); err != nil {
		printError("Error: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, cfg, logger, flag.Arg(0), *exportJobs, *limit))
}

func run(ctx context.Context, cfg *common.Config, logger *slog.Logger, path, exportPath string, limit int) int {
	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		printError("Error: %v\n", err)
		return 1
	}
	defer a.Close()

	if exportPath != "" {
		exp := a.Exporter()
		if exp == nil {
			printError("Error: -export-jobs needs DB_URL\n")
			return 2
		}
		b, err := exp.JobsXLSX(ctx, limit)
		if err == nil {
			err = os.WriteFile(exportPath, b, 0o644)
		}
		if err != nil {
			printError("Error: %v\n", err)
			return 1
		}
		fmt.Println(exportPath)
		return 0
	}

	ctx, _ = common.EnsureRequestID(ctx)
	doc, err := a.Intake.Open(ctx, path)
	var status int
	var body map[string]any
	if err != nil {
		status, body = server.Compose(nil, err)
	} else {
		out, perr := a.Processor.Process(ctx, doc)
		status, body = server.Compose(out, perr)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(body); err != nil {
		printError("Error: %v\n", err)
		return 1
	}
	if status != http.StatusOK {
		return 1
	}
	return 0
}
