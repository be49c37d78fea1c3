package ocr

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/efddrsn/cartorio-AI/internal/common"
)

// stderrCap bounds how much diagnostic output a single tool invocation keeps.
const stderrCap = 64 << 10

// Runner executes the OCR toolchain binaries. Tests substitute a fake.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// ExecRunner runs pdftoppm and tesseract as host processes.
type ExecRunner struct {
	Logger *slog.Logger
}

func (r ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := []any{"req_id", common.RequestIDFromContext(ctx), "tool", name, "args", strings.Join(args, " ")}

	var stdout bytes.Buffer
	stderr := &cappedBuffer{max: stderrCap}
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = stderr

	start := time.Now()
	err := cmd.Run()
	attrs = append(attrs, "elapsed_ms", time.Since(start).Milliseconds())

	if err != nil {
		attrs = append(attrs, "exit_code", exitCode(err), "error", err)
		if stderr.dropped > 0 {
			attrs = append(attrs, "stderr_dropped", stderr.dropped)
		}
		logger.Warn("ocr.exec.failed", append(attrs, "stderr", truncate(stderr.String(), 2<<10))...)
		return stdout.Bytes(), stderr.Bytes(), err
	}
	logger.Debug("ocr.exec.ok", append(attrs, "stdout_bytes", stdout.Len())...)
	return stdout.Bytes(), stderr.Bytes(), nil
}

// exitCode is the process exit status, or -1 when it never ran or was killed.
func exitCode(err error) int {
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ee.ExitCode()
	}
	return -1
}

// cappedBuffer keeps the first max bytes written and counts the rest.
type cappedBuffer struct {
	bytes.Buffer
	max     int
	dropped int
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	room := b.max - b.Len()
	if room <= 0 {
		b.dropped += len(p)
		return len(p), nil
	}
	if len(p) > room {
		b.dropped += len(p) - room
		b.Buffer.Write(p[:room])
		return len(p), nil
	}
	return b.Buffer.Write(p)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
