package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/cuongbtq/media-fetcher/internal/converter/domain"
)

const (
	// DefaultStderrLines is the number of diagnostic lines kept per run
	DefaultStderrLines = 20
	// DefaultKillGrace is how long a canceled converter gets between SIGTERM and SIGKILL
	DefaultKillGrace = 5 * time.Second

	outputStem = "artifact"
	stdoutDest = "-"
)

// commonArgs precede the kind-specific arguments on every run
var commonArgs = []string{"--no-playlist"}

// Config holds process runner configuration
type Config struct {
	StderrLines int
	KillGrace   time.Duration
}

// Runner launches the converter executable, one process per job
type Runner struct {
	cfg    Config
	logger *slog.Logger
}

// NewRunner creates a new Runner instance
func NewRunner(cfg Config, logger *slog.Logger) *Runner {
	if cfg.StderrLines <= 0 {
		cfg.StderrLines = DefaultStderrLines
	}
	if cfg.KillGrace <= 0 {
		cfg.KillGrace = DefaultKillGrace
	}
	return &Runner{cfg: cfg, logger: logger}
}

// Args builds the converter argument vector. The source reference is always the
// single element after "--", so it can never be read as an option.
func Args(spec *domain.JobSpec, output string) []string {
	args := make([]string, 0, len(commonArgs)+len(spec.Kind.Args)+5)
	args = append(args, commonArgs...)
	args = append(args, spec.Kind.Args...)
	args = append(args, "-o", output, "--", spec.SourceReference)
	return args
}

// OutputTemplate is the -o value used in buffered mode
func OutputTemplate(workDir string) string {
	return filepath.Join(workDir, outputStem+".%(ext)s")
}

// ExpectedOutput is where the artifact lands once the converter succeeds
func ExpectedOutput(workDir string, kind domain.OutputKind) string {
	return filepath.Join(workDir, outputStem+"."+kind.Extension)
}

// Run executes the converter in buffered mode and blocks until it exits.
// The result is returned even on failure so callers can log the diagnostic tail.
func (r *Runner) Run(ctx context.Context, exePath string, spec *domain.JobSpec, workDir string) (*domain.ExecutionResult, error) {
	logger := r.logger.With(slog.String("job_id", spec.ID))
	output := ExpectedOutput(workDir, spec.Kind)
	args := Args(spec, OutputTemplate(workDir))
	tail := newLineTail(r.cfg.StderrLines, logger)

	cmd := r.command(ctx, exePath, args, workDir)
	// nil Stdout goes to the null device; the artifact is written to disk
	cmd.Stderr = tail

	logger.Info("Starting converter",
		slog.String("kind", spec.Kind.Name),
		slog.String("mode", string(domain.DeliveryBuffered)),
	)
	logger.Debug("Converter arguments", slog.Any("args", args))

	start := time.Now()
	runErr := cmd.Run()
	killGroup(cmd)
	result := &domain.ExecutionResult{
		ExitCode:   exitCode(cmd),
		StderrTail: tail.Lines(),
	}

	logger.Info("Converter exited",
		slog.Int("exit_code", result.ExitCode),
		slog.Duration("elapsed", time.Since(start)),
	)

	if err := classify(ctx, runErr, result); err != nil {
		return result, err
	}

	info, err := os.Stat(output)
	if err != nil || !info.Mode().IsRegular() {
		return result, domain.NewError(domain.KindExecution, "collect output",
			fmt.Errorf("%w: expected %s", domain.ErrArtifactMissing, filepath.Base(output)))
	}

	result.OutputPath = output
	result.SizeBytes = info.Size()
	return result, nil
}

// Start launches the converter in direct mode with stdout as the artifact stream.
// The returned Stream must be waited on.
func (r *Runner) Start(ctx context.Context, exePath string, spec *domain.JobSpec, workDir string) (*Stream, error) {
	logger := r.logger.With(slog.String("job_id", spec.ID))
	args := Args(spec, stdoutDest)
	tail := newLineTail(r.cfg.StderrLines, logger)

	ctx, cancel := context.WithCancel(ctx)
	cmd := r.command(ctx, exePath, args, workDir)
	cmd.Stderr = tail

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, domain.NewError(domain.KindExecution, "start converter", fmt.Errorf("stdout pipe: %w", err))
	}

	logger.Info("Starting converter",
		slog.String("kind", spec.Kind.Name),
		slog.String("mode", string(domain.DeliveryDirect)),
	)
	logger.Debug("Converter arguments", slog.Any("args", args))

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, domain.NewError(domain.KindExecution, "start converter", err)
	}

	return &Stream{
		cmd:    cmd,
		stdout: stdout,
		tail:   tail,
		ctx:    ctx,
		cancel: cancel,
		start:  time.Now(),
		logger: logger,
	}, nil
}

func (r *Runner) command(ctx context.Context, exePath string, args []string, workDir string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, exePath, args...) //nolint:gosec
	cmd.Dir = workDir
	setProcessGroup(cmd)
	cmd.Cancel = func() error {
		return terminateGroup(cmd)
	}
	// SIGKILL follows if the converter ignores SIGTERM
	cmd.WaitDelay = r.cfg.KillGrace
	return cmd
}

// Stream is a running direct-mode conversion
type Stream struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	tail   *lineTail
	ctx    context.Context
	cancel context.CancelFunc
	start  time.Time
	logger *slog.Logger

	bytes  int64
	once   sync.Once
	result *domain.ExecutionResult
	err    error
}

// Read reads converter stdout. Reads block until the converter writes, which
// is what lets a slow reader throttle the process.
func (s *Stream) Read(p []byte) (int, error) {
	n, err := s.stdout.Read(p)
	s.bytes += int64(n)
	return n, err
}

// Terminate stops the converter. Wait still has to be called.
func (s *Stream) Terminate() {
	s.cancel()
}

// Wait blocks until the converter exits and reports the outcome. Safe to call more than once.
func (s *Stream) Wait() (*domain.ExecutionResult, error) {
	s.once.Do(func() {
		waitErr := s.cmd.Wait()
		killGroup(s.cmd)
		result := &domain.ExecutionResult{
			ExitCode:   exitCode(s.cmd),
			StderrTail: s.tail.Lines(),
			SizeBytes:  s.bytes,
		}

		s.logger.Info("Converter exited",
			slog.Int("exit_code", result.ExitCode),
			slog.Int64("bytes", s.bytes),
			slog.Duration("elapsed", time.Since(s.start)),
		)

		s.err = classify(s.ctx, waitErr, result)
		if s.err == nil && s.bytes == 0 {
			s.err = domain.NewError(domain.KindExecution, "collect output",
				fmt.Errorf("%w: empty output stream", domain.ErrArtifactMissing))
		}
		s.cancel()
		s.result = result
	})
	return s.result, s.err
}

// classify maps a Run/Wait error onto the failure taxonomy
func classify(ctx context.Context, err error, result *domain.ExecutionResult) error {
	if err == nil {
		return nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return domain.NewError(domain.KindExecution, "run converter", domain.ErrTimeout)
		}
		return domain.NewError(domain.KindDelivery, "run converter", fmt.Errorf("%w: %w", domain.ErrCanceled, ctxErr))
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return domain.NewError(domain.KindExecution, "run converter", &domain.ConversionFailedError{
			ExitCode:       exitErr.ExitCode(),
			DiagnosticTail: result.StderrTail,
		})
	}

	return domain.NewError(domain.KindExecution, "run converter", err)
}

func exitCode(cmd *exec.Cmd) int {
	if cmd.ProcessState == nil {
		return -1
	}
	return cmd.ProcessState.ExitCode()
}
