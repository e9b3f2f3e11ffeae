// Package converter runs one conversion job from request to delivered bytes.
package converter

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/cuongbtq/media-fetcher/internal/converter/delivery"
	"github.com/cuongbtq/media-fetcher/internal/converter/domain"
	"github.com/cuongbtq/media-fetcher/internal/converter/events"
	"github.com/cuongbtq/media-fetcher/internal/converter/process"
	"github.com/dustin/go-humanize"
)

// DefaultPublishTimeout bounds event publication after a job finishes
const DefaultPublishTimeout = 5 * time.Second

// Provisioner supplies the converter executable
type Provisioner interface {
	Ensure(ctx context.Context) (*domain.Executable, error)
}

// Config holds orchestrator configuration
type Config struct {
	WorkDir        string
	Mode           domain.DeliveryMode
	JobTimeout     time.Duration
	PublishTimeout time.Duration
}

// Outcome summarizes a finished job
type Outcome struct {
	JobID          string
	Kind           string
	Mode           domain.DeliveryMode
	BytesDelivered int64
	Duration       time.Duration
}

// Service wires provisioning, execution and delivery together
type Service struct {
	cfg         Config
	provisioner Provisioner
	runner      *process.Runner
	publisher   events.Publisher
	logger      *slog.Logger
}

// NewService creates a new Service instance. A nil publisher drops events.
func NewService(cfg Config, provisioner Provisioner, runner *process.Runner, publisher events.Publisher, logger *slog.Logger) *Service {
	if cfg.WorkDir == "" {
		cfg.WorkDir = os.TempDir()
	}
	if cfg.Mode == "" {
		cfg.Mode = domain.DeliveryBuffered
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = DefaultPublishTimeout
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Service{
		cfg:         cfg,
		provisioner: provisioner,
		runner:      runner,
		publisher:   publisher,
		logger:      logger,
	}
}

// Mode returns the configured delivery mode
func (s *Service) Mode() domain.DeliveryMode {
	return s.cfg.Mode
}

// Convert validates req, runs the converter and delivers the artifact into sink.
// Validation failures return before anything is provisioned or launched. The
// per-job working directory is removed on every path.
func (s *Service) Convert(ctx context.Context, req domain.Request, sink delivery.Sink) (*Outcome, error) {
	start := time.Now()

	spec, err := domain.Validate(req, s.cfg.Mode)
	if err != nil {
		s.logger.Warn("Rejected conversion request",
			slog.String("output_kind", req.OutputKind),
			slog.Any("error", err),
		)
		return nil, err
	}

	logger := s.logger.With(slog.String("job_id", spec.ID))
	logger.Info("Conversion started",
		slog.String("kind", spec.Kind.Name),
		slog.String("mode", string(spec.Mode)),
		slog.String("source", spec.SourceReference),
	)

	result, delivered, err := s.execute(ctx, spec, sink, logger)

	outcome := &Outcome{
		JobID:          spec.ID,
		Kind:           spec.Kind.Name,
		Mode:           spec.Mode,
		BytesDelivered: delivered,
		Duration:       time.Since(start),
	}

	s.publish(spec, result, delivered, start, err, logger)

	if err != nil {
		attrs := []any{
			slog.String("error_kind", domain.KindOf(err).String()),
			slog.Int64("bytes_delivered", delivered),
			slog.Duration("duration", outcome.Duration),
			slog.Any("error", err),
		}
		if result != nil && len(result.StderrTail) > 0 {
			attrs = append(attrs, slog.Any("stderr_tail", result.StderrTail))
		}
		if domain.KindOf(err) == domain.KindDelivery {
			logger.Warn("Conversion aborted", attrs...)
		} else {
			logger.Error("Conversion failed", attrs...)
		}
		return outcome, err
	}

	logger.Info("Conversion completed",
		slog.String("size", humanize.Bytes(uint64(delivered))),
		slog.Duration("duration", outcome.Duration),
	)
	return outcome, nil
}

func (s *Service) execute(ctx context.Context, spec *domain.JobSpec, sink delivery.Sink, logger *slog.Logger) (*domain.ExecutionResult, int64, error) {
	exe, err := s.provisioner.Ensure(ctx)
	if err != nil {
		return nil, 0, err
	}

	if err := os.MkdirAll(s.cfg.WorkDir, 0o755); err != nil {
		return nil, 0, domain.NewError(domain.KindExecution, "create work dir", err)
	}
	workDir, err := os.MkdirTemp(s.cfg.WorkDir, fmt.Sprintf("job-%s-", spec.ID))
	if err != nil {
		return nil, 0, domain.NewError(domain.KindExecution, "create work dir", err)
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			logger.Warn("Failed to remove job directory",
				slog.String("dir", workDir),
				slog.Any("error", err),
			)
		}
	}()

	jobCtx, cancel := ctx, context.CancelFunc(func() {})
	if s.cfg.JobTimeout > 0 {
		jobCtx, cancel = context.WithTimeout(ctx, s.cfg.JobTimeout)
	}
	defer cancel()

	if spec.Mode == domain.DeliveryDirect {
		stream, err := s.runner.Start(jobCtx, exe.Path, spec, workDir)
		if err != nil {
			return nil, 0, err
		}
		n, err := delivery.Stream(jobCtx, stream, spec, sink)
		result, _ := stream.Wait()
		return result, n, err
	}

	result, err := s.runner.Run(jobCtx, exe.Path, spec, workDir)
	if err != nil {
		return result, 0, err
	}
	n, err := delivery.File(jobCtx, result.OutputPath, spec, sink)
	return result, n, err
}

// publish is best-effort; a broker outage never fails a delivered job
func (s *Service) publish(spec *domain.JobSpec, result *domain.ExecutionResult, delivered int64, start time.Time, jobErr error, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.PublishTimeout)
	defer cancel()

	ev := events.NewEvent(spec, result, delivered, start, jobErr)
	if err := s.publisher.Publish(ctx, ev); err != nil {
		logger.Warn("Failed to publish conversion event",
			slog.String("type", string(ev.Type)),
			slog.Any("error", err),
		)
	}
}
