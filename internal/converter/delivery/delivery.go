// Package delivery moves a converted artifact into a caller-supplied sink.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/cuongbtq/media-fetcher/internal/converter/domain"
)

const copyBufferSize = 32 << 10

// Metadata describes the artifact before any bytes are sent
type Metadata struct {
	ContentType string
	Filename    string
	// Size is -1 when unknown, as in direct mode
	Size int64
}

// ContentDisposition renders the attachment header value
func (m Metadata) ContentDisposition() string {
	return "attachment; filename=" + strconv.Quote(m.Filename)
}

// MetadataFor builds metadata from the job's output kind
func MetadataFor(spec *domain.JobSpec, size int64) Metadata {
	return Metadata{
		ContentType: spec.Kind.MIMEType,
		Filename:    spec.Kind.Filename,
		Size:        size,
	}
}

// Sink receives one artifact. SetMetadata is called exactly once, before the first Write.
type Sink interface {
	io.Writer
	SetMetadata(Metadata)
}

// Source is a live artifact stream backed by a running converter
type Source interface {
	io.Reader
	Wait() (*domain.ExecutionResult, error)
	Terminate()
}

// File streams a finished artifact from disk into sink and returns the bytes delivered
func File(ctx context.Context, path string, spec *domain.JobSpec, sink Sink) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, domain.NewError(domain.KindDelivery, "open artifact", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, domain.NewError(domain.KindDelivery, "stat artifact", err)
	}

	sink.SetMetadata(MetadataFor(spec, info.Size()))

	n, err := copyBuffer(&sinkWriter{w: sink}, &ctxReader{ctx: ctx, r: f})
	if err != nil {
		if !IsSinkError(err) && ctx.Err() != nil {
			return n, contextError(ctx, "deliver artifact")
		}
		return n, domain.NewError(domain.KindDelivery, "deliver artifact", err)
	}
	if n != info.Size() {
		return n, domain.NewError(domain.KindDelivery, "deliver artifact",
			fmt.Errorf("short delivery: %d of %d bytes", n, info.Size()))
	}
	return n, nil
}

// Stream relays a live converter stream into sink.
// A sink failure terminates the converter; its exit status is then ignored.
func Stream(ctx context.Context, src Source, spec *domain.JobSpec, sink Sink) (int64, error) {
	sink.SetMetadata(MetadataFor(spec, -1))

	n, copyErr := copyBuffer(&sinkWriter{w: sink}, &ctxReader{ctx: ctx, r: src})
	if copyErr != nil {
		src.Terminate()
		_, waitErr := src.Wait()
		switch {
		case IsSinkError(copyErr):
			return n, domain.NewError(domain.KindDelivery, "deliver stream", copyErr)
		case waitErr != nil:
			return n, waitErr
		case ctx.Err() != nil:
			return n, contextError(ctx, "deliver stream")
		default:
			return n, domain.NewError(domain.KindDelivery, "deliver stream", copyErr)
		}
	}

	if _, err := src.Wait(); err != nil {
		return n, err
	}
	return n, nil
}

// contextError classifies a delivery cut short by ctx
func contextError(ctx context.Context, op string) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return domain.NewError(domain.KindExecution, op, domain.ErrTimeout)
	}
	return domain.NewError(domain.KindDelivery, op, fmt.Errorf("%w: %w", domain.ErrCanceled, ctx.Err()))
}

func copyBuffer(dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, copyBufferSize)
	return io.CopyBuffer(dst, src, buf)
}

// sinkWriter tags write failures so they can be told apart from read failures
type sinkWriter struct {
	w io.Writer
}

func (s *sinkWriter) Write(p []byte) (int, error) {
	n, err := s.w.Write(p)
	if err != nil {
		return n, &sinkWriteError{err: err}
	}
	return n, nil
}

// ctxReader stops a copy once ctx is done
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// IsSinkError reports whether err came from the sink side of a delivery
func IsSinkError(err error) bool {
	var sw *sinkWriteError
	return errors.As(err, &sw)
}

type sinkWriteError struct {
	err error
}

func (e *sinkWriteError) Error() string { return "write to sink: " + e.err.Error() }
func (e *sinkWriteError) Unwrap() error { return e.err }
