package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/cuongbtq/media-fetcher/internal/api/dto"
	"github.com/cuongbtq/media-fetcher/internal/converter/delivery"
	"github.com/cuongbtq/media-fetcher/internal/converter/domain"
	"github.com/gin-gonic/gin"
)

// Download handles POST /api/v1/downloads and the legacy POST /api/download.
// The response body is the converted artifact.
func (h *DownloadHandler) Download(c *gin.Context) {
	var req dto.DownloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	sink := newResponseSink(c)
	outcome, err := h.converter.Convert(c.Request.Context(), req.ToDomain(), sink)
	if err == nil {
		h.logger.Debug("Download delivered",
			slog.String("job_id", outcome.JobID),
			slog.Int64("bytes", outcome.BytesDelivered),
		)
		return
	}

	if sink.committed() {
		// Status and part of the body are already out. Aborting the connection is the
		// only way left to tell the client the artifact is incomplete.
		h.logger.Warn("Aborting partially delivered response",
			slog.String("path", c.Request.URL.Path),
			slog.Int("body_size", c.Writer.Size()),
			slog.String("error", err.Error()),
		)
		panic(http.ErrAbortHandler)
	}

	sink.reset()
	_ = c.Error(err)
	c.JSON(domain.HTTPStatus(err), gin.H{
		"error": errorMessage(err),
	})
}

// errorMessage is the client-facing text for a failed conversion
func errorMessage(err error) string {
	var (
		kindErr *domain.Error
		convErr *domain.ConversionFailedError
	)

	switch {
	case domain.KindOf(err) == domain.KindValidation && errors.As(err, &kindErr):
		return kindErr.Err.Error()
	case domain.KindOf(err) == domain.KindProvisioning:
		return "Converter is unavailable"
	case errors.As(err, &convErr):
		if last := convErr.LastDiagnostic(); last != "" {
			return "Conversion failed: " + last
		}
		return "Conversion failed"
	case errors.Is(err, domain.ErrTimeout):
		return "Conversion timed out"
	case errors.Is(err, domain.ErrArtifactMissing):
		return "Conversion produced no output"
	default:
		return "Conversion failed"
	}
}

// responseSink writes the artifact into the gin response. Headers are only
// committed by the first body write, so a failure before that can still be
// answered with a JSON error.
type responseSink struct {
	c     *gin.Context
	flush bool
}

func newResponseSink(c *gin.Context) *responseSink {
	return &responseSink{c: c}
}

func (s *responseSink) SetMetadata(meta delivery.Metadata) {
	header := s.c.Writer.Header()
	header.Set("Content-Type", meta.ContentType)
	header.Set("Content-Disposition", meta.ContentDisposition())
	if meta.Size >= 0 {
		header.Set("Content-Length", strconv.FormatInt(meta.Size, 10))
	} else {
		s.flush = true
	}
}

func (s *responseSink) Write(p []byte) (int, error) {
	n, err := s.c.Writer.Write(p)
	if err == nil && s.flush {
		s.c.Writer.Flush()
	}
	return n, err
}

func (s *responseSink) committed() bool {
	return s.c.Writer.Written()
}

// reset drops artifact headers set before a failure
func (s *responseSink) reset() {
	header := s.c.Writer.Header()
	header.Del("Content-Disposition")
	header.Del("Content-Length")
	header.Del("Content-Type")
}
