package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/cuongbtq/media-fetcher/internal/api/domain"
	"github.com/cuongbtq/media-fetcher/internal/api/dto"
	"github.com/cuongbtq/media-fetcher/internal/api/model"
	"github.com/cuongbtq/media-fetcher/internal/api/storage"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// GetConversion handles GET /api/v1/conversions/:job_id
func (h *ConversionHandler) GetConversion(c *gin.Context) {
	jobID := c.Param("job_id")

	h.logger.Debug("GetConversion called",
		slog.String("path", c.Request.URL.Path),
		slog.String("job_id", jobID),
	)

	if _, err := uuid.Parse(jobID); err != nil {
		h.logger.Error("Invalid job_id format", slog.String("job_id", jobID), slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return
	}

	conversion, err := h.storage.GetConversion(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrConversionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Conversion not found",
			})
			return
		}
		h.logger.Error("Failed to get conversion", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get conversion",
		})
		return
	}

	c.JSON(http.StatusOK, toConversionDTO(conversion))
}

// ListConversions handles GET /api/v1/conversions
// Lists recorded conversions newest first with cursor pagination
func (h *ConversionHandler) ListConversions(c *gin.Context) {
	h.logger.Debug("ListConversions called",
		slog.String("path", c.Request.URL.Path),
		slog.String("query", c.Request.URL.RawQuery),
	)

	var req dto.ListConversionsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Error("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = defaultPageSize
	}

	if req.PageSize > maxPageSize {
		req.PageSize = maxPageSize
	}

	cursor, err := DecodeConversionCursor(req.Cursor)
	if err != nil {
		h.logger.Error("Invalid cursor", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	filter := storage.ConversionFilter{
		OutputKind: req.OutputKind,
		Status:     req.Status,
		PageSize:   req.PageSize,
		Cursor:     cursor,
	}

	conversions, err := h.storage.ListConversions(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list conversions", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list conversions",
		})
		return
	}

	hasMore := len(conversions) > req.PageSize
	if hasMore {
		conversions = conversions[:req.PageSize]
	}

	items := make([]dto.ConversionDTO, len(conversions))
	for i := range conversions {
		items[i] = toConversionDTO(&conversions[i])
	}

	var nextCursor string
	if hasMore {
		last := conversions[len(conversions)-1]
		nextCursor = EncodeConversionCursor(&storage.ConversionCursor{
			CompletedAt: last.CompletedAt,
			JobID:       last.JobID,
		})
	}

	c.JSON(http.StatusOK, dto.ListConversionsResponse{
		Conversions: items,
		NextCursor:  nextCursor,
	})
}

func toConversionDTO(conversion *model.Conversion) dto.ConversionDTO {
	out := dto.ConversionDTO{
		JobID:           conversion.JobID,
		SourceReference: conversion.SourceReference,
		OutputKind:      conversion.OutputKind,
		DeliveryMode:    conversion.DeliveryMode,
		Status:          conversion.Status,
		BytesDelivered:  conversion.BytesDelivered,
		ExitCode:        conversion.ExitCode,
		StartedAt:       conversion.StartedAt.Format(time.RFC3339),
		CompletedAt:     conversion.CompletedAt.Format(time.RFC3339),
	}
	if conversion.ErrorKind != nil {
		out.ErrorKind = *conversion.ErrorKind
	}
	if conversion.ErrorMessage != nil {
		out.ErrorMessage = *conversion.ErrorMessage
	}
	return out
}
