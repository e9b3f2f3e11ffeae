package dto

import (
	"strings"

	"github.com/cuongbtq/media-fetcher/internal/converter/domain"
)

// DownloadRequest accepts both the current field names and the legacy {url, type} shape
type DownloadRequest struct {
	SourceReference string `json:"sourceReference"`
	OutputKind      string `json:"outputKind"`
	URL             string `json:"url"`
	Type            string `json:"type"`
}

// ToDomain resolves legacy fields; the current names win when both are present
func (r DownloadRequest) ToDomain() domain.Request {
	req := domain.Request{
		SourceReference: r.SourceReference,
		OutputKind:      r.OutputKind,
	}
	if strings.TrimSpace(req.SourceReference) == "" {
		req.SourceReference = r.URL
	}
	if strings.TrimSpace(req.OutputKind) == "" {
		req.OutputKind = r.Type
	}
	return req
}

type KindsResponse struct {
	Kinds        []domain.OutputKind `json:"kinds"`
	DeliveryMode string              `json:"delivery_mode"`
}
