package handler

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/cuongbtq/media-fetcher/internal/api/storage"
	"github.com/google/uuid"
)

func DecodeConversionCursor(cursorStr string) (*storage.ConversionCursor, error) {
	if cursorStr == "" {
		return nil, nil
	}

	// URL-safe so the cursor survives a query string unescaped
	decoded, err := base64.RawURLEncoding.DecodeString(cursorStr)
	if err != nil {
		return nil, err
	}

	decodedParts := strings.Split(string(decoded), "|")
	if len(decodedParts) != 2 {
		return nil, fmt.Errorf("invalid cursor format")
	}

	var completedAt int64
	_, err = fmt.Sscanf(decodedParts[0], "%d", &completedAt)
	if err != nil {
		return nil, fmt.Errorf("invalid completedAt in cursor: %w", err)
	}

	if _, err := uuid.Parse(decodedParts[1]); err != nil {
		return nil, fmt.Errorf("invalid job_id in cursor: %w", err)
	}

	return &storage.ConversionCursor{
		CompletedAt: time.Unix(0, completedAt).UTC(),
		JobID:       decodedParts[1],
	}, nil
}

func EncodeConversionCursor(cursor *storage.ConversionCursor) string {
	cs := fmt.Sprintf("%d|%s", cursor.CompletedAt.UnixNano(), cursor.JobID)
	return base64.RawURLEncoding.EncodeToString([]byte(cs))
}
