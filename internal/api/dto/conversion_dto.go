package dto

type ListConversionsRequest struct {
	OutputKind string `form:"output_kind"`
	Status     string `form:"status"`
	PageSize   int    `form:"page_size"`
	Cursor     string `form:"cursor"`
}

type ListConversionsResponse struct {
	Conversions []ConversionDTO `json:"conversions"`
	NextCursor  string          `json:"next_cursor,omitempty"`
}

type ConversionDTO struct {
	JobID           string `json:"job_id"`
	SourceReference string `json:"source_reference"`
	OutputKind      string `json:"output_kind"`
	DeliveryMode    string `json:"delivery_mode"`
	Status          string `json:"status"`
	BytesDelivered  int64  `json:"bytes_delivered"`
	ExitCode        *int64 `json:"exit_code,omitempty"`
	ErrorKind       string `json:"error_kind,omitempty"`
	ErrorMessage    string `json:"error_message,omitempty"`
	StartedAt       string `json:"started_at"`
	CompletedAt     string `json:"completed_at"`
}
