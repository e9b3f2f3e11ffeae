package model

import "time"

// Conversion is one row of the conversions table
type Conversion struct {
	JobID           string    `db:"job_id"`
	EventID         string    `db:"event_id"`
	SourceReference string    `db:"source_reference"`
	OutputKind      string    `db:"output_kind"`
	DeliveryMode    string    `db:"delivery_mode"`
	Status          string    `db:"status"`
	BytesDelivered  int64     `db:"bytes_delivered"`
	ExitCode        *int64    `db:"exit_code"`
	ErrorKind       *string   `db:"error_kind"`
	ErrorMessage    *string   `db:"error_message"`
	StartedAt       time.Time `db:"started_at"`
	CompletedAt     time.Time `db:"completed_at"`
	RecordedAt      time.Time `db:"recorded_at"`
}
