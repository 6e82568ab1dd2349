package dto

import "time"

// LoginAttemptExportQuery filters the login attempt export.
type LoginAttemptExportQuery struct {
	Format    string     `form:"format"`
	IPAddress string     `form:"ip"`
	Email     string     `form:"email"`
	Success   *bool      `form:"success"`
	From      *time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To        *time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
	Limit     int        `form:"limit"`
}

// ExportFile is a rendered export ready to stream.
type ExportFile struct {
	Filename    string
	ContentType string
	Body        []byte
}
