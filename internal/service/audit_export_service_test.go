package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bookhub-api/internal/dto"
	"github.com/noah-isme/bookhub-api/internal/models"
	appErrors "github.com/noah-isme/bookhub-api/pkg/errors"
)

func newExportFixture() (*AuditExportService, *fakeAudit) {
	at := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	attempts := &fakeAttempts{attempts: []models.LoginAttempt{
		{ID: "a1", Email: "alice@example.com", IPAddress: "10.0.0.1", Success: true, CreatedAt: at},
		{ID: "a2", Email: "alice@example.com", IPAddress: "10.0.0.2", FailureReason: models.LoginReasonInvalidCredentials, CreatedAt: at.Add(time.Minute)},
		{ID: "a3", Email: "bob@example.com", IPAddress: "10.0.0.2", FailureReason: models.LoginReasonIPBlocked, CreatedAt: at.Add(2 * time.Minute)},
	}}
	audit := &fakeAudit{}
	svc := NewAuditExportService(attempts, audit, nil)
	svc.now = func() time.Time { return at }
	return svc, audit
}

func TestAuditExportDefaultsToCSV(t *testing.T) {
	svc, audit := newExportFixture()

	file, err := svc.ExportLoginAttempts(context.Background(), dto.LoginAttemptExportQuery{Email: " Alice@Example.com "}, admin)
	require.NoError(t, err)
	assert.Equal(t, "text/csv", file.ContentType)
	assert.Equal(t, "login-attempts-20260301-093000.csv", file.Filename)

	records, err := csv.NewReader(bytes.NewReader(file.Body)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"Time (UTC)", "Email", "IP", "Success", "Reason", "User agent"}, records[0])
	assert.Equal(t, "2026-03-01T09:30:00Z", records[1][0])
	assert.Equal(t, "true", records[1][3])
	assert.Equal(t, models.LoginReasonInvalidCredentials, records[2][4])

	assert.Equal(t, []string{models.AuditActionExport}, audit.actions())
}

func TestAuditExportPDF(t *testing.T) {
	svc, _ := newExportFixture()
	failed := false

	file, err := svc.ExportLoginAttempts(context.Background(), dto.LoginAttemptExportQuery{Format: "PDF", Success: &failed}, admin)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", file.ContentType)
	assert.True(t, bytes.HasPrefix(file.Body, []byte("%PDF")))
}

func TestAuditExportRejectsBadQueries(t *testing.T) {
	svc, audit := newExportFixture()
	ctx := context.Background()

	_, err := svc.ExportLoginAttempts(ctx, dto.LoginAttemptExportQuery{Format: "xlsx"}, admin)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	from := time.Now()
	to := from.Add(-time.Hour)
	_, err = svc.ExportLoginAttempts(ctx, dto.LoginAttemptExportQuery{From: &from, To: &to}, admin)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	assert.Empty(t, audit.logs)
}
