package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/bookhub-api/internal/dto"
	"github.com/noah-isme/bookhub-api/internal/models"
	appErrors "github.com/noah-isme/bookhub-api/pkg/errors"
	"github.com/noah-isme/bookhub-api/pkg/export"
)

type loginAttemptLister interface {
	List(ctx context.Context, filter models.LoginAttemptFilter) ([]models.LoginAttempt, error)
}

type tableRenderer interface {
	Render(table export.Table) ([]byte, error)
	ContentType() string
	Extension() string
}

var loginAttemptColumns = []export.Column{
	{Key: "created_at", Label: "Time (UTC)", Weight: 1.4},
	{Key: "email", Label: "Email", Weight: 2},
	{Key: "ip_address", Label: "IP", Weight: 1.2},
	{Key: "success", Label: "Success", Weight: 0.6},
	{Key: "failure_reason", Label: "Reason", Weight: 1.2},
	{Key: "user_agent", Label: "User agent", Weight: 2.2},
}

// AuditExportService renders login attempt history for administrators.
type AuditExportService struct {
	attempts  loginAttemptLister
	renderers map[string]tableRenderer
	audit     auditWriter
	logger    *zap.Logger
	now       func() time.Time
}

// NewAuditExportService constructs the service with CSV and PDF renderers.
func NewAuditExportService(attempts loginAttemptLister, audit auditWriter, logger *zap.Logger) *AuditExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditExportService{
		attempts: attempts,
		renderers: map[string]tableRenderer{
			"csv": export.NewCSVExporter(),
			"pdf": export.NewPDFExporter(),
		},
		audit:  audit,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// ExportLoginAttempts renders attempts matching query. Format defaults to csv.
func (s *AuditExportService) ExportLoginAttempts(ctx context.Context, query dto.LoginAttemptExportQuery, actor models.Actor) (*dto.ExportFile, error) {
	format := strings.ToLower(strings.TrimSpace(query.Format))
	if format == "" {
		format = "csv"
	}
	renderer, ok := s.renderers[format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
	if query.From != nil && query.To != nil && query.To.Before(*query.From) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "to must not be before from")
	}

	attempts, err := s.attempts.List(ctx, models.LoginAttemptFilter{
		IPAddress: strings.TrimSpace(query.IPAddress),
		Email:     normalizeEmail(query.Email),
		Success:   query.Success,
		From:      query.From,
		To:        query.To,
		Limit:     query.Limit,
	})
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load login attempts")
	}

	table := export.Table{Title: "Login attempts", Columns: loginAttemptColumns}
	for _, a := range attempts {
		table.Rows = append(table.Rows, map[string]string{
			"created_at":     a.CreatedAt.UTC().Format(time.RFC3339),
			"email":          a.Email,
			"ip_address":     a.IPAddress,
			"success":        strconv.FormatBool(a.Success),
			"failure_reason": a.FailureReason,
			"user_agent":     a.UserAgent,
		})
	}
	body, err := renderer.Render(table)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to render export")
	}

	recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionExport, "login_attempts", "",
		map[string]interface{}{"format": format, "rows": len(attempts)})

	return &dto.ExportFile{
		Filename:    fmt.Sprintf("login-attempts-%s.%s", s.now().Format("20060102-150405"), renderer.Extension()),
		ContentType: renderer.ContentType(),
		Body:        body,
	}, nil
}
