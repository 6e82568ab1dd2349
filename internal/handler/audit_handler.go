package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/bookhub-api/internal/dto"
	"github.com/noah-isme/bookhub-api/internal/service"
	appErrors "github.com/noah-isme/bookhub-api/pkg/errors"
	"github.com/noah-isme/bookhub-api/pkg/response"
)

// AuditHandler serves administrative exports.
type AuditHandler struct {
	service *service.AuditExportService
}

// NewAuditHandler constructs the handler.
func NewAuditHandler(svc *service.AuditExportService) *AuditHandler {
	return &AuditHandler{service: svc}
}

// ExportLoginAttempts godoc
// @Summary Export login attempts
// @Tags Audit
// @Security BearerAuth
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf"
// @Param ip query string false "IP address"
// @Param email query string false "Email"
// @Param success query bool false "Outcome"
// @Param from query string false "RFC3339 lower bound"
// @Param to query string false "RFC3339 upper bound"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /admin/audit/login-attempts/export [get]
func (h *AuditHandler) ExportLoginAttempts(c *gin.Context) {
	var query dto.LoginAttemptExportQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid export query"))
		return
	}
	file, err := h.service.ExportLoginAttempts(c.Request.Context(), query, actorFrom(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Body)
}
