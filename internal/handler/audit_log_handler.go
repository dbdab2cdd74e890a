package handler

import (
	"net/http"

	"market/internal/config"
	"market/internal/domain/model"
	"market/internal/middleware"
	"market/internal/usecase"

	"github.com/labstack/echo/v4"
)

type AuditLogHandler struct {
	uc *usecase.AuditLogUsecase
}

func NewAuditLogHandler(uc *usecase.AuditLogUsecase) *AuditLogHandler {
	return &AuditLogHandler{uc: uc}
}

func (h *AuditLogHandler) RegisterRoutes(e *echo.Echo, cfg config.Config) {
	auth := middleware.AuthJWT(cfg)
	e.GET("/admin/audit-logs", h.listAll, auth, middleware.RequireRole(model.RoleAdmin))
	e.GET("/listings/:id/audit-logs", h.listForListing, auth, middleware.RequireRole(model.RoleFarmer, model.RoleAdmin))
}

func (h *AuditLogHandler) listAll(c echo.Context) error {
	in, err := auditListInput(c)
	if err != nil {
		return writeError(c, err)
	}
	if in.ListingID, err = parseOptionalID(c, "listing_id"); err != nil {
		return writeError(c, err)
	}
	if in.ActorUserID, err = parseOptionalID(c, "actor_user_id"); err != nil {
		return writeError(c, err)
	}
	return h.list(c, in)
}

func (h *AuditLogHandler) listForListing(c echo.Context) error {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}
	in, err := auditListInput(c)
	if err != nil {
		return writeError(c, err)
	}
	in.ListingID = &id
	return h.list(c, in)
}

func (h *AuditLogHandler) list(c echo.Context, in usecase.AuditLogListInput) error {
	actor, ok := actorFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	out, err := h.uc.List(c.Request().Context(), actor, in)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func auditListInput(c echo.Context) (usecase.AuditLogListInput, error) {
	page, limit, err := parsePaging(c, 50)
	if err != nil {
		return usecase.AuditLogListInput{}, err
	}
	return usecase.AuditLogListInput{
		Page:   page,
		Limit:  limit,
		Action: c.QueryParam("action"),
		From:   c.QueryParam("from"),
		To:     c.QueryParam("to"),
	}, nil
}
