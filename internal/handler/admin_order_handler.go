package handler

import (
	"net/http"

	"market/internal/config"
	"market/internal/domain/model"
	"market/internal/middleware"
	"market/internal/usecase"

	"github.com/labstack/echo/v4"
)

type AdminOrderHandler struct {
	uc *usecase.AdminOrderUsecase
}

func NewAdminOrderHandler(uc *usecase.AdminOrderUsecase) *AdminOrderHandler {
	return &AdminOrderHandler{uc: uc}
}

func (h *AdminOrderHandler) RegisterRoutes(e *echo.Echo, cfg config.Config) {
	admin := e.Group("/admin")
	admin.Use(middleware.AuthJWT(cfg))
	admin.Use(middleware.RequireRole(model.RoleAdmin))

	admin.GET("/orders", h.list)
}

func (h *AdminOrderHandler) list(c echo.Context) error {
	actor, ok := actorFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	page, limit, err := parsePaging(c, 50)
	if err != nil {
		return writeError(c, err)
	}

	buyerID, err := parseOptionalID(c, "buyer_id")
	if err != nil {
		return writeError(c, err)
	}
	sellerID, err := parseOptionalID(c, "seller_id")
	if err != nil {
		return writeError(c, err)
	}

	//from/to は usecase 側で RFC3339 として検証
	out, err := h.uc.List(c.Request().Context(), actor, usecase.AdminOrderListInput{
		Page:     page,
		Limit:    limit,
		Status:   c.QueryParam("status"),
		BuyerID:  buyerID,
		SellerID: sellerID,
		From:     c.QueryParam("from"),
		To:       c.QueryParam("to"),
	})
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, out)
}
