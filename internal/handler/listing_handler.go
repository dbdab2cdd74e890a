package handler

import (
	"net/http"
	"strconv"
	"strings"

	"market/internal/config"
	"market/internal/domain/model"
	"market/internal/middleware"
	"market/internal/usecase"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

// /listings の公開APIと出品者向けAPI
type ListingHandler struct {
	uc *usecase.ListingUsecase
}

func NewListingHandler(uc *usecase.ListingUsecase) *ListingHandler {
	return &ListingHandler{uc: uc}
}

type ListingCreateRequest struct {
	Title       string          `json:"title"`
	Unit        string          `json:"unit"`
	Description string          `json:"description"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int64           `json:"quantity"`
}

// 省略したフィールドは変更しない
type ListingUpdateRequest struct {
	Title       *string          `json:"title"`
	Unit        *string          `json:"unit"`
	Description *string          `json:"description"`
	UnitPrice   *decimal.Decimal `json:"unit_price"`
	Status      *string          `json:"status"`
}

type StockUpdateRequest struct {
	Quantity *int64 `json:"quantity"`
	Reason   string `json:"reason"`
}

type ListingItemsResponse struct {
	Items []model.Listing `json:"items"`
}

func (h *ListingHandler) RegisterRoutes(e *echo.Echo, cfg config.Config) {
	e.GET("/listings", h.list)
	e.GET("/listings/:id", h.detail)

	//公開GETと同じprefixなのでgroupにせずルート単位で付ける
	auth := middleware.AuthJWT(cfg)
	e.POST("/listings", h.create, auth, middleware.RequireRole(model.RoleFarmer))
	e.PATCH("/listings/:id", h.update, auth, middleware.RequireRole(model.RoleFarmer, model.RoleAdmin))
	e.PUT("/listings/:id/stock", h.setStock, auth, middleware.RequireRole(model.RoleFarmer, model.RoleAdmin))
}

func (h *ListingHandler) list(c echo.Context) error {
	// ids 指定はカート照合用のまとめ取得
	if raw := c.QueryParam("ids"); raw != "" {
		ids, err := parseIDList(raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid ids"})
		}
		items, err := h.uc.GetMany(c.Request().Context(), ids)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, ListingItemsResponse{Items: items})
	}

	page, limit, err := parsePaging(c, 20)
	if err != nil {
		return writeError(c, err)
	}
	farmerID, err := parseOptionalID(c, "farmer_id")
	if err != nil {
		return writeError(c, err)
	}

	out, err := h.uc.ListPublic(c.Request().Context(), usecase.ListingListInput{
		Page:     page,
		Limit:    limit,
		Q:        c.QueryParam("q"),
		FarmerID: farmerID,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *ListingHandler) detail(c echo.Context) error {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	l, err := h.uc.Get(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, l)
}

func (h *ListingHandler) create(c echo.Context) error {
	actor, ok := actorFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	var req ListingCreateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	l, err := h.uc.Create(c.Request().Context(), actor, usecase.CreateListingInput{
		Title:       req.Title,
		Unit:        req.Unit,
		Description: req.Description,
		UnitPrice:   req.UnitPrice,
		Quantity:    req.Quantity,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, l)
}

func (h *ListingHandler) update(c echo.Context) error {
	actor, ok := actorFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	id, ok := parseIDParam(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	var req ListingUpdateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	l, err := h.uc.Update(c.Request().Context(), actor, id, usecase.UpdateListingInput{
		Title:       req.Title,
		Unit:        req.Unit,
		Description: req.Description,
		UnitPrice:   req.UnitPrice,
		Status:      req.Status,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, l)
}

func (h *ListingHandler) setStock(c echo.Context) error {
	actor, ok := actorFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	id, ok := parseIDParam(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	var req StockUpdateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}
	if req.Quantity == nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "quantity is required"})
	}

	l, err := h.uc.SetStock(c.Request().Context(), actor, id, *req.Quantity, req.Reason)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, l)
}

// "1,2,3" を []int64 にする
func parseIDList(raw string) ([]int64, error) {
	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil || id <= 0 {
			return nil, strconv.ErrSyntax
		}
		ids = append(ids, id)
	}
	return ids, nil
}
