package usecase

import (
	"context"
	"net/http"
	"strings"
	"time"

	"market/internal/domain/model"
	repo "market/internal/repository"
)

// 管理者向けの注文一覧
type AdminOrderUsecase struct {
	orders repo.OrderRepository
}

func NewAdminOrderUsecase(orders repo.OrderRepository) *AdminOrderUsecase {
	return &AdminOrderUsecase{orders: orders}
}

type AdminOrderListInput struct {
	Page     int
	Limit    int
	Status   string
	BuyerID  *int64
	SellerID *int64
	From     string // RFC3339
	To       string // RFC3339
}

func (u *AdminOrderUsecase) List(ctx context.Context, actor model.Actor, in AdminOrderListInput) (OrderListOutput, error) {
	if actor.UserID <= 0 {
		return OrderListOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if actor.Role != model.RoleAdmin {
		return OrderListOutput{}, NewHTTPError(http.StatusForbidden, "forbidden")
	}
	// page/limitの最低限チェック
	if in.Page < 1 {
		return OrderListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid page")
	}
	if in.Limit < 1 || in.Limit > 100 {
		return OrderListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid limit")
	}

	status, err := normalizeStatusFilter(in.Status)
	if err != nil {
		return OrderListOutput{}, err
	}
	from, ok := parseDateTimeRFC3339(in.From)
	if !ok {
		return OrderListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid from")
	}
	to, ok := parseDateTimeRFC3339(in.To)
	if !ok {
		return OrderListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid to")
	}
	if from != nil && to != nil && from.After(*to) {
		return OrderListOutput{}, NewHTTPError(http.StatusBadRequest, "from must be <= to")
	}

	orders, total, err := u.orders.List(ctx, repo.OrderListFilter{
		Page:     in.Page,
		Limit:    in.Limit,
		Status:   status,
		BuyerID:  in.BuyerID,
		SellerID: in.SellerID,
		From:     from,
		To:       to,
	})
	if err != nil {
		return OrderListOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	items := make([]OrderOutput, 0, len(orders))
	for _, o := range orders {
		items = append(items, toOrderOutput(o))
	}
	return OrderListOutput{Items: items, Total: total, Page: in.Page, Limit: in.Limit}, nil
}

// 空文字は「指定なし」(nil, true)。形式不正は (nil, false)。
func parseDateTimeRFC3339(s string) (*time.Time, bool) {
	if strings.TrimSpace(s) == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(s))
	if err != nil {
		return nil, false
	}
	return &t, true
}
