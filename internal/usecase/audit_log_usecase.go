package usecase

import (
	"context"
	"net/http"
	"strings"

	"market/internal/domain/model"
	repo "market/internal/repository"
)

// 出品の操作ログ（価格・状態・在庫の変更）を読む。
type AuditLogUsecase struct {
	logs     repo.AuditLogRepository
	listings repo.ListingRepository
}

func NewAuditLogUsecase(logs repo.AuditLogRepository, listings repo.ListingRepository) *AuditLogUsecase {
	return &AuditLogUsecase{logs: logs, listings: listings}
}

type AuditLogListInput struct {
	Page        int
	Limit       int
	Action      string
	ListingID   *int64
	ActorUserID *int64
	From        string // RFC3339
	To          string // RFC3339
}

type AuditLogListOutput struct {
	Items []model.AuditLog `json:"items"`
	Total int64            `json:"total"`
	Page  int              `json:"page"`
	Limit int              `json:"limit"`
}

// List は ADMIN なら全件、FARMER なら自分の出品1件分だけ返す。
func (u *AuditLogUsecase) List(ctx context.Context, actor model.Actor, in AuditLogListInput) (AuditLogListOutput, error) {
	if actor.UserID <= 0 {
		return AuditLogListOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	switch actor.Role {
	case model.RoleAdmin:
	case model.RoleFarmer:
		if in.ListingID == nil {
			return AuditLogListOutput{}, NewHTTPError(http.StatusForbidden, "forbidden")
		}
		if _, err := findOwnedListing(ctx, u.listings, actor, *in.ListingID); err != nil {
			return AuditLogListOutput{}, err
		}
	default:
		return AuditLogListOutput{}, NewHTTPError(http.StatusForbidden, "forbidden")
	}

	if in.Page < 1 {
		return AuditLogListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid page")
	}
	if in.Limit < 1 || in.Limit > 100 {
		return AuditLogListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid limit")
	}

	action := strings.ToUpper(strings.TrimSpace(in.Action))
	switch model.AuditAction(action) {
	case "", model.AuditActionUpdateListing, model.AuditActionUpdateStock:
	default:
		return AuditLogListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid action")
	}

	from, ok := parseDateTimeRFC3339(in.From)
	if !ok {
		return AuditLogListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid from")
	}
	to, ok := parseDateTimeRFC3339(in.To)
	if !ok {
		return AuditLogListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid to")
	}
	if from != nil && to != nil && from.After(*to) {
		return AuditLogListOutput{}, NewHTTPError(http.StatusBadRequest, "from must be <= to")
	}

	f := repo.AuditLogFilter{
		ActorUserID: in.ActorUserID,
		Action:      action,
		From:        from,
		To:          to,
		Page:        in.Page,
		Limit:       in.Limit,
	}
	if in.ListingID != nil {
		f.ResourceType = string(model.AuditResourceListing)
		f.ResourceID = in.ListingID
	}

	items, total, err := u.logs.List(ctx, f)
	if err != nil {
		return AuditLogListOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if items == nil {
		items = []model.AuditLog{}
	}
	return AuditLogListOutput{Items: items, Total: total, Page: in.Page, Limit: in.Limit}, nil
}
