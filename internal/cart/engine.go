// Package cart はクライアント側に保存したカートを、チェックアウト前に
// サーバーの出品状態と突き合わせる。
package cart

import (
	"context"
	"errors"
	"sync"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// ErrListingNotFound は出品が存在しない（削除済み）ことを表す。
var ErrListingNotFound = errors.New("listing not found")

const statusActive = "ACTIVE"

// Line はローカルに保存したカートの1行。サーバーの状態についての仮定でしかない。
type Line struct {
	ListingID int64           `json:"listing_id"`
	Title     string          `json:"title"`
	Unit      string          `json:"unit"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int64           `json:"quantity"`
}

// Snapshot はサーバーから取り直した出品の状態。
type Snapshot struct {
	ID                int64           `json:"id"`
	Title             string          `json:"title"`
	Unit              string          `json:"unit"`
	UnitPrice         decimal.Decimal `json:"unit_price"`
	AvailableQuantity int64           `json:"available_quantity"`
	Status            string          `json:"status"`
}

// ListingReader は出品の読み取り口。
type ListingReader interface {
	// 存在しないIDは結果に含めない
	FetchMany(ctx context.Context, ids []int64) (map[int64]Snapshot, error)
	// 存在しなければ ErrListingNotFound
	FetchOne(ctx context.Context, id int64) (Snapshot, error)
}

type AdjustmentKind string

const (
	KindRemovedDeleted    AdjustmentKind = "removed_deleted"
	KindRemovedInactive   AdjustmentKind = "removed_inactive"
	KindRemovedOutOfStock AdjustmentKind = "removed_out_of_stock"
	KindQuantityClamped   AdjustmentKind = "quantity_clamped"
	KindPriceChanged      AdjustmentKind = "price_changed"
)

// Removes は行がカートから消える調整か
func (k AdjustmentKind) Removes() bool {
	return k == KindRemovedDeleted || k == KindRemovedInactive || k == KindRemovedOutOfStock
}

// Adjustment は1行に対する調整。Kind によって使うフィールドが決まる。
//
//	removed_*        : ListingID, Title
//	quantity_clamped : OldQuantity, NewQuantity（価格も変わっていれば OldPrice, NewPrice）
//	price_changed    : OldPrice, NewPrice
type Adjustment struct {
	Kind        AdjustmentKind   `json:"type"`
	ListingID   int64            `json:"listing_id"`
	Title       string           `json:"title"`
	OldQuantity int64            `json:"old_quantity,omitempty"`
	NewQuantity int64            `json:"new_quantity,omitempty"`
	OldPrice    *decimal.Decimal `json:"old_price,omitempty"`
	NewPrice    *decimal.Decimal `json:"new_price,omitempty"`
}

// PriceConflict はユーザーの判断待ちの価格差。
type PriceConflict struct {
	ListingID int64           `json:"listing_id"`
	OldPrice  decimal.Decimal `json:"old_price"`
	NewPrice  decimal.Decimal `json:"new_price"`
}

type Options struct {
	// false なら価格差は保留にし、キャッシュの価格のまま残す
	ApplyPriceUpdates bool
}

type Result struct {
	Adjustments           []Adjustment    `json:"adjustments"`
	Lines                 []Line          `json:"lines"`
	Total                 decimal.Decimal `json:"total"`
	PendingPriceConflicts []PriceConflict `json:"pending_price_conflicts"`
	// 取得できなかった出品。行は変更せずに残してある。
	Unreachable []int64 `json:"unreachable,omitempty"`
}

// ApplyAll は保留中の価格をすべてサーバーの価格に合わせる。
func (r *Result) ApplyAll() {
	live := make(map[int64]decimal.Decimal, len(r.PendingPriceConflicts))
	for _, c := range r.PendingPriceConflicts {
		live[c.ListingID] = c.NewPrice
	}
	for i := range r.Lines {
		if p, ok := live[r.Lines[i].ListingID]; ok {
			r.Lines[i].Price = p
		}
	}
	r.PendingPriceConflicts = nil
	r.Total = total(r.Lines)
}

// KeepAll は保留中の価格差を捨て、キャッシュの価格のままにする。
func (r *Result) KeepAll() {
	r.PendingPriceConflicts = nil
	r.Total = total(r.Lines)
}

func (r Result) HasPendingConflicts() bool {
	return len(r.PendingPriceConflicts) > 0
}

const defaultFallbackLimit = 4

type Engine struct {
	reader        ListingReader
	fallbackLimit int
}

func NewEngine(reader ListingReader) *Engine {
	return &Engine{reader: reader, fallbackLimit: defaultFallbackLimit}
}

// Reconcile はカートの各行をサーバーの状態と突き合わせる。
//
// 判定の優先順: 削除 → 非公開 → 在庫切れ → 数量の切り詰め → 価格変更 → 変更なし。
// 一括取得が失敗したら1件ずつ取り直し、それでも取れない行は変更せずに残す。
// 返すエラーは ctx の取り消しだけ。
func (e *Engine) Reconcile(ctx context.Context, lines []Line, opts Options) (Result, error) {
	live, missing, unreachable := e.fetch(ctx, distinctIDs(lines))
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	res := Result{
		Adjustments:           []Adjustment{},
		Lines:                 make([]Line, 0, len(lines)),
		PendingPriceConflicts: []PriceConflict{},
	}
	unreachableSeen := make(map[int64]bool)

	for _, line := range lines {
		if unreachable[line.ListingID] {
			res.Lines = append(res.Lines, line)
			if !unreachableSeen[line.ListingID] {
				unreachableSeen[line.ListingID] = true
				res.Unreachable = append(res.Unreachable, line.ListingID)
			}
			continue
		}

		snap, ok := live[line.ListingID]
		if !ok || missing[line.ListingID] {
			res.Adjustments = append(res.Adjustments, Adjustment{Kind: KindRemovedDeleted, ListingID: line.ListingID, Title: line.Title})
			continue
		}
		if snap.Status != statusActive {
			res.Adjustments = append(res.Adjustments, Adjustment{Kind: KindRemovedInactive, ListingID: line.ListingID, Title: line.Title})
			continue
		}
		if snap.AvailableQuantity <= 0 {
			res.Adjustments = append(res.Adjustments, Adjustment{Kind: KindRemovedOutOfStock, ListingID: line.ListingID, Title: line.Title})
			continue
		}

		next := line
		priceDiff := !snap.UnitPrice.Equal(line.Price)
		if priceDiff {
			if opts.ApplyPriceUpdates {
				next.Price = snap.UnitPrice
			} else {
				res.PendingPriceConflicts = append(res.PendingPriceConflicts, PriceConflict{
					ListingID: line.ListingID,
					OldPrice:  line.Price,
					NewPrice:  snap.UnitPrice,
				})
			}
		}

		switch {
		case line.Quantity > snap.AvailableQuantity:
			next.Quantity = snap.AvailableQuantity
			adj := Adjustment{
				Kind:        KindQuantityClamped,
				ListingID:   line.ListingID,
				Title:       line.Title,
				OldQuantity: line.Quantity,
				NewQuantity: snap.AvailableQuantity,
			}
			if priceDiff {
				adj.OldPrice, adj.NewPrice = pricePtr(line.Price), pricePtr(snap.UnitPrice)
			}
			res.Adjustments = append(res.Adjustments, adj)
		case priceDiff:
			res.Adjustments = append(res.Adjustments, Adjustment{
				Kind:      KindPriceChanged,
				ListingID: line.ListingID,
				Title:     line.Title,
				OldPrice:  pricePtr(line.Price),
				NewPrice:  pricePtr(snap.UnitPrice),
			})
		}

		res.Lines = append(res.Lines, next)
	}

	res.Total = total(res.Lines)
	return res, nil
}

// 一括取得。失敗したら1件ずつ（並列数は fallbackLimit まで）。
// missing は削除済みと確定したID、unreachable は状態が分からないID。
func (e *Engine) fetch(ctx context.Context, ids []int64) (map[int64]Snapshot, map[int64]bool, map[int64]bool) {
	missing := make(map[int64]bool)
	unreachable := make(map[int64]bool)
	if len(ids) == 0 {
		return map[int64]Snapshot{}, missing, unreachable
	}

	live, err := e.reader.FetchMany(ctx, ids)
	if err == nil {
		return live, missing, unreachable
	}

	live = make(map[int64]Snapshot, len(ids))
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(e.fallbackLimit)

	for _, id := range ids {
		id := id
		g.Go(func() error {
			snap, err := e.reader.FetchOne(ctx, id)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				live[id] = snap
			case errors.Is(err, ErrListingNotFound):
				missing[id] = true
			default:
				unreachable[id] = true
			}
			//1件の失敗で他を止めない
			return nil
		})
	}
	_ = g.Wait()

	return live, missing, unreachable
}

func distinctIDs(lines []Line) []int64 {
	seen := make(map[int64]struct{}, len(lines))
	ids := make([]int64, 0, len(lines))
	for _, l := range lines {
		if _, ok := seen[l.ListingID]; ok {
			continue
		}
		seen[l.ListingID] = struct{}{}
		ids = append(ids, l.ListingID)
	}
	return ids
}

func total(lines []Line) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.Price.Mul(decimal.NewFromInt(l.Quantity)))
	}
	return sum
}

func pricePtr(d decimal.Decimal) *decimal.Decimal {
	return &d
}
