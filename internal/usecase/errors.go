package usecase

import (
	"errors"
	"fmt"
	"net/http"
)

// HTTPError はハンドラでそのままレスポンスに変換できるエラー。
// Retryable が true なら、クライアントは最新状態を取り直して再送してよい。
type HTTPError struct {
	Status    int
	Message   string
	Retryable bool
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

func NewHTTPError(status int, message string) error {
	return &HTTPError{
		Status:  status,
		Message: message,
	}
}

func NewRetryableHTTPError(status int, message string) error {
	return &HTTPError{
		Status:    status,
		Message:   message,
		Retryable: true,
	}
}

func AsHTTPError(err error) (*HTTPError, bool) {
	var he *HTTPError
	ok := errors.As(err, &he)
	return he, ok
}

// 在庫台帳のエラー
var (
	// 読んだ後に他の予約が先に書いた
	ErrStockConflict = errors.New("stock changed, please retry")

	ErrNotAvailable       = errors.New("not available")
	ErrInsufficientStock  = fmt.Errorf("%w: insufficient stock", ErrNotAvailable)
	ErrListingUnavailable = fmt.Errorf("%w: listing not found or inactive", ErrNotAvailable)

	ErrInvalidQuantity = errors.New("quantity must be > 0")
)

// 台帳エラーをHTTPErrorに変換
func ledgerHTTPError(err error) error {
	switch {
	case errors.Is(err, ErrStockConflict):
		return NewRetryableHTTPError(http.StatusConflict, "stock changed, please retry")
	case errors.Is(err, ErrInsufficientStock):
		return NewHTTPError(http.StatusConflict, "insufficient stock")
	case errors.Is(err, ErrListingUnavailable):
		return NewHTTPError(http.StatusConflict, "listing not found or inactive")
	case errors.Is(err, ErrInvalidQuantity):
		return NewHTTPError(http.StatusBadRequest, "quantity must be > 0")
	}
	if _, ok := AsHTTPError(err); ok {
		return err
	}
	return NewHTTPError(http.StatusInternalServerError, "db error")
}
