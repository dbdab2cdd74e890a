package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"market/internal/cart"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newListingServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/listings":
			_, _ = w.Write([]byte(`{"items":[{"id":1,"title":"Tomato","unit":"kg","unit_price":"120","available_quantity":10,"status":"ACTIVE"}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeCart(t *testing.T, lines []cart.Line) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cart.json")
	b, err := json.Marshal(cartFile{Lines: lines})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o644))
	return path
}

func TestRun_PendingPriceThenResolve(t *testing.T) {
	srv := newListingServer(t)
	path := writeCart(t, []cart.Line{
		{ListingID: 1, Title: "Tomato", Unit: "kg", Price: decimal.NewFromInt(100), Quantity: 2},
	})

	opts := options{file: path, api: srv.URL, timeout: 5 * time.Second}

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), opts, &out))
	var res cart.Result
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	require.Len(t, res.PendingPriceConflicts, 1)
	assert.True(t, res.Total.Equal(decimal.NewFromInt(200)))

	// 保留が残ったままでは書き戻さない
	opts.write = true
	out.Reset()
	assert.Error(t, run(context.Background(), opts, &out))

	opts.resolve = "apply"
	out.Reset()
	require.NoError(t, run(context.Background(), opts, &out))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var cf cartFile
	require.NoError(t, json.Unmarshal(raw, &cf))
	require.Len(t, cf.Lines, 1)
	assert.True(t, cf.Lines[0].Price.Equal(decimal.NewFromInt(120)))
}

func TestRun_DeletedListingRemoved(t *testing.T) {
	srv := newListingServer(t)
	path := writeCart(t, []cart.Line{
		{ListingID: 1, Title: "Tomato", Unit: "kg", Price: decimal.NewFromInt(120), Quantity: 1},
		{ListingID: 7, Title: "Gone", Unit: "kg", Price: decimal.NewFromInt(50), Quantity: 1},
	})

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), options{file: path, api: srv.URL, timeout: 5 * time.Second}, &out))

	var res cart.Result
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	require.Len(t, res.Adjustments, 1)
	assert.Equal(t, cart.KindRemovedDeleted, res.Adjustments[0].Kind)
	assert.Len(t, res.Lines, 1)
}

func TestRun_InvalidResolve(t *testing.T) {
	err := run(context.Background(), options{file: "unused.json", resolve: "maybe"}, &bytes.Buffer{})
	assert.Error(t, err)
}
