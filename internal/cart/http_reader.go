package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// サーバー側の GET /listings?ids= の上限
const maxIDsPerRequest = 100

// HTTPListingReader は API の出品読み取りを ListingReader として使う。
type HTTPListingReader struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewHTTPListingReader(baseURL string, token string, client *http.Client) *HTTPListingReader {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPListingReader{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  client,
	}
}

type listingsResponse struct {
	Items []Snapshot `json:"items"`
}

func (r *HTTPListingReader) FetchMany(ctx context.Context, ids []int64) (map[int64]Snapshot, error) {
	out := make(map[int64]Snapshot, len(ids))

	for start := 0; start < len(ids); start += maxIDsPerRequest {
		end := start + maxIDsPerRequest
		if end > len(ids) {
			end = len(ids)
		}

		parts := make([]string, 0, end-start)
		for _, id := range ids[start:end] {
			parts = append(parts, strconv.FormatInt(id, 10))
		}

		var body listingsResponse
		status, err := r.get(ctx, "/listings?ids="+url.QueryEscape(strings.Join(parts, ",")), &body)
		if err != nil {
			return nil, err
		}
		if status != http.StatusOK {
			return nil, fmt.Errorf("fetch listings: unexpected status %d", status)
		}
		for _, s := range body.Items {
			out[s.ID] = s
		}
	}
	return out, nil
}

func (r *HTTPListingReader) FetchOne(ctx context.Context, id int64) (Snapshot, error) {
	var s Snapshot
	status, err := r.get(ctx, "/listings/"+strconv.FormatInt(id, 10), &s)
	if err != nil {
		return Snapshot{}, err
	}
	switch status {
	case http.StatusOK:
		return s, nil
	case http.StatusNotFound:
		return Snapshot{}, ErrListingNotFound
	default:
		return Snapshot{}, fmt.Errorf("fetch listing %d: unexpected status %d", id, status)
	}
}

// 200 のときだけ dst にデコードする
func (r *HTTPListingReader) get(ctx context.Context, path string, dst any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+path, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return 0, fmt.Errorf("decode %s: %w", path, err)
	}
	return resp.StatusCode, nil
}
