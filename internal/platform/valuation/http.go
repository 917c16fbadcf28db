package valuation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/yungbote/mechdata-backend/internal/pkg/httpx"
	"github.com/yungbote/mechdata-backend/internal/pkg/logger"
)

// maxBodyBytes bounds the response body read from the valuation source.
const maxBodyBytes = 4 << 20

// HTTPLookup queries a JSON endpoint returning an array of table rows:
// GET <base>?name=&variant=&type=.
type HTTPLookup struct {
	baseURL string
	client  *http.Client
	log     *logger.Logger
}

func NewHTTPLookup(baseURL string, client *http.Client, log *logger.Logger) *HTTPLookup {
	if client == nil {
		client = &http.Client{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &HTTPLookup{baseURL: baseURL, client: client, log: log.With("component", "HTTPLookup")}
}

func (h *HTTPLookup) Backend() string { return "http" }

func (h *HTTPLookup) Lookup(ctx context.Context, q Query) (Result, error) {
	const op = "valuation.http"
	u, err := url.Parse(h.baseURL)
	if err != nil {
		return Result{}, transient(op, "invalid valuation url", err)
	}
	vals := u.Query()
	vals.Set("name", q.Name)
	if q.Variant != "" {
		vals.Set("variant", q.Variant)
	}
	if q.TypeFilter != nil {
		vals.Set("type", strconv.Itoa(*q.TypeFilter))
	}
	u.RawQuery = vals.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Result{}, transient(op, "build request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Result{}, transient(op, "lookup timed out", err)
		}
		return Result{}, transient(op, "request failed", err)
	}
	defer resp.Body.Close()

	switch httpx.Classify(resp.StatusCode) {
	case httpx.Missing:
		return Result{}, notFound(op, fmt.Sprintf("no valuation for %s", q))
	case httpx.Retry:
		after := httpx.RetryAfter(resp.Header, time.Now(), 10*time.Minute)
		return Result{}, transient(op, fmt.Sprintf("valuation source returned %d", resp.StatusCode), throttled{after: after})
	case httpx.Reject:
		return Result{}, notFound(op, fmt.Sprintf("valuation source rejected %s with %d", q, resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Result{}, transient(op, "read body", err)
	}
	var rows []map[string]any
	if err := json.Unmarshal(body, &rows); err != nil {
		return Result{}, transient(op, "decode body", err)
	}
	res, ok := pickRating(rows, q.Variant)
	if !ok {
		return Result{}, notFound(op, fmt.Sprintf("no valuation for %s", q))
	}
	h.log.Debug("valuation lookup", "unit", q.String(), "bv", res.BattleValue, "pv", res.PointValue)
	return res, nil
}
