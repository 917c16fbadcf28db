package valuation

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/mechdata-backend/internal/config"
	"github.com/yungbote/mechdata-backend/internal/domain/pipelineerr"
)

const testURL = "https://valuation.test/units"

func newMockedHTTP(t *testing.T) *HTTPLookup {
	t.Helper()
	client := &http.Client{}
	httpmock.ActivateNonDefault(client)
	t.Cleanup(httpmock.DeactivateAndReset)
	return NewHTTPLookup(testURL, client, nil)
}

func TestHTTPLookupParsesCommaNumbers(t *testing.T) {
	l := newMockedHTTP(t)
	httpmock.RegisterResponder(http.MethodGet, testURL,
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "Atlas", req.URL.Query().Get("name"))
			assert.Equal(t, "AS7-D", req.URL.Query().Get("variant"))
			assert.Equal(t, "", req.URL.Query().Get("type"))
			return httpmock.NewJsonResponse(200, []map[string]any{
				{"Name": "Atlas AS7-K", "bv": "2,100", "PV": "50"},
				{"Name": "Atlas AS7-D", "BV": "2,340", "Pv": "55"},
			})
		})

	res, err := l.Lookup(context.Background(), Query{Name: "Atlas", Variant: "AS7-D"})
	require.NoError(t, err)
	assert.Equal(t, Result{BattleValue: 2340, PointValue: 55}, res)
}

func TestHTTPLookupSendsTypeFilter(t *testing.T) {
	l := newMockedHTTP(t)
	httpmock.RegisterResponder(http.MethodGet, testURL,
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "19", req.URL.Query().Get("type"))
			return httpmock.NewJsonResponse(200, []map[string]any{{"BV": 512, "PV": 14}})
		})
	typ := 19
	res, err := l.Lookup(context.Background(), Query{Name: "Manticore", TypeFilter: &typ})
	require.NoError(t, err)
	assert.Equal(t, 512, res.BattleValue)
	assert.Equal(t, 14, res.PointValue)
}

func TestHTTPLookupNotFound(t *testing.T) {
	l := newMockedHTTP(t)
	httpmock.RegisterResponder(http.MethodGet, testURL, httpmock.NewStringResponder(404, "missing"))
	_, err := l.Lookup(context.Background(), Query{Name: "Nobody"})
	assert.True(t, pipelineerr.IsCode(err, pipelineerr.CodeValuationNotFound))
	assert.False(t, pipelineerr.IsRetryable(err))
}

func TestHTTPLookupEmptyArrayIsNotFound(t *testing.T) {
	l := newMockedHTTP(t)
	httpmock.RegisterResponder(http.MethodGet, testURL, httpmock.NewStringResponder(200, "[]"))
	_, err := l.Lookup(context.Background(), Query{Name: "Nobody"})
	assert.True(t, pipelineerr.IsCode(err, pipelineerr.CodeValuationNotFound))
}

func TestHTTPLookupMissingPVIsNotFound(t *testing.T) {
	l := newMockedHTTP(t)
	httpmock.RegisterResponder(http.MethodGet, testURL, httpmock.NewStringResponder(200, `[{"BV":"1,000"}]`))
	_, err := l.Lookup(context.Background(), Query{Name: "Locust"})
	assert.True(t, pipelineerr.IsCode(err, pipelineerr.CodeValuationNotFound))
}

func TestHTTPLookupThrottledIsTransient(t *testing.T) {
	l := newMockedHTTP(t)
	httpmock.RegisterResponder(http.MethodGet, testURL, func(*http.Request) (*http.Response, error) {
		resp := httpmock.NewStringResponse(429, "slow down")
		resp.Header.Set("Retry-After", "7")
		return resp, nil
	})
	_, err := l.Lookup(context.Background(), Query{Name: "Atlas"})
	assert.True(t, pipelineerr.IsCode(err, pipelineerr.CodeValuationTransient))
	assert.True(t, pipelineerr.IsRetryable(err))
	assert.Equal(t, 7*time.Second, RetryAfter(err))
}

func TestHTTPLookupServerErrorIsTransient(t *testing.T) {
	l := newMockedHTTP(t)
	httpmock.RegisterResponder(http.MethodGet, testURL, httpmock.NewStringResponder(503, "down"))
	_, err := l.Lookup(context.Background(), Query{Name: "Atlas"})
	assert.True(t, pipelineerr.IsCode(err, pipelineerr.CodeValuationTransient))
}

func TestHTTPLookupNetworkErrorIsTransient(t *testing.T) {
	l := newMockedHTTP(t)
	httpmock.RegisterResponder(http.MethodGet, testURL, httpmock.NewErrorResponder(assert.AnError))
	_, err := l.Lookup(context.Background(), Query{Name: "Atlas"})
	assert.True(t, pipelineerr.IsCode(err, pipelineerr.CodeValuationTransient))
}

func TestPickRatingVariantFilter(t *testing.T) {
	rows := []map[string]any{
		{"Name": "Atlas", "Variant": "AS7-K", "BV": "2100", "PV": "50"},
		{"Name": "Atlas", "Variant": "as7-d", "BV": "1897", "PV": "52"},
	}
	res, ok := pickRating(rows, "AS7-D")
	require.True(t, ok)
	assert.Equal(t, 1897, res.BattleValue)

	_, ok = pickRating(rows, "AS7-RS")
	assert.False(t, ok)
}

func TestPickRatingRejectsNegativeValues(t *testing.T) {
	for _, row := range []map[string]any{
		{"Variant": "AS7-D", "BV": "-1,897", "PV": -52.0},
		{"Variant": "AS7-D", "BV": "1897", "PV": -1.0},
		{"Variant": "AS7-D", "BV": float64(-3), "PV": "52"},
	} {
		_, ok := pickRating([]map[string]any{row}, "AS7-D")
		assert.False(t, ok, "row %v", row)
	}

	res, ok := pickRating([]map[string]any{{"Variant": "AS7-D", "BV": "0", "PV": "0"}}, "AS7-D")
	require.True(t, ok)
	assert.Zero(t, res.BattleValue)
}

func TestHTTPLookupNegativeRatingIsNotFound(t *testing.T) {
	l := newMockedHTTP(t)
	httpmock.RegisterResponder(http.MethodGet, testURL,
		httpmock.NewStringResponder(http.StatusOK, `[{"Variant": "AS7-D", "BV": "-1,897", "PV": -52}]`))
	_, err := l.Lookup(context.Background(), Query{Name: "Atlas", Variant: "AS7-D"})
	assert.True(t, pipelineerr.IsCode(err, pipelineerr.CodeValuationNotFound), "got %v", err)
}

func TestParseIntLike(t *testing.T) {
	cases := map[any]*int{
		"2,340":     intp(2340),
		" 55 ":      intp(55),
		float64(12): intp(12),
		"":          nil,
		"n/a":       nil,
		true:        nil,
	}
	for in, want := range cases {
		got := parseIntLike(in)
		if want == nil {
			assert.Nil(t, got, "input %v", in)
			continue
		}
		require.NotNil(t, got, "input %v", in)
		assert.Equal(t, *want, *got, "input %v", in)
	}
}

func TestDecodeRowsFallsBackToBracketSlice(t *testing.T) {
	rows, ok := decodeRows([]byte("loading page...\n[{\"BV\": \"900\", \"PV\": \"21\"}]\ndone"))
	require.True(t, ok)
	require.Len(t, rows, 1)
	assert.Equal(t, "900", rows[0]["BV"])

	_, ok = decodeRows([]byte("no json here"))
	assert.False(t, ok)
	_, ok = decodeRows([]byte("[]"))
	assert.False(t, ok)
}

type countingLookup struct {
	calls int
	err   error
}

func (c *countingLookup) Backend() string { return "fake" }
func (c *countingLookup) Lookup(context.Context, Query) (Result, error) {
	c.calls++
	if c.err != nil {
		return Result{}, c.err
	}
	return Result{BattleValue: 1000, PointValue: 30}, nil
}

func TestCachedLookupMemoizesSuccess(t *testing.T) {
	inner := &countingLookup{}
	l := NewCachedLookup(inner, time.Minute)
	for i := 0; i < 3; i++ {
		res, err := l.Lookup(context.Background(), Query{Name: "Hunchback", Variant: "HBK-4G"})
		require.NoError(t, err)
		assert.Equal(t, 1000, res.BattleValue)
	}
	assert.Equal(t, 1, inner.calls)

	_, _ = l.Lookup(context.Background(), Query{Name: "Hunchback", Variant: "HBK-4P"})
	assert.Equal(t, 2, inner.calls)
}

func TestCachedLookupSkipsFailures(t *testing.T) {
	inner := &countingLookup{err: transient("test", "boom", nil)}
	l := NewCachedLookup(inner, time.Minute)
	_, err := l.Lookup(context.Background(), Query{Name: "Hunchback"})
	require.Error(t, err)
	_, err = l.Lookup(context.Background(), Query{Name: "Hunchback"})
	require.Error(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestNewSelectsBackend(t *testing.T) {
	l, err := New(config.ValuationConfig{Backend: "none"}, nil)
	require.NoError(t, err)
	assert.Nil(t, l)

	l, err = New(config.ValuationConfig{Backend: "http", URL: testURL, CacheTTL: time.Minute}, nil)
	require.NoError(t, err)
	_, cached := l.(*CachedLookup)
	assert.True(t, cached)
	assert.Equal(t, "http", l.Backend())

	_, err = New(config.ValuationConfig{Backend: "carrier-pigeon"}, nil)
	assert.True(t, pipelineerr.IsCode(err, pipelineerr.CodeConfig))
}

func intp(v int) *int { return &v }
