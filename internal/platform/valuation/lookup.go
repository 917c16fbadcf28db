// Package valuation looks up battle value and point value for a unit from
// an external source.
package valuation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/mechdata-backend/internal/config"
	"github.com/yungbote/mechdata-backend/internal/domain/pipelineerr"
	"github.com/yungbote/mechdata-backend/internal/pkg/logger"
)

// Query names the unit to rate. TypeFilter narrows the source's unit type
// (vehicles use 19) and is optional.
type Query struct {
	Name       string
	Variant    string
	TypeFilter *int
}

func (q Query) String() string {
	s := q.Name
	if q.Variant != "" {
		s += " " + q.Variant
	}
	if q.TypeFilter != nil {
		s += fmt.Sprintf(" (type %d)", *q.TypeFilter)
	}
	return s
}

type Result struct {
	BattleValue int
	PointValue  int
}

// Lookup fetches a rating. Errors carry pipelineerr.CodeValuationNotFound
// or pipelineerr.CodeValuationTransient.
type Lookup interface {
	Lookup(ctx context.Context, q Query) (Result, error)
	Backend() string
}

// New builds the lookup selected by cfg.Backend. The "none" backend yields
// a nil Lookup.
func New(cfg config.ValuationConfig, log *logger.Logger) (Lookup, error) {
	var l Lookup
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "none":
		return nil, nil
	case "http":
		l = NewHTTPLookup(cfg.URL, nil, log)
	case "command":
		l = NewCommandLookup(cfg.Command, log)
	default:
		return nil, pipelineerr.New(pipelineerr.CodeConfig, "valuation.new", fmt.Sprintf("unknown valuation backend %q", cfg.Backend), nil)
	}
	if cfg.CacheTTL > 0 {
		l = NewCachedLookup(l, cfg.CacheTTL)
	}
	return l, nil
}

func notFound(op, msg string) error {
	return pipelineerr.New(pipelineerr.CodeValuationNotFound, op, msg, nil)
}

func transient(op, msg string, cause error) error {
	return pipelineerr.New(pipelineerr.CodeValuationTransient, op, msg, cause)
}

// throttled records a source-requested backoff.
type throttled struct {
	after time.Duration
}

func (t throttled) Error() string { return fmt.Sprintf("throttled, retry after %s", t.after) }

// RetryAfter returns the backoff requested by the source, if any.
func RetryAfter(err error) time.Duration {
	var t throttled
	if errors.As(err, &t) {
		return t.after
	}
	return 0
}

// pickRating applies the variant filter (case-insensitive substring over
// any column) and reads BV/PV from the first remaining row. A row with a
// missing or negative BV or PV yields no rating.
func pickRating(rows []map[string]any, variant string) (Result, bool) {
	v := strings.ToLower(strings.TrimSpace(variant))
	for _, row := range rows {
		if v != "" && !rowContains(row, v) {
			continue
		}
		var bv, pv *int
		for k, val := range row {
			switch strings.ToLower(strings.TrimSpace(k)) {
			case "bv":
				bv = parseIntLike(val)
			case "pv":
				pv = parseIntLike(val)
			}
		}
		// Ratings are non-negative; a negative cell is a bad row, not a rating.
		if bv == nil || pv == nil || *bv < 0 || *pv < 0 {
			return Result{}, false
		}
		return Result{BattleValue: *bv, PointValue: *pv}, true
	}
	return Result{}, false
}

func rowContains(row map[string]any, needle string) bool {
	for _, val := range row {
		if strings.Contains(strings.ToLower(fmt.Sprint(val)), needle) {
			return true
		}
	}
	return false
}

// parseIntLike accepts numbers and strings such as "2,340" or "55".
func parseIntLike(v any) *int {
	switch t := v.(type) {
	case float64:
		n := int(t)
		return &n
	case int:
		return &t
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(t), ",", "")
		if s == "" {
			return nil
		}
		if n, err := strconv.Atoi(s); err == nil {
			return &n
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			n := int(f)
			return &n
		}
	}
	return nil
}

// Throttled builds the transient error a source returns when it asks for a
// backoff. Adapters outside this package use it to report rate limits.
func Throttled(op string, after time.Duration) error {
	return transient(op, fmt.Sprintf("throttled for %s", after), throttled{after: after})
}
