package httpx

import (
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Disposition is what a client should do with a response status.
type Disposition int

const (
	Accept  Disposition = iota // 2xx
	Missing                    // the resource does not exist
	Retry                      // try again later
	Reject                     // any other client error
)

// Classify maps an HTTP status code to a Disposition.
func Classify(code int) Disposition {
	switch {
	case code >= 200 && code <= 299:
		return Accept
	case code == http.StatusNotFound, code == http.StatusGone:
		return Missing
	case code == http.StatusRequestTimeout, code == http.StatusTooEarly, code == http.StatusTooManyRequests:
		return Retry
	case code >= 500 && code <= 599:
		return Retry
	default:
		return Reject
	}
}

// RetryAfter reads a Retry-After header given either in seconds or as an
// HTTP date. It returns zero when the header is absent or unparsable and
// never more than max when max is positive.
func RetryAfter(h http.Header, now time.Time, max time.Duration) time.Duration {
	ra := strings.TrimSpace(h.Get("Retry-After"))
	if ra == "" {
		return 0
	}
	var d time.Duration
	if secs, err := strconv.Atoi(ra); err == nil {
		d = time.Duration(secs) * time.Second
	} else if at, err := http.ParseTime(ra); err == nil {
		d = at.Sub(now)
	}
	if d < 0 {
		d = 0
	}
	if max > 0 && d > max {
		d = max
	}
	return d
}

// JitterSleep spreads base by +/-20% so idle pollers do not wake together.
func JitterSleep(base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	spread := float64(base) * 0.4
	return base - time.Duration(spread/2) + time.Duration(rand.Float64()*spread)
}
