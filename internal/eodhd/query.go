package eodhd

import (
	"net/url"
	"strconv"
	"time"
)

const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02 15:04:05"
)

// QueryOption narrows a market data request.
type QueryOption func(*query)

type query struct {
	from, to time.Time
	period   string // d, w, m
	order    string // a, d
	limit    int
}

func newQuery(defaults query, opts []QueryOption) query {
	q := defaults
	for _, opt := range opts {
		opt(&q)
	}
	return q
}

// values renders only the fields that were set.
func (q query) values() url.Values {
	v := url.Values{}
	if !q.from.IsZero() {
		v.Set("from", q.from.Format(dateLayout))
	}
	if !q.to.IsZero() {
		v.Set("to", q.to.Format(dateLayout))
	}
	if q.period != "" {
		v.Set("period", q.period)
	}
	if q.order != "" {
		v.Set("order", q.order)
	}
	if q.limit > 0 {
		v.Set("limit", strconv.Itoa(q.limit))
	}
	return v
}

// WithDateRange limits results to [from, to].
func WithDateRange(from, to time.Time) QueryOption {
	return func(q *query) {
		q.from, q.to = from, to
	}
}

// WithPeriod selects bar size: d, w or m.
func WithPeriod(period string) QueryOption {
	return func(q *query) { q.period = period }
}

// WithOrder selects a (ascending) or d (descending).
func WithOrder(order string) QueryOption {
	return func(q *query) { q.order = order }
}

// WithLimit caps the number of results.
func WithLimit(limit int) QueryOption {
	return func(q *query) { q.limit = limit }
}
