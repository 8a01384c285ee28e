package httpapi

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// metricsStore holds a handful of process-wide counters rendered in the
// Prometheus text format.
type metricsStore struct {
	mu sync.Mutex

	httpRequestsTotal uint64
	httpByPattern     map[reqKey]uint64

	appErrors map[errKey]uint64

	tokensIssued uint64
	cacheHits    uint64
	cacheMisses  uint64
	rateLimited  uint64
}

type reqKey struct {
	Pattern string
	Status  int
}

type errKey struct {
	Stage string
	Code  string
}

func newMetricsStore() *metricsStore {
	return &metricsStore{
		httpByPattern: make(map[reqKey]uint64),
		appErrors:     make(map[errKey]uint64),
	}
}

var metrics = newMetricsStore()

func metricsIncRequest(pattern string, status int) {
	if status == 0 {
		status = http.StatusOK
	}
	if pattern == "" {
		pattern = "(unknown)"
	}

	metrics.mu.Lock()
	metrics.httpRequestsTotal++
	metrics.httpByPattern[reqKey{Pattern: pattern, Status: status}]++
	metrics.mu.Unlock()
}

func metricsIncAppError(stage, code string) {
	stage = strings.TrimSpace(stage)
	code = strings.TrimSpace(code)
	if stage == "" {
		stage = "(unknown)"
	}
	if code == "" {
		code = "(unknown)"
	}

	metrics.mu.Lock()
	metrics.appErrors[errKey{Stage: stage, Code: code}]++
	metrics.mu.Unlock()
}

func metricsIncTokenIssued() {
	metrics.mu.Lock()
	metrics.tokensIssued++
	metrics.mu.Unlock()
}

func metricsIncCacheLookup(hit bool) {
	metrics.mu.Lock()
	if hit {
		metrics.cacheHits++
	} else {
		metrics.cacheMisses++
	}
	metrics.mu.Unlock()
}

func metricsIncRateLimited() {
	metrics.mu.Lock()
	metrics.rateLimited++
	metrics.mu.Unlock()
}

type reqMetric struct {
	reqKey
	N uint64
}

type errMetric struct {
	errKey
	N uint64
}

type snapshot struct {
	httpTotal    uint64
	reqs         []reqMetric
	errs         []errMetric
	tokensIssued uint64
	cacheHits    uint64
	cacheMisses  uint64
	rateLimited  uint64
}

func metricsSnapshot() snapshot {
	metrics.mu.Lock()
	defer metrics.mu.Unlock()

	s := snapshot{
		httpTotal:    metrics.httpRequestsTotal,
		tokensIssued: metrics.tokensIssued,
		cacheHits:    metrics.cacheHits,
		cacheMisses:  metrics.cacheMisses,
		rateLimited:  metrics.rateLimited,
	}

	s.reqs = make([]reqMetric, 0, len(metrics.httpByPattern))
	for k, n := range metrics.httpByPattern {
		s.reqs = append(s.reqs, reqMetric{reqKey: k, N: n})
	}
	s.errs = make([]errMetric, 0, len(metrics.appErrors))
	for k, n := range metrics.appErrors {
		s.errs = append(s.errs, errMetric{errKey: k, N: n})
	}

	sort.Slice(s.reqs, func(i, j int) bool {
		if s.reqs[i].Pattern != s.reqs[j].Pattern {
			return s.reqs[i].Pattern < s.reqs[j].Pattern
		}
		return s.reqs[i].Status < s.reqs[j].Status
	})
	sort.Slice(s.errs, func(i, j int) bool {
		if s.errs[i].Stage != s.errs[j].Stage {
			return s.errs[i].Stage < s.errs[j].Stage
		}
		return s.errs[i].Code < s.errs[j].Code
	})
	return s
}

// handleMetrics sweeps expired tokens first so the cache gauge only counts
// redeemable entries.
func (h *apiHandler) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")

	h.cache.Sweep()
	live := h.cache.Len()
	s := metricsSnapshot()

	var b strings.Builder

	writeCounter(&b, "surge2clash_http_requests_total", "Total HTTP requests.", s.httpTotal)

	b.WriteString("# HELP surge2clash_http_requests_by_pattern_total HTTP requests by ServeMux pattern and status.\n")
	b.WriteString("# TYPE surge2clash_http_requests_by_pattern_total counter\n")
	for _, m := range s.reqs {
		b.WriteString("surge2clash_http_requests_by_pattern_total{pattern=\"")
		b.WriteString(promLabelEscape(m.Pattern))
		b.WriteString("\",status=\"")
		b.WriteString(strconv.Itoa(m.Status))
		b.WriteString("\"} ")
		b.WriteString(strconv.FormatUint(m.N, 10))
		b.WriteByte('\n')
	}

	b.WriteString("# HELP surge2clash_app_errors_total Application errors returned to clients.\n")
	b.WriteString("# TYPE surge2clash_app_errors_total counter\n")
	for _, m := range s.errs {
		b.WriteString("surge2clash_app_errors_total{stage=\"")
		b.WriteString(promLabelEscape(m.Stage))
		b.WriteString("\",code=\"")
		b.WriteString(promLabelEscape(m.Code))
		b.WriteString("\"} ")
		b.WriteString(strconv.FormatUint(m.N, 10))
		b.WriteByte('\n')
	}

	writeCounter(&b, "surge2clash_tokens_issued_total", "Tokens issued by POST /api/clash.", s.tokensIssued)
	writeCounter(&b, "surge2clash_token_cache_hits_total", "Token redeems that found a live entry.", s.cacheHits)
	writeCounter(&b, "surge2clash_token_cache_misses_total", "Token redeems for unknown or expired tokens.", s.cacheMisses)
	writeCounter(&b, "surge2clash_rate_limited_total", "Token creations rejected by the per-IP limiter.", s.rateLimited)

	b.WriteString("# HELP surge2clash_token_cache_entries Live tokens held by the cache.\n")
	b.WriteString("# TYPE surge2clash_token_cache_entries gauge\n")
	b.WriteString("surge2clash_token_cache_entries " + strconv.Itoa(live) + "\n")

	_, _ = fmt.Fprint(w, b.String())
}

func writeCounter(b *strings.Builder, name, help string, v uint64) {
	b.WriteString("# HELP " + name + " " + help + "\n")
	b.WriteString("# TYPE " + name + " counter\n")
	b.WriteString(name + " " + strconv.FormatUint(v, 10) + "\n")
}

func promLabelEscape(s string) string {
	// Prometheus label value escaping: backslash and double quote.
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}
