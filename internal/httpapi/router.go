package httpapi

import "net/http"

func NewMuxWithOptions(opt Options) *http.ServeMux {
	h := newAPIHandler(opt)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /metrics", h.handleMetrics)
	mux.HandleFunc("POST /api/parse", h.handleParse)
	mux.HandleFunc("POST /api/validate", h.handleValidate)
	mux.HandleFunc("GET /api/ciphers", handleCiphers)
	mux.HandleFunc("POST /api/clash", h.handleCreateToken)
	mux.HandleFunc("GET /api/clash", h.handleClash)
	mux.HandleFunc("OPTIONS /api/clash", handleClashPreflight)
	mux.HandleFunc("GET /api/subscription", handleSubscription)
	return mux
}
