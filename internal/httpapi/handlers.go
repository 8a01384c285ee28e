package httpapi

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/John-Robertt/surge2clash/internal/model"
	"github.com/John-Robertt/surge2clash/internal/render"
	"github.com/John-Robertt/surge2clash/internal/sub/ss"
	"github.com/John-Robertt/surge2clash/internal/surge"
	"github.com/John-Robertt/surge2clash/internal/tokencache"
)

type apiHandler struct {
	opt     Options
	cache   *tokencache.Cache
	limiter *ipLimiter // nil when rate limiting is off

	// redeems coalesces concurrent renders of the same token.
	redeems singleflight.Group
}

func newAPIHandler(opt Options) *apiHandler {
	opt = opt.withDefaults()
	h := &apiHandler{
		opt: opt,
		cache: tokencache.New(tokencache.Options{
			TTL:           opt.TokenTTL,
			SweepInterval: opt.TokenSweepInterval,
			Now:           opt.Now,
		}),
	}
	if opt.RateLimitRPS > 0 {
		h.limiter = newIPLimiter(opt.RateLimitRPS, opt.RateLimitBurst, opt.RateLimitIdleTTL, opt.Now)
	}
	return h
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	WriteText(w, http.StatusOK, "ok\n")
}

type parseRequestJSON struct {
	Input string `json:"input"`
}

type parseResponse struct {
	surge.Outcome
	SSURLs []string `json:"ssUrls"`
}

// handleParse accepts raw Surge text, or {"input": "..."} when the body is
// declared as JSON.
func (h *apiHandler) handleParse(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.opt.MaxBodyBytes)

	var input string
	if isJSON(r) {
		var body parseRequestJSON
		if err := decodeJSONStrict(r.Body, &body); err != nil {
			writeErrorFromErr(w, err)
			return
		}
		input = body.Input
	} else {
		b, err := io.ReadAll(r.Body)
		if err != nil {
			writeErrorFromErr(w, bodyError(err, "读取请求体失败"))
			return
		}
		input = string(b)
	}

	out := surge.ParseNodes(input)
	WriteJSON(w, http.StatusOK, parseResponse{
		Outcome: out,
		SSURLs:  ss.EncodeURIs(out.Success),
	})
}

type validateRequestJSON struct {
	Line string `json:"line"`
}

type validateResponse struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

func (h *apiHandler) handleValidate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.opt.MaxBodyBytes)

	var body validateRequestJSON
	if err := decodeJSONStrict(r.Body, &body); err != nil {
		writeErrorFromErr(w, err)
		return
	}
	errs := surge.ValidateNode(body.Line)
	WriteJSON(w, http.StatusOK, validateResponse{Valid: len(errs) == 0, Errors: errs})
}

type ciphersResponse struct {
	Ciphers []model.Cipher   `json:"ciphers"`
	Obfs    []model.ObfsMode `json:"obfs"`
}

func handleCiphers(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, ciphersResponse{
		Ciphers: model.SupportedCiphers(),
		Obfs:    model.SupportedObfsModes(),
	})
}

type clashRequestJSON struct {
	Proxies []render.ClashProxy `json:"proxies"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

// handleCreateToken stores a proxy list and answers with a short-lived token
// that GET /api/clash?t= redeems.
func (h *apiHandler) handleCreateToken(w http.ResponseWriter, r *http.Request) {
	setCORS(w, "GET, POST, OPTIONS")

	if h.limiter != nil && !h.limiter.allow(clientIP(r)) {
		metricsIncRateLimited()
		writeErrorFromErr(w, apiError(http.StatusTooManyRequests, model.AppError{
			Code:    "RATE_LIMITED",
			Message: "请求过于频繁，请稍后再试",
			Stage:   "validate_request",
		}, nil))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.opt.MaxBodyBytes)
	var body clashRequestJSON
	if err := decodeJSONStrict(r.Body, &body); err != nil {
		writeErrorFromErr(w, err)
		return
	}
	if len(body.Proxies) == 0 {
		writeErrorFromErr(w, requestError("INVALID_ARGUMENT", "proxies 不能为空", `expected: {"proxies": [...]}`))
		return
	}
	if err := render.ValidateProxies(body.Proxies); err != nil {
		writeErrorFromErr(w, err)
		return
	}

	payload, err := json.Marshal(body.Proxies)
	if err != nil {
		writeErrorFromErr(w, err)
		return
	}
	token, err := h.cache.Put(string(payload))
	if err != nil {
		writeErrorFromErr(w, err)
		return
	}
	metricsIncTokenIssued()
	WriteJSON(w, http.StatusOK, tokenResponse{Token: token})
}

// handleClash renders a Clash document from either a token (?t=) or the
// legacy inline payload (?proxies=<base64 JSON>).
func (h *apiHandler) handleClash(w http.ResponseWriter, r *http.Request) {
	setCORS(w, "GET, POST, OPTIONS")

	q := r.URL.Query()
	for key := range q {
		switch key {
		case "t", "proxies", "fileName":
		default:
			writeErrorFromErr(w, requestError("INVALID_ARGUMENT", fmt.Sprintf("不支持的 query 参数：%s", key), ""))
			return
		}
	}

	token, err := singleQuery(q, "t", false)
	if err != nil {
		writeErrorFromErr(w, err)
		return
	}
	inline, err := singleQuery(q, "proxies", false)
	if err != nil {
		writeErrorFromErr(w, err)
		return
	}
	fileName, err := singleQuery(q, "fileName", false)
	if err != nil {
		writeErrorFromErr(w, err)
		return
	}

	var doc string
	switch {
	case token != "" && inline != "":
		err = requestError("INVALID_ARGUMENT", "t 与 proxies 只能二选一", "")
	case token != "":
		doc, err = h.redeem(token)
	case inline != "":
		doc, err = renderInline(inline)
	default:
		err = requestError("INVALID_ARGUMENT", "缺少 t 或 proxies 参数", "expected: t=<token>")
	}
	if err != nil {
		writeErrorFromErr(w, err)
		return
	}

	if err := setAttachmentHeaders(w, fileName, ".yaml"); err != nil {
		writeErrorFromErr(w, err)
		return
	}
	WriteText(w, http.StatusOK, doc)
}

func (h *apiHandler) redeem(token string) (string, error) {
	v, err, _ := h.redeems.Do(token, func() (any, error) {
		payload, ok := h.cache.Get(token)
		metricsIncCacheLookup(ok)
		if !ok {
			return "", errTokenNotFound
		}
		var proxies []render.ClashProxy
		if err := json.Unmarshal([]byte(payload), &proxies); err != nil {
			return "", fmt.Errorf("decode cached payload: %w", err)
		}
		return render.BuildClash(proxies), nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func renderInline(b64 string) (string, error) {
	raw, err := decodeB64(b64)
	if err != nil {
		return "", requestError("INVALID_ARGUMENT", "proxies 参数 base64 解码失败", err.Error())
	}
	var proxies []render.ClashProxy
	if err := json.Unmarshal(raw, &proxies); err != nil {
		return "", requestError("INVALID_ARGUMENT", "proxies 参数 JSON 解析失败", err.Error())
	}
	if len(proxies) == 0 {
		return "", requestError("INVALID_ARGUMENT", "proxies 不能为空", "")
	}
	if err := render.ValidateProxies(proxies); err != nil {
		return "", err
	}
	return render.BuildClash(proxies), nil
}

func handleClashPreflight(w http.ResponseWriter, r *http.Request) {
	setCORS(w, "GET, POST, OPTIONS")
	w.WriteHeader(http.StatusNoContent)
}

// handleSubscription echoes a newline-separated ss:// list back as a
// subscription body. Lines that do not decode as ss:// URIs are rejected;
// anything EncodeURI produces decodes.
func handleSubscription(w http.ResponseWriter, r *http.Request) {
	setCORS(w, "GET")

	q := r.URL.Query()
	urls, err := singleQuery(q, "urls", true)
	if err != nil {
		writeErrorFromErr(w, err)
		return
	}

	lines := make([]string, 0)
	for _, line := range strings.Split(urls, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if _, err := ss.ParseURI(line); err != nil {
			writeErrorFromErr(w, err)
			return
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		writeErrorFromErr(w, requestError("INVALID_ARGUMENT", "urls 不能为空", "expected: urls=<ss://...>"))
		return
	}
	WriteText(w, http.StatusOK, strings.Join(lines, "\n"))
}

func isJSON(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "application/json"
}

func decodeJSONStrict(body io.Reader, out any) error {
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return bodyError(err, "JSON body 解析失败")
	}
	var extra any
	if err := dec.Decode(&extra); err == nil {
		return requestError("INVALID_ARGUMENT", "JSON body 不允许多段", "")
	} else if !errors.Is(err, io.EOF) {
		return bodyError(err, "JSON body 解析失败")
	}
	return nil
}

func decodeB64(s string) ([]byte, error) {
	// Clients differ on alphabet and padding; a '+' may also arrive as ' '
	// when the parameter was not percent-encoded.
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "+")
	encodings := []*base64.Encoding{
		base64.StdEncoding,
		base64.URLEncoding,
		base64.RawStdEncoding,
		base64.RawURLEncoding,
	}
	var lastErr error
	for _, enc := range encodings {
		b, err := enc.DecodeString(s)
		if err == nil {
			return b, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func singleQuery(q url.Values, key string, required bool) (string, error) {
	values, ok := q[key]
	if !ok || len(values) == 0 {
		if required {
			return "", requestError("INVALID_ARGUMENT", fmt.Sprintf("缺少 %s 参数", key), "")
		}
		return "", nil
	}
	if len(values) != 1 {
		return "", requestError("INVALID_ARGUMENT", fmt.Sprintf("%s 参数只能出现一次", key), "")
	}
	return values[0], nil
}
