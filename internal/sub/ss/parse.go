package ss

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/John-Robertt/surge2clash/internal/model"
)

type ParseError struct {
	AppError model.AppError
	Cause    error
}

func (e *ParseError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *ParseError) Unwrap() error { return e.Cause }

// ParseURI decodes an ss:// URI produced by EncodeURI (or any SIP002 /
// legacy base64 URI using a supported cipher) back into a node.
//
// Supported forms:
//
//	ss://<b64(method:password)>@<host>:<port>[/][?plugin=...][#name]
//	ss://<b64(method:password@host:port)>[#name]
//
// EncodeURI escapes the name but writes the obfs host verbatim, so the name
// starts after the last '#' and the plugin value runs from "plugin=" to
// there. An obfs host that carries valid percent-escapes of its own comes
// back decoded.
func ParseURI(s string) (model.Node, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "ss://") {
		return model.Node{}, newParseError(s, "SUB_UNSUPPORTED_SCHEME", "仅支持 ss:// 协议", "expected: ss://...", nil)
	}

	withoutFrag, frag, hasFrag := s, "", false
	if i := strings.LastIndexByte(s, '#'); i >= 0 {
		withoutFrag, frag, hasFrag = s[:i], s[i+1:], true
	}
	name := ""
	if hasFrag {
		decoded, err := url.PathUnescape(frag)
		if err != nil {
			return model.Node{}, newParseError(s, "SUB_PARSE_ERROR", "节点名称 URL 解码失败", "", err)
		}
		name = strings.TrimSpace(decoded)
		if strings.ContainsAny(name, "\r\n\x00") {
			return model.Node{}, newParseError(s, "SUB_PARSE_ERROR", "节点名称包含非法控制字符", "forbidden: \\r \\n \\0", nil)
		}
	}

	withoutQuery, query, hasQuery := strings.Cut(withoutFrag, "?")
	mode, host, err := parseQueryPlugin(query, hasQuery, s)
	if err != nil {
		return model.Node{}, err
	}

	rest := strings.TrimPrefix(withoutQuery, "ss://")
	if rest == "" {
		return model.Node{}, newParseError(s, "SUB_PARSE_ERROR", "ss:// 后缺少内容", "", nil)
	}

	var method, password, hostPort string
	if userB64, hostPart, ok := strings.Cut(rest, "@"); ok {
		// Form A: credential in base64, authority in clear text.
		if userB64 == "" || hostPart == "" {
			return model.Node{}, newParseError(s, "SUB_PARSE_ERROR", "ss uri 格式不合法", "", nil)
		}
		hostPort = hostPart
		if idx := strings.IndexByte(hostPort, '/'); idx >= 0 {
			// Only allow empty path or a single trailing "/".
			if hostPort[idx:] != "/" {
				return model.Node{}, newParseError(s, "SUB_PARSE_ERROR", "ss uri path 不支持（仅允许空或 /）", "", nil)
			}
			hostPort = hostPort[:idx]
		}
		decoded, err := decodeB64ToString(userB64)
		if err != nil {
			return model.Node{}, newParseError(s, "SUB_PARSE_ERROR", "ss userinfo base64 解码失败", "", err)
		}
		method, password, err = splitMethodPassword(decoded)
		if err != nil {
			return model.Node{}, newParseError(s, "SUB_PARSE_ERROR", "ss userinfo 缺少 cipher:password", "", err)
		}
	} else {
		// Form B: everything inside base64.
		decoded, err := decodeB64ToString(strings.TrimSuffix(rest, "/"))
		if err != nil {
			return model.Node{}, newParseError(s, "SUB_PARSE_ERROR", "ss base64 解码失败", "", err)
		}
		at := strings.LastIndex(decoded, "@")
		if at < 0 {
			return model.Node{}, newParseError(s, "SUB_PARSE_ERROR", "ss base64 解码结果缺少 @ 分隔符", "", nil)
		}
		method, password, err = splitMethodPassword(decoded[:at])
		if err != nil {
			return model.Node{}, newParseError(s, "SUB_PARSE_ERROR", "ss base64 解码结果缺少 cipher:password", "", err)
		}
		hostPort = decoded[at+1:]
	}

	cipher, ok := model.ParseCipher(method)
	if !ok {
		return model.Node{}, newParseError(s, "SUB_PARSE_ERROR", "不支持的加密方法", method, nil)
	}
	server, port, err := parseHostPort(hostPort)
	if err != nil {
		return model.Node{}, newParseError(s, "SUB_PARSE_ERROR", "服务器地址或端口不合法", "", err)
	}

	return model.Node{
		Name:     name,
		Protocol: model.ProtocolSS,
		Server:   server,
		Port:     port,
		Cipher:   cipher,
		Password: password,
		ObfsMode: mode,
		ObfsHost: host,
	}, nil
}

// parseQueryPlugin extracts the obfs mode/host from "plugin=obfs-local;obfs=...".
//
// The plugin value is taken raw up to the end of the query: net/url would
// split it on '&' and reject stray '%' found in a verbatim obfs host.
func parseQueryPlugin(query string, hasQuery bool, fullLine string) (model.ObfsMode, string, error) {
	if !hasQuery || query == "" {
		return "", "", nil
	}
	raw, ok := strings.CutPrefix(query, "plugin=")
	if !ok {
		return "", "", newParseError(fullLine, "SUB_PARSE_ERROR", "出现未知 query 参数（仅支持 plugin）", "only allow: plugin", nil)
	}
	pluginValue := unescapeLenient(raw)

	segs := strings.Split(pluginValue, ";")
	pluginName := strings.TrimSpace(segs[0])
	if pluginName != "obfs-local" && pluginName != "simple-obfs" {
		return "", "", newParseError(fullLine, "UNSUPPORTED_PLUGIN", fmt.Sprintf("不支持的 SS plugin：%s", pluginName), "supported: obfs-local, simple-obfs", nil)
	}

	var modeRaw, host string
	last := ""
	for _, seg := range segs[1:] {
		if seg == "" {
			continue
		}
		k, v, ok := strings.Cut(seg, "=")
		if !ok {
			// A bare segment after obfs-host is a ';' inside the host.
			if last != "obfs-host" {
				return "", "", newParseError(fullLine, "SUB_PARSE_ERROR", "plugin 选项必须是 k=v 形式", "", nil)
			}
			host = strings.TrimSpace(host + ";" + seg)
			continue
		}
		last = strings.TrimSpace(k)
		switch last {
		case "obfs":
			modeRaw = strings.TrimSpace(v)
		case "obfs-host":
			host = strings.TrimSpace(v)
		}
	}
	mode, ok := model.ParseObfsMode(modeRaw)
	if !ok {
		return "", "", newParseError(fullLine, "UNSUPPORTED_PLUGIN", "obfs-local 缺少合法的 obfs=<mode>", "example: ?plugin=obfs-local;obfs=http;obfs-host=example.com", nil)
	}
	return mode, host, nil
}

// unescapeLenient decodes %XX escapes and keeps any '%' that does not start
// a valid one.
func unescapeLenient(s string) string {
	if v, err := url.PathUnescape(s); err == nil {
		return v
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]) {
			b.WriteByte(unhex(s[i+1])<<4 | unhex(s[i+2]))
			i += 2
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

func unhex(c byte) byte {
	switch {
	case c >= 'a':
		return c - 'a' + 10
	case c >= 'A':
		return c - 'A' + 10
	}
	return c - '0'
}

// parseHostPort accepts "host:port", "[v6]:port" and the unbracketed
// "v6:port" found inside legacy base64 blocks.
func parseHostPort(s string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		i := strings.LastIndexByte(s, ':')
		if i <= 0 {
			return "", 0, err
		}
		host, portStr = s[:i], s[i+1:]
	}
	host = strings.TrimSpace(host)
	if host == "" {
		return "", 0, errors.New("empty host")
	}
	portInt, err := strconv.Atoi(strings.TrimSpace(portStr))
	if err != nil {
		return "", 0, err
	}
	if portInt < 1 || portInt > 65535 {
		return "", 0, errors.New("port out of range")
	}
	return host, portInt, nil
}

func splitMethodPassword(decoded string) (string, string, error) {
	if !utf8.ValidString(decoded) {
		return "", "", errors.New("decoded method:password is not valid utf-8")
	}
	method, password, ok := strings.Cut(decoded, ":")
	if !ok || method == "" {
		return "", "", errors.New("missing ':'")
	}
	if password == "" {
		return "", "", errors.New("empty password")
	}
	if strings.ContainsAny(method, "\r\n\x00") || strings.ContainsAny(password, "\r\n\x00") {
		return "", "", errors.New("control chars in method/password")
	}
	return method, password, nil
}

func decodeB64ToString(s string) (string, error) {
	// Try standard alphabet (with padding) first, then URL-safe, then raw (no padding).
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
			return string(b), nil
		}
		lastErr = err
	}
	return "", lastErr
}

func truncateSnippet(s string, max int) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", "")
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func newParseError(line, code, message, hint string, cause error) error {
	return &ParseError{
		AppError: model.AppError{
			Code:    code,
			Message: message,
			Stage:   "parse_uri",
			Snippet: truncateSnippet(line, 200),
			Hint:    hint,
		},
		Cause: cause,
	}
}
