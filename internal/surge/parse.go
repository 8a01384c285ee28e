package surge

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

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

// nodeOptions holds the recognized key=value tokens of a line. Later
// occurrences of a key override earlier ones.
type nodeOptions struct {
	encryptMethod string
	password      string
	obfs          string
	obfsHost      string
}

func scanOptions(parts []string) nodeOptions {
	var o nodeOptions
	for _, part := range parts {
		switch {
		case strings.HasPrefix(part, "encrypt-method="):
			o.encryptMethod = strings.TrimPrefix(part, "encrypt-method=")
		case strings.HasPrefix(part, "password="):
			o.password = strings.ReplaceAll(strings.TrimPrefix(part, "password="), `"`, "")
		case strings.HasPrefix(part, "obfs="):
			o.obfs = strings.TrimPrefix(part, "obfs=")
		case strings.HasPrefix(part, "obfs-host="):
			o.obfsHost = strings.TrimPrefix(part, "obfs-host=")
		}
		// Anything else (udp-relay=true, ecn=true, tfo=...) is vendor specific
		// and ignored on purpose.
	}
	return o
}

// splitLine separates "<name> = <fields>" and splits the field list.
func splitLine(trimmed string) (name string, parts []string, ok bool) {
	name, config, found := strings.Cut(trimmed, "=")
	if !found {
		return "", nil, false
	}
	name = strings.TrimSpace(name)
	raw := strings.Split(strings.TrimSpace(config), ",")
	parts = make([]string, len(raw))
	for i, p := range raw {
		parts[i] = strings.TrimSpace(p)
	}
	return name, parts, true
}

// ParseNode parses a single Surge proxy line:
//
//	<name> = ss, <server>, <port>, encrypt-method=<m>, password=<p>[, obfs=<mode>][, obfs-host=<host>]
//
// Any structural or validation failure rejects the whole line with a
// *ParseError; no partial node is returned.
func ParseNode(line string) (model.Node, error) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return model.Node{}, newParseError(trimmed, "节点配置不能为空", "")
	}

	name, parts, ok := splitLine(trimmed)
	if !ok {
		return model.Node{}, newParseError(trimmed, "配置格式错误：缺少等号分隔符", "expected: <name> = ss, <server>, <port>, ...")
	}
	if len(parts) < 4 {
		return model.Node{}, newParseError(trimmed, "配置参数不足：至少需要类型、服务器、端口和加密参数", "")
	}

	if model.ProtocolTag(parts[0]) != model.ProtocolSS {
		return model.Node{}, newParseError(trimmed, "不支持的代理类型：仅支持 shadowsocks (ss)", parts[0])
	}

	server := parts[1]
	if !IsValidServer(server) {
		return model.Node{}, newParseError(trimmed, "无效的服务器地址", server)
	}
	port, ok := parseLeadingInt(parts[2])
	if !ok || !IsValidPort(port) {
		return model.Node{}, newParseError(trimmed, "无效的端口号：端口必须在 1-65535 范围内", parts[2])
	}

	opts := scanOptions(parts[3:])

	cipher, ok := model.ParseCipher(opts.encryptMethod)
	if !ok {
		return model.Node{}, newParseError(trimmed, "不支持的加密方法", opts.encryptMethod)
	}
	if !IsValidPassword(opts.password) {
		return model.Node{}, newParseError(trimmed, "无效的密码：密码长度必须在 1-256 字符之间", "")
	}

	node := model.Node{
		Name:     name,
		Protocol: model.ProtocolSS,
		Server:   server,
		Port:     port,
		Cipher:   cipher,
		Password: opts.password,
	}
	if opts.obfs != "" {
		mode, ok := model.ParseObfsMode(opts.obfs)
		if !ok {
			return model.Node{}, newParseError(trimmed, "不支持的混淆方法", opts.obfs)
		}
		node.ObfsMode = mode
		// obfs-host only means something together with obfs.
		node.ObfsHost = opts.obfsHost
	}
	return node, nil
}

// ValidateNode reports every problem found on a line instead of stopping at
// the first one. An empty result means ParseNode accepts the line.
func ValidateNode(line string) []string {
	errs := make([]string, 0)

	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return append(errs, "配置不能为空")
	}
	_, parts, ok := splitLine(trimmed)
	if !ok {
		return append(errs, "配置格式错误：缺少等号分隔符")
	}
	if len(parts) < 4 {
		return append(errs, "配置参数不足：至少需要类型、服务器、端口和加密参数")
	}

	if model.ProtocolTag(parts[0]) != model.ProtocolSS {
		errs = append(errs, "不支持的代理类型：仅支持 shadowsocks (ss)")
	}
	if !IsValidServer(parts[1]) {
		errs = append(errs, "无效的服务器地址：请提供有效的域名或IP地址")
	}
	if port, ok := parseLeadingInt(parts[2]); !ok || !IsValidPort(port) {
		errs = append(errs, "无效的端口号：端口必须在 1-65535 范围内")
	}

	opts := scanOptions(parts[3:])
	switch {
	case opts.encryptMethod == "":
		errs = append(errs, "缺少加密方法参数")
	case !IsValidCipher(opts.encryptMethod):
		errs = append(errs, fmt.Sprintf("不支持的加密方法：%s。支持的方法：%s", opts.encryptMethod, joinCiphers()))
	}
	switch {
	case opts.password == "":
		errs = append(errs, "缺少密码参数")
	case !IsValidPassword(opts.password):
		errs = append(errs, "无效的密码：密码长度必须在 1-256 字符之间")
	}
	if opts.obfs != "" && !IsValidObfsMode(opts.obfs) {
		errs = append(errs, fmt.Sprintf("不支持的混淆方法：%s。支持的方法：%s", opts.obfs, joinObfsModes()))
	}
	if opts.obfsHost != "" && opts.obfs == "" {
		errs = append(errs, "提供了 obfs-host 但未指定 obfs 类型")
	}
	return errs
}

// parseLeadingInt reads an optional sign followed by decimal digits, or hex
// digits after a 0x prefix, and ignores whatever trails them ("8443abc" =>
// 8443, "0x50" => 80).
func parseLeadingInt(s string) (int, bool) {
	i := 0
	neg := false
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		neg = s[i] == '-'
		i++
	}
	base := 10
	if i+1 < len(s) && s[i] == '0' && (s[i+1] == 'x' || s[i+1] == 'X') {
		base = 16
		i += 2
	}
	start := i
	n := 0
	for ; i < len(s); i++ {
		d, ok := digitValue(s[i], base)
		if !ok {
			break
		}
		n = n*base + d
		if n > 1<<20 {
			// Far outside the port range already; stop before overflowing.
			return 0, false
		}
	}
	if i == start {
		return 0, false
	}
	if neg {
		n = -n
	}
	return n, true
}

func digitValue(c byte, base int) (int, bool) {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0'), true
	case base == 16 && c >= 'a' && c <= 'f':
		return int(c-'a') + 10, true
	case base == 16 && c >= 'A' && c <= 'F':
		return int(c-'A') + 10, true
	}
	return 0, false
}

func joinCiphers() string {
	return strings.Join(lo.Map(model.SupportedCiphers(), func(c model.Cipher, _ int) string { return string(c) }), ", ")
}

func joinObfsModes() string {
	return strings.Join(lo.Map(model.SupportedObfsModes(), func(m model.ObfsMode, _ int) string { return string(m) }), ", ")
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

func newParseError(line, message, hint string) error {
	return &ParseError{
		AppError: model.AppError{
			Code:    "NODE_PARSE_ERROR",
			Message: message,
			Stage:   "parse_node",
			Snippet: truncateSnippet(line, 200),
			Hint:    hint,
		},
	}
}
