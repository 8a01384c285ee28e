package render

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/John-Robertt/surge2clash/internal/model"
)

type RenderError struct {
	AppError model.AppError
	Cause    error
}

func (e *RenderError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *RenderError) Unwrap() error { return e.Cause }

// ValidateProxies checks proxy records that came from outside (request
// payloads, the token cache) before they are rendered. Records built by
// ProxyFromNode always pass.
func ValidateProxies(proxies []ClashProxy) error {
	if len(proxies) == 0 {
		return invalidProxy("proxies 不能为空", "")
	}
	for _, p := range proxies {
		if p.Type != string(model.ProtocolSS) {
			return invalidProxy("仅支持 ss 节点渲染", p.Type)
		}
		if strings.TrimSpace(p.Name) == "" {
			return invalidProxy("节点名称不能为空", p.Server)
		}
		if field, ok := controlField(p); ok {
			return invalidProxy(fmt.Sprintf("%s 包含非法控制字符", field), p.Server)
		}
		if strings.TrimSpace(p.Server) == "" {
			return invalidProxy("server 不能为空", p.Name)
		}
		if p.Port < 1 || p.Port > 65535 {
			return invalidProxy("port 必须在 1-65535 范围内", p.Name)
		}
		if p.Cipher == "" || p.Password == "" {
			return invalidProxy("cipher 或 password 不能为空", p.Name)
		}
		if p.Plugin != "" && p.Plugin != "obfs" {
			return &RenderError{
				AppError: model.AppError{
					Code:    "UNSUPPORTED_PLUGIN",
					Message: fmt.Sprintf("不支持的 SS plugin：%s", p.Plugin),
					Stage:   "render",
					Snippet: p.Name,
				},
			}
		}
	}
	return nil
}

func invalidProxy(message, snippet string) error {
	return &RenderError{
		AppError: model.AppError{
			Code:    "INVALID_ARGUMENT",
			Message: message,
			Stage:   "render",
			Snippet: snippet,
		},
	}
}

// controlField reports the first emitted field carrying a control character.
// Tabs are kept: the quoting path escapes them.
func controlField(p ClashProxy) (string, bool) {
	fields := [][2]string{
		{"name", p.Name},
		{"type", p.Type},
		{"server", p.Server},
		{"cipher", p.Cipher},
		{"password", p.Password},
		{"client-fingerprint", p.ClientFingerprint},
	}
	if p.PluginOpts != nil {
		fields = append(fields, [2]string{"plugin-opts.mode", p.PluginOpts.Mode}, [2]string{"plugin-opts.host", p.PluginOpts.Host})
	}
	for _, f := range fields {
		if strings.ContainsFunc(f[1], func(r rune) bool { return r != '\t' && unicode.IsControl(r) }) {
			return f[0], true
		}
	}
	return "", false
}
