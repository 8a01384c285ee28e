package render

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/samber/lo"

	"github.com/John-Robertt/surge2clash/internal/model"
)

// ClashProxy is one entry of the Clash "proxies" list. The JSON shape is the
// one accepted by POST /api/clash and the legacy ?proxies= parameter.
type ClashProxy struct {
	Name              string      `json:"name"`
	Type              string      `json:"type"`
	Server            string      `json:"server"`
	Port              int         `json:"port"`
	Cipher            string      `json:"cipher"`
	Password          string      `json:"password"`
	UDP               bool        `json:"udp,omitempty"`
	Plugin            string      `json:"plugin,omitempty"`
	PluginOpts        *PluginOpts `json:"plugin-opts,omitempty"`
	ClientFingerprint string      `json:"client-fingerprint,omitempty"`
	TFO               bool        `json:"tfo,omitempty"`
}

type PluginOpts struct {
	Mode string `json:"mode,omitempty"`
	Host string `json:"host,omitempty"`
}

const (
	defaultClientFingerprint = "chrome"
	healthCheckURL           = "http://www.gstatic.com/generate_204"

	groupLoadBalance = "负载均衡"
	groupAutoSelect  = "自动选择"
	groupSelect      = "🌍选择代理"
)

// ProxyFromNode adapts a parsed node. Only http and tls obfs become a Clash
// obfs plugin; "plain" obfs is dropped.
func ProxyFromNode(n model.Node) ClashProxy {
	p := ClashProxy{
		Name:     n.Name,
		Type:     string(model.ProtocolSS),
		Server:   n.Server,
		Port:     n.Port,
		Cipher:   string(n.Cipher),
		Password: n.Password,
		UDP:      true,
	}
	if n.ObfsMode == model.ObfsHTTP || n.ObfsMode == model.ObfsTLS {
		p.Plugin = "obfs"
		p.PluginOpts = &PluginOpts{Mode: string(n.ObfsMode), Host: n.ObfsHost}
	}
	return p
}

func ProxiesFromNodes(nodes []model.Node) []ClashProxy {
	return lo.Map(nodes, func(n model.Node, _ int) ClashProxy { return ProxyFromNode(n) })
}

var preamble = []string{
	"port: 7890",
	"allow-lan: true",
	"mode: rule",
	"log-level: info",
	"unified-delay: true",
	"global-client-fingerprint: chrome",
	"dns:",
	"  enable: true",
	"  listen: :53",
	"  ipv6: true",
	"  enhanced-mode: fake-ip",
	"  fake-ip-range: 198.18.0.1/16",
	"  default-nameserver:",
	"    - 223.5.5.5",
	"    - 114.114.114.114",
	"    - 8.8.8.8",
	"  nameserver:",
	"    - https://dns.alidns.com/dns-query",
	"    - https://doh.pub/dns-query",
	"  fallback:",
	"    - https://1.0.0.1/dns-query",
	"    - tls://dns.google",
	"  fallback-filter:",
	"    geoip: true",
	"    geoip-code: CN",
	"    ipcidr:",
	"      - 240.0.0.0/4",
	"",
}

var rules = []model.Rule{
	{Type: "GEOIP", Value: "LAN", Action: "DIRECT"},
	{Type: "GEOIP", Value: "CN", Action: "DIRECT"},
	{Type: "MATCH", Action: groupSelect},
}

// BuildClash renders the full Clash document. Only the proxies list and the
// group member lists depend on the input; everything else is fixed and must
// stay byte-for-byte stable for the client.
func BuildClash(proxies []ClashProxy) string {
	names := lo.Map(proxies, func(p ClashProxy, _ int) string { return p.Name })

	lines := make([]string, 0, len(preamble)+len(proxies)*4+32)
	lines = append(lines, preamble...)

	lines = append(lines, "# 根据解析出的节点动态生成", "proxies:")
	if len(proxies) == 0 {
		lines = append(lines, "  []")
	}
	for _, p := range proxies {
		lines = append(lines, proxyLine(p))
	}
	lines = append(lines, "", "proxy-groups:")

	members := names
	if len(members) == 0 {
		members = []string{"DIRECT"}
	}
	lines = appendGroup(lines, model.Group{
		Name:        groupLoadBalance,
		Type:        "load-balance",
		Members:     members,
		TestURL:     healthCheckURL,
		IntervalSec: 300,
	}, false)
	lines = append(lines, "")
	lines = appendGroup(lines, model.Group{
		Name:         groupAutoSelect,
		Type:         "url-test",
		Members:      members,
		TestURL:      healthCheckURL,
		IntervalSec:  300,
		ToleranceMS:  50,
		HasTolerance: true,
	}, false)
	lines = append(lines, "")
	lines = appendGroup(lines, model.Group{
		Name:    groupSelect,
		Type:    "select",
		Members: append([]string{groupLoadBalance, groupAutoSelect, "DIRECT"}, names...),
	}, true)
	if len(names) == 0 {
		// The selector's node block is still emitted when there are no nodes,
		// as an empty line.
		lines = append(lines, "")
	}
	lines = append(lines, "", "rules:")
	for _, r := range rules {
		lines = append(lines, "  - "+ruleToClashString(r))
	}
	lines = append(lines, "")

	return strings.Join(lines, "\n")
}

func appendGroup(lines []string, g model.Group, quoteName bool) []string {
	name := g.Name
	if quoteName {
		name = jsonQuote(name)
	}
	lines = append(lines, "- name: "+name, "  type: "+g.Type)
	if g.TestURL != "" {
		lines = append(lines, "  url: "+g.TestURL, "  interval: "+strconv.Itoa(g.IntervalSec))
	}
	if g.HasTolerance {
		lines = append(lines, "  tolerance: "+strconv.Itoa(g.ToleranceMS))
	}
	lines = append(lines, "  proxies:")
	for _, m := range g.Members {
		lines = append(lines, "    - "+escapeYAML(m))
	}
	return lines
}

// proxyLine renders one proxy as an inline map list item. Field order is
// fixed.
func proxyLine(p ClashProxy) string {
	fingerprint := p.ClientFingerprint
	if fingerprint == "" {
		fingerprint = defaultClientFingerprint
	}

	fields := []string{
		"name: " + escapeYAML(p.Name),
		"server: " + escapeYAML(p.Server),
		"port: " + escapeYAML(strconv.Itoa(p.Port)),
		"client-fingerprint: " + escapeYAML(fingerprint),
		"type: " + escapeYAML(p.Type),
		"cipher: " + escapeYAML(p.Cipher),
		"password: " + escapeYAML(p.Password),
		"tfo: " + strconv.FormatBool(p.TFO),
	}
	if p.Plugin == "obfs" && p.PluginOpts != nil {
		fields = append(fields, "plugin: obfs")
		opts := make([]string, 0, 2)
		if p.PluginOpts.Mode != "" {
			opts = append(opts, "mode: "+escapeYAML(p.PluginOpts.Mode))
		}
		if p.PluginOpts.Host != "" {
			opts = append(opts, "host: "+escapeYAML(p.PluginOpts.Host))
		}
		if len(opts) > 0 {
			fields = append(fields, "plugin-opts: {"+strings.Join(opts, ", ")+"}")
		}
	}
	return "  - {" + strings.Join(fields, ", ") + "}"
}

// yamlSpace is the ECMAScript \s class. RE2's \s only covers ASCII
// whitespace without \v.
const yamlSpace = `[\t\n\v\f\r \x{a0}\x{1680}\x{2000}-\x{200a}\x{2028}\x{2029}\x{202f}\x{205f}\x{3000}\x{feff}]`

// needsQuote is a heuristic, not a YAML grammar: it is the exact trigger set
// the client has been fed so far, so it must not grow or shrink.
var needsQuote = regexp.MustCompile(`[:#\-]|^` + yamlSpace + `|` + yamlSpace + `$|^\d|["']`)

func escapeYAML(s string) string {
	if needsQuote.MatchString(s) {
		return jsonQuote(s)
	}
	return s
}

// jsonQuote produces a JSON string literal without HTML escaping and without
// touching non-ASCII characters, so the output is also a valid YAML
// double-quoted scalar.
func jsonQuote(s string) string {
	const hex = "0123456789abcdef"
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for i := 0; i < len(s); {
		c := s[i]
		if c < utf8.RuneSelf {
			switch c {
			case '"':
				b.WriteString(`\"`)
			case '\\':
				b.WriteString(`\\`)
			case '\n':
				b.WriteString(`\n`)
			case '\r':
				b.WriteString(`\r`)
			case '\t':
				b.WriteString(`\t`)
			case '\b':
				b.WriteString(`\b`)
			case '\f':
				b.WriteString(`\f`)
			default:
				if c < 0x20 {
					b.WriteString(`\u00`)
					b.WriteByte(hex[c>>4])
					b.WriteByte(hex[c&15])
				} else {
					b.WriteByte(c)
				}
			}
			i++
			continue
		}
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			b.WriteString("\uFFFD")
		} else {
			b.WriteString(s[i : i+size])
		}
		i += size
	}
	b.WriteByte('"')
	return b.String()
}
