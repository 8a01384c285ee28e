package render

import (
	"errors"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/John-Robertt/surge2clash/internal/model"
)

func hk01Obfs() model.Node {
	return model.Node{
		Name:     "HK01",
		Protocol: model.ProtocolSS,
		Server:   "example.com",
		Port:     8443,
		Cipher:   model.CipherAES128GCM,
		Password: "1234567",
		ObfsMode: model.ObfsHTTP,
		ObfsHost: "example.com",
	}
}

const wantPreamble = `port: 7890
allow-lan: true
mode: rule
log-level: info
unified-delay: true
global-client-fingerprint: chrome
dns:
  enable: true
  listen: :53
  ipv6: true
  enhanced-mode: fake-ip
  fake-ip-range: 198.18.0.1/16
  default-nameserver:
    - 223.5.5.5
    - 114.114.114.114
    - 8.8.8.8
  nameserver:
    - https://dns.alidns.com/dns-query
    - https://doh.pub/dns-query
  fallback:
    - https://1.0.0.1/dns-query
    - tls://dns.google
  fallback-filter:
    geoip: true
    geoip-code: CN
    ipcidr:
      - 240.0.0.0/4

# 根据解析出的节点动态生成
proxies:
`

func TestBuildClash_SingleProxyExact(t *testing.T) {
	got := BuildClash(ProxiesFromNodes([]model.Node{hk01Obfs()}))

	want := wantPreamble +
		`  - {name: HK01, server: example.com, port: "8443", client-fingerprint: chrome, type: ss, cipher: "aes-128-gcm", password: "1234567", tfo: false, plugin: obfs, plugin-opts: {mode: http, host: example.com}}

proxy-groups:
- name: 负载均衡
  type: load-balance
  url: http://www.gstatic.com/generate_204
  interval: 300
  proxies:
    - HK01

- name: 自动选择
  type: url-test
  url: http://www.gstatic.com/generate_204
  interval: 300
  tolerance: 50
  proxies:
    - HK01

- name: "🌍选择代理"
  type: select
  proxies:
    - 负载均衡
    - 自动选择
    - DIRECT
    - HK01

rules:
  - GEOIP,LAN,DIRECT
  - GEOIP,CN,DIRECT
  - MATCH,🌍选择代理
`
	if got != want {
		t.Fatalf("document mismatch\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestBuildClash_EmptyExact(t *testing.T) {
	got := BuildClash(nil)

	want := wantPreamble + `  []

proxy-groups:
- name: 负载均衡
  type: load-balance
  url: http://www.gstatic.com/generate_204
  interval: 300
  proxies:
    - DIRECT

- name: 自动选择
  type: url-test
  url: http://www.gstatic.com/generate_204
  interval: 300
  tolerance: 50
  proxies:
    - DIRECT

- name: "🌍选择代理"
  type: select
  proxies:
    - 负载均衡
    - 自动选择
    - DIRECT


rules:
  - GEOIP,LAN,DIRECT
  - GEOIP,CN,DIRECT
  - MATCH,🌍选择代理
`
	if got != want {
		t.Fatalf("document mismatch\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestBuildClash_ParsesAsYAML(t *testing.T) {
	nodes := []model.Node{
		hk01Obfs(),
		{Name: "🇯🇵 JP-02", Protocol: model.ProtocolSS, Server: "2001:db8::1", Port: 443, Cipher: model.CipherChaCha20IETFPoly1305, Password: `p"a:ss#'x`},
		{Name: "3 US", Protocol: model.ProtocolSS, Server: "1.2.3.4", Port: 8388, Cipher: model.Cipher2022AES256GCM, Password: "abc", ObfsMode: model.ObfsTLS},
		{Name: "plain", Protocol: model.ProtocolSS, Server: "plain.example", Port: 80, Cipher: model.CipherAES256GCM, Password: "abc", ObfsMode: model.ObfsPlain},
	}
	doc := BuildClash(ProxiesFromNodes(nodes))

	var parsed struct {
		Port    int `yaml:"port"`
		Proxies []struct {
			Name       string            `yaml:"name"`
			Server     string            `yaml:"server"`
			Port       string            `yaml:"port"`
			Password   string            `yaml:"password"`
			Plugin     string            `yaml:"plugin"`
			PluginOpts map[string]string `yaml:"plugin-opts"`
		} `yaml:"proxies"`
		ProxyGroups []struct {
			Name    string   `yaml:"name"`
			Type    string   `yaml:"type"`
			Proxies []string `yaml:"proxies"`
		} `yaml:"proxy-groups"`
		Rules []string `yaml:"rules"`
	}
	if err := yaml.Unmarshal([]byte(doc), &parsed); err != nil {
		t.Fatalf("yaml.Unmarshal: %v\n%s", err, doc)
	}

	if parsed.Port != 7890 {
		t.Fatalf("port=%d, want=7890", parsed.Port)
	}
	if len(parsed.Proxies) != len(nodes) {
		t.Fatalf("proxies=%d, want=%d", len(parsed.Proxies), len(nodes))
	}
	for i, p := range parsed.Proxies {
		if p.Name != nodes[i].Name {
			t.Fatalf("proxies[%d].name=%q, want=%q", i, p.Name, nodes[i].Name)
		}
		if p.Server != nodes[i].Server {
			t.Fatalf("proxies[%d].server=%q, want=%q", i, p.Server, nodes[i].Server)
		}
		if p.Password != nodes[i].Password {
			t.Fatalf("proxies[%d].password=%q, want=%q", i, p.Password, nodes[i].Password)
		}
	}
	if parsed.Proxies[1].Port != "443" {
		t.Fatalf("port scalar=%q, want quoted 443", parsed.Proxies[1].Port)
	}
	if parsed.Proxies[2].Plugin != "obfs" || parsed.Proxies[2].PluginOpts["mode"] != "tls" {
		t.Fatalf("tls obfs plugin missing: %+v", parsed.Proxies[2])
	}
	if _, ok := parsed.Proxies[2].PluginOpts["host"]; ok {
		t.Fatalf("host should be omitted when unset: %+v", parsed.Proxies[2].PluginOpts)
	}
	if parsed.Proxies[3].Plugin != "" {
		t.Fatalf("plain obfs must not emit a plugin, got %q", parsed.Proxies[3].Plugin)
	}

	if len(parsed.ProxyGroups) != 3 {
		t.Fatalf("groups=%d, want=3", len(parsed.ProxyGroups))
	}
	sel := parsed.ProxyGroups[2]
	if sel.Name != "🌍选择代理" || sel.Type != "select" {
		t.Fatalf("selector=%+v", sel)
	}
	if len(sel.Proxies) != 3+len(nodes) {
		t.Fatalf("selector members=%d, want=%d", len(sel.Proxies), 3+len(nodes))
	}
	for _, g := range parsed.ProxyGroups[:2] {
		if len(g.Proxies) != len(nodes) {
			t.Fatalf("group %q members=%d, want=%d", g.Name, len(g.Proxies), len(nodes))
		}
	}
	if len(parsed.Rules) != 3 || parsed.Rules[2] != "MATCH,🌍选择代理" {
		t.Fatalf("rules=%v", parsed.Rules)
	}
}

func TestEscapeYAML(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"HK01", "HK01"},
		{"example.com", "example.com"},
		{"8443", `"8443"`},
		{"aes-128-gcm", `"aes-128-gcm"`},
		{"a:b", `"a:b"`},
		{"a#b", `"a#b"`},
		{" lead", `" lead"`},
		{"trail ", `"trail "`},
		{`say "hi"`, `"say \"hi\""`},
		{"it's", `"it's"`},
		{"🇭🇰 HK01", "🇭🇰 HK01"},
		{"a-<b>&", `"a-<b>&"`},
		{"x-\ty\\", `"x-\ty\\"`},
		{"-\x01", `"-\u0001"`},
		{"tab\there <&>\u2028", "\"tab\\there <&>\u2028\""},
		{"x\u3000", "\"x\u3000\""},
		{"\u00a0x", "\"\u00a0x\""},
		{"\vx", `"\u000bx"`},
		{"\ufeffx", "\"\ufeffx\""},
		{"a\u205f", "\"a\u205f\""},
		{"mid\u3000dle", "mid\u3000dle"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := escapeYAML(tc.in); got != tc.want {
			t.Fatalf("escapeYAML(%q)=%q, want=%q", tc.in, got, tc.want)
		}
	}
}

func TestProxyFromNode(t *testing.T) {
	p := ProxyFromNode(hk01Obfs())
	if !p.UDP {
		t.Fatalf("udp=false, want=true")
	}
	if p.Plugin != "obfs" || p.PluginOpts == nil || p.PluginOpts.Mode != "http" || p.PluginOpts.Host != "example.com" {
		t.Fatalf("plugin=%q opts=%+v", p.Plugin, p.PluginOpts)
	}

	n := hk01Obfs()
	n.ObfsMode = model.ObfsPlain
	n.ObfsHost = ""
	if p := ProxyFromNode(n); p.Plugin != "" || p.PluginOpts != nil {
		t.Fatalf("plain obfs should not produce a plugin: %+v", p)
	}
}

func TestValidateProxies(t *testing.T) {
	good := ProxyFromNode(hk01Obfs())
	if err := ValidateProxies([]ClashProxy{good}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(p *ClashProxy)
		code   string
	}{
		{"type", func(p *ClashProxy) { p.Type = "vmess" }, "INVALID_ARGUMENT"},
		{"name", func(p *ClashProxy) { p.Name = "  " }, "INVALID_ARGUMENT"},
		{"name_ctrl", func(p *ClashProxy) { p.Name = "a\nb" }, "INVALID_ARGUMENT"},
		{"server", func(p *ClashProxy) { p.Server = "" }, "INVALID_ARGUMENT"},
		{"port", func(p *ClashProxy) { p.Port = 70000 }, "INVALID_ARGUMENT"},
		{"server_ctrl", func(p *ClashProxy) { p.Server = "example.com\nrules: []" }, "INVALID_ARGUMENT"},
		{"password_ctrl", func(p *ClashProxy) { p.Password = "pw\r\n" }, "INVALID_ARGUMENT"},
		{"cipher_ctrl", func(p *ClashProxy) { p.Cipher = "aes-128-gcm\x00" }, "INVALID_ARGUMENT"},
		{"fingerprint_ctrl", func(p *ClashProxy) { p.ClientFingerprint = "chrome\n" }, "INVALID_ARGUMENT"},
		{"obfs_mode_ctrl", func(p *ClashProxy) { p.PluginOpts = &PluginOpts{Mode: "http\x7f", Host: "example.com"} }, "INVALID_ARGUMENT"},
		{"obfs_host_ctrl", func(p *ClashProxy) { p.PluginOpts = &PluginOpts{Mode: "http", Host: "a\nb"} }, "INVALID_ARGUMENT"},
		{"password", func(p *ClashProxy) { p.Password = "" }, "INVALID_ARGUMENT"},
		{"plugin", func(p *ClashProxy) { p.Plugin = "v2ray-plugin" }, "UNSUPPORTED_PLUGIN"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := good
			tc.mutate(&p)
			err := ValidateProxies([]ClashProxy{p})
			var re *RenderError
			if !errors.As(err, &re) {
				t.Fatalf("expected RenderError, got %T (%v)", err, err)
			}
			if re.AppError.Code != tc.code {
				t.Fatalf("code=%q, want=%q", re.AppError.Code, tc.code)
			}
			if re.AppError.Stage != "render" {
				t.Fatalf("stage=%q, want=render", re.AppError.Stage)
			}
		})
	}

	tabbed := good
	tabbed.Name = "tab\there"
	if err := ValidateProxies([]ClashProxy{tabbed}); err != nil {
		t.Fatalf("tab in name should pass, got %v", err)
	}

	if err := ValidateProxies(nil); err == nil || !strings.Contains(err.Error(), "INVALID_ARGUMENT") {
		t.Fatalf("empty list err=%v", err)
	}
}
