package ss

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/John-Robertt/surge2clash/internal/model"
)

func FuzzEncodeURI(f *testing.F) {
	f.Add("🇭🇰 HK01", "example.com", 8443, "1234567", "", "")
	f.Add("JP", "1.2.3.4", 443, "p@ss:w", "http", "bing.com")
	f.Add("", "::1", 1, "x", "tls", "")

	f.Fuzz(func(t *testing.T, name, server string, port int, password, mode, host string) {
		n := model.Node{
			Name:     name,
			Protocol: model.ProtocolSS,
			Server:   server,
			Port:     port,
			Cipher:   model.CipherAES256GCM,
			Password: password,
		}
		if m, ok := model.ParseObfsMode(mode); ok {
			n.ObfsMode = m
			n.ObfsHost = host
		}

		uri := EncodeURI(n)
		if !strings.HasPrefix(uri, "ss://") {
			t.Fatalf("missing scheme: %q", uri)
		}
		if strings.ContainsAny(uri[strings.LastIndexByte(uri, '#')+1:], " \r\n") {
			t.Fatalf("fragment not escaped: %q", uri)
		}
		if n.Obfuscated() {
			return
		}

		block, _, _ := strings.Cut(strings.TrimPrefix(uri, "ss://"), "#")
		decoded, err := base64.StdEncoding.DecodeString(block)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if !strings.HasPrefix(string(decoded), "aes-256-gcm:"+password+"@") {
			t.Fatalf("decoded=%q", decoded)
		}
	})
}
