package ss

import (
	"encoding/base64"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"github.com/John-Robertt/surge2clash/internal/model"
)

// encoder renders one node as an ss:// URI. A node is dispatched to exactly
// one implementation by encoderFor.
type encoder interface {
	encode(n model.Node) string
}

// plainEncoder: ss://base64(cipher:password@server:port)#name
//
// Generic subscription consumers expect the whole authority inside the
// base64 block, padding included.
type plainEncoder struct{}

func (plainEncoder) encode(n model.Node) string {
	auth := string(n.Cipher) + ":" + n.Password + "@" + n.Server + ":" + strconv.Itoa(n.Port)

	var b strings.Builder
	b.WriteString("ss://")
	b.WriteString(base64.StdEncoding.EncodeToString([]byte(auth)))
	b.WriteByte('#')
	b.WriteString(EscapeComponent(n.Name))
	return b.String()
}

// obfsEncoder: ss://base64(cipher:password)@server:port/?plugin=obfs-local;obfs=<mode>[;obfs-host=<host>]#name
//
// Only the credential is base64 encoded (no padding). Mode and host are
// written verbatim; only the ';' and '=' separators are percent-encoded.
type obfsEncoder struct{}

func (obfsEncoder) encode(n model.Node) string {
	auth := string(n.Cipher) + ":" + n.Password

	var b strings.Builder
	b.WriteString("ss://")
	b.WriteString(base64.RawStdEncoding.EncodeToString([]byte(auth)))
	b.WriteByte('@')
	b.WriteString(hostForURI(n.Server))
	b.WriteByte(':')
	b.WriteString(strconv.Itoa(n.Port))
	b.WriteString("/?plugin=obfs-local%3Bobfs%3D")
	b.WriteString(string(n.ObfsMode))
	if n.ObfsHost != "" {
		b.WriteString("%3Bobfs-host%3D")
		b.WriteString(n.ObfsHost)
	}
	b.WriteByte('#')
	b.WriteString(EscapeComponent(SimplifyName(n.Name)))
	return b.String()
}

func encoderFor(n model.Node) encoder {
	if n.Obfuscated() {
		return obfsEncoder{}
	}
	return plainEncoder{}
}

// EncodeURI renders a node as a single-line ss:// URI.
func EncodeURI(n model.Node) string {
	return encoderFor(n).encode(n)
}

// EncodeURIs keeps order and length: one URI per node.
func EncodeURIs(nodes []model.Node) []string {
	return lo.Map(nodes, func(n model.Node, _ int) string { return EncodeURI(n) })
}

// flagLetters are the regional indicator symbols that make up the flags
// HK SG US JP GB DE FR KR CN.
var flagLetters = func() map[rune]struct{} {
	m := make(map[rune]struct{})
	for _, c := range "HKSGUSJPGBDEFRKRCN" {
		m[0x1F1E6+(c-'A')] = struct{}{}
	}
	return m
}()

// SimplifyName drops the common region flags from a display name and trims
// the result.
func SimplifyName(name string) string {
	stripped := strings.Map(func(r rune) rune {
		if _, ok := flagLetters[r]; ok {
			return -1
		}
		return r
	}, name)
	return strings.TrimSpace(stripped)
}

// EscapeComponent percent-encodes s the way browsers' encodeURIComponent
// does. url.QueryEscape differs: it escapes !*'() and turns spaces into '+'.
func EscapeComponent(s string) string {
	const upperhex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreservedComponent(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&15])
	}
	return b.String()
}

func isUnreservedComponent(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '-', '_', '.', '!', '~', '*', '\'', '(', ')':
		return true
	}
	return false
}

// hostForURI wraps IPv6 literals in [] so the authority stays parseable.
func hostForURI(host string) string {
	if strings.Contains(host, ":") && !(strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]")) {
		return "[" + host + "]"
	}
	return host
}
