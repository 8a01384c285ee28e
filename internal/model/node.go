package model

import "strings"

// ProtocolTag identifies the proxy protocol of a node line.
// Only Shadowsocks is supported.
type ProtocolTag string

const ProtocolSS ProtocolTag = "ss"

// Cipher is one of the AEAD methods accepted for ss nodes.
type Cipher string

const (
	CipherAES128GCM             Cipher = "aes-128-gcm"
	CipherAES192GCM             Cipher = "aes-192-gcm"
	CipherAES256GCM             Cipher = "aes-256-gcm"
	CipherChaCha20IETFPoly1305  Cipher = "chacha20-ietf-poly1305"
	CipherXChaCha20IETFPoly1305 Cipher = "xchacha20-ietf-poly1305"
	Cipher2022AES128GCM         Cipher = "2022-blake3-aes-128-gcm"
	Cipher2022AES256GCM         Cipher = "2022-blake3-aes-256-gcm"
	Cipher2022ChaCha20Poly1305  Cipher = "2022-blake3-chacha20-poly1305"
)

var supportedCiphers = []Cipher{
	CipherAES128GCM,
	CipherAES192GCM,
	CipherAES256GCM,
	CipherChaCha20IETFPoly1305,
	CipherXChaCha20IETFPoly1305,
	Cipher2022AES128GCM,
	Cipher2022AES256GCM,
	Cipher2022ChaCha20Poly1305,
}

// ParseCipher matches s case-insensitively and returns the canonical
// (lowercase) cipher.
func ParseCipher(s string) (Cipher, bool) {
	want := strings.ToLower(s)
	for _, c := range supportedCiphers {
		if string(c) == want {
			return c, true
		}
	}
	return "", false
}

func SupportedCiphers() []Cipher {
	out := make([]Cipher, len(supportedCiphers))
	copy(out, supportedCiphers)
	return out
}

// ObfsMode is the simple-obfs transport disguise.
type ObfsMode string

const (
	ObfsHTTP  ObfsMode = "http"
	ObfsTLS   ObfsMode = "tls"
	ObfsPlain ObfsMode = "plain"
)

var supportedObfsModes = []ObfsMode{ObfsHTTP, ObfsTLS, ObfsPlain}

func ParseObfsMode(s string) (ObfsMode, bool) {
	want := strings.ToLower(s)
	for _, m := range supportedObfsModes {
		if string(m) == want {
			return m, true
		}
	}
	return "", false
}

func SupportedObfsModes() []ObfsMode {
	out := make([]ObfsMode, len(supportedObfsModes))
	copy(out, supportedObfsModes)
	return out
}

// Node is one validated Surge ss line.
//
// ObfsMode and ObfsHost are empty when the line carried no obfuscation.
// ObfsHost is never set without ObfsMode.
type Node struct {
	Name     string      `json:"name"`
	Protocol ProtocolTag `json:"type"`
	Server   string      `json:"server"`
	Port     int         `json:"port"`
	Cipher   Cipher      `json:"encryptMethod"`
	Password string      `json:"password"`
	ObfsMode ObfsMode    `json:"obfs,omitempty"`
	ObfsHost string      `json:"obfsHost,omitempty"`
}

func (n Node) Obfuscated() bool { return n.ObfsMode != "" }

// DedupKey identifies a node for deduplication. Name, protocol and obfs
// fields are deliberately not part of it.
type DedupKey struct {
	Server   string
	Port     int
	Cipher   Cipher
	Password string
}

func (n Node) DedupKey() DedupKey {
	return DedupKey{Server: n.Server, Port: n.Port, Cipher: n.Cipher, Password: n.Password}
}
