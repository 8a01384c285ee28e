package surge

import (
	"regexp"
	"unicode/utf8"

	"github.com/John-Robertt/surge2clash/internal/model"
)

const maxPasswordLen = 256

var (
	domainRe = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)
	ipv4Re   = regexp.MustCompile(`^(?:(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\.){3}(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)$`)
	// Only the full 8-group form and the two common shorthands are accepted.
	ipv6Re = regexp.MustCompile(`^(?:[0-9a-fA-F]{1,4}:){7}[0-9a-fA-F]{1,4}$|^::1$|^::$`)
)

// IsValidServer accepts a hostname, a dotted-quad IPv4 literal or an IPv6
// literal (8 groups, "::1" or "::").
func IsValidServer(server string) bool {
	if server == "" {
		return false
	}
	return domainRe.MatchString(server) || ipv4Re.MatchString(server) || ipv6Re.MatchString(server)
}

func IsValidPort(port int) bool {
	return port >= 1 && port <= 65535
}

func IsValidCipher(method string) bool {
	_, ok := model.ParseCipher(method)
	return ok
}

// IsValidPassword counts characters, not bytes.
func IsValidPassword(password string) bool {
	n := utf8.RuneCountInString(password)
	return n > 0 && n <= maxPasswordLen
}

func IsValidObfsMode(mode string) bool {
	_, ok := model.ParseObfsMode(mode)
	return ok
}
