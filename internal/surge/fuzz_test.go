package surge

import (
	"strings"
	"testing"
)

func FuzzParseNodes(f *testing.F) {
	seed := []string{
		"",
		"# comment\n",
		"🇭🇰 HK01 = ss, example.com, 8443, encrypt-method=aes-128-gcm, password=1234567",
		"A = ss, 1.2.3.4, 443, encrypt-method=aes-128-gcm, password=x, obfs=tls, obfs-host=bing.com\nA = ss, 1.2.3.4, 443, encrypt-method=aes-128-gcm, password=x",
		"A = ss, ::1, 443, encrypt-method=aes-128-gcm, password=\"a,b\"",
		"== ,,,,",
	}
	for _, s := range seed {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, input string) {
		out := ParseNodes(input)

		nonBlank := 0
		for _, l := range strings.Split(strings.TrimPrefix(input, "\uFEFF"), "\n") {
			if strings.TrimSpace(l) != "" {
				nonBlank++
			}
		}
		total := len(out.Success) + len(out.Failed)
		if out.Skipped != nil {
			if out.Skipped.Comments == 0 && out.Skipped.Duplicates == 0 {
				t.Fatalf("skipped present with zero counters")
			}
			total += out.Skipped.Comments + out.Skipped.Duplicates
		}
		if total != nonBlank {
			t.Fatalf("accounted=%d, non-blank=%d", total, nonBlank)
		}

		for _, n := range out.Success {
			if !IsValidServer(n.Server) || !IsValidPort(n.Port) || !IsValidPassword(n.Password) {
				t.Fatalf("invalid node accepted: %+v", n)
			}
			if n.ObfsHost != "" && n.ObfsMode == "" {
				t.Fatalf("obfs host without mode: %+v", n)
			}
		}
	})
}
