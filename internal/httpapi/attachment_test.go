package httpapi

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestOutputFileName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"  ", ""},
		{"clash", "clash.yaml"},
		{"my config", "my config.yaml"},
		{"clash.yml", "clash.yml"},
		{".hidden", ".hidden.yaml"},
		{"trailing.", "trailing..yaml"},
	}
	for _, tc := range cases {
		got, err := outputFileName(tc.in, ".yaml")
		if err != nil {
			t.Fatalf("outputFileName(%q) unexpected err: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("outputFileName(%q)=%q, want=%q", tc.in, got, tc.want)
		}
	}
}

func TestOutputFileName_Rejects(t *testing.T) {
	for _, in := range []string{"a/b", `a\b`, "a\nb", strings.Repeat("x", 201)} {
		_, err := outputFileName(in, ".yaml")
		var ae *APIError
		if !errors.As(err, &ae) {
			t.Fatalf("outputFileName(%q) err=%v, want APIError", in, err)
		}
		if ae.AppError.Code != "INVALID_ARGUMENT" {
			t.Fatalf("code=%q", ae.AppError.Code)
		}
	}
}

func TestContentDisposition_UTF8(t *testing.T) {
	rr := httptest.NewRecorder()
	if err := setAttachmentHeaders(rr, "节点 列表", ".yaml"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	cd := rr.Header().Get("Content-Disposition")
	if !strings.Contains(cd, `filename="节点 列表.yaml"`) {
		t.Fatalf("Content-Disposition=%q", cd)
	}
	if !strings.Contains(cd, "filename*=UTF-8''%E8%8A%82%E7%82%B9%20%E5%88%97%E8%A1%A8.yaml") {
		t.Fatalf("Content-Disposition=%q", cd)
	}
}
