package origin

import (
	"net/http/httptest"
	"testing"
)

func TestNormalizeHeader(t *testing.T) {
	t.Run("normalizes scheme and host, drops default port", func(t *testing.T) {
		normalized, host, ok := NormalizeHeader("HTTPS://Example.COM:443")
		if !ok {
			t.Fatalf("expected ok=true")
		}
		if normalized != "https://example.com" {
			t.Fatalf("normalized=%q, want %q", normalized, "https://example.com")
		}
		if host != "example.com" {
			t.Fatalf("host=%q, want %q", host, "example.com")
		}
	})

	t.Run("keeps non-default port and allows trailing slash", func(t *testing.T) {
		normalized, host, ok := NormalizeHeader("http://localhost:5173/")
		if !ok {
			t.Fatalf("expected ok=true")
		}
		if normalized != "http://localhost:5173" || host != "localhost:5173" {
			t.Fatalf("normalized=%q host=%q", normalized, host)
		}
	})

	t.Run("brackets ipv6", func(t *testing.T) {
		normalized, _, ok := NormalizeHeader("http://[::1]:3000")
		if !ok || normalized != "http://[::1]:3000" {
			t.Fatalf("normalized=%q ok=%v", normalized, ok)
		}
	})

	t.Run("allows null origin", func(t *testing.T) {
		normalized, host, ok := NormalizeHeader("null")
		if !ok || normalized != "null" || host != "" {
			t.Fatalf("normalized=%q host=%q ok=%v", normalized, host, ok)
		}
	})

	t.Run("rejects malformed", func(t *testing.T) {
		cases := []string{
			"",
			"   ",
			"ftp://example.com",
			"https://example.com/path",
			"https://example.com/?q=1",
			"https://user@example.com",
			"https://example.com/#frag",
			"http://example.com:0",
			"http://example.com:99999",
		}
		for _, c := range cases {
			if _, _, ok := NormalizeHeader(c); ok {
				t.Fatalf("expected ok=false for %q", c)
			}
		}
	})
}

func TestPolicyAllows(t *testing.T) {
	normalized, host, ok := NormalizeHeader("https://cam.example.com")
	if !ok {
		t.Fatalf("NormalizeHeader ok=false")
	}

	t.Run("default is same host only", func(t *testing.T) {
		p := NewPolicy(nil)
		if !p.Allows(normalized, host, "cam.example.com") {
			t.Fatalf("expected same host to be allowed")
		}
		if !p.Allows(normalized, host, "cam.example.com:443") {
			t.Fatalf("expected default port to be equivalent")
		}
		if p.Allows(normalized, host, "cam.example.com:8443") {
			t.Fatalf("expected different port to be rejected")
		}
	})

	t.Run("wildcard", func(t *testing.T) {
		p := NewPolicy([]string{Wildcard})
		if !p.AllowsAny() {
			t.Fatalf("AllowsAny=false")
		}
		if !p.Allows(normalized, host, "whatever:1234") || !p.Allows("null", "", "x") {
			t.Fatalf("expected * to allow any origin")
		}
	})

	t.Run("explicit list", func(t *testing.T) {
		p := NewPolicy([]string{"https://cam.example.com"})
		if !p.Allows(normalized, host, "relay.example.com") {
			t.Fatalf("expected listed origin to be allowed")
		}
		p = NewPolicy([]string{"https://other.example.com"})
		if p.Allows(normalized, host, "cam.example.com") {
			t.Fatalf("expected unlisted origin to be rejected even on same host")
		}
	})

	t.Run("null only when listed", func(t *testing.T) {
		if NewPolicy(nil).Allows("null", "", "relay.example.com") {
			t.Fatalf("null must not match a host")
		}
		if !NewPolicy([]string{"null"}).Allows("null", "", "relay.example.com") {
			t.Fatalf("expected listed null to be allowed")
		}
	})
}

func TestPolicyCheck(t *testing.T) {
	p := NewPolicy([]string{"http://localhost:5173"})

	r := httptest.NewRequest("GET", "http://relay.local/signal", nil)
	if o, ok := p.Check(r); !ok || o != "" {
		t.Fatalf("no Origin: origin=%q ok=%v, want allowed", o, ok)
	}

	r.Header.Set("Origin", "HTTP://LOCALHOST:5173")
	if o, ok := p.Check(r); !ok || o != "http://localhost:5173" {
		t.Fatalf("listed Origin: origin=%q ok=%v", o, ok)
	}

	r.Header.Set("Origin", "http://evil.example")
	if _, ok := p.Check(r); ok {
		t.Fatalf("unlisted Origin allowed")
	}

	r.Header.Set("Origin", "not a url")
	if _, ok := p.Check(r); ok {
		t.Fatalf("malformed Origin allowed")
	}
}

func FuzzNormalizeHeader(f *testing.F) {
	for _, seed := range []string{
		"HTTPS://Example.COM:443",
		"http://[::FFFF:192.0.2.1]",
		"null",
		"",
		"https://example.com,https://evil.example.com",
	} {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, raw string) {
		normalized, _, ok := NormalizeHeader(raw)
		if !ok || normalized == "null" {
			return
		}
		again, _, ok2 := NormalizeHeader(normalized)
		if !ok2 || again != normalized {
			t.Fatalf("normalization not idempotent: %q -> %q -> %q (ok=%v)", raw, normalized, again, ok2)
		}
	})
}
