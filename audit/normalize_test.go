package audit

import (
	"errors"
	"testing"
)

func TestNormalizeProductURL(t *testing.T) {
	// WHAT: canonicalization collapses equivalent product URLs into one
	// string and rejects what cannot name a product page.
	// WHY: the product key is derived from this string; two spellings of
	// the same page must never produce two cache lineages.
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercase scheme and host", "HTTPS://Shop.Example/Products/X", "https://shop.example/Products/X"},
		{"strip fragment", "https://shop.example/p/1#reviews", "https://shop.example/p/1"},
		{"strip trailing slash", "https://shop.example/p/1/", "https://shop.example/p/1"},
		{"keep root", "https://shop.example", "https://shop.example"},
		{"strip default https port", "https://shop.example:443/p/1", "https://shop.example/p/1"},
		{"strip default http port", "http://shop.example:80/p/1", "http://shop.example/p/1"},
		{"keep custom port", "https://shop.example:8443/p/1", "https://shop.example:8443/p/1"},
		{"sort query params", "https://shop.example/p?b=2&a=1", "https://shop.example/p?a=1&b=2"},
		{"strip utm params", "https://shop.example/p/1?utm_source=mail&utm_campaign=x", "https://shop.example/p/1"},
		{"strip click ids", "https://shop.example/p/1?gclid=abc&fbclid=def&variant=red", "https://shop.example/p/1?variant=red"},
		{"trim whitespace", "  https://shop.example/p/1  ", "https://shop.example/p/1"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NormalizeProductURL(tc.in)
			if err != nil {
				t.Fatalf("NormalizeProductURL(%q): %v", tc.in, err)
			}
			if got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestNormalizeProductURLRejects(t *testing.T) {
	// WHAT: empty input, non-web schemes and host-less URLs are invalid.
	for _, in := range []string{"", "   ", "ftp://shop.example/p", "file:///etc/passwd", "https://", "not a url"} {
		if _, err := NormalizeProductURL(in); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("NormalizeProductURL(%q) err = %v, want ErrInvalidInput", in, err)
		}
	}
}

func TestNormalizeProductURLIdempotent(t *testing.T) {
	// WHAT: normalizing an already normalized URL is a no-op.
	in := "https://shop.example/p/1?variant=red"
	once, err := NormalizeProductURL(in)
	if err != nil {
		t.Fatal(err)
	}
	twice, err := NormalizeProductURL(once)
	if err != nil {
		t.Fatal(err)
	}
	if once != twice {
		t.Errorf("not idempotent: %q then %q", once, twice)
	}
}

func TestNormalizeLocale(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", "en"},
		{"EN", "en"},
		{"fr-fr", "fr-FR"},
		{"fr_FR", "fr-FR"},
		{"de-at-1996", "de-AT"},
	}
	for _, tc := range tests {
		got, err := NormalizeLocale(tc.in)
		if err != nil {
			t.Errorf("NormalizeLocale(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("NormalizeLocale(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
	for _, in := range []string{"x", "1234", "en-Latn"} {
		if _, err := NormalizeLocale(in); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("NormalizeLocale(%q) err = %v, want ErrInvalidInput", in, err)
		}
	}
}
