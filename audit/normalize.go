package audit

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// trackingParams are query parameters that identify campaigns, not
// products. They are stripped so the same page reached via different
// campaigns collapses to one product identity.
var trackingParams = map[string]bool{
	"gclid":    true,
	"fbclid":   true,
	"msclkid":  true,
	"mc_cid":   true,
	"mc_eid":   true,
	"igshid":   true,
	"ttclid":   true,
	"yclid":    true,
	"srsltid":  true,
	"ref":      true,
	"referrer": true,
}

// NormalizeProductURL canonicalizes a product page URL: lowercases
// scheme and host, drops the fragment and default port, strips the
// trailing slash, removes tracking query parameters (utm_* and the
// known click IDs) and sorts what remains. Only http and https are
// accepted. Does NOT upgrade http to https (different servers,
// different resources).
func NormalizeProductURL(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", fmt.Errorf("%w: empty URL", ErrInvalidInput)
	}

	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidInput, parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidInput)
	}

	parsed.Scheme = scheme
	parsed.Host = strings.ToLower(parsed.Host)

	// Drop default ports.
	if (scheme == "http" && strings.HasSuffix(parsed.Host, ":80")) ||
		(scheme == "https" && strings.HasSuffix(parsed.Host, ":443")) {
		parsed.Host = parsed.Host[:strings.LastIndex(parsed.Host, ":")]
	}

	// Remove fragment.
	parsed.Fragment = ""

	// Strip trailing slash from path (unless empty/root).
	parsed.Path = strings.TrimRight(parsed.Path, "/")

	// Drop tracking params, sort the rest for stable comparison.
	if parsed.RawQuery != "" {
		params := parsed.Query()
		keys := make([]string, 0, len(params))
		for k := range params {
			if trackingParams[strings.ToLower(k)] || strings.HasPrefix(strings.ToLower(k), "utm_") {
				continue
			}
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var buf strings.Builder
		for i, k := range keys {
			vals := params[k]
			sort.Strings(vals)
			for j, v := range vals {
				if i > 0 || j > 0 {
					buf.WriteByte('&')
				}
				buf.WriteString(url.QueryEscape(k))
				buf.WriteByte('=')
				buf.WriteString(url.QueryEscape(v))
			}
		}
		parsed.RawQuery = buf.String()
	}

	return parsed.String(), nil
}

// NormalizeLocale canonicalizes a BCP 47-ish locale tag to
// lang or lang-REGION form. Empty input defaults to "en".
func NormalizeLocale(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "en", nil
	}
	parts := strings.Split(strings.ReplaceAll(raw, "_", "-"), "-")
	lang := strings.ToLower(parts[0])
	if len(lang) < 2 || len(lang) > 3 || !isAlpha(lang) {
		return "", fmt.Errorf("%w: bad locale %q", ErrInvalidInput, raw)
	}
	if len(parts) == 1 {
		return lang, nil
	}
	region := strings.ToUpper(parts[1])
	if len(region) != 2 || !isAlpha(strings.ToLower(region)) {
		return "", fmt.Errorf("%w: bad locale %q", ErrInvalidInput, raw)
	}
	return lang + "-" + region, nil
}

func isAlpha(s string) bool {
	for _, r := range s {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}
