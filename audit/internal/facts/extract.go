package facts

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/tidwall/gjson"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Input carries the raw capture artifacts the detectors read.
type Input struct {
	HTML       []byte
	PageURL    string
	StatusCode int
}

var (
	textPolicy = bluemonday.StrictPolicy()

	pricePattern = regexp.MustCompile(`(?:[$€£¥]\s?\d[\d.,]*)|(?:\d[\d.,]*\s?(?:€|USD|EUR|GBP|CHF))`)
	reviewCount  = regexp.MustCompile(`(\d[\d.,]*)\s*(?:reviews|ratings|avis|bewertungen)`)
	addToCart    = regexp.MustCompile(`(?i)add to (?:cart|basket|bag)|buy now|ajouter au panier|in den warenkorb`)
	inStock      = regexp.MustCompile(`(?i)\bin stock\b|available|en stock|auf lager`)
	outOfStock   = regexp.MustCompile(`(?i)out of stock|sold out|unavailable|épuisé|ausverkauft`)
)

// Extract runs every detector over the raw HTML and returns the fact set.
// Extraction is total: malformed HTML yields whatever the tolerant parser
// recovers, never an error, so the caller can always score the result.
func Extract(in Input) *Facts {
	f := &Facts{}
	f.Technical.HTTPS = strings.HasPrefix(strings.ToLower(in.PageURL), "https://")
	f.Technical.StatusOK = in.StatusCode >= 200 && in.StatusCode < 300
	f.Technical.HTMLBytes = len(in.HTML)

	if len(in.HTML) == 0 {
		return f
	}

	// html.Parse never fails on tolerant input; it builds a tree out of
	// whatever it is given.
	doc, err := html.Parse(strings.NewReader(string(in.HTML)))
	if err != nil {
		return f
	}

	var descriptionBuf strings.Builder
	walk(doc, func(n *html.Node) {
		if n.Type != html.ElementNode {
			return
		}
		switch n.DataAtom {
		case atom.Title:
			if f.Content.Title == "" {
				f.Content.Title = strings.TrimSpace(nodeText(n))
			}
		case atom.Meta:
			name := strings.ToLower(attr(n, "name"))
			if name == "description" && strings.TrimSpace(attr(n, "content")) != "" {
				f.Technical.HasMetaDescription = true
			}
			if name == "viewport" {
				f.Technical.HasViewportMeta = true
			}
		case atom.Link:
			if strings.EqualFold(attr(n, "rel"), "canonical") && attr(n, "href") != "" {
				f.Technical.HasCanonical = true
			}
		case atom.Img:
			f.Content.ImageCount++
			if strings.TrimSpace(attr(n, "alt")) != "" {
				f.Content.ImagesWithAlt++
			}
		case atom.Script:
			if strings.EqualFold(attr(n, "type"), "application/ld+json") {
				detectStructuredData(nodeText(n), f)
			}
		case atom.A:
			classifyAnchor(n, f)
		case atom.Button:
			if addToCart.MatchString(nodeText(n)) {
				f.Commerce.HasAddToCart = true
			}
		case atom.P, atom.Div, atom.Section, atom.Article:
			if classContains(n, "description", "product-detail", "product-info") {
				descriptionBuf.WriteString(nodeText(n))
				descriptionBuf.WriteByte(' ')
			}
		}
		if classContains(n, "price") {
			if m := pricePattern.FindString(nodeText(n)); m != "" {
				f.Commerce.HasPrice = true
				if f.Commerce.PriceText == "" {
					f.Commerce.PriceText = strings.TrimSpace(m)
				}
			}
		}
		if classContains(n, "review", "rating", "stars") {
			f.Trust.HasReviewWidget = true
		}
	})

	f.Content.TitleLength = len([]rune(f.Content.Title))

	// Body-level text detectors run on sanitized text so markup and script
	// bodies never trigger them.
	bodyText := textPolicy.Sanitize(string(in.HTML))
	if !f.Commerce.HasPrice {
		if m := pricePattern.FindString(bodyText); m != "" {
			f.Commerce.HasPrice = true
			f.Commerce.PriceText = strings.TrimSpace(m)
		}
	}
	if addToCart.MatchString(bodyText) {
		f.Commerce.HasAddToCart = true
	}
	switch {
	case outOfStock.MatchString(bodyText):
		f.Commerce.HasAvailability = true
		f.Commerce.OutOfStock = true
	case inStock.MatchString(bodyText):
		f.Commerce.HasAvailability = true
	}
	if m := reviewCount.FindStringSubmatch(strings.ToLower(bodyText)); m != nil {
		digits := strings.Map(func(r rune) rune {
			if r >= '0' && r <= '9' {
				return r
			}
			return -1
		}, m[1])
		if n, err := strconv.Atoi(digits); err == nil {
			f.Trust.ReviewCount = n
			f.Trust.HasReviewWidget = true
		}
	}

	desc := strings.TrimSpace(textPolicy.Sanitize(descriptionBuf.String()))
	f.Content.DescriptionLength = len([]rune(desc))

	return f
}

// detectStructuredData inspects an ld+json block for a schema.org Product.
func detectStructuredData(raw string, f *Facts) {
	if !gjson.Valid(raw) {
		return
	}
	doc := gjson.Parse(raw)
	typ := doc.Get("@type")
	if !typ.Exists() {
		// @graph form: array of entities.
		doc.Get("@graph").ForEach(func(_, item gjson.Result) bool {
			if isProductType(item.Get("@type")) {
				f.Content.HasStructuredData = true
			}
			return true
		})
		return
	}
	if isProductType(typ) {
		f.Content.HasStructuredData = true
		offers := doc.Get("offers")
		if offers.Exists() {
			if p := offers.Get("price"); p.Exists() && !f.Commerce.HasPrice {
				f.Commerce.HasPrice = true
				f.Commerce.PriceText = p.String()
			}
			availability := offers.Get("availability").String()
			if availability != "" {
				f.Commerce.HasAvailability = true
				f.Commerce.OutOfStock = strings.Contains(availability, "OutOfStock")
			}
		}
	}
}

func isProductType(typ gjson.Result) bool {
	if typ.IsArray() {
		for _, t := range typ.Array() {
			if t.String() == "Product" {
				return true
			}
		}
		return false
	}
	return typ.String() == "Product"
}

func classifyAnchor(n *html.Node, f *Facts) {
	t := strings.ToLower(nodeText(n) + " " + attr(n, "href"))
	switch {
	case strings.Contains(t, "return") && (strings.Contains(t, "policy") || strings.Contains(t, "refund")),
		strings.Contains(t, "retour"):
		f.Trust.HasReturnPolicy = true
	case strings.Contains(t, "contact"):
		f.Trust.HasContactLink = true
	case strings.Contains(t, "privacy") || strings.Contains(t, "confidentialit"):
		f.Trust.HasPrivacyPolicy = true
	}
	if addToCart.MatchString(t) {
		f.Commerce.HasAddToCart = true
	}
}

func walk(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func classContains(n *html.Node, fragments ...string) bool {
	class := strings.ToLower(attr(n, "class") + " " + attr(n, "id"))
	for _, frag := range fragments {
		if strings.Contains(class, frag) {
			return true
		}
	}
	return false
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var rec func(*html.Node)
	rec = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			rec(c)
		}
	}
	rec(n)
	return strings.TrimSpace(b.String())
}
