package score

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/storeaudit/audit/internal/facts"
)

// Category names, stable across versions. Evidence and tickets reference
// them, so renaming one is a scoring-version bump.
const (
	CategoryConversion = "conversion_readiness"
	CategoryTrust      = "trust_signals"
	CategoryContent    = "content_quality"
	CategoryTechnical  = "technical_hygiene"
)

// DefaultCategories returns the built-in rule sets. The returned slice is
// freshly allocated; callers may adjust weights without affecting others.
func DefaultCategories() []Category {
	return []Category{
		{
			Name:   CategoryConversion,
			Weight: 35,
			Rules: []Rule{
				{Name: "price_visible", Points: 30, Satisfied: func(f *facts.Facts) bool { return f.Commerce.HasPrice }},
				{Name: "add_to_cart_present", Points: 30, Satisfied: func(f *facts.Facts) bool { return f.Commerce.HasAddToCart }},
				{Name: "availability_stated", Points: 20, Satisfied: func(f *facts.Facts) bool { return f.Commerce.HasAvailability }},
				{Name: "in_stock", Points: 20, Satisfied: func(f *facts.Facts) bool { return f.Commerce.HasAvailability && !f.Commerce.OutOfStock }},
			},
		},
		{
			Name:   CategoryTrust,
			Weight: 25,
			Rules: []Rule{
				{Name: "reviews_present", Points: 30, Satisfied: func(f *facts.Facts) bool { return f.Trust.HasReviewWidget }},
				{Name: "reviews_substantial", Points: 10, Satisfied: func(f *facts.Facts) bool { return f.Trust.ReviewCount >= 10 }},
				{Name: "return_policy_linked", Points: 25, Satisfied: func(f *facts.Facts) bool { return f.Trust.HasReturnPolicy }},
				{Name: "contact_reachable", Points: 20, Satisfied: func(f *facts.Facts) bool { return f.Trust.HasContactLink }},
				{Name: "privacy_policy_linked", Points: 15, Satisfied: func(f *facts.Facts) bool { return f.Trust.HasPrivacyPolicy }},
			},
		},
		{
			Name:   CategoryContent,
			Weight: 20,
			Rules: []Rule{
				{Name: "title_present", Points: 20, Satisfied: func(f *facts.Facts) bool { return f.Content.TitleLength > 0 }},
				{Name: "title_descriptive", Points: 10, Satisfied: func(f *facts.Facts) bool { return f.Content.TitleLength >= 20 && f.Content.TitleLength <= 120 }},
				{Name: "description_substantial", Points: 25, Satisfied: func(f *facts.Facts) bool { return f.Content.DescriptionLength >= 80 }},
				{Name: "multiple_images", Points: 20, Satisfied: func(f *facts.Facts) bool { return f.Content.ImageCount >= 2 }},
				{Name: "images_have_alt_text", Points: 10, Satisfied: func(f *facts.Facts) bool { return f.Content.ImageCount > 0 && f.Content.ImagesWithAlt == f.Content.ImageCount }},
				{Name: "structured_data_product", Points: 15, Satisfied: func(f *facts.Facts) bool { return f.Content.HasStructuredData }},
			},
		},
		{
			Name:   CategoryTechnical,
			Weight: 20,
			Rules: []Rule{
				{Name: "https", Points: 30, Satisfied: func(f *facts.Facts) bool { return f.Technical.HTTPS }},
				{Name: "status_ok", Points: 20, Satisfied: func(f *facts.Facts) bool { return f.Technical.StatusOK }},
				{Name: "canonical_url", Points: 15, Satisfied: func(f *facts.Facts) bool { return f.Technical.HasCanonical }},
				{Name: "meta_description", Points: 15, Satisfied: func(f *facts.Facts) bool { return f.Technical.HasMetaDescription }},
				{Name: "mobile_viewport_meta", Points: 20, Satisfied: func(f *facts.Facts) bool { return f.Technical.HasViewportMeta }},
			},
		},
	}
}

// WeightOverlay is the optional YAML file shape overriding category weights:
//
//	weights:
//	  conversion_readiness: 40
//	  trust_signals: 20
type WeightOverlay struct {
	Weights map[string]int `yaml:"weights"`
}

// LoadWeightOverlay reads a YAML weight overlay and applies it to the
// categories. The returned fingerprint is a canonical rendering of the
// applied overrides (sorted, empty when no file) and must be folded into
// the detectors version at startup so overridden weights invalidate
// run keys like any other logic change.
func LoadWeightOverlay(path string, categories []Category) (fingerprint string, err error) {
	if path == "" {
		return "", nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("score: read overlay: %w", err)
	}
	var overlay WeightOverlay
	if err := yaml.Unmarshal(raw, &overlay); err != nil {
		return "", fmt.Errorf("score: parse overlay: %w", err)
	}

	names := make([]string, 0, len(overlay.Weights))
	for name, w := range overlay.Weights {
		if w < 0 {
			return "", fmt.Errorf("score: overlay weight %s = %d is negative", name, w)
		}
		found := false
		for i := range categories {
			if categories[i].Name == name {
				categories[i].Weight = w
				found = true
			}
		}
		if !found {
			return "", fmt.Errorf("score: overlay names unknown category %q", name)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, "%s=%d;", name, overlay.Weights[name])
	}
	return b.String(), nil
}
