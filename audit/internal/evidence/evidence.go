// Package evidence builds the reproducible evidence pack for a score run.
//
// Build is pure: identical artifacts produce an identical, identically
// ordered list with identical IDs. Absent artifacts simply omit their
// record; there are no placeholder or error entries. Tickets reference
// evidence by ID and never duplicate it.
package evidence

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/hazyhaar/storeaudit/audit/internal/facts"
)

// Kind is the closed set of evidence record types.
type Kind string

const (
	KindScreenshot     Kind = "screenshot"
	KindFactSummary    Kind = "fact_summary"
	KindStructuredData Kind = "structured_data"
)

// Evidence is one immutable record substantiating findings.
type Evidence struct {
	ID       string `json:"id"`
	Kind     Kind   `json:"kind"`
	Source   string `json:"source"`
	Viewport string `json:"viewport"`
	Label    string `json:"label"`
	Seq      int    `json:"seq"`
	Path     string `json:"path,omitempty"`
	SHA256   string `json:"sha256,omitempty"`
	Note     string `json:"note,omitempty"`
}

// Screenshot is a capture artifact handed to the builder. Failed viewports
// arrive with an empty Path and produce no record.
type Screenshot struct {
	Viewport string
	Path     string
	SHA256   string
}

// Artifacts is everything one capture produced, as the builder sees it.
type Artifacts struct {
	Screenshots  []Screenshot
	Facts        *facts.Facts
	FactsPresent bool
}

// Build maps artifacts to the ordered evidence list. Screenshots come
// first sorted by viewport name, then the fact summary, then structured
// data. Sequence numbers restart at 1 for every call.
func Build(in Artifacts) []Evidence {
	var out []Evidence
	seq := 0
	next := func() int { seq++; return seq }

	shots := make([]Screenshot, 0, len(in.Screenshots))
	for _, s := range in.Screenshots {
		if s.Path != "" {
			shots = append(shots, s)
		}
	}
	sort.Slice(shots, func(i, j int) bool { return shots[i].Viewport < shots[j].Viewport })

	for _, s := range shots {
		n := next()
		out = append(out, Evidence{
			ID:       id("capture", s.Viewport, KindScreenshot, "product-page", n),
			Kind:     KindScreenshot,
			Source:   "capture",
			Viewport: s.Viewport,
			Label:    "product-page",
			Seq:      n,
			Path:     s.Path,
			SHA256:   s.SHA256,
		})
	}

	if in.FactsPresent && in.Facts != nil {
		n := next()
		out = append(out, Evidence{
			ID:       id("detectors", "all", KindFactSummary, "structural-facts", n),
			Kind:     KindFactSummary,
			Source:   "detectors",
			Viewport: "all",
			Label:    "structural-facts",
			Seq:      n,
			SHA256:   factsDigest(in.Facts),
			Note:     summarize(in.Facts),
		})

		if in.Facts.Content.HasStructuredData {
			n := next()
			out = append(out, Evidence{
				ID:       id("detectors", "all", KindStructuredData, "schema-org-product", n),
				Kind:     KindStructuredData,
				Source:   "detectors",
				Viewport: "all",
				Label:    "schema-org-product",
				Seq:      n,
				Note:     "schema.org Product entity present in ld+json",
			})
		}
	}

	return out
}

func id(source, viewport string, kind Kind, label string, seq int) string {
	return fmt.Sprintf("%s_%s_%s_%s_%03d", source, viewport, kind, label, seq)
}

// factsDigest hashes the canonical JSON form of the facts. json.Marshal on
// a struct emits fields in declaration order, so the digest is stable.
func factsDigest(f *facts.Facts) string {
	raw, err := json.Marshal(f)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func summarize(f *facts.Facts) string {
	return fmt.Sprintf("price=%v cart=%v reviews=%d images=%d https=%v structured_data=%v",
		f.Commerce.HasPrice, f.Commerce.HasAddToCart, f.Trust.ReviewCount,
		f.Content.ImageCount, f.Technical.HTTPS, f.Content.HasStructuredData)
}
