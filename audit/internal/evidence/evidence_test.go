package evidence

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/hazyhaar/storeaudit/audit/internal/facts"
)

func sampleArtifacts() Artifacts {
	return Artifacts{
		Screenshots: []Screenshot{
			{Viewport: "mobile", Path: "shots/ab.png", SHA256: "ab"},
			{Viewport: "desktop", Path: "shots/cd.png", SHA256: "cd"},
		},
		Facts: &facts.Facts{
			Commerce: facts.CommerceFacts{HasPrice: true},
			Content:  facts.ContentFacts{HasStructuredData: true, ImageCount: 2},
		},
		FactsPresent: true,
	}
}

func TestBuild_IdempotentByteIdentical(t *testing.T) {
	// WHAT: Two builds over the same artifacts yield deeply identical
	// lists, same IDs, same order.
	// WHY: Evidence IDs are referenced by stored tickets; any drift breaks
	// reproducibility of historical runs.
	a := Build(sampleArtifacts())
	b := Build(sampleArtifacts())
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("builds differ (-a +b):\n%s", diff)
	}
}

func TestBuild_IDFormatAndOrder(t *testing.T) {
	// WHAT: IDs follow {source}_{viewport}_{type}_{label}_{seq}; screenshots
	// sort by viewport name, then facts, then structured data.
	ev := Build(sampleArtifacts())
	wantIDs := []string{
		"capture_desktop_screenshot_product-page_001",
		"capture_mobile_screenshot_product-page_002",
		"detectors_all_fact_summary_structural-facts_003",
		"detectors_all_structured_data_schema-org-product_004",
	}
	var gotIDs []string
	for _, e := range ev {
		gotIDs = append(gotIDs, e.ID)
	}
	if diff := cmp.Diff(wantIDs, gotIDs); diff != "" {
		t.Errorf("ids (-want +got):\n%s", diff)
	}

	seen := map[string]bool{}
	for _, e := range ev {
		if seen[e.ID] {
			t.Errorf("duplicate id %s", e.ID)
		}
		seen[e.ID] = true
	}
}

func TestBuild_FailedViewportOmitted(t *testing.T) {
	// WHAT: A screenshot with no path (failed viewport) produces no record;
	// remaining records keep a gap-free sequence.
	in := sampleArtifacts()
	in.Screenshots[1].Path = "" // desktop failed
	ev := Build(in)

	for _, e := range ev {
		if e.Kind == KindScreenshot && e.Viewport == "desktop" {
			t.Error("failed desktop viewport produced a record")
		}
	}
	if ev[0].ID != "capture_mobile_screenshot_product-page_001" {
		t.Errorf("first id = %s", ev[0].ID)
	}
}

func TestBuild_NoArtifacts(t *testing.T) {
	// WHAT: Nothing in, nothing out: no placeholder or error records.
	if ev := Build(Artifacts{}); len(ev) != 0 {
		t.Errorf("empty artifacts produced %d records", len(ev))
	}
}

func TestBuild_NoStructuredDataRecordWithoutFact(t *testing.T) {
	// WHAT: The structured-data record appears only when the fact is set.
	in := sampleArtifacts()
	in.Facts.Content.HasStructuredData = false
	for _, e := range Build(in) {
		if e.Kind == KindStructuredData {
			t.Error("structured data record without the fact")
		}
	}
}

func TestFactsDigest_Stable(t *testing.T) {
	// WHAT: The fact digest is stable for equal facts and differs when a
	// fact flips.
	f1 := &facts.Facts{Commerce: facts.CommerceFacts{HasPrice: true}}
	f2 := &facts.Facts{Commerce: facts.CommerceFacts{HasPrice: true}}
	f3 := &facts.Facts{}
	if factsDigest(f1) != factsDigest(f2) {
		t.Error("equal facts digest differently")
	}
	if factsDigest(f1) == factsDigest(f3) {
		t.Error("different facts share a digest")
	}
}
