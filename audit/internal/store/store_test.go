package store

import (
	"context"
	"testing"

	"github.com/hazyhaar/storeaudit/dbopen"
	_ "modernc.org/sqlite"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	return New(dbopen.OpenMemory(t, dbopen.WithSchema(Schema)))
}

func seedGraph(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	if err := s.UpsertProduct(ctx, Product{Key: "pk", NormalizedURL: "https://x.example.com/p/1", Locale: "en", NormalizeVersion: "v1"}); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertSnapshot(ctx, Snapshot{Key: "sk", ProductKey: "pk", CaptureVersion: "v1", Payload: []byte(`{}`)}); err != nil {
		t.Fatal(err)
	}
	err := s.SaveScoreRun(ctx,
		ScoreRun{Key: "rk", SnapshotKey: "sk", DetectorsVersion: "v1", ScoringVersion: "v1", Total: 55, Payload: []byte(`{}`)},
		[]EvidenceRow{
			{ID: "capture_mobile_screenshot_product-page_001", Kind: "screenshot", Viewport: "mobile", Seq: 1},
			{ID: "detectors_all_fact_summary_structural-facts_002", Kind: "fact_summary", Viewport: "all", Seq: 2},
		},
		[]TicketRow{
			{ID: "tk_https", Pos: 1, Title: "Serve over HTTPS", Priority: "p1", EvidenceIDs: `["detectors_all_fact_summary_structural-facts_002"]`},
		})
	if err != nil {
		t.Fatal(err)
	}
}

func TestSaveScoreRun_RoundTrip(t *testing.T) {
	// WHAT: A saved run reads back its evidence (seq order) and tickets
	// (pos order).
	s := testStore(t)
	seedGraph(t, s)
	ctx := context.Background()

	ev, err := s.ListEvidence(ctx, "rk")
	if err != nil {
		t.Fatal(err)
	}
	if len(ev) != 2 || ev[0].Seq != 1 || ev[1].Kind != "fact_summary" {
		t.Errorf("evidence = %+v", ev)
	}

	tk, err := s.ListTickets(ctx, "rk")
	if err != nil {
		t.Fatal(err)
	}
	if len(tk) != 1 || tk[0].ID != "tk_https" {
		t.Errorf("tickets = %+v", tk)
	}
}

func TestSaveScoreRun_ReplayIdentical(t *testing.T) {
	// WHAT: Re-saving the same run (cache replay) leaves one copy of
	// every child row.
	// WHY: Concurrent identical runs both persist; the result must not
	// duplicate evidence.
	s := testStore(t)
	seedGraph(t, s)
	seedGraph(t, s)

	ev, _ := s.ListEvidence(context.Background(), "rk")
	if len(ev) != 2 {
		t.Errorf("evidence rows = %d after replay, want 2", len(ev))
	}
}

func TestSaveJob_UpsertAdvancesState(t *testing.T) {
	// WHAT: SaveJob inserts then updates in place; GetJob reflects the
	// latest transition and unknown keys return nil.
	s := testStore(t)
	ctx := context.Background()

	j := Job{Key: "ak", RunKey: "rk", SnapshotKey: "sk", ProductKey: "pk",
		RenderVersion: "v1", State: "PENDING", Status: "ok"}
	if err := s.SaveJob(ctx, j); err != nil {
		t.Fatal(err)
	}
	j.State = "CAPTURING"
	j.Progress = "capturing page"
	if err := s.SaveJob(ctx, j); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetJob(ctx, "ak")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.State != "CAPTURING" || got.Progress != "capturing page" {
		t.Errorf("job = %+v", got)
	}

	missing, err := s.GetJob(ctx, "nope")
	if err != nil || missing != nil {
		t.Errorf("unknown key: job=%v err=%v", missing, err)
	}
}

func TestCascade_DeleteProduct(t *testing.T) {
	// WHAT: Deleting a product cascades through snapshots, runs, evidence,
	// and tickets.
	// WHY: The schema's ON DELETE CASCADE is the cleanup path for purges.
	s := testStore(t)
	seedGraph(t, s)
	ctx := context.Background()

	if _, err := s.DB.ExecContext(ctx, `DELETE FROM products WHERE key = 'pk'`); err != nil {
		t.Fatal(err)
	}
	ev, _ := s.ListEvidence(ctx, "rk")
	if len(ev) != 0 {
		t.Errorf("evidence survived cascade: %+v", ev)
	}
	var n int
	s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM score_runs`).Scan(&n)
	if n != 0 {
		t.Errorf("score_runs survived cascade: %d", n)
	}
}
