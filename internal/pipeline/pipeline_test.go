package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/esizzle/workman/internal/meta"
	"github.com/esizzle/workman/internal/objstore"
	"github.com/esizzle/workman/internal/payload"
)

func testDoc(id int64, pages int) *meta.Document {
	return &meta.Document{
		ID:              id,
		OfferingID:      3,
		LoanID:          44,
		Status:          meta.StatusNeedsImageManipulation,
		DocTypeManualID: sql.NullInt64{Int64: 99, Valid: true},
		PageCount:       pages,
		Path:            "0221/lf/loans",
		DateCreated:     time.Now().Add(-time.Hour),
		DateUpdated:     time.Now().Add(-time.Hour),
	}
}

func testPipeline(doc *meta.Document) (*Pipeline, *fakeMeta, *fakeObjects, *fakeEngine, *fakeReporter) {
	m := newFakeMeta(doc)
	o := newFakeObjects()
	e := &fakeEngine{}
	r := &fakeReporter{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	p := New(m, o, e, r, logger)
	return p, m, o, e, r
}

func seedWorkingCopy(o *fakeObjects, doc *meta.Document) string {
	key := objstore.Key(objstore.StageProcessing, doc.Path, doc.ID)
	o.objects[key] = pagesPDF(doc.PageCount)
	return key
}

func contains(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}

func runProcess(t *testing.T, p *Pipeline, imageID int64) *Result {
	t.Helper()
	out, err := p.Run(context.Background(), &payload.Invocation{
		Operation: payload.OpProcessManipulations,
		ImageID:   imageID,
		SessionID: "sess-1",
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	res, ok := out.(*Result)
	if !ok {
		t.Fatalf("unexpected result type %T", out)
	}
	return res
}

func TestProcessManipulationsNoOp(t *testing.T) {
	doc := testDoc(500, 5)
	p, m, o, _, r := testPipeline(doc)
	seedWorkingCopy(o, doc)
	o.puts = nil

	res := runProcess(t, p, 500)

	if len(res.OperationsApplied) != 0 {
		t.Errorf("expected no operations, got %v", res.OperationsApplied)
	}
	if res.FinalPageCount != 5 {
		t.Errorf("expected page count 5, got %d", res.FinalPageCount)
	}
	if len(o.puts) != 0 {
		t.Errorf("expected no object writes, got %v", o.puts)
	}
	// Claimed then put back where it was.
	if len(m.statuses) != 2 || m.statuses[0] != meta.StatusInWorkman || m.statuses[1] != meta.StatusNeedsImageManipulation {
		t.Errorf("unexpected status sequence %v", m.statuses)
	}
	if !r.completed {
		t.Error("expected completion callback")
	}
}

func TestProcessManipulationsRedaction(t *testing.T) {
	doc := testDoc(500, 3)
	p, m, o, e, _ := testPipeline(doc)
	procKey := seedWorkingCopy(o, doc)

	m.redactions = []meta.Redaction{{
		ID: 9, ImageID: 500, PageNumber: 1,
		PageX: 50, PageY: 50, PageWidth: 100, PageHeight: 20,
	}}

	res := runProcess(t, p, 500)

	backupKey := objstore.Key(objstore.StageRedactOriginal, doc.Path, doc.ID)
	if !contains(o.puts, backupKey) {
		t.Error("expected a backup before destructive edits")
	}
	if len(e.redactedPages) != 1 || e.redactedPages[0] != 1 {
		t.Errorf("expected page 1 redacted, got %v", e.redactedPages)
	}
	if len(m.appliedRedactions) != 1 || m.appliedRedactions[0] != 9 {
		t.Errorf("expected redaction 9 marked applied, got %v", m.appliedRedactions)
	}
	if !m.redacted {
		t.Error("expected the document flagged redacted")
	}
	if !contains(o.puts, procKey) {
		t.Error("expected the working copy written back")
	}
	if doc.Status != meta.StatusNeedsProcessing {
		t.Errorf("expected NeedsProcessing, got %s", doc.Status)
	}
	if res.RedactionResult == nil || res.RedactionResult.Applied != 1 {
		t.Fatalf("unexpected redaction result %+v", res.RedactionResult)
	}
	if len(res.RedactionResult.RasterizedPages) != 1 || res.RedactionResult.RasterizedPages[0] != 1 {
		t.Errorf("expected page 1 rasterized, got %v", res.RedactionResult.RasterizedPages)
	}
	if res.FinalPageCount != 3 {
		t.Errorf("expected page count unchanged, got %d", res.FinalPageCount)
	}
}

// A row's PageCount can overstate the stored object, for example after an
// interrupted run that deleted pages but never wrote the count back. Edits
// recorded against the missing pages must be skipped, not applied or
// crashed on.
func TestProcessManipulationsStalePageCount(t *testing.T) {
	doc := testDoc(500, 10)
	p, m, o, e, r := testPipeline(doc)
	key := objstore.Key(objstore.StageProcessing, doc.Path, doc.ID)
	o.objects[key] = pagesPDF(3)

	m.redactions = []meta.Redaction{{
		ID: 9, ImageID: 500, PageNumber: 5,
		PageX: 50, PageY: 50, PageWidth: 100, PageHeight: 20,
	}}
	m.rotations = []meta.Rotation{{ID: 4, ImageID: 500, PageIndex: 8, Rotate: 90}}
	m.deletions = []meta.PageDeletion{{ID: 2, ImageID: 500, PageIndex: 7}}

	res := runProcess(t, p, 500)

	if len(res.OperationsApplied) != 0 {
		t.Errorf("expected no operations on missing pages, got %v", res.OperationsApplied)
	}
	if len(res.SkippedEdits) != 3 {
		t.Fatalf("expected 3 skipped edits, got %+v", res.SkippedEdits)
	}
	for _, s := range res.SkippedEdits {
		if s.Reason == "" {
			t.Errorf("skipped edit %+v has no reason", s)
		}
	}
	if len(e.redactedPages) != 0 || len(e.rotatedPages) != 0 {
		t.Errorf("engine touched pages: redacted %v rotated %v", e.redactedPages, e.rotatedPages)
	}
	if len(m.appliedRedactions) != 0 {
		t.Errorf("expected no redactions marked applied, got %v", m.appliedRedactions)
	}
	if res.FinalPageCount != 3 {
		t.Errorf("expected final page count 3, got %d", res.FinalPageCount)
	}
	if doc.Status != meta.StatusNeedsProcessing {
		t.Errorf("expected NeedsProcessing, got %s", doc.Status)
	}
	if !r.completed || r.failed {
		t.Errorf("expected a clean completion, got completed=%v failed=%v", r.completed, r.failed)
	}
}

func TestProcessManipulationsRotationDuplicates(t *testing.T) {
	doc := testDoc(500, 3)
	p, m, o, e, _ := testPipeline(doc)
	seedWorkingCopy(o, doc)

	m.rotations = []meta.Rotation{
		{ID: 1, ImageID: 500, PageIndex: 0, Rotate: 90},
		{ID: 2, ImageID: 500, PageIndex: 0, Rotate: 180},
		{ID: 3, ImageID: 500, PageIndex: 2, Rotate: 270},
	}

	res := runProcess(t, p, 500)

	if res.RotationResult == nil || res.RotationResult.Applied != 2 {
		t.Fatalf("unexpected rotation result %+v", res.RotationResult)
	}
	if len(res.RotationResult.Duplicates) != 1 || res.RotationResult.Duplicates[0] != 0 {
		t.Errorf("expected duplicate report for page 0, got %v", res.RotationResult.Duplicates)
	}
	if len(e.rotatedPages) != 2 {
		t.Errorf("expected 2 rotations applied, got %v", e.rotatedPages)
	}
}

func TestProcessManipulationsDeleteAll(t *testing.T) {
	doc := testDoc(500, 2)
	p, m, o, _, r := testPipeline(doc)
	procKey := seedWorkingCopy(o, doc)

	m.deletions = []meta.PageDeletion{
		{ID: 1, ImageID: 500, PageIndex: 0},
		{ID: 2, ImageID: 500, PageIndex: 1},
	}

	res := runProcess(t, p, 500)

	if !res.DocumentDeleted {
		t.Fatal("expected documentDeleted")
	}
	if res.FinalPageCount != 0 {
		t.Errorf("expected final page count 0, got %d", res.FinalPageCount)
	}
	if !m.tombstoned {
		t.Error("expected the document tombstoned")
	}
	if contains(o.puts, procKey) {
		t.Error("expected no working-copy write for a fully deleted document")
	}
	if len(m.processedDeletions) != 2 {
		t.Errorf("expected both deletions marked processed, got %v", m.processedDeletions)
	}
	if !r.completed {
		t.Error("expected completion callback")
	}
}

func TestProcessManipulationsRenameOnlySplit(t *testing.T) {
	doc := testDoc(500, 4)
	p, m, o, _, _ := testPipeline(doc)
	procKey := seedWorkingCopy(o, doc)

	m.breaks = []meta.PageBreak{{
		ID: 7, ImageID: 500, PageIndex: 0, ImageDocumentTypeID: 42,
	}}

	res := runProcess(t, p, 500)

	if res.SplitResult == nil || res.SplitResult.Strategy != StrategyRenameOnly {
		t.Fatalf("unexpected split result %+v", res.SplitResult)
	}
	if m.docTypeSet == nil || *m.docTypeSet != 42 {
		t.Errorf("expected document type 42, got %v", m.docTypeSet)
	}
	if got := m.processedBreaks[7]; got != 500 {
		t.Errorf("expected break 7 to point at the source document, got %d", got)
	}
	if m.tx != nil {
		t.Error("expected no split transaction for a rename")
	}
	if !contains(o.puts, procKey) {
		t.Error("expected the working copy written back")
	}
	if doc.Status != meta.StatusNeedsProcessing {
		t.Errorf("expected NeedsProcessing, got %s", doc.Status)
	}
}

func TestProcessManipulationsFullSplit(t *testing.T) {
	doc := testDoc(500, 10)
	p, m, o, _, _ := testPipeline(doc)
	procKey := seedWorkingCopy(o, doc)

	m.breaks = []meta.PageBreak{
		{ID: 21, ImageID: 500, PageIndex: 3, ImageDocumentTypeID: 11},
		{ID: 22, ImageID: 500, PageIndex: 7, ImageDocumentTypeID: 12},
	}

	res := runProcess(t, p, 500)

	if res.SplitResult == nil || res.SplitResult.Strategy != StrategyFullSplit {
		t.Fatalf("unexpected split result %+v", res.SplitResult)
	}
	if len(res.SplitResult.SplitImages) != 3 {
		t.Fatalf("expected 3 derived documents, got %d", len(res.SplitResult.SplitImages))
	}

	tx := m.tx
	if tx == nil || !tx.committed {
		t.Fatal("expected a committed split transaction")
	}
	want := []insertedDoc{
		{docTypeID: 99, pageCount: 3, rangeStart: 0, rangeEnd: 3, splitType: meta.SplitTypeFrontSection},
		{docTypeID: 11, pageCount: 4, rangeStart: 3, rangeEnd: 7, splitType: meta.SplitTypePageBreak},
		{docTypeID: 12, pageCount: 3, rangeStart: 7, rangeEnd: 10, splitType: meta.SplitTypePageBreak},
	}
	if len(tx.inserted) != len(want) {
		t.Fatalf("expected %d inserts, got %d", len(want), len(tx.inserted))
	}
	for i, w := range want {
		if tx.inserted[i] != w {
			t.Errorf("insert %d: expected %+v, got %+v", i, w, tx.inserted[i])
		}
	}
	if tx.breaks[21] != 102 || tx.breaks[22] != 103 {
		t.Errorf("unexpected break consumption %v", tx.breaks)
	}
	if len(tx.logs) != 3 {
		t.Errorf("expected 3 split log rows, got %d", len(tx.logs))
	}
	if tx.statuses[500] != meta.StatusObsolete {
		t.Errorf("expected source Obsolete in the transaction, got %s", tx.statuses[500])
	}

	// Each derived document gets a processing, original and production
	// copy; the source working copy is never rewritten.
	for _, img := range res.SplitResult.SplitImages {
		for _, stage := range []objstore.Stage{objstore.StageProcessing, objstore.StageOriginal, objstore.StageProduction} {
			key := objstore.Key(stage, doc.Path, img.ImageID)
			data, ok := o.objects[key]
			if !ok {
				t.Errorf("missing object %s", key)
				continue
			}
			if len(data) == 0 {
				t.Errorf("empty object %s", key)
			}
		}
	}
	if contains(o.puts, procKey) {
		t.Error("expected no source write-back after a split")
	}

	total := 0
	for _, img := range res.SplitResult.SplitImages {
		total += img.PageCount
	}
	if total != 10 {
		t.Errorf("split ranges cover %d pages, want 10", total)
	}
}

func TestProcessManipulationsDeadline(t *testing.T) {
	doc := testDoc(500, 100)
	p, m, o, _, r := testPipeline(doc)
	seedWorkingCopy(o, doc)

	m.redactions = []meta.Redaction{{
		ID: 9, ImageID: 500, PageNumber: 0,
		PageX: 10, PageY: 10, PageWidth: 50, PageHeight: 20,
	}}
	m.breaks = []meta.PageBreak{{ID: 7, ImageID: 500, PageIndex: 50, ImageDocumentTypeID: 1}}

	_, err := p.Run(context.Background(), &payload.Invocation{
		Operation: payload.OpProcessManipulations,
		ImageID:   500,
		SessionID: "sess-1",
		Timeout:   1,
	})
	if !errors.Is(err, ErrDeadline) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if doc.Status != meta.StatusNeedsImageManipulation {
		t.Errorf("expected status reset, got %s", doc.Status)
	}
	if !r.failed {
		t.Error("expected error callback")
	}
	if len(m.processedBreaks) != 0 {
		t.Errorf("expected no break consumed, got %v", m.processedBreaks)
	}
}

func TestProcessManipulationsBusy(t *testing.T) {
	doc := testDoc(500, 5)
	doc.Status = meta.StatusInWorkman
	doc.DateUpdated = time.Now()
	p, m, o, _, r := testPipeline(doc)
	seedWorkingCopy(o, doc)

	_, err := p.Run(context.Background(), &payload.Invocation{
		Operation: payload.OpProcessManipulations,
		ImageID:   500,
		SessionID: "sess-1",
	})
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("expected busy error, got %v", err)
	}
	if len(m.statuses) != 0 {
		t.Errorf("expected no status mutation, got %v", m.statuses)
	}
	if !r.failed {
		t.Error("expected error callback")
	}
}

func TestProcessManipulationsReclaimsStaleClaim(t *testing.T) {
	doc := testDoc(500, 5)
	doc.Status = meta.StatusInWorkman
	doc.DateUpdated = time.Now().Add(-time.Hour)
	p, _, o, _, _ := testPipeline(doc)
	seedWorkingCopy(o, doc)
	p.RecoveryWindow = 30 * time.Minute

	res := runProcess(t, p, 500)
	if len(res.OperationsApplied) != 0 {
		t.Errorf("expected no operations, got %v", res.OperationsApplied)
	}
}

func TestProcessManipulationsDocumentNotFound(t *testing.T) {
	doc := testDoc(500, 5)
	p, _, _, _, r := testPipeline(doc)

	_, err := p.Run(context.Background(), &payload.Invocation{
		Operation: payload.OpProcessManipulations,
		ImageID:   999,
		SessionID: "sess-1",
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}
	if !r.failed {
		t.Error("expected error callback")
	}
}

func TestSplitDocumentOperation(t *testing.T) {
	doc := testDoc(500, 6)
	p, m, o, _, _ := testPipeline(doc)
	seedWorkingCopy(o, doc)

	out, err := p.Run(context.Background(), &payload.Invocation{
		Operation: payload.OpSplitDocument,
		ImageID:   500,
		SessionID: "sess-1",
		Bookmarks: []payload.Bookmark{
			{BookmarkID: 31, PageIndex: 2, DocumentTypeID: 11, DocumentTypeName: "Note"},
		},
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	res := out.(*Result)

	if res.SplitResult == nil || res.SplitResult.Strategy != StrategyFullSplit {
		t.Fatalf("unexpected split result %+v", res.SplitResult)
	}
	if len(res.SplitResult.SplitImages) != 2 {
		t.Fatalf("expected front section plus one break range, got %d", len(res.SplitResult.SplitImages))
	}
	if m.tx == nil || !m.tx.committed {
		t.Fatal("expected a committed split transaction")
	}
	if m.tx.statuses[500] != meta.StatusObsolete {
		t.Errorf("expected source Obsolete, got %s", m.tx.statuses[500])
	}
}

func TestHealthCheck(t *testing.T) {
	doc := testDoc(500, 5)
	p, _, o, _, _ := testPipeline(doc)
	seedWorkingCopy(o, doc)

	out, err := p.Run(context.Background(), &payload.Invocation{
		Operation: payload.OpHealthCheck,
		ImageID:   500,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	health := out.(*HealthResult)

	if health.Status != "healthy" {
		t.Errorf("expected healthy, got %s (%v)", health.Status, health.Checks)
	}
	if health.Checks["document"] != "ok" {
		t.Errorf("expected document check ok, got %q", health.Checks["document"])
	}
}

func TestUnknownOperation(t *testing.T) {
	doc := testDoc(500, 5)
	p, _, _, _, _ := testPipeline(doc)

	_, err := p.Run(context.Background(), &payload.Invocation{Operation: "explode", ImageID: 500})
	if !errors.Is(err, ErrPayloadInvalid) {
		t.Fatalf("expected payload error, got %v", err)
	}
	if StatusCodeFor(err) != 400 {
		t.Errorf("expected status 400, got %d", StatusCodeFor(err))
	}
}
