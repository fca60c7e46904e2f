package pipeline

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"

	"github.com/esizzle/workman/internal/meta"
)

func TestLoadEditsValidation(t *testing.T) {
	m := newFakeMeta(testDoc(500, 5))
	m.redactions = []meta.Redaction{
		{ID: 1, PageNumber: 1, PageX: 10, PageY: 10, PageWidth: 50, PageHeight: 20},
		{ID: 2, PageNumber: 9, PageX: 10, PageY: 10, PageWidth: 50, PageHeight: 20},
		{ID: 3, PageNumber: 1, PageX: 10, PageY: 10, PageWidth: 0, PageHeight: 20},
		{ID: 4, PageNumber: 1, PageX: -5, PageY: 10, PageWidth: 50, PageHeight: 20},
		{ID: 5, PageNumber: 1, PageX: 10, PageY: 10, PageWidth: 50, PageHeight: 20,
			DrawOrientation: sql.NullInt64{Int64: 45, Valid: true}},
	}
	m.rotations = []meta.Rotation{
		{ID: 10, PageIndex: 0, Rotate: 90},
		{ID: 11, PageIndex: 0, Rotate: 33},
		{ID: 12, PageIndex: 8, Rotate: 90},
	}
	m.deletions = []meta.PageDeletion{
		{ID: 20, PageIndex: 4},
		{ID: 21, PageIndex: 5},
	}
	m.breaks = []meta.PageBreak{
		{ID: 30, PageIndex: 2, ImageDocumentTypeID: 1},
		{ID: 31, PageIndex: 2, ImageDocumentTypeID: 1,
			ResultImageID: sql.NullInt64{Int64: 77, Valid: true}},
		{ID: 32, PageIndex: -1, ImageDocumentTypeID: 1},
	}

	p := New(m, newFakeObjects(), &fakeEngine{}, &fakeReporter{},
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	bundle, err := p.loadEdits(context.Background(), 500, 5)
	if err != nil {
		t.Fatalf("loadEdits failed: %v", err)
	}

	if len(bundle.Redactions) != 1 || bundle.Redactions[0].ID != 1 {
		t.Errorf("expected only redaction 1 to survive, got %+v", bundle.Redactions)
	}
	if len(bundle.Rotations) != 1 || bundle.Rotations[0].ID != 10 {
		t.Errorf("expected only rotation 10 to survive, got %+v", bundle.Rotations)
	}
	if len(bundle.Deletions) != 1 || bundle.Deletions[0].ID != 20 {
		t.Errorf("expected only deletion 20 to survive, got %+v", bundle.Deletions)
	}
	// Break 31 is already materialized and is silently skipped, not reported.
	if len(bundle.Breaks) != 1 || bundle.Breaks[0].ID != 30 {
		t.Errorf("expected only break 30 to survive, got %+v", bundle.Breaks)
	}

	if bundle.Total() != 4 {
		t.Errorf("expected 4 surviving edits, got %d", bundle.Total())
	}
	if len(bundle.Skipped) != 8 {
		t.Errorf("expected 8 skipped rows, got %d: %+v", len(bundle.Skipped), bundle.Skipped)
	}
	for _, s := range bundle.Skipped {
		if s.Reason == "" {
			t.Errorf("skipped row %+v has no reason", s)
		}
	}
}
