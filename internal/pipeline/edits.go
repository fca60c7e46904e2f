package pipeline

import (
	"context"
	"fmt"

	"github.com/esizzle/workman/internal/meta"
)

// EditBundle is the normalized set of pending edits for one document,
// validated against the document's current page count. Invalid rows are
// moved to Skipped with a reason; they never abort the run.
type EditBundle struct {
	Redactions []meta.Redaction
	Rotations  []meta.Rotation
	Deletions  []meta.PageDeletion
	Breaks     []meta.PageBreak
	Skipped    []SkippedEdit
}

// Total counts the edits that survived validation.
func (b *EditBundle) Total() int {
	return len(b.Redactions) + len(b.Rotations) + len(b.Deletions) + len(b.Breaks)
}

// loadEdits reads the four edit collections and validates each row. Page
// indices recorded against an older page count may be stale, so bounds are
// re-checked here against the live document.
func (p *Pipeline) loadEdits(ctx context.Context, imageID int64, pageCount int) (*EditBundle, error) {
	bundle := &EditBundle{}

	redactions, err := p.Meta.PendingRedactions(ctx, imageID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMeta, err)
	}
	for _, r := range redactions {
		if reason := validateRedaction(r, pageCount); reason != "" {
			bundle.Skipped = append(bundle.Skipped, SkippedEdit{
				Kind: "redaction", EditID: r.ID, PageIndex: r.PageNumber, Reason: reason,
			})
			continue
		}
		bundle.Redactions = append(bundle.Redactions, r)
	}

	rotations, err := p.Meta.Rotations(ctx, imageID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMeta, err)
	}
	for _, r := range rotations {
		if reason := validateRotation(r, pageCount); reason != "" {
			bundle.Skipped = append(bundle.Skipped, SkippedEdit{
				Kind: "rotation", EditID: r.ID, PageIndex: r.PageIndex, Reason: reason,
			})
			continue
		}
		bundle.Rotations = append(bundle.Rotations, r)
	}

	deletions, err := p.Meta.PageDeletions(ctx, imageID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMeta, err)
	}
	for _, d := range deletions {
		if d.PageIndex < 0 || d.PageIndex >= pageCount {
			bundle.Skipped = append(bundle.Skipped, SkippedEdit{
				Kind: "deletion", EditID: d.ID, PageIndex: d.PageIndex,
				Reason: fmt.Sprintf("page index out of range [0, %d)", pageCount),
			})
			continue
		}
		bundle.Deletions = append(bundle.Deletions, d)
	}

	breaks, err := p.Meta.PageBreaks(ctx, imageID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMeta, err)
	}
	for _, b := range breaks {
		if b.ResultImageID.Valid {
			// Already materialized on a prior run.
			continue
		}
		if b.PageIndex < 0 || b.PageIndex >= pageCount {
			bundle.Skipped = append(bundle.Skipped, SkippedEdit{
				Kind: "page_break", EditID: b.ID, PageIndex: b.PageIndex,
				Reason: fmt.Sprintf("page index out of range [0, %d)", pageCount),
			})
			continue
		}
		bundle.Breaks = append(bundle.Breaks, b)
	}

	return bundle, nil
}

// dropBeyond removes edits recorded against pages past the live page
// count. The row's PageCount can lag the stored object after an
// interrupted run, so bounds are re-checked once the buffer is open.
func (b *EditBundle) dropBeyond(pageCount int) {
	reason := fmt.Sprintf("page index out of range of working copy (%d pages)", pageCount)

	kept := b.Redactions[:0]
	for _, r := range b.Redactions {
		if r.PageNumber >= pageCount {
			b.Skipped = append(b.Skipped, SkippedEdit{
				Kind: "redaction", EditID: r.ID, PageIndex: r.PageNumber, Reason: reason,
			})
			continue
		}
		kept = append(kept, r)
	}
	b.Redactions = kept

	rots := b.Rotations[:0]
	for _, r := range b.Rotations {
		if r.PageIndex >= pageCount {
			b.Skipped = append(b.Skipped, SkippedEdit{
				Kind: "rotation", EditID: r.ID, PageIndex: r.PageIndex, Reason: reason,
			})
			continue
		}
		rots = append(rots, r)
	}
	b.Rotations = rots

	dels := b.Deletions[:0]
	for _, d := range b.Deletions {
		if d.PageIndex >= pageCount {
			b.Skipped = append(b.Skipped, SkippedEdit{
				Kind: "deletion", EditID: d.ID, PageIndex: d.PageIndex, Reason: reason,
			})
			continue
		}
		dels = append(dels, d)
	}
	b.Deletions = dels

	brks := b.Breaks[:0]
	for _, br := range b.Breaks {
		if br.PageIndex >= pageCount {
			b.Skipped = append(b.Skipped, SkippedEdit{
				Kind: "page_break", EditID: br.ID, PageIndex: br.PageIndex, Reason: reason,
			})
			continue
		}
		brks = append(brks, br)
	}
	b.Breaks = brks
}

func validateRedaction(r meta.Redaction, pageCount int) string {
	if r.PageNumber < 0 || r.PageNumber >= pageCount {
		return fmt.Sprintf("page index out of range [0, %d)", pageCount)
	}
	if r.PageWidth <= 0 || r.PageHeight <= 0 {
		return "non-positive dimensions"
	}
	if r.PageX < 0 || r.PageY < 0 {
		return "negative origin"
	}
	if r.DrawOrientation.Valid {
		switch r.DrawOrientation.Int64 {
		case 0, 90, 180, 270:
		default:
			return fmt.Sprintf("unsupported draw orientation %d", r.DrawOrientation.Int64)
		}
	}
	return ""
}

func validateRotation(r meta.Rotation, pageCount int) string {
	if r.PageIndex < 0 || r.PageIndex >= pageCount {
		return fmt.Sprintf("page index out of range [0, %d)", pageCount)
	}
	switch r.Rotate {
	case 0, 90, 180, 270:
	default:
		return fmt.Sprintf("unsupported rotation angle %d", r.Rotate)
	}
	return ""
}
