package pipeline

import (
	"context"
	"fmt"
	"sort"

	"github.com/esizzle/workman/internal/engine"
	"github.com/esizzle/workman/internal/meta"
)

// applyRedactions burns pending redactions into their pages and rasterizes
// each touched page so the covered content is destroyed, not overlaid.
// Redactions drawn on a rotated viewer canvas are mapped back through their
// DrawOrientation first, then clamped to the media box.
func (p *Pipeline) applyRedactions(ctx context.Context, pdf []byte, redactions []meta.Redaction) ([]byte, *RedactionResult, error) {
	res := &RedactionResult{Total: len(redactions)}
	if len(redactions) == 0 {
		return pdf, res, nil
	}

	dims, err := p.Engine.PageDims(pdf)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: reading page dimensions: %v", ErrEngine, err)
	}

	type pageWork struct {
		rects []engine.Rect
		ids   []int64
	}
	pages := make(map[int]*pageWork)

	for _, r := range redactions {
		if r.PageNumber < 0 || r.PageNumber >= len(dims) {
			res.Skipped = append(res.Skipped, SkippedEdit{
				Kind: "redaction", EditID: r.ID, PageIndex: r.PageNumber,
				Reason: fmt.Sprintf("page index out of range of working copy (%d pages)", len(dims)),
			})
			continue
		}
		box := dims[r.PageNumber]
		rect := engine.Rect{X: r.PageX, Y: r.PageY, W: r.PageWidth, H: r.PageHeight, Label: r.Text.String}

		if r.DrawOrientation.Valid && r.DrawOrientation.Int64 != 0 {
			rect, err = rect.Rotate(int(r.DrawOrientation.Int64), box)
			if err != nil {
				res.Skipped = append(res.Skipped, SkippedEdit{
					Kind: "redaction", EditID: r.ID, PageIndex: r.PageNumber, Reason: err.Error(),
				})
				continue
			}
		}

		rect = rect.Clamp(box)
		if rect.W <= 0 || rect.H <= 0 {
			res.Skipped = append(res.Skipped, SkippedEdit{
				Kind: "redaction", EditID: r.ID, PageIndex: r.PageNumber,
				Reason: "rectangle lies outside the page",
			})
			continue
		}

		w := pages[r.PageNumber]
		if w == nil {
			w = &pageWork{}
			pages[r.PageNumber] = w
		}
		w.rects = append(w.rects, rect)
		w.ids = append(w.ids, r.ID)
	}

	pageNums := make([]int, 0, len(pages))
	for page := range pages {
		pageNums = append(pageNums, page)
	}
	sort.Ints(pageNums)

	for _, page := range pageNums {
		w := pages[page]
		pdf, err = p.Engine.RedactPage(pdf, page, w.rects)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: redacting page %d: %v", ErrEngine, page, err)
		}
		res.PagesTouched = append(res.PagesTouched, page)
		res.RasterizedPages = append(res.RasterizedPages, page)

		// Mark rows individually; one failed mark does not fail the stage.
		for _, id := range w.ids {
			if err := p.Meta.MarkRedactionApplied(ctx, id); err != nil {
				p.Logger.Warn("failed to mark redaction applied", "redaction_id", id, "error", err)
				continue
			}
			res.Applied++
		}
	}

	return pdf, res, nil
}
