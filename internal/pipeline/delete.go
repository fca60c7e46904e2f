package pipeline

import (
	"context"
	"fmt"
	"sort"

	"github.com/esizzle/workman/internal/meta"
)

// applyDeletions removes the requested pages. When the request covers every
// page the stage short-circuits: the buffer is untouched and the caller
// tombstones the document instead of writing a zero-page PDF.
func (p *Pipeline) applyDeletions(ctx context.Context, pdf []byte, deletions []meta.PageDeletion, pageCount int) ([]byte, *DeletionResult, error) {
	res := &DeletionResult{Requested: len(deletions), FinalPageCount: pageCount}
	if len(deletions) == 0 {
		return pdf, res, nil
	}

	seen := make(map[int]bool)
	for _, d := range deletions {
		seen[d.PageIndex] = true
	}
	pages := make([]int, 0, len(seen))
	for page := range seen {
		pages = append(pages, page)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(pages)))
	res.DeletedPages = pages

	if len(pages) >= pageCount {
		res.DocumentDeleted = true
		res.FinalPageCount = 0
		p.markDeletionsProcessed(ctx, deletions)
		return pdf, res, nil
	}

	pdf, err := p.Engine.DeletePages(pdf, pages)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: deleting pages: %v", ErrEngine, err)
	}
	res.FinalPageCount = pageCount - len(pages)
	p.markDeletionsProcessed(ctx, deletions)

	return pdf, res, nil
}

func (p *Pipeline) markDeletionsProcessed(ctx context.Context, deletions []meta.PageDeletion) {
	for _, d := range deletions {
		if err := p.Meta.MarkDeletionProcessed(ctx, d.ID); err != nil {
			p.Logger.Warn("failed to mark deletion processed", "deletion_id", d.ID, "error", err)
		}
	}
}
