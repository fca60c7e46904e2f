package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/esizzle/workman/internal/meta"
	"github.com/esizzle/workman/internal/objstore"
)

// splitRange is one contiguous page range [Start, End) the split stage
// emits. Break is nil for the front section, which inherits the source
// document's type and metadata.
type splitRange struct {
	Start int
	End   int
	Break *meta.PageBreak
}

// computeRanges partitions [0, pageCount) at the break indices. Each break
// starts its own range; pages before the first break form a front section.
func computeRanges(breaks []meta.PageBreak, pageCount int) []splitRange {
	sorted := make([]meta.PageBreak, len(breaks))
	copy(sorted, breaks)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PageIndex < sorted[j].PageIndex })

	var ranges []splitRange
	if len(sorted) > 0 && sorted[0].PageIndex > 0 {
		ranges = append(ranges, splitRange{Start: 0, End: sorted[0].PageIndex})
	}
	for i := range sorted {
		end := pageCount
		if i+1 < len(sorted) {
			end = sorted[i+1].PageIndex
		}
		if end <= sorted[i].PageIndex {
			continue
		}
		ranges = append(ranges, splitRange{Start: sorted[i].PageIndex, End: end, Break: &sorted[i]})
	}
	return ranges
}

// applySplit partitions the post-edit document at its breaks. A single
// break at page 0 degenerates to a rename: the source row takes the
// break's type and metadata and no new documents are produced. Otherwise
// every range becomes a new document; derived rows, break consumption, the
// source's Obsolete transition and the audit trail commit in one
// transaction, with object writes completing before the commit.
func (p *Pipeline) applySplit(ctx context.Context, src *meta.Document, pdf []byte, breaks []meta.PageBreak, pageCount int, deadline time.Time) (*SplitResult, error) {
	if len(breaks) == 1 && breaks[0].PageIndex == 0 {
		return p.renameOnly(ctx, src, breaks[0])
	}
	return p.fullSplit(ctx, src, pdf, breaks, pageCount, deadline)
}

func (p *Pipeline) renameOnly(ctx context.Context, src *meta.Document, brk meta.PageBreak) (*SplitResult, error) {
	if err := p.Meta.SetDocTypeAndMeta(ctx, src.ID, brk.ImageDocumentTypeID, brk.DocumentDate, brk.Comments); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMeta, err)
	}
	if err := p.Meta.MarkBreakProcessed(ctx, brk.ID, src.ID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMeta, err)
	}
	p.Logger.Info("document renamed in place",
		"image_id", src.ID, "doc_type_id", brk.ImageDocumentTypeID)

	return &SplitResult{
		Strategy: StrategyRenameOnly,
		SplitImages: []SplitImage{{
			ImageID:        src.ID,
			DocumentTypeID: brk.ImageDocumentTypeID,
			PageStart:      0,
			PageEnd:        src.PageCount,
			PageCount:      src.PageCount,
			SplitType:      meta.SplitTypePageBreak,
		}},
	}, nil
}

func (p *Pipeline) fullSplit(ctx context.Context, src *meta.Document, pdf []byte, breaks []meta.PageBreak, pageCount int, deadline time.Time) (*SplitResult, error) {
	ranges := computeRanges(breaks, pageCount)
	if len(ranges) == 0 {
		return &SplitResult{Strategy: StrategyFullSplit}, nil
	}

	tx, err := p.Meta.BeginSplit(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMeta, err)
	}
	defer tx.Rollback()

	res := &SplitResult{Strategy: StrategyFullSplit}
	for _, rg := range ranges {
		docTypeID, docDate, comments, splitType := rangeMeta(src, rg)

		newID, err := tx.InsertDerivedDocument(src, docTypeID, rg.End-rg.Start, rg.Start, rg.End, docDate, comments, splitType)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMeta, err)
		}

		part, err := p.Engine.ExtractPages(pdf, rg.Start, rg.End)
		if err != nil {
			return nil, fmt.Errorf("%w: extracting pages %d-%d: %v", ErrEngine, rg.Start, rg.End, err)
		}

		if err := p.checkDeadline(deadline); err != nil {
			return nil, err
		}
		for _, stage := range []objstore.Stage{objstore.StageProcessing, objstore.StageOriginal, objstore.StageProduction} {
			key := objstore.Key(stage, src.Path, newID)
			if err := p.Objects.Put(ctx, key, part, objstore.ContentTypePDF); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrStore, err)
			}
		}

		if rg.Break != nil {
			if err := tx.MarkBreakProcessed(rg.Break.ID, newID); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMeta, err)
			}
		}
		if err := tx.InsertSplitLog(src.ID, newID); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMeta, err)
		}

		res.SplitImages = append(res.SplitImages, SplitImage{
			ImageID:        newID,
			DocumentTypeID: docTypeID,
			PageStart:      rg.Start,
			PageEnd:        rg.End,
			PageCount:      rg.End - rg.Start,
			SplitType:      splitType,
		})
	}

	if err := tx.SetStatus(src.ID, meta.StatusObsolete); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMeta, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMeta, err)
	}

	p.Logger.Info("document split",
		"image_id", src.ID, "derived", len(res.SplitImages))
	return res, nil
}

// rangeMeta resolves the new document's type and metadata. Ranges born from
// a break take the break's values; the front section inherits the source's.
func rangeMeta(src *meta.Document, rg splitRange) (int64, sql.NullTime, string, string) {
	if rg.Break != nil {
		return rg.Break.ImageDocumentTypeID, rg.Break.DocumentDate, rg.Break.Comments.String, meta.SplitTypePageBreak
	}
	var docTypeID int64
	if src.DocTypeManualID.Valid {
		docTypeID = src.DocTypeManualID.Int64
	}
	return docTypeID, src.DocumentDate, src.Comments.String, meta.SplitTypeFrontSection
}
