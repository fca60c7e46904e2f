// Package pipeline is the manipulation pipeline: the ordered composition
// of redaction, rotation, deletion and splitting over one document, plus
// the bookkeeping that makes the outcome observable. Stages pass an
// in-memory PDF buffer and accumulate a Result; the orchestrator owns the
// single failure path that resets status and reports the error.
package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/esizzle/workman/internal/engine"
	"github.com/esizzle/workman/internal/meta"
	"github.com/esizzle/workman/internal/objstore"
	"github.com/esizzle/workman/internal/payload"
)

// MetaStore is the metadata surface the pipeline uses. *meta.Store
// satisfies it through AdaptMeta; tests substitute a fake.
type MetaStore interface {
	GetDocument(ctx context.Context, id int64) (*meta.Document, error)
	PendingRedactions(ctx context.Context, imageID int64) ([]meta.Redaction, error)
	Rotations(ctx context.Context, imageID int64) ([]meta.Rotation, error)
	PageDeletions(ctx context.Context, imageID int64) ([]meta.PageDeletion, error)
	PageBreaks(ctx context.Context, imageID int64) ([]meta.PageBreak, error)
	MarkRedactionApplied(ctx context.Context, redactionID int64) error
	MarkDeletionProcessed(ctx context.Context, deletionID int64) error
	MarkBreakProcessed(ctx context.Context, breakID, resultImageID int64) error
	SetStatus(ctx context.Context, imageID int64, status meta.Status) error
	SetPageCount(ctx context.Context, imageID int64, pageCount int) error
	SetRedacted(ctx context.Context, imageID int64) error
	SetDocTypeAndMeta(ctx context.Context, imageID, docTypeID int64, docDate sql.NullTime, comments sql.NullString) error
	TombstoneDocument(ctx context.Context, imageID int64) error
	BeginSplit(ctx context.Context) (SplitCommitter, error)
	QueueStats(ctx context.Context) (*meta.QueueStats, error)
	Ping(ctx context.Context) error
}

// SplitCommitter is the transactional scope of one split commit.
type SplitCommitter interface {
	InsertDerivedDocument(src *meta.Document, docTypeID int64, pageCount, rangeStart, rangeEnd int, docDate sql.NullTime, comments, splitType string) (int64, error)
	MarkBreakProcessed(breakID, resultImageID int64) error
	SetStatus(imageID int64, status meta.Status) error
	InsertSplitLog(originalImageID, splitImageID int64) error
	Commit() error
	Rollback() error
}

// ObjectStore is the object-store surface the pipeline uses.
type ObjectStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Head(ctx context.Context, key string) (bool, error)
	Copy(ctx context.Context, srcKey, dstKey string) error
}

// Reporter delivers progress callbacks. Delivery is best-effort; the
// pipeline never checks outcomes.
type Reporter interface {
	Report(ctx context.Context, sessionID string, imageID int64, progress int, message string)
	Completed(ctx context.Context, sessionID string, imageID int64, data map[string]any)
	Failed(ctx context.Context, sessionID string, imageID int64, errMsg string)
}

// Pipeline runs one invocation against one document. Construct with New;
// the adapter fields are exported so tests can install fakes directly.
type Pipeline struct {
	Meta     MetaStore
	Objects  ObjectStore
	Engine   engine.Engine
	Reporter Reporter
	Logger   *slog.Logger

	// DefaultTimeout is the wall-clock budget when the invocation does not
	// carry its own. SafetyMargin aborts the run early; RecoveryWindow
	// allows reclaiming a stale InWorkman document (zero = fail fast).
	DefaultTimeout time.Duration
	SafetyMargin   time.Duration
	RecoveryWindow time.Duration

	now func() time.Time
}

// New builds a Pipeline with the standard timing defaults.
func New(m MetaStore, o ObjectStore, e engine.Engine, r Reporter, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		Meta:           m,
		Objects:        o,
		Engine:         e,
		Reporter:       r,
		Logger:         logger,
		DefaultTimeout: 14 * time.Minute,
		SafetyMargin:   60 * time.Second,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// metaAdapter lifts *meta.Store to the MetaStore interface; the only
// mismatch is BeginSplit's concrete return type.
type metaAdapter struct{ *meta.Store }

func (a metaAdapter) BeginSplit(ctx context.Context) (SplitCommitter, error) {
	return a.Store.BeginSplit(ctx)
}

// AdaptMeta wraps the concrete metadata store for use as a MetaStore.
func AdaptMeta(s *meta.Store) MetaStore { return metaAdapter{s} }

// Run executes one invocation and returns its result record. The returned
// error is one of the sentinel kinds in errors.go, wrapped with detail.
func (p *Pipeline) Run(ctx context.Context, inv *payload.Invocation) (any, error) {
	start := p.clock()
	timeout := p.DefaultTimeout
	if inv.Timeout > 0 {
		timeout = time.Duration(inv.Timeout) * time.Second
	}
	deadline := start.Add(timeout)

	p.Logger.Info("invocation started",
		"operation", inv.Operation, "image_id", inv.ImageID,
		"session_id", inv.SessionID, "timeout", timeout)

	switch inv.Operation {
	case payload.OpHealthCheck:
		return p.healthCheck(ctx, inv)
	case payload.OpProcessManipulations:
		return p.processManipulations(ctx, inv, start, deadline)
	case payload.OpSplitDocument:
		return p.splitDocument(ctx, inv, start, deadline)
	}
	return nil, fmt.Errorf("%w: unknown operation %q", ErrPayloadInvalid, inv.Operation)
}

// claimDocument loads the row and transitions it to InWorkman. A document
// already InWorkman is refused unless its last update is older than the
// recovery window.
func (p *Pipeline) claimDocument(ctx context.Context, imageID int64) (*meta.Document, error) {
	doc, err := p.Meta.GetDocument(ctx, imageID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMeta, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: document %d", ErrNotFound, imageID)
	}

	if doc.Status == meta.StatusInWorkman {
		age := p.clock().Sub(doc.DateUpdated)
		if p.RecoveryWindow <= 0 || age < p.RecoveryWindow {
			return nil, fmt.Errorf("%w: document %d (last update %s ago)", ErrBusy, imageID, age.Round(time.Second))
		}
		p.Logger.Warn("reclaiming stale in-workman document",
			"image_id", imageID, "age", age.Round(time.Second))
	}
	if doc.Status == meta.StatusObsolete {
		return nil, fmt.Errorf("%w: document %d is obsolete", ErrPayloadInvalid, imageID)
	}

	if err := p.Meta.SetStatus(ctx, imageID, meta.StatusInWorkman); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMeta, err)
	}
	return doc, nil
}

func (p *Pipeline) processManipulations(ctx context.Context, inv *payload.Invocation, start, deadline time.Time) (*Result, error) {
	doc, err := p.claimDocument(ctx, inv.ImageID)
	if err != nil {
		p.Reporter.Failed(ctx, inv.SessionID, inv.ImageID, err.Error())
		return nil, err
	}

	res, err := p.runStages(ctx, inv, doc, deadline)
	if err != nil {
		p.failRun(ctx, inv, err)
		return nil, err
	}

	res.ProcessingTime = p.clock().Sub(start).Seconds()
	p.Reporter.Completed(ctx, inv.SessionID, inv.ImageID, map[string]any{
		"operationsApplied": res.OperationsApplied,
		"finalPageCount":    res.FinalPageCount,
		"documentDeleted":   res.DocumentDeleted,
	})
	return res, nil
}

// runStages is the happy path of process_manipulations. Any error returned
// from here goes through the single reset path in the caller.
func (p *Pipeline) runStages(ctx context.Context, inv *payload.Invocation, doc *meta.Document, deadline time.Time) (*Result, error) {
	res := &Result{
		Operation:         inv.Operation,
		ImageID:           inv.ImageID,
		SessionID:         inv.SessionID,
		OperationsApplied: []string{},
	}
	p.report(ctx, inv, 10, "document claimed")

	edits, err := p.loadEdits(ctx, doc.ID, doc.PageCount)
	if err != nil {
		return nil, err
	}
	res.SkippedEdits = edits.Skipped
	p.report(ctx, inv, 20, fmt.Sprintf("loaded %d pending edits", edits.Total()))

	if edits.Total() == 0 {
		// Nothing to do; put the row back where it was.
		if err := p.Meta.SetStatus(ctx, doc.ID, doc.Status); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMeta, err)
		}
		res.OriginalPageCount = doc.PageCount
		res.FinalPageCount = doc.PageCount
		p.report(ctx, inv, 100, "no pending edits")
		return res, nil
	}

	procKey := objstore.Key(objstore.StageProcessing, doc.Path, doc.ID)
	pdf, ok, err := p.Objects.Get(ctx, procKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: object %s", ErrNotFound, procKey)
	}
	pageCount, err := p.Engine.PageCount(pdf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngine, err)
	}
	res.OriginalPageCount = pageCount
	res.FinalPageCount = pageCount
	edits.dropBeyond(pageCount)
	res.SkippedEdits = edits.Skipped
	p.report(ctx, inv, 30, "fetched working copy")

	// One-shot backup before anything destructive touches the buffer.
	if len(edits.Redactions)+len(edits.Rotations)+len(edits.Deletions) > 0 {
		if err := p.checkDeadline(deadline); err != nil {
			return nil, err
		}
		backupKey := objstore.Key(objstore.StageRedactOriginal, doc.Path, doc.ID)
		if err := p.Objects.Put(ctx, backupKey, pdf, objstore.ContentTypePDF); err != nil {
			return nil, fmt.Errorf("%w: writing backup: %v", ErrStore, err)
		}
		p.report(ctx, inv, 35, "backup written")
	}

	if err := p.checkDeadline(deadline); err != nil {
		return nil, err
	}
	if len(edits.Redactions) > 0 {
		pdf, res.RedactionResult, err = p.applyRedactions(ctx, pdf, edits.Redactions)
		if err != nil {
			return nil, err
		}
		if res.RedactionResult.Applied > 0 {
			if err := p.Meta.SetRedacted(ctx, doc.ID); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMeta, err)
			}
			res.OperationsApplied = append(res.OperationsApplied, "redaction")
		}
		res.SkippedEdits = append(res.SkippedEdits, res.RedactionResult.Skipped...)
	}
	p.report(ctx, inv, 45, "redactions applied")

	if err := p.checkDeadline(deadline); err != nil {
		return nil, err
	}
	if len(edits.Rotations) > 0 {
		pdf, res.RotationResult, err = p.applyRotations(pdf, edits.Rotations)
		if err != nil {
			return nil, err
		}
		if res.RotationResult.Applied > 0 {
			res.OperationsApplied = append(res.OperationsApplied, "rotation")
		}
	}
	p.report(ctx, inv, 60, "rotations applied")

	if err := p.checkDeadline(deadline); err != nil {
		return nil, err
	}
	if len(edits.Deletions) > 0 {
		pdf, res.DeletionResult, err = p.applyDeletions(ctx, pdf, edits.Deletions, pageCount)
		if err != nil {
			return nil, err
		}
		res.OperationsApplied = append(res.OperationsApplied, "deletion")
		res.FinalPageCount = res.DeletionResult.FinalPageCount

		if res.DeletionResult.DocumentDeleted {
			if err := p.Meta.TombstoneDocument(ctx, doc.ID); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMeta, err)
			}
			res.DocumentDeleted = true
			p.report(ctx, inv, 100, "all pages deleted; document tombstoned")
			return res, nil
		}
	}
	p.report(ctx, inv, 75, "deletions applied")

	if err := p.checkDeadline(deadline); err != nil {
		return nil, err
	}
	split := false
	if len(edits.Breaks) > 0 {
		p.report(ctx, inv, 85, "splitting document")
		res.SplitResult, err = p.applySplit(ctx, doc, pdf, edits.Breaks, res.FinalPageCount, deadline)
		if err != nil {
			return nil, err
		}
		res.OperationsApplied = append(res.OperationsApplied, "split")
		split = res.SplitResult.Strategy == StrategyFullSplit && len(res.SplitResult.SplitImages) > 0
	}

	if split {
		// Derived documents own the pages now; the source stays as-is and
		// is already Obsolete from the split commit.
		p.report(ctx, inv, 100, "split complete")
		return res, nil
	}

	if err := p.checkDeadline(deadline); err != nil {
		return nil, err
	}
	if err := p.Objects.Put(ctx, procKey, pdf, objstore.ContentTypePDF); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	if res.FinalPageCount != pageCount {
		if err := p.Meta.SetPageCount(ctx, doc.ID, res.FinalPageCount); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMeta, err)
		}
	}
	p.report(ctx, inv, 95, "working copy written")

	if err := p.Meta.SetStatus(ctx, doc.ID, meta.StatusNeedsProcessing); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMeta, err)
	}
	p.report(ctx, inv, 100, "processing complete")
	return res, nil
}

// splitDocument runs only the split stage against breaks supplied in the
// payload, for invokers that pre-apply the other edits.
func (p *Pipeline) splitDocument(ctx context.Context, inv *payload.Invocation, start, deadline time.Time) (*Result, error) {
	doc, err := p.claimDocument(ctx, inv.ImageID)
	if err != nil {
		p.Reporter.Failed(ctx, inv.SessionID, inv.ImageID, err.Error())
		return nil, err
	}

	res, err := p.runSplitOnly(ctx, inv, doc, deadline)
	if err != nil {
		p.failRun(ctx, inv, err)
		return nil, err
	}

	res.ProcessingTime = p.clock().Sub(start).Seconds()
	p.Reporter.Completed(ctx, inv.SessionID, inv.ImageID, map[string]any{
		"operationsApplied": res.OperationsApplied,
		"splitImages":       len(res.SplitResult.SplitImages),
	})
	return res, nil
}

func (p *Pipeline) runSplitOnly(ctx context.Context, inv *payload.Invocation, doc *meta.Document, deadline time.Time) (*Result, error) {
	res := &Result{
		Operation:         inv.Operation,
		ImageID:           inv.ImageID,
		SessionID:         inv.SessionID,
		OperationsApplied: []string{},
	}
	p.report(ctx, inv, 10, "document claimed")

	procKey := objstore.Key(objstore.StageProcessing, doc.Path, doc.ID)
	pdf, ok, err := p.Objects.Get(ctx, procKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: object %s", ErrNotFound, procKey)
	}
	pageCount, err := p.Engine.PageCount(pdf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngine, err)
	}
	res.OriginalPageCount = pageCount
	res.FinalPageCount = pageCount
	p.report(ctx, inv, 30, "fetched working copy")

	breaks, skipped := breaksFromPayload(inv, pageCount)
	res.SkippedEdits = skipped
	if len(breaks) == 0 {
		return nil, fmt.Errorf("%w: no valid bookmarks", ErrPayloadInvalid)
	}

	p.report(ctx, inv, 85, "splitting document")
	res.SplitResult, err = p.applySplit(ctx, doc, pdf, breaks, pageCount, deadline)
	if err != nil {
		return nil, err
	}
	res.OperationsApplied = append(res.OperationsApplied, "split")

	if res.SplitResult.Strategy == StrategyRenameOnly {
		if err := p.Meta.SetStatus(ctx, doc.ID, meta.StatusNeedsProcessing); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMeta, err)
		}
	}
	p.report(ctx, inv, 100, "split complete")
	return res, nil
}

// breaksFromPayload converts supplied bookmarks into break rows, dropping
// out-of-range ones with a reason.
func breaksFromPayload(inv *payload.Invocation, pageCount int) ([]meta.PageBreak, []SkippedEdit) {
	var breaks []meta.PageBreak
	var skipped []SkippedEdit
	for _, b := range inv.Bookmarks {
		if b.PageIndex < 0 || b.PageIndex >= pageCount {
			skipped = append(skipped, SkippedEdit{
				Kind: "page_break", EditID: b.BookmarkID, PageIndex: b.PageIndex,
				Reason: fmt.Sprintf("page index out of range [0, %d)", pageCount),
			})
			continue
		}
		breaks = append(breaks, meta.PageBreak{
			ID:                  b.BookmarkID,
			ImageID:             inv.ImageID,
			PageIndex:           b.PageIndex,
			ImageDocumentTypeID: b.DocumentTypeID,
			DocumentDate:        parseDocumentDate(b.DocumentDate),
			Comments:            sql.NullString{String: b.Comments, Valid: b.Comments != ""},
		})
	}
	return breaks, skipped
}

func parseDocumentDate(s string) sql.NullTime {
	if s == "" {
		return sql.NullTime{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return sql.NullTime{Time: t, Valid: true}
		}
	}
	return sql.NullTime{}
}

// healthCheck probes the database, the object store and the PDF engine.
// With an image id it additionally verifies that document's row and
// working copy.
func (p *Pipeline) healthCheck(ctx context.Context, inv *payload.Invocation) (*HealthResult, error) {
	res := &HealthResult{Status: "healthy", Checks: map[string]string{}}

	if err := p.Meta.Ping(ctx); err != nil {
		res.Checks["database"] = "unhealthy: " + err.Error()
		res.Status = "unhealthy"
	} else {
		res.Checks["database"] = "ok"
	}

	if _, err := p.Objects.Head(ctx, "health/probe.pdf"); err != nil {
		res.Checks["objectStore"] = "unhealthy: " + err.Error()
		res.Status = "unhealthy"
	} else {
		res.Checks["objectStore"] = "ok"
	}

	if err := p.Engine.SelfTest(); err != nil {
		res.Checks["pdfEngine"] = "unhealthy: " + err.Error()
		res.Status = "unhealthy"
	} else {
		res.Checks["pdfEngine"] = "ok"
	}

	if inv.ImageID > 0 {
		doc, err := p.Meta.GetDocument(ctx, inv.ImageID)
		switch {
		case err != nil:
			res.Checks["document"] = "unhealthy: " + err.Error()
			res.Status = "unhealthy"
		case doc == nil:
			res.Checks["document"] = fmt.Sprintf("not found: %d", inv.ImageID)
			if res.Status == "healthy" {
				res.Status = "warning"
			}
		default:
			key := objstore.Key(objstore.StageProcessing, doc.Path, doc.ID)
			exists, err := p.Objects.Head(ctx, key)
			if err != nil || !exists {
				res.Checks["document"] = "working copy missing: " + key
				if res.Status == "healthy" {
					res.Status = "warning"
				}
			} else {
				res.Checks["document"] = "ok"
			}
		}
	}

	if stats, err := p.Meta.QueueStats(ctx); err != nil {
		res.Checks["queueStats"] = "unavailable: " + err.Error()
		if res.Status == "healthy" {
			res.Status = "warning"
		}
	} else {
		res.Stats = stats
	}

	return res, nil
}

// failRun is the single reset path for fatal errors after the document was
// claimed: status back to NeedsImageManipulation so the invoker can replay,
// then the error callback. Reset failures are logged, not compounded.
func (p *Pipeline) failRun(ctx context.Context, inv *payload.Invocation, cause error) {
	p.Logger.Error("invocation failed",
		"operation", inv.Operation, "image_id", inv.ImageID,
		"session_id", inv.SessionID, "error", cause)

	if err := p.Meta.SetStatus(ctx, inv.ImageID, meta.StatusNeedsImageManipulation); err != nil {
		p.Logger.Error("failed to reset document status", "image_id", inv.ImageID, "error", err)
	}
	p.Reporter.Failed(ctx, inv.SessionID, inv.ImageID, cause.Error())
}

func (p *Pipeline) report(ctx context.Context, inv *payload.Invocation, progress int, message string) {
	if p.Reporter != nil {
		p.Reporter.Report(ctx, inv.SessionID, inv.ImageID, progress, message)
	}
}

func (p *Pipeline) checkDeadline(deadline time.Time) error {
	remaining := deadline.Sub(p.clock())
	if remaining < p.SafetyMargin {
		return fmt.Errorf("%w: %s remaining, %s margin required", ErrDeadline,
			remaining.Round(time.Second), p.SafetyMargin)
	}
	return nil
}

func (p *Pipeline) clock() time.Time {
	if p.now != nil {
		return p.now()
	}
	return time.Now().UTC()
}

// StatusCodeFor maps a pipeline error to the response status code.
func StatusCodeFor(err error) int {
	if errors.Is(err, ErrPayloadInvalid) {
		return 400
	}
	return 500
}
