package meta

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// systemUserID is recorded as CreatedBy/SplitBy on rows the worker creates.
const systemUserID = 1

// SplitTx is the transactional scope of one split commit. Derived document
// rows, break consumption, the source's Obsolete transition, and the audit
// trail all commit together or not at all. Object-store writes happen while
// the transaction is open, before Commit; on commit failure the written
// objects become orphans under deterministic keys.
type SplitTx struct {
	tx  *sqlx.Tx
	now func() time.Time
}

// BeginSplit opens the split commit scope.
func (s *Store) BeginSplit(ctx context.Context) (*SplitTx, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin split transaction: %w", err)
	}
	return &SplitTx{tx: tx, now: s.now}, nil
}

// InsertDerivedDocument creates the row for one emitted page range. The new
// document inherits the source's owner scope, path fragment and bucket
// prefix, starts unredacted in Sync status, and back-references the source.
// Returns the new document id.
func (t *SplitTx) InsertDerivedDocument(src *Document, docTypeID int64, pageCount, rangeStart, rangeEnd int, docDate sql.NullTime, comments, splitType string) (int64, error) {
	if comments == "" {
		comments = fmt.Sprintf("Split from image %d (pages %d-%d)", src.ID, rangeStart, rangeEnd-1)
	}
	now := t.now()

	res, err := t.tx.Exec(`
		INSERT INTO Image (OfferingID, LoanID, DocTypeManualID, PageCount, IsRedacted,
		                   Deleted, BucketPrefix, Path, ImageStatusTypeID, DocumentDate,
		                   Comments, DateCreated, DateUpdated, CreatedBy,
		                   SplitFromImageID, SplitType)
		VALUES (?, ?, ?, ?, 0, 0, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		src.OfferingID, src.LoanID, docTypeID, pageCount,
		src.BucketPrefix, src.Path, int(StatusSync), nullTimeArg(docDate),
		comments, now, now, systemUserID, src.ID, splitType)
	if err != nil {
		return 0, fmt.Errorf("failed to insert derived document: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read derived document id: %w", err)
	}
	return id, nil
}

// MarkBreakProcessed consumes a break inside the split transaction.
func (t *SplitTx) MarkBreakProcessed(breakID, resultImageID int64) error {
	_, err := t.tx.Exec(
		`UPDATE ImageBookmark SET ResultImageID = ?, Deleted = 1, DateProcessed = ? WHERE ID = ?`,
		resultImageID, t.now(), breakID)
	if err != nil {
		return fmt.Errorf("failed to mark break %d processed: %w", breakID, err)
	}
	return nil
}

// SetStatus transitions a document's status inside the split transaction.
func (t *SplitTx) SetStatus(imageID int64, status Status) error {
	_, err := t.tx.Exec(
		`UPDATE Image SET ImageStatusTypeID = ?, DateUpdated = ? WHERE ID = ?`,
		int(status), t.now(), imageID)
	if err != nil {
		return fmt.Errorf("failed to set document %d status to %s: %w", imageID, status, err)
	}
	return nil
}

// InsertSplitLog appends the audit row relating source to derived document.
func (t *SplitTx) InsertSplitLog(originalImageID, splitImageID int64) error {
	_, err := t.tx.Exec(
		`INSERT INTO ImageSplitLog (OriginalImageID, SplitImageID, SplitBy, DateCreated)
		 VALUES (?, ?, ?, ?)`,
		originalImageID, splitImageID, systemUserID, t.now())
	if err != nil {
		return fmt.Errorf("failed to insert split log %d -> %d: %w", originalImageID, splitImageID, err)
	}
	return nil
}

// Commit commits the split batch.
func (t *SplitTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit split: %w", err)
	}
	return nil
}

// Rollback aborts the split batch. Safe to call after Commit.
func (t *SplitTx) Rollback() error {
	return t.tx.Rollback()
}

func nullTimeArg(t sql.NullTime) any {
	if t.Valid {
		return t.Time
	}
	return nil
}
