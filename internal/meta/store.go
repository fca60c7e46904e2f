package meta

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/esizzle/workman/internal/config"
)

const documentColumns = `ID, OfferingID, LoanID, ImageStatusTypeID, DocTypeManualID,
	PageCount, IsRedacted, Deleted, BucketPrefix, Path,
	DocumentDate, Comments, DateCreated, DateUpdated`

// Store wraps the metadata database.
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
	now    func() time.Time
}

// Open connects to the database described by cfg.
func Open(cfg config.DBConfig, logger *slog.Logger) (*Store, error) {
	db, err := sqlx.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(5 * time.Minute)
	return NewStore(db, logger), nil
}

// NewStore wraps an existing connection. Tests pass a sqlmock-backed DB.
func NewStore(db *sqlx.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Ping verifies connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDocument loads one non-tombstoned document row. Returns (nil, nil)
// when the row does not exist or is tombstoned.
func (s *Store) GetDocument(ctx context.Context, id int64) (*Document, error) {
	var doc Document
	err := s.db.GetContext(ctx, &doc,
		`SELECT `+documentColumns+` FROM Image WHERE ID = ? AND Deleted = 0`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load document %d: %w", id, err)
	}
	return &doc, nil
}

// PendingRedactions lists redactions not yet applied, ordered by page then
// position so application order is deterministic.
func (s *Store) PendingRedactions(ctx context.Context, imageID int64) ([]Redaction, error) {
	var rows []Redaction
	err := s.db.SelectContext(ctx, &rows, `
		SELECT ID, ImageID, PageNumber, PageX, PageY, PageWidth, PageHeight,
		       Guid, Text, CreatedBy, DateCreated, Applied, DrawOrientation
		FROM ImageRedaction
		WHERE ImageID = ? AND Deleted = 0 AND (Applied IS NULL OR Applied = 0)
		ORDER BY PageNumber, PageY, PageX`, imageID)
	if err != nil {
		return nil, fmt.Errorf("failed to load redactions for document %d: %w", imageID, err)
	}
	return rows, nil
}

// Rotations lists all rotations for a document.
func (s *Store) Rotations(ctx context.Context, imageID int64) ([]Rotation, error) {
	var rows []Rotation
	err := s.db.SelectContext(ctx, &rows, `
		SELECT ID, ImageID, PageIndex, Rotate
		FROM ImageRotation
		WHERE ImageID = ?
		ORDER BY PageIndex`, imageID)
	if err != nil {
		return nil, fmt.Errorf("failed to load rotations for document %d: %w", imageID, err)
	}
	return rows, nil
}

// PageDeletions lists unprocessed page deletions for a document. Rows
// stamped by MarkDeletionProcessed are excluded so a rerun after a partial
// failure does not delete pages of the already-rewritten document again.
func (s *Store) PageDeletions(ctx context.Context, imageID int64) ([]PageDeletion, error) {
	var rows []PageDeletion
	err := s.db.SelectContext(ctx, &rows, `
		SELECT ID, ImageID, PageIndex, CreatedBy, DateCreated
		FROM ImagePageDeletion
		WHERE ImageID = ? AND DateProcessed IS NULL
		ORDER BY PageIndex`, imageID)
	if err != nil {
		return nil, fmt.Errorf("failed to load page deletions for document %d: %w", imageID, err)
	}
	return rows, nil
}

// PageBreaks lists unconsumed breaks for a document.
func (s *Store) PageBreaks(ctx context.Context, imageID int64) ([]PageBreak, error) {
	var rows []PageBreak
	err := s.db.SelectContext(ctx, &rows, `
		SELECT ID, ImageID, PageIndex, Text, ImageDocumentTypeID,
		       ResultImageID, Deleted, DocumentDate, Comments
		FROM ImageBookmark
		WHERE ImageID = ? AND Deleted = 0
		ORDER BY PageIndex`, imageID)
	if err != nil {
		return nil, fmt.Errorf("failed to load page breaks for document %d: %w", imageID, err)
	}
	return rows, nil
}

// MarkRedactionApplied flags one redaction as burned in.
func (s *Store) MarkRedactionApplied(ctx context.Context, redactionID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE ImageRedaction SET Applied = 1, DateApplied = ? WHERE ID = ?`,
		s.now(), redactionID)
	if err != nil {
		return fmt.Errorf("failed to mark redaction %d applied: %w", redactionID, err)
	}
	return nil
}

// SetStatus transitions a document's status.
func (s *Store) SetStatus(ctx context.Context, imageID int64, status Status) error {
	if !status.Valid() {
		return fmt.Errorf("invalid status %d", int(status))
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE Image SET ImageStatusTypeID = ?, DateUpdated = ? WHERE ID = ?`,
		int(status), s.now(), imageID)
	if err != nil {
		return fmt.Errorf("failed to set document %d status to %s: %w", imageID, status, err)
	}
	s.logger.Info("document status updated", "image_id", imageID, "status", status.String())
	return nil
}

// SetPageCount records a changed page count.
func (s *Store) SetPageCount(ctx context.Context, imageID int64, pageCount int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE Image SET PageCount = ?, DateUpdated = ? WHERE ID = ?`,
		pageCount, s.now(), imageID)
	if err != nil {
		return fmt.Errorf("failed to set document %d page count: %w", imageID, err)
	}
	return nil
}

// SetRedacted flags the document as carrying applied redactions.
func (s *Store) SetRedacted(ctx context.Context, imageID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE Image SET IsRedacted = 1, DateUpdated = ? WHERE ID = ?`,
		s.now(), imageID)
	if err != nil {
		return fmt.Errorf("failed to flag document %d redacted: %w", imageID, err)
	}
	return nil
}

// TombstoneDocument sets Deleted=true. The row and its objects remain for
// audit; listings hide it.
func (s *Store) TombstoneDocument(ctx context.Context, imageID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE Image SET Deleted = 1, DateUpdated = ? WHERE ID = ?`,
		s.now(), imageID)
	if err != nil {
		return fmt.Errorf("failed to tombstone document %d: %w", imageID, err)
	}
	s.logger.Info("document tombstoned", "image_id", imageID)
	return nil
}

// MarkDeletionProcessed stamps a page-deletion row as acted on.
func (s *Store) MarkDeletionProcessed(ctx context.Context, deletionID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE ImagePageDeletion SET DateProcessed = ? WHERE ID = ?`,
		s.now(), deletionID)
	if err != nil {
		return fmt.Errorf("failed to mark deletion %d processed: %w", deletionID, err)
	}
	return nil
}

// SetDocTypeAndMeta updates the document type and, when present, the
// document date and comments. Used by rename-only splits.
func (s *Store) SetDocTypeAndMeta(ctx context.Context, imageID, docTypeID int64, docDate sql.NullTime, comments sql.NullString) error {
	set := []string{"DocTypeManualID = ?", "DateUpdated = ?"}
	args := []any{docTypeID, s.now()}
	if docDate.Valid {
		set = append(set, "DocumentDate = ?")
		args = append(args, docDate.Time)
	}
	if comments.Valid && comments.String != "" {
		set = append(set, "Comments = ?")
		args = append(args, comments.String)
	}
	args = append(args, imageID)

	_, err := s.db.ExecContext(ctx,
		`UPDATE Image SET `+strings.Join(set, ", ")+` WHERE ID = ?`, args...)
	if err != nil {
		return fmt.Errorf("failed to update document %d type: %w", imageID, err)
	}
	return nil
}

// MarkBreakProcessed consumes a break: records the produced document and
// tombstones the break row.
func (s *Store) MarkBreakProcessed(ctx context.Context, breakID, resultImageID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE ImageBookmark SET ResultImageID = ?, Deleted = 1, DateProcessed = ? WHERE ID = ?`,
		resultImageID, s.now(), breakID)
	if err != nil {
		return fmt.Errorf("failed to mark break %d processed: %w", breakID, err)
	}
	return nil
}

// ClearManipulations is the operator recovery helper: it drops pending
// change markers and resets redaction Applied flags so a document can be
// re-queued cleanly. Rotations, deletions and breaks are left alone since
// they may be intentional.
func (s *Store) ClearManipulations(ctx context.Context, imageID int64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM ImageChangesPending WHERE ImageID = ?`, imageID); err != nil {
		return fmt.Errorf("failed to clear pending changes for document %d: %w", imageID, err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE ImageRedaction SET Applied = 0, DateApplied = NULL WHERE ImageID = ?`, imageID); err != nil {
		return fmt.Errorf("failed to reset redactions for document %d: %w", imageID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit manipulation reset: %w", err)
	}
	s.logger.Info("cleared manipulations", "image_id", imageID)
	return nil
}

// QueueStats reports document counts per status plus the pending
// manipulation backlog.
func (s *Store) QueueStats(ctx context.Context) (*QueueStats, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT ist.Name, COUNT(*) AS Count
		FROM Image i
		JOIN ImageStatusType ist ON i.ImageStatusTypeID = ist.ID
		WHERE i.Deleted = 0
		GROUP BY ist.Name`)
	if err != nil {
		return nil, fmt.Errorf("failed to load queue stats: %w", err)
	}
	defer rows.Close()

	stats := &QueueStats{StatusCounts: make(map[string]int), Timestamp: s.now()}
	for rows.Next() {
		var name string
		var count int
		if err := rows.Scan(&name, &count); err != nil {
			return nil, fmt.Errorf("failed to scan queue stats: %w", err)
		}
		stats.StatusCounts[name] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read queue stats: %w", err)
	}

	err = s.db.GetContext(ctx, &stats.PendingManipulations, `
		SELECT COUNT(*) FROM Image
		WHERE ImageStatusTypeID = ? AND Deleted = 0`, int(StatusNeedsImageManipulation))
	if err != nil {
		return nil, fmt.Errorf("failed to count pending manipulations: %w", err)
	}
	return stats, nil
}
