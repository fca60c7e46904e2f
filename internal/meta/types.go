// Package meta is the typed boundary over the document metadata database.
// It is the single place where rows become Go values; everything above it
// works with these structs.
package meta

import (
	"database/sql"
	"time"
)

// Document is a row of the Image table: one PDF asset with persistent
// identity. Documents are created by ingestion and destroyed only by
// tombstone (Deleted=true); this worker never deletes rows.
type Document struct {
	ID              int64          `db:"ID"`
	OfferingID      int64          `db:"OfferingID"`
	LoanID          int64          `db:"LoanID"`
	Status          Status         `db:"ImageStatusTypeID"`
	DocTypeManualID sql.NullInt64  `db:"DocTypeManualID"`
	PageCount       int            `db:"PageCount"`
	IsRedacted      bool           `db:"IsRedacted"`
	Deleted         bool           `db:"Deleted"`
	BucketPrefix    sql.NullString `db:"BucketPrefix"`
	Path            string         `db:"Path"`
	DocumentDate    sql.NullTime   `db:"DocumentDate"`
	Comments        sql.NullString `db:"Comments"`
	DateCreated     time.Time      `db:"DateCreated"`
	DateUpdated     time.Time      `db:"DateUpdated"`
}

// Redaction is a pending content redaction on one page
// (ImageRedaction table). Coordinates are page points, origin top-left.
type Redaction struct {
	ID              int64           `db:"ID"`
	ImageID         int64           `db:"ImageID"`
	PageNumber      int             `db:"PageNumber"`
	PageX           float64         `db:"PageX"`
	PageY           float64         `db:"PageY"`
	PageWidth       float64         `db:"PageWidth"`
	PageHeight      float64         `db:"PageHeight"`
	Guid            string          `db:"Guid"`
	Text            sql.NullString  `db:"Text"`
	CreatedBy       sql.NullInt64   `db:"CreatedBy"`
	DateCreated     time.Time       `db:"DateCreated"`
	Applied         sql.NullBool    `db:"Applied"`
	DrawOrientation sql.NullInt64   `db:"DrawOrientation"`
}

// Rotation sets the absolute rotation of one page (ImageRotation table).
type Rotation struct {
	ID        int64 `db:"ID"`
	ImageID   int64 `db:"ImageID"`
	PageIndex int   `db:"PageIndex"`
	Rotate    int   `db:"Rotate"`
}

// PageDeletion removes one page (ImagePageDeletion table).
type PageDeletion struct {
	ID          int64         `db:"ID"`
	ImageID     int64         `db:"ImageID"`
	PageIndex   int           `db:"PageIndex"`
	CreatedBy   sql.NullInt64 `db:"CreatedBy"`
	DateCreated time.Time     `db:"DateCreated"`
}

// PageBreak is a declared split point (ImageBookmark table). ResultImageID
// is filled by the pipeline when the break materializes a document; a break
// with a non-null ResultImageID has been consumed.
type PageBreak struct {
	ID                  int64          `db:"ID"`
	ImageID             int64          `db:"ImageID"`
	PageIndex           int            `db:"PageIndex"`
	Text                sql.NullString `db:"Text"`
	ImageDocumentTypeID int64          `db:"ImageDocumentTypeID"`
	ResultImageID       sql.NullInt64  `db:"ResultImageID"`
	Deleted             bool           `db:"Deleted"`
	DocumentDate        sql.NullTime   `db:"DocumentDate"`
	Comments            sql.NullString `db:"Comments"`
}

// QueueStats summarizes the processing queue (used by health reporting).
type QueueStats struct {
	StatusCounts         map[string]int `json:"statusCounts"`
	PendingManipulations int            `json:"pendingManipulations"`
	Timestamp            time.Time      `json:"timestamp"`
}

// SplitType labels why a derived document exists.
const (
	SplitTypePageBreak    = "page_break"
	SplitTypeFrontSection = "front_section"
)
