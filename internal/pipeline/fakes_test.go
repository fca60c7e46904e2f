package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/esizzle/workman/internal/engine"
	"github.com/esizzle/workman/internal/meta"
)

// fakeEngine models a PDF as one byte per page.
type fakeEngine struct {
	redactedPages []int
	rotatedPages  []int
	failPageCount bool
}

func pagesPDF(n int) []byte {
	pdf := make([]byte, n)
	for i := range pdf {
		pdf[i] = byte(i)
	}
	return pdf
}

func (e *fakeEngine) PageCount(pdf []byte) (int, error) {
	if e.failPageCount {
		return 0, fmt.Errorf("corrupt document")
	}
	return len(pdf), nil
}

func (e *fakeEngine) PageDims(pdf []byte) ([]engine.PageBox, error) {
	dims := make([]engine.PageBox, len(pdf))
	for i := range dims {
		dims[i] = engine.PageBox{Width: 612, Height: 792}
	}
	return dims, nil
}

func (e *fakeEngine) SetRotation(pdf []byte, page, angle int) ([]byte, error) {
	if page < 0 || page >= len(pdf) {
		return nil, fmt.Errorf("page %d out of range", page)
	}
	e.rotatedPages = append(e.rotatedPages, page)
	out := make([]byte, len(pdf))
	copy(out, pdf)
	return out, nil
}

func (e *fakeEngine) DeletePages(pdf []byte, pages []int) ([]byte, error) {
	drop := make(map[int]bool, len(pages))
	for _, p := range pages {
		drop[p] = true
	}
	var out []byte
	for i, b := range pdf {
		if !drop[i] {
			out = append(out, b)
		}
	}
	return out, nil
}

func (e *fakeEngine) ExtractPages(pdf []byte, start, end int) ([]byte, error) {
	if start < 0 || end > len(pdf) || start >= end {
		return nil, fmt.Errorf("range [%d, %d) out of bounds", start, end)
	}
	out := make([]byte, end-start)
	copy(out, pdf[start:end])
	return out, nil
}

func (e *fakeEngine) RedactPage(pdf []byte, page int, rects []engine.Rect) ([]byte, error) {
	if page < 0 || page >= len(pdf) {
		return nil, fmt.Errorf("page %d out of range", page)
	}
	e.redactedPages = append(e.redactedPages, page)
	out := make([]byte, len(pdf))
	copy(out, pdf)
	return out, nil
}

func (e *fakeEngine) PageText(pdf []byte, page int) (string, error) { return "", nil }
func (e *fakeEngine) SelfTest() error                               { return nil }

// fakeObjects is an in-memory object store.
type fakeObjects struct {
	objects map[string][]byte
	puts    []string
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: make(map[string][]byte)}
}

func (o *fakeObjects) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, ok := o.objects[key]
	return data, ok, nil
}

func (o *fakeObjects) Put(ctx context.Context, key string, data []byte, contentType string) error {
	cp := make([]byte, len(data))
	copy(cp, data)
	o.objects[key] = cp
	o.puts = append(o.puts, key)
	return nil
}

func (o *fakeObjects) Head(ctx context.Context, key string) (bool, error) {
	_, ok := o.objects[key]
	return ok, nil
}

func (o *fakeObjects) Copy(ctx context.Context, srcKey, dstKey string) error {
	o.objects[dstKey] = o.objects[srcKey]
	return nil
}

// fakeMeta is an in-memory metadata store recording every mutation.
type fakeMeta struct {
	doc        *meta.Document
	redactions []meta.Redaction
	rotations  []meta.Rotation
	deletions  []meta.PageDeletion
	breaks     []meta.PageBreak

	statuses           []meta.Status
	appliedRedactions  []int64
	processedDeletions []int64
	processedBreaks    map[int64]int64
	pageCountSet       *int
	redacted           bool
	tombstoned         bool
	docTypeSet         *int64
	tx                 *fakeTx
}

func newFakeMeta(doc *meta.Document) *fakeMeta {
	return &fakeMeta{doc: doc, processedBreaks: make(map[int64]int64)}
}

func (m *fakeMeta) GetDocument(ctx context.Context, id int64) (*meta.Document, error) {
	if m.doc == nil || m.doc.ID != id || m.doc.Deleted {
		return nil, nil
	}
	cp := *m.doc
	return &cp, nil
}

func (m *fakeMeta) PendingRedactions(ctx context.Context, imageID int64) ([]meta.Redaction, error) {
	return m.redactions, nil
}

func (m *fakeMeta) Rotations(ctx context.Context, imageID int64) ([]meta.Rotation, error) {
	return m.rotations, nil
}

func (m *fakeMeta) PageDeletions(ctx context.Context, imageID int64) ([]meta.PageDeletion, error) {
	return m.deletions, nil
}

func (m *fakeMeta) PageBreaks(ctx context.Context, imageID int64) ([]meta.PageBreak, error) {
	return m.breaks, nil
}

func (m *fakeMeta) MarkRedactionApplied(ctx context.Context, redactionID int64) error {
	m.appliedRedactions = append(m.appliedRedactions, redactionID)
	return nil
}

func (m *fakeMeta) MarkDeletionProcessed(ctx context.Context, deletionID int64) error {
	m.processedDeletions = append(m.processedDeletions, deletionID)
	return nil
}

func (m *fakeMeta) MarkBreakProcessed(ctx context.Context, breakID, resultImageID int64) error {
	m.processedBreaks[breakID] = resultImageID
	return nil
}

func (m *fakeMeta) SetStatus(ctx context.Context, imageID int64, status meta.Status) error {
	m.statuses = append(m.statuses, status)
	m.doc.Status = status
	return nil
}

func (m *fakeMeta) SetPageCount(ctx context.Context, imageID int64, pageCount int) error {
	m.pageCountSet = &pageCount
	return nil
}

func (m *fakeMeta) SetRedacted(ctx context.Context, imageID int64) error {
	m.redacted = true
	return nil
}

func (m *fakeMeta) SetDocTypeAndMeta(ctx context.Context, imageID, docTypeID int64, docDate sql.NullTime, comments sql.NullString) error {
	m.docTypeSet = &docTypeID
	return nil
}

func (m *fakeMeta) TombstoneDocument(ctx context.Context, imageID int64) error {
	m.tombstoned = true
	m.doc.Deleted = true
	return nil
}

func (m *fakeMeta) BeginSplit(ctx context.Context) (SplitCommitter, error) {
	m.tx = &fakeTx{nextID: 101, breaks: make(map[int64]int64), statuses: make(map[int64]meta.Status)}
	return m.tx, nil
}

func (m *fakeMeta) QueueStats(ctx context.Context) (*meta.QueueStats, error) {
	return &meta.QueueStats{StatusCounts: map[string]int{}, Timestamp: time.Now()}, nil
}

func (m *fakeMeta) Ping(ctx context.Context) error { return nil }

type insertedDoc struct {
	docTypeID  int64
	pageCount  int
	rangeStart int
	rangeEnd   int
	splitType  string
}

// fakeTx records one split transaction.
type fakeTx struct {
	nextID     int64
	inserted   []insertedDoc
	breaks     map[int64]int64
	statuses   map[int64]meta.Status
	logs       [][2]int64
	committed  bool
	rolledBack bool
}

func (t *fakeTx) InsertDerivedDocument(src *meta.Document, docTypeID int64, pageCount, rangeStart, rangeEnd int, docDate sql.NullTime, comments, splitType string) (int64, error) {
	t.inserted = append(t.inserted, insertedDoc{
		docTypeID: docTypeID, pageCount: pageCount,
		rangeStart: rangeStart, rangeEnd: rangeEnd, splitType: splitType,
	})
	id := t.nextID
	t.nextID++
	return id, nil
}

func (t *fakeTx) MarkBreakProcessed(breakID, resultImageID int64) error {
	t.breaks[breakID] = resultImageID
	return nil
}

func (t *fakeTx) SetStatus(imageID int64, status meta.Status) error {
	t.statuses[imageID] = status
	return nil
}

func (t *fakeTx) InsertSplitLog(originalImageID, splitImageID int64) error {
	t.logs = append(t.logs, [2]int64{originalImageID, splitImageID})
	return nil
}

func (t *fakeTx) Commit() error {
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback() error {
	if !t.committed {
		t.rolledBack = true
	}
	return nil
}

// fakeReporter records progress events.
type fakeReporter struct {
	progress  []int
	completed bool
	failed    bool
	lastError string
}

func (r *fakeReporter) Report(ctx context.Context, sessionID string, imageID int64, progress int, message string) {
	r.progress = append(r.progress, progress)
}

func (r *fakeReporter) Completed(ctx context.Context, sessionID string, imageID int64, data map[string]any) {
	r.completed = true
}

func (r *fakeReporter) Failed(ctx context.Context, sessionID string, imageID int64, errMsg string) {
	r.failed = true
	r.lastError = errMsg
}
