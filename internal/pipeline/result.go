package pipeline

// Result is the accumulating record of one invocation. It is returned to
// the caller in the response body and attached to the final progress event.
type Result struct {
	Operation         string           `json:"operation"`
	ImageID           int64            `json:"imageId"`
	SessionID         string           `json:"sessionId"`
	OperationsApplied []string         `json:"operationsApplied"`
	SkippedEdits      []SkippedEdit    `json:"skippedEdits,omitempty"`
	RedactionResult   *RedactionResult `json:"redactionResult,omitempty"`
	RotationResult    *RotationResult  `json:"rotationResult,omitempty"`
	DeletionResult    *DeletionResult  `json:"deletionResult,omitempty"`
	SplitResult       *SplitResult     `json:"splitResult,omitempty"`
	OriginalPageCount int              `json:"originalPageCount"`
	FinalPageCount    int              `json:"finalPageCount"`
	DocumentDeleted   bool             `json:"documentDeleted,omitempty"`
	ProcessingTime    float64          `json:"processingTime"`
}

// SkippedEdit records one edit row the loader or a stage refused, with the
// reason. Skips are reported, never fatal.
type SkippedEdit struct {
	Kind      string `json:"kind"`
	EditID    int64  `json:"editId"`
	PageIndex int    `json:"pageIndex"`
	Reason    string `json:"reason"`
}

// RedactionResult summarizes the redaction stage.
type RedactionResult struct {
	Total           int           `json:"total"`
	Applied         int           `json:"applied"`
	PagesTouched    []int         `json:"pagesTouched"`
	RasterizedPages []int         `json:"rasterizedPages"`
	Skipped         []SkippedEdit `json:"skipped,omitempty"`
}

// RotationResult summarizes the rotation stage. Duplicates lists pages that
// carried more than one rotation row; the last row won.
type RotationResult struct {
	Applied    int   `json:"applied"`
	Pages      []int `json:"pages"`
	Duplicates []int `json:"duplicates,omitempty"`
}

// DeletionResult summarizes the deletion stage.
type DeletionResult struct {
	Requested       int   `json:"requested"`
	DeletedPages    []int `json:"deletedPages"`
	FinalPageCount  int   `json:"finalPageCount"`
	DocumentDeleted bool  `json:"documentDeleted"`
}

// SplitResult summarizes the split stage.
type SplitResult struct {
	Strategy    string       `json:"strategy"`
	SplitImages []SplitImage `json:"splitImages"`
}

// Split strategies.
const (
	StrategyRenameOnly = "rename_only"
	StrategyFullSplit  = "full_split"
)

// SplitImage describes one document the split stage produced. For
// rename_only the id is the source document's own id.
type SplitImage struct {
	ImageID        int64  `json:"imageId"`
	DocumentTypeID int64  `json:"documentTypeId"`
	PageStart      int    `json:"pageStart"`
	PageEnd        int    `json:"pageEnd"`
	PageCount      int    `json:"pageCount"`
	SplitType      string `json:"splitType"`
}

// HealthResult is the health_check operation's result record.
type HealthResult struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
	Stats  any               `json:"stats,omitempty"`
}
