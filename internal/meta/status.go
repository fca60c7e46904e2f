package meta

import "fmt"

// Status is a document's persisted processing status
// (Image.ImageStatusTypeID).
type Status int

const (
	StatusSync                   Status = 1
	StatusNeedsProcessing        Status = 3
	StatusNeedsImageManipulation Status = 7
	StatusPendingWorkman         Status = 8
	StatusInWorkman              Status = 9
	StatusObsolete               Status = 15
)

func (s Status) String() string {
	switch s {
	case StatusSync:
		return "Sync"
	case StatusNeedsProcessing:
		return "NeedsProcessing"
	case StatusNeedsImageManipulation:
		return "NeedsImageManipulation"
	case StatusPendingWorkman:
		return "PendingWorkman"
	case StatusInWorkman:
		return "InWorkman"
	case StatusObsolete:
		return "Obsolete"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Valid reports whether s is one of the persisted status codes.
func (s Status) Valid() bool {
	switch s {
	case StatusSync, StatusNeedsProcessing, StatusNeedsImageManipulation,
		StatusPendingWorkman, StatusInWorkman, StatusObsolete:
		return true
	}
	return false
}
