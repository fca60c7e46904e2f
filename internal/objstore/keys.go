package objstore

import (
	"fmt"
	"strings"
)

// Stage is an object-store key prefix marking a document's lifecycle copy.
type Stage string

const (
	// StageProcessing is the working copy the pipeline reads and writes.
	StageProcessing Stage = "IProcessing"
	// StageOriginal is the immutable ingested original.
	StageOriginal Stage = "IOriginal"
	// StageProduction is the externally served copy.
	StageProduction Stage = "Production"
	// StageRedactOriginal is the one-shot backup taken immediately before
	// destructive edits.
	StageRedactOriginal Stage = "RedactOriginal"
)

// Key composes the canonical object key for a document copy:
//
//	{stage}/{pathFragment}/{id}/{id}.pdf
//
// Every key in the system is built here so the convention cannot drift.
func Key(stage Stage, pathFragment string, id int64) string {
	return fmt.Sprintf("%s/%s/%d/%d.pdf", stage, strings.Trim(pathFragment, "/"), id, id)
}
