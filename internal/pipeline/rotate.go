package pipeline

import (
	"fmt"
	"sort"

	"github.com/esizzle/workman/internal/meta"
)

// applyRotations sets each page's absolute rotation. A rotation to 0 is an
// explicit reset. When one page carries several rotation rows the last one
// wins and the page is reported as a duplicate.
func (p *Pipeline) applyRotations(pdf []byte, rotations []meta.Rotation) ([]byte, *RotationResult, error) {
	res := &RotationResult{}
	if len(rotations) == 0 {
		return pdf, res, nil
	}

	angles := make(map[int]int)
	for _, r := range rotations {
		if _, seen := angles[r.PageIndex]; seen {
			res.Duplicates = append(res.Duplicates, r.PageIndex)
		}
		angles[r.PageIndex] = r.Rotate
	}

	pages := make([]int, 0, len(angles))
	for page := range angles {
		pages = append(pages, page)
	}
	sort.Ints(pages)

	var err error
	for _, page := range pages {
		pdf, err = p.Engine.SetRotation(pdf, page, angles[page])
		if err != nil {
			return nil, nil, fmt.Errorf("%w: rotating page %d: %v", ErrEngine, page, err)
		}
		res.Pages = append(res.Pages, page)
		res.Applied++
	}
	sort.Ints(res.Duplicates)

	return pdf, res, nil
}
