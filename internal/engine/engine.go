// Package engine is the boundary over the PDF libraries. Stages treat a PDF
// as an opaque byte buffer; every operation here is a pure function from
// (bytes, args) to bytes, so stage code never holds an open document handle.
package engine

import "fmt"

// Rect is an axis-aligned rectangle in page coordinates (origin top-left,
// units are PDF points), matching how redactions are recorded upstream.
// Label is optional replacement text painted inside the blacked-out area.
type Rect struct {
	X     float64
	Y     float64
	W     float64
	H     float64
	Label string
}

// PageBox is a page's media box dimensions in points.
type PageBox struct {
	Width  float64
	Height float64
}

// RasterScale is the fixed render scale used when a redacted page is
// flattened to an image. 2x keeps the page legible while destroying the
// underlying content stream.
const RasterScale = 2.0

// Engine exposes the page-level primitives the pipeline needs.
//
// All page arguments are zero-based. Range arguments are half-open
// [start, end). Implementations must not mutate the input slice.
type Engine interface {
	// PageCount returns the number of pages.
	PageCount(pdf []byte) (int, error)

	// PageDims returns the media box of every page, in page order.
	PageDims(pdf []byte) ([]PageBox, error)

	// SetRotation sets the absolute rotation of one page. Angle must be
	// one of 0, 90, 180, 270; zero is an explicit reset.
	SetRotation(pdf []byte, page, angle int) ([]byte, error)

	// DeletePages removes the given pages in one pass.
	DeletePages(pdf []byte, pages []int) ([]byte, error)

	// ExtractPages returns a new document holding pages [start, end).
	ExtractPages(pdf []byte, start, end int) ([]byte, error)

	// RedactPage burns the given rectangles into one page and replaces the
	// page content with a rasterized image of the result. After the call no
	// text under any rectangle is extractable from the returned document.
	RedactPage(pdf []byte, page int, rects []Rect) ([]byte, error)

	// PageText extracts the text of one page. Used by health checks and by
	// redaction verification.
	PageText(pdf []byte, page int) (string, error)

	// SelfTest exercises the underlying libraries end to end.
	SelfTest() error
}

// ValidAngle reports whether angle is an allowed page rotation.
func ValidAngle(angle int) bool {
	switch angle {
	case 0, 90, 180, 270:
		return true
	}
	return false
}

// Clamp constrains r to the page box, preserving origin ordering. The
// returned rectangle may be empty when r lies entirely off the page.
func (r Rect) Clamp(box PageBox) Rect {
	x0 := max(0, min(r.X, box.Width))
	y0 := max(0, min(r.Y, box.Height))
	x1 := max(x0, min(r.X+r.W, box.Width))
	y1 := max(y0, min(r.Y+r.H, box.Height))
	return Rect{X: x0, Y: y0, W: x1 - x0, H: y1 - y0, Label: r.Label}
}

// Rotate maps r through a draw orientation of 90, 180 or 270 degrees around
// the page center. Redactions drawn on a rotated viewer canvas are stored
// with the orientation they were drawn at; this maps them back onto the
// unrotated page.
func (r Rect) Rotate(orientation int, box PageBox) (Rect, error) {
	if orientation == 0 {
		return r, nil
	}

	cx := box.Width / 2
	cy := box.Height / 2
	x0, y0 := r.X, r.Y
	x1, y1 := r.X+r.W, r.Y+r.H

	var nx0, ny0, nx1, ny1 float64
	switch orientation {
	case 90:
		nx0 = cx - (y1 - cy)
		ny0 = cy + (x0 - cx)
		nx1 = cx - (y0 - cy)
		ny1 = cy + (x1 - cx)
	case 180:
		nx0 = cx - (x1 - cx)
		ny0 = cy - (y1 - cy)
		nx1 = cx - (x0 - cx)
		ny1 = cy - (y0 - cy)
	case 270:
		nx0 = cx + (y0 - cy)
		ny0 = cy - (x1 - cx)
		nx1 = cx + (y1 - cy)
		ny1 = cy - (x0 - cx)
	default:
		return r, fmt.Errorf("unsupported draw orientation %d", orientation)
	}

	x := min(nx0, nx1)
	y := min(ny0, ny1)
	return Rect{X: x, Y: y, W: max(nx0, nx1) - x, H: max(ny0, ny1) - y, Label: r.Label}, nil
}
