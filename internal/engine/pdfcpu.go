package engine

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"sort"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// PDF implements Engine on pdfcpu for document assembly and MuPDF for
// rendering. pdfcpu handles everything structural (rotation, deletion, page
// extraction, image page import); rasterization and text extraction go
// through the renderer in mupdf.go.
type PDF struct {
	conf *model.Configuration
}

// NewPDF returns the production engine with relaxed validation, matching
// the tolerance of the upstream scanners that produce these documents.
func NewPDF() *PDF {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &PDF{conf: conf}
}

func (e *PDF) PageCount(pdf []byte) (int, error) {
	n, err := api.PageCount(bytes.NewReader(pdf), e.conf)
	if err != nil {
		return 0, fmt.Errorf("failed to read page count: %w", err)
	}
	return n, nil
}

func (e *PDF) PageDims(pdf []byte) ([]PageBox, error) {
	dims, err := api.PageDims(bytes.NewReader(pdf), e.conf)
	if err != nil {
		return nil, fmt.Errorf("failed to read page dimensions: %w", err)
	}
	boxes := make([]PageBox, len(dims))
	for i, d := range dims {
		boxes[i] = PageBox{Width: d.Width, Height: d.Height}
	}
	return boxes, nil
}

// SetRotation writes the absolute /Rotate entry on one page. pdfcpu's Rotate
// API is additive, so this goes through the page dictionary directly.
func (e *PDF) SetRotation(pdf []byte, page, angle int) ([]byte, error) {
	if !ValidAngle(angle) {
		return nil, fmt.Errorf("invalid rotation angle %d", angle)
	}

	ctx, err := api.ReadContext(bytes.NewReader(pdf), e.conf)
	if err != nil {
		return nil, fmt.Errorf("failed to open document: %w", err)
	}

	d, _, _, err := ctx.PageDict(page+1, false)
	if err != nil {
		return nil, fmt.Errorf("failed to load page %d: %w", page, err)
	}
	if d == nil {
		return nil, fmt.Errorf("page %d not found", page)
	}
	d.Update("Rotate", types.Integer(angle))

	var buf bytes.Buffer
	if err := api.WriteContext(ctx, &buf); err != nil {
		return nil, fmt.Errorf("failed to write document: %w", err)
	}
	return buf.Bytes(), nil
}

func (e *PDF) DeletePages(pdf []byte, pages []int) ([]byte, error) {
	if len(pages) == 0 {
		return pdf, nil
	}

	sorted := make([]int, len(pages))
	copy(sorted, pages)
	sort.Ints(sorted)

	sel := make([]string, len(sorted))
	for i, p := range sorted {
		sel[i] = fmt.Sprintf("%d", p+1)
	}

	var buf bytes.Buffer
	if err := api.RemovePages(bytes.NewReader(pdf), &buf, sel, e.conf); err != nil {
		return nil, fmt.Errorf("failed to delete pages %v: %w", pages, err)
	}
	return buf.Bytes(), nil
}

func (e *PDF) ExtractPages(pdf []byte, start, end int) ([]byte, error) {
	if start < 0 || end <= start {
		return nil, fmt.Errorf("invalid page range [%d, %d)", start, end)
	}

	sel := []string{fmt.Sprintf("%d-%d", start+1, end)}
	var buf bytes.Buffer
	if err := api.Trim(bytes.NewReader(pdf), &buf, sel, e.conf); err != nil {
		return nil, fmt.Errorf("failed to extract pages [%d, %d): %w", start, end, err)
	}
	return buf.Bytes(), nil
}

// RedactPage renders the page at RasterScale, paints the redaction
// rectangles into the pixels, rebuilds the page from the image, and splices
// it back into the document. The replacement page carries no content stream
// other than the image, so redacted text cannot be recovered.
func (e *PDF) RedactPage(pdf []byte, page int, rects []Rect) ([]byte, error) {
	boxes, err := e.PageDims(pdf)
	if err != nil {
		return nil, err
	}
	if page < 0 || page >= len(boxes) {
		return nil, fmt.Errorf("page %d out of range (%d pages)", page, len(boxes))
	}
	box := boxes[page]

	img, err := renderPage(pdf, page, RasterScale)
	if err != nil {
		return nil, err
	}

	flat := paintRects(img, rects, box)

	var pngBuf bytes.Buffer
	if err := png.Encode(&pngBuf, flat); err != nil {
		return nil, fmt.Errorf("failed to encode rasterized page %d: %w", page, err)
	}

	imagePage, err := e.imagePage(pngBuf.Bytes(), box)
	if err != nil {
		return nil, err
	}

	return e.replacePage(pdf, page, len(boxes), imagePage)
}

// imagePage builds a single-page document of the given dimensions whose sole
// content is the image.
func (e *PDF) imagePage(img []byte, box PageBox) ([]byte, error) {
	imp, err := api.Import(fmt.Sprintf("dim:%.2f %.2f, pos:full", box.Width, box.Height), types.POINTS)
	if err != nil {
		return nil, fmt.Errorf("failed to parse import description: %w", err)
	}

	var buf bytes.Buffer
	if err := api.ImportImages(nil, &buf, []io.Reader{bytes.NewReader(img)}, imp, e.conf); err != nil {
		return nil, fmt.Errorf("failed to build image page: %w", err)
	}
	return buf.Bytes(), nil
}

// replacePage substitutes one page of a pageCount-page document. The result
// is assembled from up to three segments: pages before, the replacement,
// pages after.
func (e *PDF) replacePage(pdf []byte, page, pageCount int, replacement []byte) ([]byte, error) {
	var segments []io.ReadSeeker

	if page > 0 {
		before, err := e.ExtractPages(pdf, 0, page)
		if err != nil {
			return nil, err
		}
		segments = append(segments, bytes.NewReader(before))
	}

	segments = append(segments, bytes.NewReader(replacement))

	if page+1 < pageCount {
		after, err := e.ExtractPages(pdf, page+1, pageCount)
		if err != nil {
			return nil, err
		}
		segments = append(segments, bytes.NewReader(after))
	}

	if len(segments) == 1 {
		return replacement, nil
	}

	var buf bytes.Buffer
	if err := api.MergeRaw(segments, &buf, false, e.conf); err != nil {
		return nil, fmt.Errorf("failed to splice page %d: %w", page, err)
	}
	return buf.Bytes(), nil
}

// paintRects draws opaque black rectangles onto the rendered page. Rect
// coordinates are in points; the image may be rendered at any scale, so the
// rectangles are mapped through the pixels-per-point ratio.
func paintRects(img image.Image, rects []Rect, box PageBox) *image.RGBA {
	bounds := img.Bounds()
	flat := image.NewRGBA(bounds)
	draw.Draw(flat, bounds, img, bounds.Min, draw.Src)

	if box.Width <= 0 || box.Height <= 0 {
		return flat
	}
	sx := float64(bounds.Dx()) / box.Width
	sy := float64(bounds.Dy()) / box.Height

	black := &image.Uniform{C: color.Black}
	for _, r := range rects {
		px := image.Rect(
			bounds.Min.X+int(r.X*sx),
			bounds.Min.Y+int(r.Y*sy),
			bounds.Min.X+int((r.X+r.W)*sx+0.5),
			bounds.Min.Y+int((r.Y+r.H)*sy+0.5),
		)
		clipped := px.Intersect(bounds)
		draw.Draw(flat, clipped, black, image.Point{}, draw.Src)
		if r.Label != "" {
			drawLabel(flat, clipped, r.Label)
		}
	}
	return flat
}

// drawLabel paints replacement text inside a blacked-out area. Drawing goes
// through a sub-image so glyphs clip at the rectangle edge instead of
// spilling onto surrounding page content.
func drawLabel(dst *image.RGBA, rect image.Rectangle, label string) {
	clipped, ok := dst.SubImage(rect).(*image.RGBA)
	if !ok || clipped.Bounds().Empty() {
		return
	}
	d := &font.Drawer{
		Dst:  clipped,
		Src:  image.White,
		Face: basicfont.Face7x13,
		Dot:  fixed.P(rect.Min.X+4, rect.Min.Y+basicfont.Face7x13.Ascent+2),
	}
	d.DrawString(label)
}

// SelfTest builds a one-page document from a generated image and reads it
// back through both libraries.
func (e *PDF) SelfTest() error {
	probe := image.NewRGBA(image.Rect(0, 0, 8, 8))
	draw.Draw(probe, probe.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)

	var pngBuf bytes.Buffer
	if err := png.Encode(&pngBuf, probe); err != nil {
		return fmt.Errorf("self test image encode failed: %w", err)
	}

	doc, err := e.imagePage(pngBuf.Bytes(), PageBox{Width: 612, Height: 792})
	if err != nil {
		return fmt.Errorf("self test page build failed: %w", err)
	}

	n, err := e.PageCount(doc)
	if err != nil {
		return fmt.Errorf("self test page count failed: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("self test expected 1 page, got %d", n)
	}

	if _, err := renderPage(doc, 0, 1.0); err != nil {
		return fmt.Errorf("self test render failed: %w", err)
	}
	return nil
}
