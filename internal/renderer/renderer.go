// Package renderer turns printer command streams into previews: a raster
// image of the receipt and a fixed-width plain text rendering
package renderer

import (
	"image"
	"image/color"
	"io"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"github.com/pkg/errors"
	"github.com/thereceipt/receipt-interpreter/pkg/layout"
	"github.com/thereceipt/receipt-interpreter/pkg/printcmd"
)

// Canvas is a printcmd.Sink that draws onto a paper-width image
type Canvas struct {
	width  int // Paper width in pixels
	height int // Current canvas height
	ctx    *gg.Context
	y      float64 // Current Y position
	align  printcmd.Alignment
	fonts  fontSet

	// face in use, reloaded when the context grows
	fontPath string
	fontSize float64
}

var _ printcmd.Sink = (*Canvas)(nil)

// NewCanvas creates a blank canvas for the given paper width
func NewCanvas(paperWidth string) *Canvas {
	width := PaperWidthToPixels(paperWidth)

	// Start with reasonable initial height, will grow as needed
	initialHeight := 1000

	ctx := gg.NewContext(width, initialHeight)
	ctx.SetColor(color.White)
	ctx.Clear()
	ctx.SetColor(color.Black)

	return &Canvas{
		width:  width,
		height: initialHeight,
		ctx:    ctx,
		align:  printcmd.AlignLeft,
		fonts:  systemFonts(),
	}
}

// Render replays cmds onto a fresh canvas and returns the cropped image
func Render(cmds []printcmd.Command, paperWidth string) (image.Image, error) {
	c := NewCanvas(paperWidth)
	if err := printcmd.Replay(cmds, c); err != nil {
		return nil, errors.Wrap(err, "failed to render commands")
	}
	return c.Image(), nil
}

// Width returns the paper width in pixels
func (c *Canvas) Width() int {
	return c.width
}

// Height returns the drawn content height in pixels
func (c *Canvas) Height() int {
	return int(c.y)
}

// Image returns the canvas cropped to the drawn content
func (c *Canvas) Image() image.Image {
	finalHeight := int(c.y) + 50 // small bottom margin
	if finalHeight > c.height {
		finalHeight = c.height
	}
	return imaging.Crop(c.ctx.Image(), image.Rect(0, 0, c.width, finalHeight))
}

// SavePNG writes the cropped image to path
func (c *Canvas) SavePNG(path string) error {
	if err := imaging.Save(c.Image(), path); err != nil {
		return errors.Wrapf(err, "failed to save %s", path)
	}
	return nil
}

// EncodePNG writes the cropped image to w
func (c *Canvas) EncodePNG(w io.Writer) error {
	return WritePNG(w, c.Image())
}

// WritePNG encodes img as PNG
func WritePNG(w io.Writer, img image.Image) error {
	return errors.Wrap(imaging.Encode(w, img, imaging.PNG), "failed to encode png")
}

// Thumbnail scales img to width pixels, keeping the aspect ratio
func Thumbnail(img image.Image, width int) image.Image {
	if width <= 0 || width >= img.Bounds().Dx() {
		return img
	}
	return imaging.Resize(img, width, 0, imaging.Lanczos)
}

// SetAlignment changes the horizontal placement of later content
func (c *Canvas) SetAlignment(a printcmd.Alignment) error {
	if err := printcmd.Check(printcmd.SetAlignment(a)); err != nil {
		return err
	}
	c.align, _ = printcmd.ParseAlignment(string(a))
	return nil
}

// FeedLines advances the paper by count lines
func (c *Canvas) FeedLines(count int) error {
	if err := printcmd.Check(printcmd.FeedLines(count)); err != nil {
		return err
	}
	lineHeight := 20.0
	c.ensureHeight(count * int(lineHeight))
	c.y += float64(count) * lineHeight
	return nil
}

// CutPaper draws a dashed tear line
func (c *Canvas) CutPaper() error {
	c.ensureHeight(40)
	c.y += 10
	c.dashedLine(c.y)
	c.y += 30
	return nil
}

// xFor places an object of width w according to the active alignment
func (c *Canvas) xFor(w float64) float64 {
	switch c.align {
	case printcmd.AlignCenter:
		return float64(c.width)/2 - w/2
	case printcmd.AlignRight:
		return float64(c.width) - w - 5
	default:
		return 5
	}
}

func (c *Canvas) ensureHeight(neededHeight int) {
	if int(c.y)+neededHeight <= c.height {
		return
	}

	newHeight := c.height * 2
	if newHeight < int(c.y)+neededHeight {
		newHeight = int(c.y) + neededHeight + 1000
	}

	newCtx := gg.NewContext(c.width, newHeight)
	newCtx.SetColor(color.White)
	newCtx.Clear()
	newCtx.DrawImage(c.ctx.Image(), 0, 0)
	newCtx.SetColor(color.Black)

	c.ctx = newCtx
	c.height = newHeight
	if c.fontPath != "" {
		_ = c.ctx.LoadFontFace(c.fontPath, c.fontSize)
	}
}

// PaperWidthToPixels maps a paper width to printable dots at 203 dpi
func PaperWidthToPixels(width string) int {
	switch width {
	case layout.Paper58:
		return 384
	case layout.Paper80:
		return 576
	case layout.Paper112:
		return 832
	default:
		return 576 // Default to 80mm
	}
}
