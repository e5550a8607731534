package renderer

import (
	"os"

	"github.com/thereceipt/receipt-interpreter/pkg/printcmd"
)

// Point sizes per text size
var textSizes = map[printcmd.Size]float64{
	printcmd.SizeSmall:  24,
	printcmd.SizeNormal: 32,
	printcmd.SizeLarge:  44,
	printcmd.SizeXLarge: 56,
}

type fontSet struct {
	regular string
	bold    string
}

func systemFonts() fontSet {
	return fontSet{
		regular: firstExisting(
			"/System/Library/Fonts/Helvetica.ttc",
			"/System/Library/Fonts/Supplemental/Arial.ttf",
			"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
			"/usr/share/fonts/truetype/liberation/LiberationSans-Regular.ttf",
			"C:\\Windows\\Fonts\\arial.ttf",
		),
		bold: firstExisting(
			"/System/Library/Fonts/Supplemental/Arial Bold.ttf",
			"/usr/share/fonts/truetype/dejavu/DejaVuSans-Bold.ttf",
			"/usr/share/fonts/truetype/liberation/LiberationSans-Bold.ttf",
			"C:\\Windows\\Fonts\\arialbd.ttf",
		),
	}
}

func firstExisting(paths ...string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// loadFont selects a face for style. It reports whether bold has to be
// faked because no bold face was found.
func (c *Canvas) loadFont(style printcmd.Style) (fakeBold bool) {
	sz, ok := printcmd.ParseSize(string(style.Size))
	if !ok {
		sz = printcmd.SizeNormal
	}
	size := textSizes[sz]

	if style.Bold && c.useFont(c.fonts.bold, size) {
		return false
	}
	// Without any font file gg keeps its built-in face
	c.useFont(c.fonts.regular, size)
	return style.Bold
}

func (c *Canvas) useFont(path string, size float64) bool {
	if path == "" {
		return false
	}
	if err := c.ctx.LoadFontFace(path, size); err != nil {
		return false
	}
	c.fontPath, c.fontSize = path, size
	return true
}

// PrintText draws content, wrapping it at the paper width
func (c *Canvas) PrintText(content string, style printcmd.Style) error {
	if err := printcmd.Check(printcmd.PrintText(content, style)); err != nil {
		return err
	}

	fakeBold := c.loadFont(style)
	lineHeight := c.ctx.FontHeight()

	lines := c.ctx.WordWrap(content, float64(c.width-10))
	if len(lines) == 0 {
		lines = []string{""}
	}

	for _, line := range lines {
		c.ensureHeight(int(lineHeight) + 20)

		w, _ := c.ctx.MeasureString(line)
		x := c.xFor(w)
		c.ctx.DrawString(line, x, c.y+lineHeight)
		if fakeBold {
			c.ctx.DrawString(line, x+1, c.y+lineHeight)
		}

		c.y += lineHeight + 10
	}
	return nil
}
