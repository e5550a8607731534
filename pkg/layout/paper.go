package layout

// Paper widths
const (
	Paper58  = "58mm"
	Paper80  = "80mm"
	Paper112 = "112mm"
)

// DefaultColumns is the character width of 80mm paper
const DefaultColumns = 48

// ValidPaperWidth reports whether w names a supported paper roll
func ValidPaperWidth(w string) bool {
	switch w {
	case Paper58, Paper80, Paper112:
		return true
	}
	return false
}

// Columns returns the characters per line in the printer's font A for a
// paper width. Empty and unknown widths count as 80mm.
func Columns(paperWidth string) int {
	switch paperWidth {
	case Paper58:
		return 32
	case Paper112:
		return 64
	default:
		return DefaultColumns
	}
}
