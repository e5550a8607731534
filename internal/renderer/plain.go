package renderer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/thereceipt/receipt-interpreter/pkg/layout"
	"github.com/thereceipt/receipt-interpreter/pkg/printcmd"
)

// DefaultColumns is the character width of an 80mm printer
const DefaultColumns = layout.DefaultColumns

// Text is a printcmd.Sink producing a fixed-width plain text preview
type Text struct {
	mu      sync.Mutex
	columns int
	align   printcmd.Alignment
	styled  bool
	bold    lipgloss.Style
	lines   []string
}

var _ printcmd.Sink = (*Text)(nil)

// NewText creates a text preview with the given column count
func NewText(columns int) *Text {
	if columns <= 0 {
		columns = DefaultColumns
	}
	return &Text{
		columns: columns,
		align:   printcmd.AlignLeft,
		bold:    lipgloss.NewStyle().Bold(true),
	}
}

// ColumnsFor returns the character width for a paper width
func ColumnsFor(paperWidth string) int {
	return layout.Columns(paperWidth)
}

// Styled enables terminal styling of bold text
func (t *Text) Styled(on bool) *Text {
	t.styled = on
	return t
}

func (t *Text) position() lipgloss.Position {
	switch t.align {
	case printcmd.AlignCenter:
		return lipgloss.Center
	case printcmd.AlignRight:
		return lipgloss.Right
	default:
		return lipgloss.Left
	}
}

func (t *Text) place(line string, bold bool) {
	placed := strings.TrimRight(lipgloss.PlaceHorizontal(t.columns, t.position(), line), " ")
	if bold && t.styled {
		placed = t.bold.Render(placed)
	}
	t.lines = append(t.lines, placed)
}

// PrintText writes content, breaking it at the column width
func (t *Text) PrintText(content string, style printcmd.Style) error {
	if err := printcmd.Check(printcmd.PrintText(content, style)); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, line := range chunk(content, t.columns) {
		t.place(line, style.Bold)
	}
	return nil
}

// PrintBarcode writes a barcode placeholder
func (t *Text) PrintBarcode(data string, bt printcmd.BarcodeType) error {
	if err := printcmd.Check(printcmd.PrintBarcode(data, bt)); err != nil {
		return err
	}
	bt, _ = printcmd.ParseBarcodeType(string(bt))
	t.mu.Lock()
	defer t.mu.Unlock()
	t.place(fmt.Sprintf("[%s %s]", bt, data), false)
	return nil
}

// PrintQRCode writes a QR placeholder
func (t *Text) PrintQRCode(data string) error {
	if err := printcmd.Check(printcmd.PrintQRCode(data)); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.place(fmt.Sprintf("[QR %s]", data), false)
	return nil
}

// SetAlignment changes the placement of later lines
func (t *Text) SetAlignment(a printcmd.Alignment) error {
	if err := printcmd.Check(printcmd.SetAlignment(a)); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.align, _ = printcmd.ParseAlignment(string(a))
	return nil
}

// FeedLines writes count blank lines
func (t *Text) FeedLines(count int) error {
	if err := printcmd.Check(printcmd.FeedLines(count)); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := 0; i < count; i++ {
		t.lines = append(t.lines, "")
	}
	return nil
}

// CutPaper writes a scissors line
func (t *Text) CutPaper() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, "✂ "+strings.Repeat("-", t.columns-2))
	return nil
}

// Lines returns a copy of the rendered lines
func (t *Text) Lines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.lines))
	copy(out, t.lines)
	return out
}

// String returns the whole preview
func (t *Text) String() string {
	return strings.Join(t.Lines(), "\n")
}

// RenderText replays cmds onto a plain text preview
func RenderText(cmds []printcmd.Command, columns int) (string, error) {
	t := NewText(columns)
	if err := printcmd.Replay(cmds, t); err != nil {
		return "", err
	}
	return t.String(), nil
}

// chunk splits s into pieces of at most n runes. An empty s is one empty line.
func chunk(s string, n int) []string {
	r := []rune(s)
	if len(r) <= n {
		return []string{s}
	}
	var out []string
	for len(r) > n {
		out = append(out, string(r[:n]))
		r = r[n:]
	}
	if len(r) > 0 {
		out = append(out, string(r))
	}
	return out
}
