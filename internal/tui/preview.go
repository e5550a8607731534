package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	"github.com/thereceipt/receipt-interpreter/internal/interpreter"
	"github.com/thereceipt/receipt-interpreter/internal/renderer"
	"github.com/thereceipt/receipt-interpreter/pkg/layout"
	"github.com/thereceipt/receipt-interpreter/pkg/order"
	"github.com/thereceipt/receipt-interpreter/pkg/printcmd"
)

// Loader fetches a layout or order by file path or URL
type Loader func(src string) ([]byte, error)

// Receipt is an interpreted layout ready to preview or print
type Receipt struct {
	Commands []printcmd.Command
	Columns  int
	Text     string
}

// BuildReceipt loads a layout and an optional order and interprets them.
// The text preview is styled for the terminal when styled is set.
func BuildReceipt(load Loader, layoutSrc, orderSrc string, styled bool, opts ...interpreter.Option) (*Receipt, error) {
	data, err := load(layoutSrc)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load layout")
	}
	doc, err := layout.Parse(data)
	if err != nil {
		return nil, err
	}

	var o *order.Order
	if orderSrc != "" {
		data, err := load(orderSrc)
		if err != nil {
			return nil, errors.Wrap(err, "failed to load order")
		}
		if o, err = order.Parse(data); err != nil {
			return nil, err
		}
	}

	cmds, err := interpreter.Interpret(doc, o, opts...)
	if err != nil {
		return nil, err
	}

	columns := renderer.ColumnsFor(doc.PaperWidth)
	text := renderer.NewText(columns).Styled(styled)
	if err := printcmd.Replay(cmds, text); err != nil {
		return nil, err
	}
	return &Receipt{Commands: cmds, Columns: columns, Text: text.String()}, nil
}

// printRequestMsg asks the app to queue the current receipt
type printRequestMsg struct{}

// PreviewModel interprets a layout and an order and shows the receipt
type PreviewModel struct {
	load    Loader
	opts    []interpreter.Option
	inputs  [2]textinput.Model // layout, order
	focus   int
	view    viewport.Model
	receipt *Receipt
	width   int
	height  int
	message string
	msgType string
}

// NewPreviewModel creates the preview tab
func NewPreviewModel(load Loader, opts ...interpreter.Option) PreviewModel {
	layoutInput := textinput.New()
	layoutInput.Placeholder = "layouts/receipt.json or https://..."
	layoutInput.CharLimit = 256
	layoutInput.Focus()

	orderInput := textinput.New()
	orderInput.Placeholder = "orders/A-0042.json (optional)"
	orderInput.CharLimit = 256

	return PreviewModel{
		load:   load,
		opts:   opts,
		inputs: [2]textinput.Model{layoutInput, orderInput},
		view:   viewport.New(48, 10),
	}
}

// SetSources prefills the layout and order inputs
func (m *PreviewModel) SetSources(layoutSrc, orderSrc string) {
	m.inputs[0].SetValue(layoutSrc)
	m.inputs[1].SetValue(orderSrc)
}

// SetSize sets the component size
func (m *PreviewModel) SetSize(width, height int) {
	m.width = width
	m.height = height
	for i := range m.inputs {
		m.inputs[i].Width = maxInt(20, width-8)
	}
	// inputs, title and help take about ten rows
	m.view.Height = maxInt(3, height-12)
	if m.receipt != nil {
		m.view.Width = m.receipt.Columns + 2
	}
}

// Update handles messages
func (m PreviewModel) Update(msg tea.Msg) (PreviewModel, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		var cmd tea.Cmd
		m.view, cmd = m.view.Update(msg)
		return m, cmd
	}

	switch key.String() {
	case "tab", "shift+tab":
		m.inputs[m.focus].Blur()
		m.focus = 1 - m.focus
		m.inputs[m.focus].Focus()
		return m, nil

	case "enter":
		m.Render()
		return m, nil

	case "ctrl+p":
		if m.receipt == nil {
			m.message, m.msgType = "Render a receipt first", "error"
			return m, nil
		}
		return m, func() tea.Msg { return printRequestMsg{} }

	case "pgup", "pgdown", "ctrl+u", "ctrl+d":
		var cmd tea.Cmd
		m.view, cmd = m.view.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	return m, cmd
}

// Render interprets the current sources into the viewport
func (m *PreviewModel) Render() {
	layoutSrc := strings.TrimSpace(m.inputs[0].Value())
	if layoutSrc == "" {
		m.message, m.msgType = "Layout is required", "error"
		return
	}

	r, err := BuildReceipt(m.load, layoutSrc, strings.TrimSpace(m.inputs[1].Value()), true, m.opts...)
	if err != nil {
		m.receipt = nil
		m.view.SetContent("")
		m.message, m.msgType = err.Error(), "error"
		return
	}

	m.receipt = r
	m.view.Width = r.Columns + 2
	m.view.SetContent(r.Text)
	m.view.GotoTop()
	m.message, m.msgType = fmt.Sprintf("%d commands", len(r.Commands)), "success"
}

// ReceiptFor interprets the current sources again for a printer loaded
// with paperWidth. An empty width returns the rendered receipt.
func (m *PreviewModel) ReceiptFor(paperWidth string) (*Receipt, error) {
	if m.receipt == nil {
		return nil, errors.New("render a receipt first")
	}
	if paperWidth == "" {
		return m.receipt, nil
	}
	opts := append(append([]interpreter.Option{}, m.opts...), interpreter.WithPaperWidth(paperWidth))
	return BuildReceipt(m.load,
		strings.TrimSpace(m.inputs[0].Value()),
		strings.TrimSpace(m.inputs[1].Value()),
		false, opts...)
}

// SetMessage shows a notice under the preview
func (m *PreviewModel) SetMessage(text, kind string) {
	m.message, m.msgType = text, kind
}

// View renders the preview tab
func (m PreviewModel) View() string {
	var b strings.Builder

	b.WriteString(CardTitleStyle.Render("Preview"))
	b.WriteString("\n")

	for i, label := range []string{"Layout", "Order"} {
		style := InputStyle
		if i == m.focus {
			style = InputFocusedStyle
		}
		b.WriteString(TextMuted.Render(label))
		b.WriteString("\n")
		b.WriteString(style.Render(m.inputs[i].View()))
		b.WriteString("\n")
	}

	if m.message != "" {
		b.WriteString(Message(m.message, m.msgType))
		b.WriteString("\n")
	}
	if m.receipt != nil {
		b.WriteString("\n")
		b.WriteString(PaperStyle.Render(m.view.View()))
	}
	return b.String()
}

// Help returns help text for this tab
func (m PreviewModel) Help() string {
	return RenderHelp("tab", "field") + "  " +
		RenderHelp("enter", "render") + "  " +
		RenderHelp("pgup/pgdn", "scroll") + "  " +
		RenderHelp("ctrl+p", "print to selected") + "  " +
		RenderHelp("f1-f3", "tabs")
}
