package tui

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/thereceipt/receipt-interpreter/internal/printer"
	"github.com/thereceipt/receipt-interpreter/pkg/layout"
)

// PrintersModel handles the printers tab. The selected printer is the
// target of prints started from the preview tab.
type PrintersModel struct {
	manager      *printer.Manager
	printers     []*printer.Printer
	cursor       int
	scrollOffset int
	width        int
	height       int

	// add (host[:port]) or rename
	editing     string
	input       textinput.Model
	message     string
	messageType string
}

// NewPrintersModel creates a new printers model
func NewPrintersModel(manager *printer.Manager) PrintersModel {
	input := textinput.New()
	input.CharLimit = 64
	input.Width = 32

	return PrintersModel{
		manager: manager,
		input:   input,
	}
}

// SetSize sets the component size
func (m *PrintersModel) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.scrollOffset = clampScroll(m.cursor, m.scrollOffset, len(m.printers), m.height-4)
}

// SetPrinters replaces the list, keeping the cursor in range
func (m *PrintersModel) SetPrinters(printers []*printer.Printer) {
	m.printers = printers
	if m.cursor >= len(m.printers) {
		m.cursor = maxInt(0, len(m.printers)-1)
	}
	m.scrollOffset = clampScroll(m.cursor, m.scrollOffset, len(m.printers), m.height-4)
}

// Selected returns the printer under the cursor, or nil
func (m PrintersModel) Selected() *printer.Printer {
	if m.cursor < len(m.printers) {
		return m.printers[m.cursor]
	}
	return nil
}

// Editing reports whether a text input owns the keyboard
func (m PrintersModel) Editing() bool {
	return m.editing != ""
}

// Update handles messages
func (m PrintersModel) Update(msg tea.Msg) (PrintersModel, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	if m.editing != "" {
		return m.updateInput(key)
	}

	switch key.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.printers)-1 {
			m.cursor++
		}
	case "r":
		m.message, m.messageType = "Scanning for printers...", "info"
		return m, detectCmd(m.manager)
	case "a":
		m.startInput("add", "192.168.1.100:9100", "")
	case "n":
		if p := m.Selected(); p != nil {
			m.startInput("rename", "Kitchen Printer", p.Name)
		}
	case "w":
		if p := m.Selected(); p != nil {
			next := nextPaperWidth(p.PaperWidth)
			if err := m.manager.SetPaperWidth(p.ID, next); err != nil {
				m.message, m.messageType = err.Error(), "error"
				break
			}
			if next == "" {
				next = "default"
			}
			m.message, m.messageType = "Paper: "+next, "success"
		}
	}
	m.scrollOffset = clampScroll(m.cursor, m.scrollOffset, len(m.printers), m.height-4)
	return m, nil
}

func (m *PrintersModel) startInput(mode, placeholder, value string) {
	m.editing = mode
	m.input.Placeholder = placeholder
	m.input.SetValue(value)
	m.input.Focus()
	m.message = ""
}

func (m *PrintersModel) stopInput() {
	m.editing = ""
	m.input.Blur()
	m.input.Reset()
}

func (m PrintersModel) updateInput(key tea.KeyMsg) (PrintersModel, tea.Cmd) {
	switch key.String() {
	case "esc":
		m.stopInput()
		return m, nil

	case "enter":
		value := strings.TrimSpace(m.input.Value())
		switch m.editing {
		case "add":
			host, port, err := splitHostPort(value)
			if err != nil {
				m.message, m.messageType = err.Error(), "error"
				return m, nil
			}
			m.manager.AddNetworkPrinter(host, port, "")
			m.message, m.messageType = fmt.Sprintf("Added printer %s:%d", host, port), "success"
		case "rename":
			if p := m.Selected(); p != nil && m.manager.SetPrinterName(p.ID, value) {
				m.message, m.messageType = "Renamed printer", "success"
			}
		}
		m.stopInput()
		m.SetPrinters(m.manager.GetAllPrinters())
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(key)
	return m, cmd
}

// paperCycle is the order w steps through; empty is the server default
var paperCycle = []string{"", layout.Paper58, layout.Paper80, layout.Paper112}

func nextPaperWidth(current string) string {
	for i, w := range paperCycle {
		if w == current {
			return paperCycle[(i+1)%len(paperCycle)]
		}
	}
	return paperCycle[0]
}

// splitHostPort accepts host or host:port, defaulting to the raw port 9100
func splitHostPort(value string) (string, int, error) {
	if value == "" {
		return "", 0, fmt.Errorf("host is required")
	}
	host, portStr, err := net.SplitHostPort(value)
	if err != nil {
		return value, 9100, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return "", 0, fmt.Errorf("invalid port: %s", portStr)
	}
	return host, port, nil
}

// View renders the printers tab
func (m PrintersModel) View() string {
	var b strings.Builder

	b.WriteString(CardTitleStyle.Render("Printers"))
	b.WriteString("\n\n")

	if m.editing != "" {
		label := "Host[:port]"
		if m.editing == "rename" {
			label = "Name (empty clears)"
		}
		b.WriteString(InfoStyle.Render(label))
		b.WriteString("\n")
		b.WriteString(InputFocusedStyle.Render(m.input.View()))
		b.WriteString("\n\n")
		b.WriteString(TextMuted.Render("Enter to save • Esc to cancel"))
		if m.messageType == "error" {
			b.WriteString("\n\n" + Message(m.message, m.messageType))
		}
		return b.String()
	}

	if len(m.printers) == 0 {
		b.WriteString(TextMuted.Render("No printers detected.\n"))
		b.WriteString(TextMuted.Render("Press ") + HelpKeyStyle.Render("a") + TextMuted.Render(" to add a network printer\n"))
		b.WriteString(TextMuted.Render("Press ") + HelpKeyStyle.Render("r") + TextMuted.Render(" to scan\n"))
	}

	visible := maxInt(1, m.height-4)
	end := minInt(len(m.printers), m.scrollOffset+visible)
	for i := m.scrollOffset; i < end; i++ {
		p := m.printers[i]
		cursor, style := "  ", ListItemStyle
		if i == m.cursor {
			cursor, style = "▸ ", SelectedItemStyle
		}

		badge := lipgloss.NewStyle().Foreground(Secondary).Render("[" + strings.ToUpper(p.Type) + "]")
		line := fmt.Sprintf("%s%s %s", cursor, Truncate(p.DisplayName(), 32), badge)
		if p.Type == printer.TypeNetwork {
			line += TextMuted.Render(fmt.Sprintf(" • %s:%d", p.Host, p.Port))
		} else if p.Device != "" {
			line += TextMuted.Render(" • " + p.Device)
		}
		if p.PaperWidth != "" {
			line += TextMuted.Render(" • " + p.PaperWidth)
		}
		b.WriteString(style.Render(line))
		b.WriteString("\n")
	}

	if m.message != "" {
		b.WriteString("\n" + Message(m.message, m.messageType))
	}
	return b.String()
}

// Help returns help text for this tab
func (m PrintersModel) Help() string {
	if m.editing != "" {
		return RenderHelp("enter", "save") + "  " + RenderHelp("esc", "cancel")
	}
	return RenderHelp("↑/↓", "select") + "  " +
		RenderHelp("a", "add") + "  " +
		RenderHelp("n", "rename") + "  " +
		RenderHelp("w", "paper") + "  " +
		RenderHelp("r", "scan")
}

// clampScroll keeps cursor inside a window of visible rows over n items
func clampScroll(cursor, offset, n, visible int) int {
	if visible < 1 {
		visible = 1
	}
	if cursor < offset {
		offset = cursor
	}
	if cursor >= offset+visible {
		offset = cursor - visible + 1
	}
	if maxOffset := n - visible; offset > maxOffset {
		offset = maxOffset
	}
	if offset < 0 {
		offset = 0
	}
	return offset
}
