package tui

import (
	"fmt"
	"os"
	"strings"

	"github.com/atotto/clipboard"
	osc52 "github.com/aymanbagabas/go-osc52/v2"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/thereceipt/receipt-interpreter/internal/command"
	"github.com/thereceipt/receipt-interpreter/internal/printer"
)

// CommandModel is the ':' command line
type CommandModel struct {
	executor   *command.Executor
	input      textinput.Model
	visible    bool
	lastResult *command.Result
	width      int
	height     int
	scrollPos  int

	// printer IDs from the last result, selectable for copying
	printerIDs  []string
	selectedIdx int
}

// NewCommandModel creates a new command model
func NewCommandModel(executor *command.Executor) CommandModel {
	input := textinput.New()
	input.Placeholder = "Enter command (e.g., 'interpret layout.json', 'help')"
	input.CharLimit = 400
	input.Prompt = "> "
	input.PromptStyle = lipgloss.NewStyle().Foreground(Secondary)

	return CommandModel{
		executor: executor,
		input:    input,
		width:    80,
	}
}

// SetSize sets the width
func (m *CommandModel) SetSize(width int) {
	m.width = maxInt(40, width)
	m.input.Width = m.width - 6
}

// SetHeight sets the maximum height for the command view
func (m *CommandModel) SetHeight(height int) {
	m.height = height
}

// Show opens the command line
func (m *CommandModel) Show() {
	m.visible = true
	m.input.Focus()
	m.lastResult = nil
	m.scrollPos = 0
	m.printerIDs = nil
	m.selectedIdx = 0
}

// Hide closes the command line
func (m *CommandModel) Hide() {
	m.visible = false
	m.input.Blur()
	m.input.SetValue("")
	m.printerIDs = nil
}

// IsVisible returns whether the command line is open
func (m *CommandModel) IsVisible() bool {
	return m.visible
}

// Update handles messages
func (m CommandModel) Update(msg tea.Msg) (CommandModel, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !m.visible || !ok {
		return m, nil
	}

	switch key.String() {
	case "enter":
		if cmdStr := strings.TrimSpace(m.input.Value()); cmdStr != "" {
			m.lastResult = m.executor.Execute(cmdStr)
			m.input.SetValue("")
			m.scrollPos = 0
			m.printerIDs = printerIDs(m.lastResult)
			m.selectedIdx = 0
		}
		return m, nil
	case "esc":
		m.Hide()
		return m, nil
	case "up":
		if m.scrollPos > 0 {
			m.scrollPos--
		}
		return m, nil
	case "down":
		m.scrollPos++
		return m, nil
	case "ctrl+j":
		if m.selectedIdx < len(m.printerIDs)-1 {
			m.selectedIdx++
		}
		return m, nil
	case "ctrl+k":
		if m.selectedIdx > 0 {
			m.selectedIdx--
		}
		return m, nil
	case "ctrl+y":
		if m.selectedIdx < len(m.printerIDs) && m.lastResult != nil {
			note := " (copied printer ID)"
			if err := copyToClipboard(m.printerIDs[m.selectedIdx]); err != nil {
				note = fmt.Sprintf(" (copy failed: %v)", err)
			}
			m.lastResult.Message += note
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the command area
func (m CommandModel) View() string {
	if !m.visible {
		return ""
	}

	// header, input and help take five rows
	available := maxInt(3, m.height-5)

	var b strings.Builder
	b.WriteString(HeaderStyle.Render("Command"))
	b.WriteString("\n")
	b.WriteString(InputFocusedStyle.Width(m.width - 4).BorderForeground(Secondary).Render(m.input.View()))
	b.WriteString("\n")

	lines := m.resultLines()
	maxScroll := maxInt(0, len(lines)-available)
	scroll := minInt(m.scrollPos, maxScroll)
	end := minInt(len(lines), scroll+available)
	for _, line := range lines[scroll:end] {
		b.WriteString(line)
		b.WriteString("\n")
	}

	help := "Enter to execute, Esc to close"
	if len(lines) > available {
		help += fmt.Sprintf(", ↑/↓ to scroll (%d/%d)", scroll+1, len(lines))
	}
	if len(m.printerIDs) > 0 {
		help += ", Ctrl+J/K select printer, Ctrl+Y copy ID"
	}
	b.WriteString(TextMuted.Render(help))
	return b.String()
}

func (m CommandModel) resultLines() []string {
	r := m.lastResult
	if r == nil {
		return nil
	}
	if !r.Success {
		return wrapStyled(ErrorStyle, "✗ "+r.Error, m.width-4)
	}

	var lines []string
	if strings.HasPrefix(r.Message, "Available Commands:") || strings.Contains(r.Message, "\n") {
		for _, line := range strings.Split(r.Message, "\n") {
			lines = append(lines, TextMuted.Render(line))
		}
	} else if r.Message != "" {
		lines = wrapStyled(SuccessStyle, "✓ "+r.Message, m.width-4)
	}

	if printers, ok := r.Data["printers"].([]*printer.Printer); ok {
		lines = append(lines, "", SectionHeaderStyle.Render("Printers:"))
		for i, p := range printers {
			marker := "  "
			if i == m.selectedIdx {
				marker = "▶ "
			}
			lines = append(lines, marker+formatPrinter(p))
		}
	}
	if jobs, ok := r.Data["jobs"].([]*printer.PrintJob); ok {
		lines = append(lines, "", SectionHeaderStyle.Render("Jobs:"))
		for _, j := range jobs {
			lines = append(lines, "  "+formatJob(j))
		}
	}
	if job, ok := r.Data["job"].(*printer.PrintJob); ok {
		lines = append(lines, "", "  "+formatJob(job))
		if job.Error != "" {
			lines = append(lines, ErrorStyle.Render("  Error: "+job.Error))
		}
	}
	return lines
}

func formatPrinter(p *printer.Printer) string {
	line := fmt.Sprintf("%s  %s [%s]", p.ID, p.DisplayName(), p.Type)
	if p.Type == printer.TypeNetwork {
		line += fmt.Sprintf(" %s:%d", p.Host, p.Port)
	} else if p.Device != "" {
		line += " " + p.Device
	}
	if p.PaperWidth != "" {
		line += " " + p.PaperWidth
	}
	return line
}

func formatJob(j *printer.PrintJob) string {
	return fmt.Sprintf("%s  %s  printer=%s retries=%d",
		j.ID, JobStatusStyle(j.Status).Render(string(j.Status)), j.PrinterID, j.Retries)
}

func printerIDs(r *command.Result) []string {
	if r == nil || !r.Success {
		return nil
	}
	printers, _ := r.Data["printers"].([]*printer.Printer)
	var ids []string
	for _, p := range printers {
		ids = append(ids, p.ID)
	}
	return ids
}

func copyToClipboard(text string) error {
	if err := clipboard.WriteAll(text); err == nil {
		return nil
	}

	// OSC52 reaches the local clipboard over ssh and inside tmux
	seq := osc52.New(text).Tmux().Screen()
	_, _ = fmt.Fprint(os.Stderr, seq)
	return fmt.Errorf("system clipboard unavailable; sent OSC52 copy sequence")
}

func wrapStyled(style lipgloss.Style, text string, width int) []string {
	var out []string
	for _, line := range wrapText(text, width) {
		out = append(out, style.Render(line))
	}
	return out
}

// wrapText wraps text on word boundaries to fit width
func wrapText(text string, width int) []string {
	words := strings.Fields(text)
	if width <= 0 || len(words) == 0 {
		return []string{text}
	}

	var lines []string
	current := words[0]
	for _, word := range words[1:] {
		if len(current)+1+len(word) <= width {
			current += " " + word
		} else {
			lines = append(lines, current)
			current = word
		}
	}
	return append(lines, current)
}
