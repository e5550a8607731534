package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/thereceipt/receipt-interpreter/internal/printer"
)

// JobsModel handles the jobs tab
type JobsModel struct {
	queue        *printer.PrintQueue
	jobs         []*printer.PrintJob
	cursor       int
	scrollOffset int
	width        int
	height       int
	message      string
}

// NewJobsModel creates a new jobs model
func NewJobsModel(queue *printer.PrintQueue) JobsModel {
	return JobsModel{queue: queue}
}

// SetSize sets the component size
func (m *JobsModel) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.scrollOffset = clampScroll(m.cursor, m.scrollOffset, len(m.jobs), m.listHeight())
}

// Refresh reloads the job list from the queue
func (m *JobsModel) Refresh() {
	m.jobs = m.queue.GetAllJobs()
	if m.cursor >= len(m.jobs) {
		m.cursor = maxInt(0, len(m.jobs)-1)
	}
	m.scrollOffset = clampScroll(m.cursor, m.scrollOffset, len(m.jobs), m.listHeight())
}

// Counts tallies jobs by status
func (m JobsModel) Counts() map[printer.JobStatus]int {
	counts := make(map[printer.JobStatus]int, 4)
	for _, j := range m.jobs {
		counts[j.Status]++
	}
	return counts
}

// listHeight leaves room for the title, stats and details block
func (m JobsModel) listHeight() int {
	return m.height - 12
}

// Update handles messages
func (m JobsModel) Update(msg tea.Msg) (JobsModel, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch key.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.jobs)-1 {
			m.cursor++
		}
	case "r":
		m.Refresh()
		m.message = "Refreshed"
	case "c":
		n := m.queue.ClearCompleted()
		m.Refresh()
		m.message = fmt.Sprintf("Cleared %d completed job(s)", n)
	}
	m.scrollOffset = clampScroll(m.cursor, m.scrollOffset, len(m.jobs), m.listHeight())
	return m, nil
}

// View renders the jobs tab
func (m JobsModel) View() string {
	var b strings.Builder

	b.WriteString(CardTitleStyle.Render("Print Queue"))
	b.WriteString("\n\n")

	if len(m.jobs) == 0 {
		b.WriteString(TextMuted.Render("No jobs in queue.\n"))
		b.WriteString(TextMuted.Render("Print a receipt from the Preview tab.\n"))
		return b.String()
	}

	counts := m.Counts()
	var stats []string
	for _, s := range []printer.JobStatus{printer.StatusQueued, printer.StatusPrinting, printer.StatusCompleted, printer.StatusFailed} {
		if counts[s] > 0 {
			stats = append(stats, JobStatusStyle(s).Render(fmt.Sprintf("%d %s", counts[s], s)))
		}
	}
	b.WriteString(strings.Join(stats, "  "))
	b.WriteString("\n\n")

	end := minInt(len(m.jobs), m.scrollOffset+maxInt(1, m.listHeight()))
	for i := m.scrollOffset; i < end; i++ {
		job := m.jobs[i]
		cursor, style := "  ", ListItemStyle
		if i == m.cursor {
			cursor, style = "▸ ", SelectedItemStyle
		}
		age := time.Since(job.CreatedAt).Truncate(time.Second).String()
		line := fmt.Sprintf("%s%s  %s  %s", cursor, Truncate(job.ID, 18),
			JobStatusStyle(job.Status).Render(string(job.Status)), TextMuted.Render(age))
		b.WriteString(style.Render(line))
		b.WriteString("\n")
	}

	if m.cursor < len(m.jobs) {
		job := m.jobs[m.cursor]
		b.WriteString("\n")
		b.WriteString(SectionHeaderStyle.Render("DETAILS"))
		b.WriteString("\n")
		b.WriteString(TextMuted.Render("ID: ") + TextNormal.Render(job.ID) + "\n")
		b.WriteString(TextMuted.Render("Printer: ") + TextNormal.Render(job.PrinterID) + "\n")
		b.WriteString(TextMuted.Render("Created: ") + TextNormal.Render(job.CreatedAt.Format("15:04:05")))
		if job.Retries > 0 {
			b.WriteString("\n" + TextMuted.Render("Retries: ") + WarningStyle.Render(fmt.Sprint(job.Retries)))
		}
		if job.Error != "" {
			b.WriteString("\n" + ErrorStyle.Render("Error: "+job.Error))
		}
	}

	if m.message != "" {
		b.WriteString("\n\n" + Message(m.message, "success"))
	}
	return b.String()
}

// Help returns help text for this tab
func (m JobsModel) Help() string {
	return RenderHelp("↑/↓", "select") + "  " +
		RenderHelp("c", "clear done") + "  " +
		RenderHelp("r", "refresh")
}
