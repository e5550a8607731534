// Package tui is the terminal front end of the server: printers, the print
// queue, a live receipt preview and a ':' command line.
package tui

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/thereceipt/receipt-interpreter/internal/command"
	"github.com/thereceipt/receipt-interpreter/internal/interpreter"
	"github.com/thereceipt/receipt-interpreter/internal/printer"
)

// Tab represents a navigation tab
type Tab int

const (
	TabPrinters Tab = iota
	TabJobs
	TabPreview
	tabCount
)

func (t Tab) String() string {
	return []string{"Printers", "Jobs", "Preview"}[t]
}

const sidebarWidth = 24

// Messages
type tickMsg time.Time

type printersMsg struct {
	scanned bool
	count   int
	err     error
}

type logMsg struct {
	message string
	level   string
}

// Options configures an App
type Options struct {
	Port        string
	Interpreter []interpreter.Option
	// Layout and Order prefill the preview tab
	Layout string
	Order  string
}

// App is the main Bubble Tea model
type App struct {
	manager *printer.Manager
	queue   *printer.PrintQueue
	port    string
	program *tea.Program

	activeTab Tab
	width     int
	height    int
	ready     bool
	quitting  bool

	logs    []logEntry
	maxLogs int

	spinner  spinner.Model
	printers PrintersModel
	jobs     JobsModel
	preview  PreviewModel
	command  CommandModel

	startTime time.Time
}

type logEntry struct {
	time    time.Time
	message string
	level   string
}

// NewApp creates a new Bubble Tea TUI application
func NewApp(manager *printer.Manager, queue *printer.PrintQueue, executor *command.Executor, opts Options) *App {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	app := &App{
		manager:   manager,
		queue:     queue,
		port:      opts.Port,
		activeTab: TabPrinters,
		maxLogs:   100,
		spinner:   s,
		startTime: time.Now(),
	}

	app.printers = NewPrintersModel(manager)
	app.jobs = NewJobsModel(queue)
	app.preview = NewPreviewModel(executor.Load, opts.Interpreter...)
	app.command = NewCommandModel(executor)

	if opts.Layout != "" {
		app.preview.SetSources(opts.Layout, opts.Order)
		app.preview.Render()
		app.activeTab = TabPreview
	}

	app.program = tea.NewProgram(app, tea.WithAltScreen())
	return app
}

// Init initializes the application
func (a *App) Init() tea.Cmd {
	return tea.Batch(
		a.spinner.Tick,
		a.tickCmd(),
		detectCmd(a.manager),
	)
}

func (a *App) tickCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// detectCmd scans devices off the UI goroutine
func detectCmd(manager *printer.Manager) tea.Cmd {
	return func() tea.Msg {
		printers, err := manager.DetectPrinters()
		return printersMsg{scanned: true, count: len(printers), err: err}
	}
}

// inputFocused reports whether the active tab is taking text
func (a *App) inputFocused() bool {
	return a.activeTab == TabPreview || a.printers.Editing()
}

// Update handles messages
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if a.command.IsVisible() {
			var cmd tea.Cmd
			a.command, cmd = a.command.Update(msg)
			return a, cmd
		}

		switch msg.String() {
		case "ctrl+c":
			a.quitting = true
			return a, tea.Quit
		case "q":
			if !a.inputFocused() {
				a.quitting = true
				return a, tea.Quit
			}
		case ":":
			if !a.inputFocused() {
				a.command.Show()
				a.command.SetSize(a.width)
				a.command.SetHeight(a.bottomAreaHeight())
				return a, nil
			}
		case "esc":
			if a.activeTab == TabPreview {
				a.activeTab = TabPrinters
				return a, nil
			}
		case "1", "2", "3":
			if !a.inputFocused() {
				a.activeTab = Tab(msg.String()[0] - '1')
				return a, nil
			}
		case "f1", "f2", "f3":
			a.activeTab = Tab(msg.String()[1] - '1')
			return a, nil
		}

		switch a.activeTab {
		case TabPrinters:
			var cmd tea.Cmd
			a.printers, cmd = a.printers.Update(msg)
			cmds = append(cmds, cmd)
		case TabJobs:
			var cmd tea.Cmd
			a.jobs, cmd = a.jobs.Update(msg)
			cmds = append(cmds, cmd)
		case TabPreview:
			var cmd tea.Cmd
			a.preview, cmd = a.preview.Update(msg)
			cmds = append(cmds, cmd)
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.ready = true
		a.resize()

	case tickMsg:
		a.jobs.Refresh()
		a.printers.SetPrinters(a.manager.GetAllPrinters())
		cmds = append(cmds, a.tickCmd())

	case printersMsg:
		a.printers.SetPrinters(a.manager.GetAllPrinters())
		if msg.scanned {
			a.printers.message, a.printers.messageType = fmt.Sprintf("Detected %d local printer(s)", msg.count), "success"
			if msg.err != nil {
				a.printers.message, a.printers.messageType = "Detection failed: "+msg.err.Error(), "error"
			}
		}

	case printRequestMsg:
		a.printReceipt()

	case logMsg:
		a.addLog(msg.message, msg.level)

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	return a, tea.Batch(cmds...)
}

// printReceipt queues the previewed receipt on the printer selected in the
// printers tab, sized for that printer's paper
func (a *App) printReceipt() {
	p := a.printers.Selected()
	if p == nil {
		a.preview.SetMessage("Select a printer in the Printers tab first", "error")
		return
	}
	r, err := a.preview.ReceiptFor(p.PaperWidth)
	if err != nil {
		a.preview.SetMessage(err.Error(), "error")
		return
	}
	jobID, err := a.queue.Enqueue(p.ID, r.Commands)
	if err != nil {
		a.preview.SetMessage(err.Error(), "error")
		return
	}
	a.jobs.Refresh()
	a.preview.SetMessage(fmt.Sprintf("Queued job %s on %s", Truncate(jobID, 8), p.DisplayName()), "success")
	a.addLog("queued job "+jobID, "success")
}

func (a *App) contentSize() (int, int) {
	return maxInt(20, a.width-sidebarWidth-1), maxInt(1, a.height-a.bottomAreaHeight())
}

func (a *App) resize() {
	w, h := a.contentSize()
	// ContentStyle padding
	w, h = maxInt(1, w-4), maxInt(1, h-2)
	a.printers.SetSize(w, h)
	a.jobs.SetSize(w, h)
	a.preview.SetSize(w, h)
	a.command.SetSize(a.width)
	a.command.SetHeight(a.bottomAreaHeight())
}

// View renders the UI
func (a *App) View() string {
	if a.quitting {
		return "\n  Goodbye!\n\n"
	}
	if !a.ready {
		return "\n  " + a.spinner.View() + " Loading...\n"
	}

	contentWidth, contentHeight := a.contentSize()
	top := lipgloss.JoinHorizontal(lipgloss.Top,
		a.renderSidebar(contentHeight),
		a.renderContent(contentWidth, contentHeight))

	var bottom string
	if a.command.IsVisible() {
		bottom = a.renderCommandArea()
	} else {
		bottom = a.renderStatusBar()
	}

	// fill the screen exactly so stale rows are cleared
	lines := strings.Split(lipgloss.JoinVertical(lipgloss.Left, top, bottom), "\n")
	for len(lines) < a.height {
		lines = append(lines, strings.Repeat(" ", a.width))
	}
	if len(lines) > a.height {
		lines = lines[:a.height]
	}
	return strings.Join(lines, "\n")
}

func (a *App) renderSidebar(height int) string {
	lines := []string{
		LogoStyle.Render("Receipt Interpreter"),
		TextMuted.Render("Port " + a.port),
		"",
		TextMuted.Render(" NAVIGATION"),
		"",
	}

	for t := Tab(0); t < tabCount; t++ {
		item := fmt.Sprintf(" %d %s", t+1, t)
		if pad := sidebarWidth - lipgloss.Width(item) - 2; pad > 0 {
			item += strings.Repeat(" ", pad)
		}
		if t == a.activeTab {
			lines = append(lines, SidebarActiveStyle.Render(item))
		} else {
			lines = append(lines, SidebarItemStyle.Render(item))
		}
	}

	lines = append(lines, "", TextMuted.Render(" KEYS"))
	switch a.activeTab {
	case TabPrinters:
		lines = append(lines, wrapText(a.printers.Help(), sidebarWidth-2)...)
	case TabJobs:
		lines = append(lines, wrapText(a.jobs.Help(), sidebarWidth-2)...)
	case TabPreview:
		lines = append(lines, wrapText(a.preview.Help(), sidebarWidth-2)...)
	}

	return SidebarStyle.
		Width(sidebarWidth).
		Height(height).
		Render(strings.Join(lines, "\n"))
}

func (a *App) renderContent(width, height int) string {
	var content string
	switch a.activeTab {
	case TabPrinters:
		content = a.printers.View()
	case TabJobs:
		content = a.jobs.View()
	case TabPreview:
		content = a.preview.View()
	}

	lines := strings.Split(content, "\n")
	if len(lines) > height {
		content = strings.Join(lines[:height], "\n")
	}

	return ContentStyle.
		Width(width).
		Height(height).
		Render(content)
}

func (a *App) renderStatusBar() string {
	base := lipgloss.NewStyle().Background(BgCard).Foreground(colorTextNormal)
	seg := func(text string, bg lipgloss.Color, bold bool) string {
		return lipgloss.NewStyle().Foreground(colorTextBright).Background(bg).Bold(bold).Padding(0, 1).Render(text)
	}
	pipe := base.Render(" | ")

	counts := a.jobs.Counts()
	left := seg("NAV", BgHover, true) + pipe +
		seg("port "+a.port, Primary, false) + pipe +
		seg("printers "+strconv.Itoa(len(a.printers.printers)), Secondary, true) + pipe +
		seg("queued "+strconv.Itoa(counts[printer.StatusQueued]), BgHover, false) + pipe +
		seg("printing "+strconv.Itoa(counts[printer.StatusPrinting]), BgHover, false) + pipe

	msgText, msgBg := "ready", BgCard
	if len(a.logs) > 0 {
		last := a.logs[len(a.logs)-1]
		msgText = last.message
		switch last.level {
		case "error":
			msgBg = Error
		case "warning":
			msgBg = Warning
		case "success":
			msgBg = Success
		default:
			msgBg = BgHover
		}
	}

	uptime := time.Since(a.startTime)
	up := seg(fmt.Sprintf("up %02d:%02d", int(uptime.Hours()), int(uptime.Minutes())%60), Primary, true)

	room := maxInt(10, a.width-lipgloss.Width(left)-lipgloss.Width(pipe)-lipgloss.Width(up)-2)
	left += seg(Truncate(msgText, room), msgBg, false)

	gap := maxInt(1, a.width-lipgloss.Width(left)-lipgloss.Width(pipe)-lipgloss.Width(up))
	return base.Width(a.width).Render(left + strings.Repeat(" ", gap) + pipe + up)
}

func (a *App) renderCommandArea() string {
	base := lipgloss.NewStyle().Background(BgCard).Foreground(colorTextNormal)
	h := a.bottomAreaHeight()

	lines := strings.Split(a.command.View(), "\n")
	for len(lines) < h {
		lines = append(lines, "")
	}
	if len(lines) > h {
		lines = lines[len(lines)-h:]
	}
	return base.Width(a.width).Height(h).Render(strings.Join(lines, "\n"))
}

func (a *App) bottomAreaHeight() int {
	if a.command.IsVisible() {
		return minInt(12, maxInt(6, a.height/3))
	}
	return 1
}

func (a *App) addLog(message, level string) {
	a.logs = append(a.logs, logEntry{time: time.Now(), message: message, level: level})
	if len(a.logs) > a.maxLogs {
		a.logs = a.logs[1:]
	}
}

// Log posts a message to the status bar from any goroutine. Send blocks
// until the program runs, so it is handed off.
func (a *App) Log(message, level string) {
	go a.program.Send(logMsg{message: message, level: level})
}

// RefreshPrinters asks the app to reload the printer list from any goroutine
func (a *App) RefreshPrinters() {
	go a.program.Send(printersMsg{})
}

// Run starts the TUI and blocks until it quits
func (a *App) Run() error {
	_, err := a.program.Run()
	return err
}

// Quit stops a running TUI
func (a *App) Quit() {
	a.program.Quit()
}

// LogWriter returns an io.Writer that shows each written line in the
// status bar, for use as a log output
func (a *App) LogWriter() io.Writer {
	return &appLogWriter{app: a}
}

type appLogWriter struct {
	app *App
}

func (w *appLogWriter) Write(p []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimSpace(string(p)), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			w.app.Log(line, levelOf(line))
		}
	}
	return len(p), nil
}

// levelOf picks a status color from a console log line
func levelOf(line string) string {
	switch {
	case strings.Contains(line, " ERR "), strings.Contains(line, " FTL "):
		return "error"
	case strings.Contains(line, " WRN "):
		return "warning"
	default:
		return "info"
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
