// Package tui provides a Bubble Tea terminal user interface for hls-downloader.
package tui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/hlsget/hls-downloader/internal/config"
	"github.com/hlsget/hls-downloader/internal/download"
	"github.com/hlsget/hls-downloader/internal/logging"
	"github.com/hlsget/hls-downloader/internal/model"
)

// Styles for the TUI
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF6B6B")).
			MarginBottom(1)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#4ECDC4"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#95E1A3"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFE66D"))

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#A8DADC"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6C757D"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#4ECDC4")).
			Padding(1, 2)
)

// State represents the current UI state.
type State int

const (
	StateInput State = iota
	StateDownloading
	StateComplete
	StateError
)

// LogEntry represents a log message in the UI.
type LogEntry struct {
	Message string
	Level   download.ProgressLevel
}

// Model is the Bubble Tea model for the TUI.
type Model struct {
	state     State
	textInput textinput.Model
	spinner   spinner.Model
	progress  progress.Model
	settings  *config.Settings
	logs      []LogEntry
	status    model.Status
	err       error

	// Download context
	ctx    context.Context
	cancel context.CancelFunc

	// Downloader reference, polled for progress
	dl        *download.Downloader
	events    chan download.ProgressEvent
	logCloser io.Closer

	// Download progress
	doneSegments  int32
	totalSegments int32
	receivedBytes int64

	// Options
	decrypt bool
	cleanup bool
	merge   bool
	verbose bool

	width  int
	height int
}

// NewModel creates a new TUI model.
func NewModel(settings *config.Settings) Model {
	if settings == nil {
		settings = config.DefaultSettings()
	}

	ti := textinput.New()
	ti.Placeholder = "https://example.com/video/index.m3u8"
	ti.Focus()
	ti.CharLimit = 500
	ti.Width = 60

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))

	prog := progress.New(progress.WithDefaultGradient())
	prog.Width = 50

	ctx, cancel := context.WithCancel(context.Background())

	return Model{
		state:     StateInput,
		textInput: ti,
		spinner:   sp,
		progress:  prog,
		settings:  settings,
		logs:      make([]LogEntry, 0),
		ctx:       ctx,
		cancel:    cancel,
		decrypt:   settings.DecryptSegments,
		cleanup:   settings.DeleteWorkDir,
		merge:     settings.Merge,
	}
}

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

// Message types
type (
	// DownloadDoneMsg is sent when the pipeline reaches a terminal status.
	DownloadDoneMsg struct {
		Status model.Status
		Err    error
	}

	// TickMsg is for periodic progress updates.
	TickMsg struct{}
)

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.progress.Width = msg.Width - 20
		if m.progress.Width > 80 {
			m.progress.Width = 80
		}
		if m.progress.Width < 20 {
			m.progress.Width = 20
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.cancel()
			return m, tea.Quit

		case "esc":
			if m.state == StateInput {
				return m, tea.Quit
			}
			if m.state == StateDownloading {
				m.cancel()
				m.state = StateError
				m.err = fmt.Errorf("cancelled by user")
			}

		case "enter":
			if m.state == StateInput && m.textInput.Value() != "" {
				return m.startDownload()
			}

		case "d":
			if m.state == StateInput {
				m.decrypt = !m.decrypt
			}

		case "x":
			if m.state == StateInput {
				m.cleanup = !m.cleanup
			}

		case "m":
			if m.state == StateInput {
				m.merge = !m.merge
			}

		case "v":
			if m.state == StateInput {
				m.verbose = !m.verbose
			}

		case "q":
			if m.state == StateComplete || m.state == StateError {
				return m, tea.Quit
			}

		case "r":
			if m.state == StateComplete || m.state == StateError {
				// Reset for new download
				m.state = StateInput
				m.logs = nil
				m.err = nil
				m.status = model.StatusUnknown
				m.dl = nil
				m.events = nil
				m.doneSegments = 0
				m.totalSegments = 0
				m.receivedBytes = 0
				m.ctx, m.cancel = context.WithCancel(context.Background())
				m.textInput.SetValue("")
				m.textInput.Focus()
			}
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case DownloadDoneMsg:
		m.drainEvents()
		m.syncProgress()
		if m.logCloser != nil {
			m.logCloser.Close()
			m.logCloser = nil
		}
		m.status = msg.Status
		if m.ctx.Err() != nil {
			m.state = StateError
			m.err = fmt.Errorf("cancelled by user")
		} else if msg.Err != nil {
			m.state = StateError
			m.err = msg.Err
		} else {
			m.state = StateComplete
		}

	case TickMsg:
		if m.dl != nil && m.state == StateDownloading {
			m.drainEvents()
			m.syncProgress()

			var percent float64
			if m.totalSegments > 0 {
				percent = float64(m.doneSegments) / float64(m.totalSegments)
			}
			progressCmd := m.progress.SetPercent(percent)
			cmds = append(cmds, progressCmd, m.tickProgress())
		}

	case progress.FrameMsg:
		progressModel, cmd := m.progress.Update(msg)
		m.progress = progressModel.(progress.Model)
		cmds = append(cmds, cmd)
	}

	// Update text input
	if m.state == StateInput {
		var cmd tea.Cmd
		m.textInput, cmd = m.textInput.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// startDownload builds the downloader and kicks off the pipeline plus the
// progress ticker.
func (m Model) startDownload() (tea.Model, tea.Cmd) {
	manifestURL := m.textInput.Value()

	settings := *m.settings
	settings.DecryptSegments = m.decrypt
	settings.DeleteWorkDir = m.cleanup
	settings.Merge = m.merge

	events := make(chan download.ProgressEvent, 64)

	savePath := model.SavePathFor(manifestURL)
	asset := model.NewAsset(savePath)

	// Console logging would corrupt the alt screen, so the run logs only
	// to the asset's log file.
	log, logCloser, err := logging.NewFileOnly(asset.LogPath, settings.LogLevel)
	if err != nil {
		log = zerolog.Nop()
	}
	m.logCloser = logCloser

	dl, err := download.NewDownloader(manifestURL, savePath, &settings, &download.Options{
		Logger: &log,
		OnProgress: func(event download.ProgressEvent) {
			select {
			case events <- event:
			default: // never block the pipeline on a slow UI
			}
		},
	})
	if err != nil {
		if m.logCloser != nil {
			m.logCloser.Close()
			m.logCloser = nil
		}
		m.state = StateError
		m.err = err
		return m, nil
	}

	m.dl = dl
	m.events = events
	m.state = StateDownloading

	run := func() tea.Msg {
		status, err := dl.Run(m.ctx)
		return DownloadDoneMsg{Status: status, Err: err}
	}
	return m, tea.Batch(run, m.tickProgress(), m.spinner.Tick)
}

// drainEvents moves pending pipeline events into the visible log ring.
func (m *Model) drainEvents() {
	if m.events == nil {
		return
	}
	for {
		select {
		case event := <-m.events:
			if event.Level == download.LevelVerbose && !m.verbose {
				continue
			}
			m.logs = append(m.logs, LogEntry{Message: event.Message, Level: event.Level})
			// Keep only last 10 logs
			if len(m.logs) > 10 {
				m.logs = m.logs[len(m.logs)-10:]
			}
		default:
			return
		}
	}
}

func (m *Model) syncProgress() {
	if m.dl == nil {
		return
	}
	m.doneSegments, m.totalSegments, m.receivedBytes = m.dl.Progress()
}

// tickProgress returns a command to tick progress updates.
func (m Model) tickProgress() tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(_ time.Time) tea.Msg {
		return TickMsg{}
	})
}

// View renders the UI.
func (m Model) View() string {
	var b strings.Builder

	// Header
	b.WriteString(titleStyle.Render("🎬 HLS Downloader"))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("Download HLS streams to MP4"))
	b.WriteString("\n\n")

	switch m.state {
	case StateInput:
		b.WriteString(m.viewInput())
	case StateDownloading:
		b.WriteString(m.viewDownloading())
	case StateComplete:
		b.WriteString(m.viewComplete())
	case StateError:
		b.WriteString(m.viewError())
	}

	// Footer
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(m.getHelpText()))

	return b.String()
}

func (m Model) viewInput() string {
	var b strings.Builder

	b.WriteString(subtitleStyle.Render("Enter manifest URL:"))
	b.WriteString("\n\n")
	b.WriteString(m.textInput.View())
	b.WriteString("\n\n")

	check := func(on bool) string {
		if on {
			return "[×]"
		}
		return "[ ]"
	}

	b.WriteString(infoStyle.Render("Options:"))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("  %s Decrypt segments at fetch time (d)\n", check(m.decrypt)))
	b.WriteString(fmt.Sprintf("  %s Merge into MP4 (m)\n", check(m.merge)))
	b.WriteString(fmt.Sprintf("  %s Delete working directory after merge (x)\n", check(m.cleanup)))
	b.WriteString(fmt.Sprintf("  %s Verbose output (v)\n", check(m.verbose)))
	b.WriteString("\n")
	if m.textInput.Value() != "" {
		b.WriteString(dimStyle.Render(fmt.Sprintf("Output: %s.mp4", model.SavePathFor(m.textInput.Value()))))
		b.WriteString("\n")
	}

	return b.String()
}

func (m Model) viewDownloading() string {
	var b strings.Builder

	b.WriteString(m.spinner.View())
	b.WriteString(" ")
	if m.totalSegments == 0 {
		b.WriteString(subtitleStyle.Render("Resolving manifest..."))
	} else {
		b.WriteString(subtitleStyle.Render("Downloading segments..."))
	}
	b.WriteString("\n\n")

	// Progress bar
	var percent float64
	if m.totalSegments > 0 {
		percent = float64(m.doneSegments) / float64(m.totalSegments)
	}
	b.WriteString(m.progress.ViewAs(percent))
	b.WriteString("\n")

	b.WriteString(infoStyle.Render(fmt.Sprintf(
		"Segments: %d/%d | Received: %s",
		m.doneSegments,
		m.totalSegments,
		humanize.Bytes(uint64(m.receivedBytes)),
	)))
	b.WriteString("\n\n")

	// Logs
	b.WriteString(m.renderLogs())

	return b.String()
}

func (m Model) viewComplete() string {
	var b strings.Builder

	output := ""
	if m.dl != nil {
		output = m.dl.Asset().OutputPath
	}

	box := boxStyle.Render(fmt.Sprintf(
		"✨ %s\n\n"+
			"Output: %s\n"+
			"Segments: %d\n"+
			"Size: %s",
		m.status,
		output,
		m.doneSegments,
		humanize.Bytes(uint64(m.receivedBytes)),
	))
	b.WriteString(box)

	return b.String()
}

func (m Model) viewError() string {
	var b strings.Builder

	b.WriteString(errorStyle.Render("❌ Error occurred:"))
	b.WriteString("\n\n")
	if m.err != nil {
		b.WriteString(fmt.Sprintf("  %s", m.err.Error()))
	}
	if m.status != model.StatusUnknown {
		b.WriteString("\n")
		b.WriteString(dimStyle.Render(fmt.Sprintf("  status: %s", m.status)))
	}

	return b.String()
}

func (m Model) renderLogs() string {
	var b strings.Builder

	for _, log := range m.logs {
		var style lipgloss.Style
		prefix := "•"
		switch log.Level {
		case download.LevelError:
			style = errorStyle
			prefix = "✗"
		case download.LevelWarning:
			style = warningStyle
			prefix = "!"
		case download.LevelSuccess:
			style = successStyle
			prefix = "✓"
		case download.LevelInfo:
			style = infoStyle
			prefix = "›"
		default:
			style = dimStyle
		}
		b.WriteString(style.Render(prefix + " " + log.Message))
		b.WriteString("\n")
	}

	return b.String()
}

func (m Model) getHelpText() string {
	switch m.state {
	case StateInput:
		return "enter: start • d: decrypt • m: merge • x: cleanup • v: verbose • esc: quit"
	case StateDownloading:
		return "esc: cancel"
	case StateComplete, StateError:
		return "r: new download • q: quit"
	}
	return ""
}

// Run starts the TUI application.
func Run(settings *config.Settings) error {
	p := tea.NewProgram(NewModel(settings), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
