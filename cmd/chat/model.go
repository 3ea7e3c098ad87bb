package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"discussion-facilitator/backend/conversation/client"
	"discussion-facilitator/backend/conversation/export"
	"discussion-facilitator/backend/conversation/models"
	"discussion-facilitator/backend/conversation/service"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	maxNameLength  = 32
	sidebarWidth   = 30
	requestTimeout = 90 * time.Second
)

// chatAPI is the part of the HTTP client the UI needs
type chatAPI interface {
	Messages(ctx context.Context, afterID uint64) ([]models.Message, error)
	Send(ctx context.Context, author, content string) (*service.SubmitResult, error)
	Clear(ctx context.Context) error
	Participants(ctx context.Context) (*service.Participants, error)
	Export(ctx context.Context, format export.Format) ([]byte, string, error)
}

type screen int

const (
	screenName screen = iota
	screenChat
)

type tickMsg time.Time

type refreshDoneMsg struct {
	messages     []models.Message
	participants *service.Participants
	err          error
}

type sendDoneMsg struct {
	result *service.SubmitResult
	err    error
}

type clearDoneMsg struct {
	err error
}

type exportDoneMsg struct {
	path string
	err  error
}

type model struct {
	cfg appConfig
	api chatAPI

	screen   screen
	username string

	messages     []models.Message
	participants *service.Participants

	refreshing   bool
	sending      bool
	confirmClear bool
	statusLine   string
	statusErr    bool

	width  int
	height int

	input    textinput.Model
	timeline viewport.Model
	spinner  spinner.Model

	theme uiTheme
}

func newModel(cfg appConfig, api chatAPI) model {
	input := textinput.New()
	input.Prompt = "❯ "
	input.CharLimit = maxNameLength
	input.Placeholder = "Enter a display name"
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Points
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#05ffa1"))

	timeline := viewport.New(0, 0)
	timeline.MouseWheelEnabled = true
	timeline.MouseWheelDelta = 3

	m := model{
		cfg:        cfg,
		api:        api,
		screen:     screenName,
		statusLine: "choose a name to join",
		input:      input,
		timeline:   timeline,
		spinner:    sp,
		theme:      newTheme(),
	}
	if name := strings.TrimSpace(cfg.username); name != "" {
		if err := m.join(name); err != nil {
			m.setError(err)
		}
	}
	return m
}

func (m model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, m.spinner.Tick, tickEvery(m.cfg.pollInterval)}
	if m.screen == screenChat {
		cmds = append(cmds, m.refreshCmd())
	}
	return tea.Batch(cmds...)
}

func tickEvery(interval time.Duration) tea.Cmd {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) refreshCmd() tea.Cmd {
	api := m.api
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		msgs, err := api.Messages(ctx, 0)
		if err != nil {
			return refreshDoneMsg{err: err}
		}
		p, err := api.Participants(ctx)
		if err != nil {
			return refreshDoneMsg{err: err}
		}
		return refreshDoneMsg{messages: msgs, participants: p}
	}
}

func (m model) sendCmd(content string) tea.Cmd {
	api := m.api
	author := m.username
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		res, err := api.Send(ctx, author, content)
		return sendDoneMsg{result: res, err: err}
	}
}

func (m model) clearCmd() tea.Cmd {
	api := m.api
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return clearDoneMsg{err: api.Clear(ctx)}
	}
}

func (m model) exportCmd() tea.Cmd {
	api := m.api
	dir := m.cfg.exportDir
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		data, name, err := api.Export(ctx, export.Markdown)
		if err != nil {
			return exportDoneMsg{err: err}
		}
		path := filepath.Join(dir, filepath.Base(name))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return exportDoneMsg{err: fmt.Errorf("write export: %w", err)}
		}
		return exportDoneMsg{path: path}
	}
}

// join validates the display name and switches to the chat screen
func (m *model) join(name string) error {
	name = service.SanitizeAuthor(name, maxNameLength)
	if name == "" {
		return errors.New("name cannot be empty")
	}
	if service.IsFacilitator(name, m.cfg.facilitatorID) {
		return fmt.Errorf("%q is reserved for the facilitator", name)
	}

	m.username = name
	m.screen = screenChat
	m.input.Reset()
	m.input.CharLimit = 4000
	m.input.Placeholder = "Say something to the group"
	m.setStatus("joined as " + name)
	return nil
}

func (m *model) setStatus(s string) {
	m.statusLine = s
	m.statusErr = false
}

func (m *model) setError(err error) {
	m.statusLine = err.Error()
	m.statusErr = true
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.renderTimeline()

	case tickMsg:
		if m.screen == screenChat && !m.refreshing {
			m.refreshing = true
			cmds = append(cmds, m.refreshCmd())
		}
		cmds = append(cmds, tickEvery(m.cfg.pollInterval))

	case refreshDoneMsg:
		m.refreshing = false
		if msg.err != nil {
			m.setError(fmt.Errorf("refresh failed: %w", msg.err))
			break
		}
		grew := len(msg.messages) != len(m.messages)
		m.messages = msg.messages
		m.participants = msg.participants
		m.renderTimeline()
		if grew {
			m.timeline.GotoBottom()
		}

	case sendDoneMsg:
		m.sending = false
		switch {
		case errors.Is(msg.err, client.ErrIgnored):
			m.setStatus("empty message ignored")
		case msg.err != nil:
			m.setError(msg.err)
		default:
			status, isErr := outcomeStatus(msg.result.Facilitator)
			m.statusLine = status
			m.statusErr = isErr
		}
		m.refreshing = true
		cmds = append(cmds, m.refreshCmd())

	case clearDoneMsg:
		if msg.err != nil {
			m.setError(fmt.Errorf("clear failed: %w", msg.err))
			break
		}
		m.setStatus("conversation cleared")
		m.refreshing = true
		cmds = append(cmds, m.refreshCmd())

	case exportDoneMsg:
		if msg.err != nil {
			m.setError(fmt.Errorf("export failed: %w", msg.err))
			break
		}
		m.setStatus("exported to " + msg.path)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, tea.Batch(cmds...)
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == "ctrl+c" {
		return m, tea.Quit
	}
	if key != "ctrl+x" {
		m.confirmClear = false
	}

	if m.screen == screenName {
		if key == "enter" {
			if err := m.join(m.input.Value()); err != nil {
				m.setError(err)
				return m, nil
			}
			m.resize()
			m.refreshing = true
			return m, m.refreshCmd()
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	switch key {
	case "enter":
		content := strings.TrimSpace(m.input.Value())
		if content == "" || m.sending {
			return m, nil
		}
		m.input.Reset()
		m.sending = true
		m.setStatus("sending")
		return m, m.sendCmd(content)
	case "ctrl+x":
		if !m.confirmClear {
			m.confirmClear = true
			m.setStatus("press ctrl+x again to clear the conversation for everyone")
			return m, nil
		}
		m.confirmClear = false
		return m, m.clearCmd()
	case "ctrl+e":
		m.setStatus("exporting")
		return m, m.exportCmd()
	case "pgup", "pgdown", "up", "down":
		var cmd tea.Cmd
		m.timeline, cmd = m.timeline.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *model) resize() {
	if m.width == 0 || m.height == 0 {
		return
	}
	// header(3) + topic(1) + input(3) + status(1) + footer(1) + timeline border(2)
	h := m.height - 11
	if h < 3 {
		h = 3
	}
	w := m.width - sidebarWidth - 4
	if w < 20 {
		w = 20
	}
	m.timeline.Width = w
	m.timeline.Height = h
	m.input.Width = m.width - 8
}

func (m *model) renderTimeline() {
	m.timeline.SetContent(renderMessages(m.messages, m.username, m.cfg.facilitatorID, m.theme, m.timeline.Width))
}

// outcomeStatus turns the facilitator result of a submission into a status
// line. The second value marks warnings.
func outcomeStatus(res service.Result) (string, bool) {
	switch res.Outcome {
	case service.OutcomeResolved:
		return "facilitator responded", false
	case service.OutcomeSkipped:
		return "facilitator chose not to respond", false
	case service.OutcomeClaimLost:
		return "another participant is getting the facilitator response", false
	case service.OutcomeFailed:
		if res.Warning != "" {
			return "facilitator unavailable: " + res.Warning, true
		}
		return "facilitator unavailable", true
	default:
		return "sent", false
	}
}
