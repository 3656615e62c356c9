// Package tui is the Bubble Tea front end of the chat client.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/localchat/ragchat/internal/client"
	"github.com/localchat/ragchat/internal/core"
)

// StatusMsg replaces the status line. Send it with tea.Program.Send from
// outside the update loop.
type StatusMsg string

// DocumentMsg reports a re-extracted document.
type DocumentMsg struct {
	Name string
	Text string
	Err  error
}

type beginMsg struct {
	ex  *client.Exchange
	err error
}

type stepMsg struct {
	update client.Update
	err    error
}

type commandMsg struct {
	out string
	err error
}

// Model is the Bubble Tea model of one chat window.
type Model struct {
	ctx      context.Context
	conv     *client.Conversation
	commands *client.Commands

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model

	exchange *client.Exchange
	status   string
	expanded bool
	ready    bool
}

func New(ctx context.Context, conv *client.Conversation, commands *client.Commands) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask something, or /help"
	ti.Focus()
	ti.CharLimit = 0

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return Model{
		ctx:      ctx,
		conv:     conv,
		commands: commands,
		input:    ti,
		viewport: viewport.New(0, 0),
		spinner:  sp,
		status:   "Ready. Ctrl+T reasoning, Ctrl+E show reasoning, Ctrl+C quit.",
	}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, bh := transcriptStyle.GetFrameSize()
		_, ih := inputStyle.GetFrameSize()
		reserved := 2 + ih + 1 + 1 // header, document line, input line, status
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-reserved-bh)
		m.input.Width = max(10, msg.Width-6)
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD:
			if m.exchange != nil {
				m.exchange.Close()
			}
			return m, tea.Quit
		case tea.KeyCtrlT:
			on := !m.conv.Reasoning()
			m.conv.SetReasoning(on)
			m.status = "Reasoning " + onOff(on) + "."
			return m, nil
		case tea.KeyCtrlE:
			m.expanded = !m.expanded
			m.refresh()
			return m, nil
		case tea.KeyPgUp:
			m.viewport.HalfViewUp()
			return m, nil
		case tea.KeyPgDown:
			m.viewport.HalfViewDown()
			return m, nil
		case tea.KeyEnter:
			return m.submit()
		}

	case beginMsg:
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			return m, nil
		}
		m.exchange = msg.ex
		m.refresh()
		return m, tea.Batch(m.spinner.Tick, step(msg.ex))

	case stepMsg:
		m.refresh()
		if !msg.update.Done {
			return m, step(m.exchange)
		}
		m.exchange = nil
		switch {
		case msg.err != nil:
			m.status = "Request failed: " + msg.err.Error()
		case m.conv.Status() != "":
			m.status = m.conv.Status()
		default:
			m.status = ""
		}
		return m, nil

	case commandMsg:
		if errors.Is(msg.err, client.ErrQuit) {
			return m, tea.Quit
		}
		switch {
		case msg.err != nil:
			m.status = "Error: " + msg.err.Error()
		case strings.Contains(msg.out, "\n"):
			m.status = ""
			m.viewport.SetContent(msg.out)
			return m, nil
		default:
			m.status = msg.out
		}
		m.refresh()
		return m, nil

	case StatusMsg:
		m.status = string(msg)
		return m, nil

	case DocumentMsg:
		if msg.Err != nil {
			m.status = "Document reload failed: " + msg.Err.Error()
			return m, nil
		}
		m.conv.AttachDocument(msg.Name, msg.Text)
		m.status = fmt.Sprintf("Reloaded %s.", msg.Name)
		return m, nil

	case spinner.TickMsg:
		if m.exchange == nil {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.refresh()
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return m, nil
	}
	if cmd, ok := client.ParseCommand(text); ok {
		m.input.Reset()
		return m, m.runCommand(cmd)
	}
	if m.exchange != nil {
		m.status = "Wait for the reply to finish."
		return m, nil
	}
	m.input.Reset()
	m.status = ""
	ctx, conv := m.ctx, m.conv
	return m, func() tea.Msg {
		ex, err := conv.Begin(ctx, text)
		return beginMsg{ex: ex, err: err}
	}
}

func (m Model) runCommand(cmd client.Command) tea.Cmd {
	ctx, commands := m.ctx, m.commands
	return func() tea.Msg {
		out, err := commands.Execute(ctx, cmd)
		return commandMsg{out: out, err: err}
	}
}

// step reads one delta. The next read is only scheduled once its result has
// been rendered.
func step(ex *client.Exchange) tea.Cmd {
	return func() tea.Msg {
		update, err := ex.Step()
		return stepMsg{update: update, err: err}
	}
}

func (m *Model) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m Model) renderTranscript() string {
	turns := m.conv.Turns()
	if len(turns) == 0 {
		return hintStyle.Render("No messages yet.")
	}
	width := max(10, m.viewport.Width-2)
	var sb strings.Builder
	for i, t := range turns {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		if t.Role == core.RoleUser {
			sb.WriteString(userStyle.Render("You"))
			sb.WriteString("\n")
			sb.WriteString(lipgloss.NewStyle().Width(width).Render(t.Text))
			continue
		}

		sb.WriteString(assistantStyle.Render("Assistant"))
		sb.WriteString("\n")
		if t.Reasoning != "" {
			if m.expanded {
				sb.WriteString(reasoningStyle.Width(width).Render(t.Reasoning))
			} else {
				sb.WriteString(hintStyle.Render("[reasoning hidden, ctrl+e to show]"))
			}
			sb.WriteString("\n")
		}
		text := t.Text
		if t.Pending && text == "" {
			text = m.spinner.View() + " thinking"
		}
		sb.WriteString(lipgloss.NewStyle().Width(width).Render(text))
	}
	return sb.String()
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := headerStyle.Render("Local Chat")
	flags := fmt.Sprintf("  reasoning %s  voice %s", onOff(m.conv.Reasoning()), onOff(m.conv.Voice()))
	if id := m.conv.SessionID(); id != 0 {
		flags += fmt.Sprintf("  chat %d", id)
	}
	doc := "No document attached."
	if name, chars, ok := m.conv.Document(); ok {
		doc = fmt.Sprintf("Document: %s (%d characters)", name, chars)
	}
	return header + hintStyle.Render(flags) + "\n" +
		hintStyle.Render(doc) + "\n" +
		transcriptStyle.Render(m.viewport.View()) + "\n" +
		inputStyle.Render(m.input.View()) + "\n" +
		statusStyle.Render(m.status)
}

var (
	headerStyle     = lipgloss.NewStyle().Bold(true)
	transcriptStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	userStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	assistantStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	reasoningStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
	hintStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
