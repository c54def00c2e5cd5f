package ui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

const maxChatLines = 200

// Messages fed into the chat program with tea.Program.Send.
type (
	PeerConnectedMsg struct{ PeerID string }
	PeerLeftMsg      struct{ PeerID string }
	IncomingChatMsg  struct {
		PeerID string
		Nick   string
		Text   string
		At     time.Time
	}
	// RelayLostMsg ends the session when the signaling connection drops.
	RelayLostMsg struct{ Err error }
)

// SendFunc broadcasts a line and reports how many peers received it.
type SendFunc func(text string) (int, error)

// ChatStats summarises a finished session.
type ChatStats struct {
	Sent      int
	Received  int
	PeersSeen int
	Duration  time.Duration
}

// ChatModel is the bubbletea model behind `roomrelay join`.
type ChatModel struct {
	roomID string
	nick   string
	send   SendFunc

	input   textinput.Model
	spinner spinner.Model

	lines     []string
	peers     map[string]string
	seen      map[string]struct{}
	sent      int
	received  int
	startTime time.Time

	// pending counts peer connections still negotiating or open.
	pending func() int

	width    int
	err      error
	quitting bool
}

// NewChatModel creates the chat UI for roomID.
func NewChatModel(roomID, nick string, send SendFunc) *ChatModel {
	input := textinput.New()
	input.Placeholder = "Type a message and press Enter"
	input.CharLimit = 2000
	input.Width = 60
	input.Prompt = "› "
	input.Focus()

	s := spinner.New()
	s.Spinner = spinner.Points
	s.Style = SpinnerStyle

	return &ChatModel{
		roomID:    roomID,
		nick:      nick,
		send:      send,
		input:     input,
		spinner:   s,
		peers:     make(map[string]string),
		seen:      make(map[string]struct{}),
		startTime: time.Now(),
	}
}

// SetPending installs a source for the number of peer connections in
// progress, shown while some of them have not opened yet.
func (m *ChatModel) SetPending(f func() int) {
	m.pending = f
}

func (m *ChatModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

func (m *ChatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.quitting = true
			return m, tea.Quit
		case tea.KeyEnter:
			m.submit()
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.input.Width = max(10, msg.Width-4)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case PeerConnectedMsg:
		if _, ok := m.peers[msg.PeerID]; !ok {
			m.peers[msg.PeerID] = shortID(msg.PeerID)
		}
		m.seen[msg.PeerID] = struct{}{}
		m.addLine(MutedStyle.Render(fmt.Sprintf("%s %s connected", IconConnect, m.peers[msg.PeerID])))
		return m, nil

	case PeerLeftMsg:
		name, ok := m.peers[msg.PeerID]
		if !ok {
			return m, nil
		}
		delete(m.peers, msg.PeerID)
		m.addLine(MutedStyle.Render(fmt.Sprintf("%s %s left", IconLeave, name)))
		return m, nil

	case IncomingChatMsg:
		m.received++
		if _, ok := m.peers[msg.PeerID]; ok && msg.Nick != "" {
			m.peers[msg.PeerID] = msg.Nick
		}
		m.addLine(fmt.Sprintf("%s %s %s",
			MutedStyle.Render(msg.At.Format("15:04")),
			NickStyle.Render(m.nameOf(msg.PeerID)+":"),
			msg.Text))
		return m, nil

	case RelayLostMsg:
		m.err = msg.Err
		m.quitting = true
		return m, tea.Quit
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m *ChatModel) submit() {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return
	}
	m.input.SetValue("")

	n, err := m.send(text)
	if err != nil {
		m.addLine(ErrorStyle.Render(fmt.Sprintf("%s %v", IconError, err)))
		return
	}
	m.sent++
	line := fmt.Sprintf("%s %s %s",
		MutedStyle.Render(time.Now().Format("15:04")),
		SelfNickStyle.Render(m.nick+":"),
		text)
	if n == 0 {
		line += WarningStyle.Render(" " + IconWarning + " nobody received this")
	}
	m.addLine(line)
}

func (m *ChatModel) addLine(line string) {
	m.lines = append(m.lines, line)
	if len(m.lines) > maxChatLines {
		m.lines = m.lines[len(m.lines)-maxChatLines:]
	}
}

func (m *ChatModel) nameOf(peerID string) string {
	if name, ok := m.peers[peerID]; ok {
		return name
	}
	return shortID(peerID)
}

func (m *ChatModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	status := fmt.Sprintf("%s %s", IconRoom, m.roomID)
	b.WriteString(StatusStyle.Render(status))
	b.WriteString(" ")
	b.WriteString(MutedStyle.Render(fmt.Sprintf("%s %d connected as %s", IconPeer, len(m.peers), m.nick)))
	if names := m.Peers(); len(names) > 0 {
		b.WriteString(MutedStyle.Render(" with " + strings.Join(names, ", ")))
	}
	b.WriteString("\n\n")

	if n := m.connecting(); n > 0 {
		b.WriteString(MutedStyle.Render(fmt.Sprintf("%s %d connecting", IconWaiting, n)))
		b.WriteString("\n\n")
	} else if len(m.peers) == 0 {
		b.WriteString(fmt.Sprintf("%s Waiting for peers to join %s\n\n", m.spinner.View(), m.roomID))
	}

	for _, line := range m.lines {
		b.WriteString(line)
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString(FooterStyle.Render("\n" + IconChat + " Enter to send · Esc to leave"))

	return b.String()
}

func (m *ChatModel) connecting() int {
	if m.pending == nil {
		return 0
	}
	return max(0, m.pending()-len(m.peers))
}

// Peers returns the display names of connected peers, sorted.
func (m *ChatModel) Peers() []string {
	names := make([]string, 0, len(m.peers))
	for _, name := range m.peers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Stats reports the session totals.
func (m *ChatModel) Stats() ChatStats {
	return ChatStats{
		Sent:      m.sent,
		Received:  m.received,
		PeersSeen: len(m.seen),
		Duration:  time.Since(m.startTime),
	}
}

// Err is the error that ended the session, if any.
func (m *ChatModel) Err() error {
	return m.err
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
