// Package tui renders the live `wirevpn watch` dashboard.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"wirevpn/internal/client/events"
	"wirevpn/internal/vpn"
)

// Version can be set at build time
var Version = "dev"

const requestTimeout = 10 * time.Second

// Options configures the dashboard.
type Options struct {
	Client vpn.Client
	// Connect is used by the "c" key. A config without a server disables the key.
	Connect vpn.ClientConfig
	// Entry is the resolved API entry shown in the header, if known.
	Entry string
	// CheckUpdate runs once at startup when set.
	CheckUpdate func(ctx context.Context) vpn.UpdateInfo
	MaxEvents   int
}

// EventEntry is one line of the event log.
type EventEntry struct {
	Time  time.Time
	Event vpn.Event
}

// Model is the Bubble Tea model for the dashboard.
type Model struct {
	client      vpn.Client
	connectCfg  vpn.ClientConfig
	entry       string
	checkUpdate func(ctx context.Context) vpn.UpdateInfo

	sub    <-chan vpn.Event
	cancel func()

	state  vpn.State
	status vpn.Status
	ready  vpn.ReadyState

	width int
	now   time.Time

	log       []EventEntry
	maxEvents int

	lastError string
	busy      string
	update    vpn.UpdateInfo
}

// NewModel subscribes to the client's events. Call Close when done.
func NewModel(opts Options) Model {
	maxEvents := opts.MaxEvents
	if maxEvents <= 0 {
		maxEvents = 10
	}
	sub, cancel := events.Channel(opts.Client, 64)
	return Model{
		client:      opts.Client,
		connectCfg:  opts.Connect,
		entry:       opts.Entry,
		checkUpdate: opts.CheckUpdate,
		sub:         sub,
		cancel:      cancel,
		now:         time.Now(),
		maxEvents:   maxEvents,
		update:      vpn.UpdateInfo{Type: vpn.UpdateNone},
	}
}

// Close releases the event subscription.
func (m Model) Close() {
	if m.cancel != nil {
		m.cancel()
	}
}

// Messages
type tickMsg time.Time
type eventMsg vpn.Event
type statusMsg struct {
	status vpn.Status
	err    error
}
type readyMsg vpn.ReadyState
type updateCheckMsg vpn.UpdateInfo
type actionMsg struct {
	action string
	err    error
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func waitForEvent(sub <-chan vpn.Event) tea.Cmd {
	return func() tea.Msg {
		if sub == nil {
			return nil
		}
		event, ok := <-sub
		if !ok {
			return nil
		}
		return eventMsg(event)
	}
}

func fetchStatusCmd(c vpn.Client) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		st, err := c.GetStatus(ctx)
		return statusMsg{status: st, err: err}
	}
}

func checkReadyCmd(c vpn.Client) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return readyMsg(c.CheckReady(ctx))
	}
}

func checkUpdateCmd(check func(context.Context) vpn.UpdateInfo) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return updateCheckMsg(check(ctx))
	}
}

func actionCmd(action string, fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return actionMsg{action: action, err: fn(ctx)}
	}
}

// Init starts the ticker, the event pump and the initial probes.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{tickCmd(), waitForEvent(m.sub), checkReadyCmd(m.client), fetchStatusCmd(m.client)}
	if m.checkUpdate != nil {
		cmds = append(cmds, checkUpdateCmd(m.checkUpdate))
	}
	return tea.Batch(cmds...)
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case tickMsg:
		m.now = time.Time(msg)
		return m, tickCmd()

	case eventMsg:
		ev := vpn.Event(msg)
		m = m.record(ev)
		if ev.Type == vpn.EventStateChange {
			return m, tea.Batch(waitForEvent(m.sub), fetchStatusCmd(m.client))
		}
		return m, waitForEvent(m.sub)

	case statusMsg:
		if msg.err != nil {
			m.lastError = msg.err.Error()
			return m, nil
		}
		m.status = msg.status
		if m.state == "" {
			m.state = msg.status.State
		}

	case readyMsg:
		m.ready = vpn.ReadyState(msg)

	case updateCheckMsg:
		m.update = vpn.UpdateInfo(msg)

	case actionMsg:
		m.busy = ""
		if msg.err != nil {
			m.lastError = fmt.Sprintf("%s: %v", msg.action, msg.err)
		}
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "c":
		if m.busy != "" || m.connectCfg.Server == "" {
			return m, nil
		}
		m.busy = "connecting"
		cfg := m.connectCfg
		return m, actionCmd("connect", func(ctx context.Context) error {
			return m.client.Connect(ctx, cfg)
		})
	case "d":
		if m.busy != "" {
			return m, nil
		}
		m.busy = "disconnecting"
		return m, actionCmd("disconnect", m.client.Disconnect)
	case "r":
		return m, tea.Batch(checkReadyCmd(m.client), fetchStatusCmd(m.client))
	}
	return m, nil
}

// record applies an event and appends it to the log, newest first.
func (m Model) record(ev vpn.Event) Model {
	switch ev.Type {
	case vpn.EventStateChange:
		m.state = ev.State
		m.lastError = ""
	case vpn.EventError:
		m.lastError = ev.Message
	}

	entry := EventEntry{Time: time.Now(), Event: ev}
	m.log = append([]EventEntry{entry}, m.log...)
	if len(m.log) > m.maxEvents {
		m.log = m.log[:m.maxEvents]
	}
	return m
}

// View renders the model
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n\n")
	b.WriteString(m.renderStatus())
	b.WriteString("\n")

	if len(m.log) > 0 {
		b.WriteString(m.renderEvents())
	}
	return b.String()
}

func (m Model) renderHeader() string {
	title := titleStyle.Render("wirevpn")

	keys := "q quit, d disconnect, r refresh"
	if m.connectCfg.Server != "" {
		keys = "q quit, c connect, d disconnect, r refresh"
	}
	hint := hintStyle.Render("(" + keys + ")")

	spacing := strings.Repeat(" ", 40)
	if m.width > 0 {
		spaces := m.width - lipgloss.Width(title) - lipgloss.Width(hint)
		spacing = ""
		if spaces > 0 {
			spacing = strings.Repeat(" ", spaces)
		}
	}
	return title + spacing + hint
}

func (m Model) renderStatus() string {
	var lines []string

	state := StateText(m.state)
	if m.busy != "" {
		state += hintStyle.Render(" (" + m.busy + "...)")
	}
	lines = append(lines, m.renderField("State", state))
	lines = append(lines, m.renderField("Control Plane", ReadyText(m.ready)))

	endpoint := "-"
	if m.status.EndpointURL != "" {
		endpoint = urlStyle.Render(m.status.EndpointURL)
	}
	lines = append(lines, m.renderField("Endpoint", endpoint))
	lines = append(lines, m.renderField("Uptime", m.uptime()))

	if m.entry != "" {
		lines = append(lines, m.renderField("API Entry", urlStyle.Render(m.entry)))
	}

	version := Version
	if m.update.Type != vpn.UpdateNone && m.update.Type != "" {
		version += " " + updateAvailableStyle.Render(fmt.Sprintf("-> %s %s available", m.update.Type, m.update.Version))
	}
	lines = append(lines, m.renderField("Version", version))

	if m.lastError != "" {
		lines = append(lines, m.renderField("Last Error", errorStyle.Render(m.lastError)))
	}
	return strings.Join(lines, "\n")
}

// uptime prefers the connection timestamp so the value ticks between polls.
func (m Model) uptime() string {
	if m.state != vpn.StateConnected {
		return "-"
	}
	if m.status.ConnectedAt != nil {
		return formatUptime(m.now.Sub(*m.status.ConnectedAt))
	}
	if m.status.UptimeSeconds != nil {
		return formatUptime(m.status.Uptime())
	}
	return "-"
}

func (m Model) renderField(label, value string) string {
	return labelStyle.Render(label) + valueStyle.Render(value)
}

func (m Model) renderEvents() string {
	lines := []string{"", labelStyle.Render("Events")}
	for _, e := range m.log {
		var text string
		switch e.Event.Type {
		case vpn.EventStateChange:
			text = StateText(e.Event.State)
		case vpn.EventError:
			text = errorStyle.Render(e.Event.Message)
		}
		lines = append(lines, timeStyle.Render(e.Time.Format("15:04:05"))+text)
	}
	return strings.Join(lines, "\n")
}

func formatUptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Truncate(time.Second)
	h := int(d.Hours())
	mnt := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, mnt, s)
	}
	if mnt > 0 {
		return fmt.Sprintf("%dm%02ds", mnt, s)
	}
	return fmt.Sprintf("%ds", s)
}

// Run starts the dashboard and blocks until the user quits.
func Run(opts Options) error {
	model := NewModel(opts)
	defer model.Close()

	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
