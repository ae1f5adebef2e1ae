package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"dronetaxi-sim/internal/driver"
	"dronetaxi-sim/internal/events"
	"dronetaxi-sim/internal/rides"
)

// Controller is the slice of driver.Machine the TUI drives.
type Controller interface {
	Snapshot() driver.Snapshot
	Accept() error
	Reject() error
	StartCharge() (bool, error)
	StopCharge() bool
	SetBattery(ctx context.Context, level int) int
	TakeCompleted() (rides.Ride, bool)
}

// RideSource lists today's completed rides.
type RideSource func() []rides.Ride

const (
	refreshInterval = 250 * time.Millisecond
	maxLogLines     = 1000
	batteryBarWidth = 20
)

var (
	colorOrange = lipgloss.Color("#FF9F3D")
	colorBlue   = lipgloss.Color("#3DA9FF")
	colorGreen  = lipgloss.Color("#10B981")
	colorGray   = lipgloss.Color("8")
	colorRed    = lipgloss.Color("9")
	colorOn     = lipgloss.Color("10")

	cardStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorGray).Padding(0, 1)
)

type tickMsg time.Time

// resultMsg reports the outcome of a command run off the update loop.
type resultMsg struct {
	action string
	err    error
}

type model struct {
	ctrl          Controller
	today         RideSource
	snap          driver.Snapshot
	table         table.Model
	vp            viewport.Model
	batteryInput  textinput.Model
	batteryDialog bool
	logs          []string
	status        string
	wrap          bool
	autoscroll    bool
	help          bool
	width         int
	height        int
}

func newModel(ctrl Controller, today RideSource) model {
	cols := []table.Column{
		{Title: "Completed", Width: 9},
		{Title: "From", Width: 22},
		{Title: "To", Width: 22},
		{Title: "Pax", Width: 4},
		{Title: "ETA", Width: 8},
	}
	m := model{
		ctrl:       ctrl,
		today:      today,
		snap:       ctrl.Snapshot(),
		table:      table.New(table.WithColumns(cols), table.WithHeight(6)),
		vp:         viewport.New(0, 0),
		autoscroll: true,
	}
	m.refreshRides()
	return m
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) Init() tea.Cmd { return tick() }

// run executes a machine command outside the update loop; commands emit
// events that are sent back into the program.
func (m model) run(action string, fn func() error) tea.Cmd {
	return func() tea.Msg { return resultMsg{action: action, err: fn()} }
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.vp.Width = msg.Width
		m.table.SetWidth(msg.Width)
		m.updateViewportHeight()
		m.refreshViewport()
	case tickMsg:
		m.snap = m.ctrl.Snapshot()
		if ride, ok := m.ctrl.TakeCompleted(); ok {
			m.appendLog(fmt.Sprintf("ride %s completed: %s to %s, %d passengers", ride.ID, ride.Origin, ride.Destination, ride.Passengers))
			m.refreshRides()
		}
		return m, tick()
	case eventMsg:
		m.appendLog(formatEvent(msg.Event))
	case resultMsg:
		m.snap = m.ctrl.Snapshot()
		if msg.err != nil {
			m.status = fmt.Sprintf("%s: %v", msg.action, msg.err)
		} else {
			m.status = msg.action
		}
		m.updateViewportHeight()
	case tea.KeyMsg:
		if m.batteryDialog {
			return m.updateDialog(msg)
		}
		if m.help {
			switch msg.String() {
			case "?", "h", "esc":
				m.help = false
			}
			return m, nil
		}
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "a":
			return m, m.run("accept", m.ctrl.Accept)
		case "r":
			return m, m.run("reject", m.ctrl.Reject)
		case "c":
			if m.snap.Charging {
				return m, m.run("stop charge", func() error {
					m.ctrl.StopCharge()
					return nil
				})
			}
			return m, m.run("charge", func() error {
				_, err := m.ctrl.StartCharge()
				return err
			})
		case "b":
			m.batteryInput = textinput.New()
			m.batteryInput.Placeholder = "0-100"
			m.batteryInput.SetValue(strconv.Itoa(m.snap.Battery))
			m.batteryInput.CursorEnd()
			m.batteryInput.Focus()
			m.batteryDialog = true
			m.updateViewportHeight()
			return m, nil
		case "w":
			m.wrap = !m.wrap
			m.refreshViewport()
			return m, nil
		case "s":
			m.autoscroll = !m.autoscroll
			if m.autoscroll {
				m.vp.GotoBottom()
			}
			return m, nil
		case "h", "?":
			m.help = true
			return m, nil
		}
		if !m.autoscroll {
			var cmd tea.Cmd
			m.vp, cmd = m.vp.Update(msg)
			return m, cmd
		}
	}
	return m, nil
}

func (m model) updateDialog(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		m.batteryDialog = false
		m.updateViewportHeight()
		level, err := strconv.Atoi(strings.TrimSpace(m.batteryInput.Value()))
		if err != nil {
			m.status = "battery: enter a whole number"
			return m, nil
		}
		return m, m.run("battery set", func() error {
			m.ctrl.SetBattery(context.Background(), level)
			return nil
		})
	case tea.KeyEsc:
		m.batteryDialog = false
		m.updateViewportHeight()
		return m, nil
	}
	var cmd tea.Cmd
	m.batteryInput, cmd = m.batteryInput.Update(msg)
	return m, cmd
}

func formatEvent(e events.Event) string {
	line := fmt.Sprintf("[%s] %s", e.Time.Format("15:04:05"), e.Kind)
	if e.State != "" {
		line += " state=" + e.State
	}
	if e.Battery > 0 || e.Kind == events.KindBatteryUpdated {
		line += fmt.Sprintf(" battery=%d%%", e.Battery)
	}
	if e.Message != "" {
		line += " " + e.Message
	}
	return line
}

func (m *model) appendLog(line string) {
	m.logs = append(m.logs, line)
	if len(m.logs) > maxLogLines {
		m.logs = m.logs[len(m.logs)-maxLogLines:]
	}
	m.refreshViewport()
}

func (m *model) refreshRides() {
	if m.today == nil {
		return
	}
	var rows []table.Row
	for _, r := range m.today() {
		rows = append(rows, table.Row{
			r.CompletedAt.Local().Format("15:04:05"),
			r.Origin,
			r.Destination,
			strconv.Itoa(r.Passengers),
			r.ETA,
		})
	}
	m.table.SetRows(rows)
}

func (m *model) refreshViewport() {
	var lines []string
	for _, l := range m.logs {
		if m.wrap && m.vp.Width > 0 {
			lines = append(lines, wordwrap.String(l, m.vp.Width))
		} else {
			lines = append(lines, l)
		}
	}
	m.vp.SetContent(strings.Join(lines, "\n"))
	if m.autoscroll {
		m.vp.GotoBottom()
	}
}

func (m *model) updateViewportHeight() {
	used := lipgloss.Height(m.renderCard()) + lipgloss.Height(m.table.View()) + lipgloss.Height(m.renderBottom()) + 4
	if m.batteryDialog {
		used += 2
	}
	m.vp.Height = max(0, m.height-used)
	if m.autoscroll {
		m.vp.GotoBottom()
	}
}

func (m model) View() string {
	if m.help {
		return m.renderHelp()
	}
	divider := strings.Repeat("─", max(m.width, 1))
	sections := []string{
		m.renderCard(),
		"Today's rides:",
		m.table.View(),
		divider,
		m.vp.View(),
	}
	if m.batteryDialog {
		sections = append(sections, divider, "Set battery: "+m.batteryInput.View())
	}
	sections = append(sections, divider, m.renderBottom())
	return strings.Join(sections, "\n")
}

func statusColor(s driver.Snapshot) lipgloss.Color {
	switch s.Status {
	case driver.StatusDriving:
		return colorBlue
	case driver.StatusCharging:
		return colorGreen
	default:
		return colorGray
	}
}

func batteryBar(level int) string {
	filled := level * batteryBarWidth / 100
	c := colorGreen
	if level < 25 {
		c = colorOrange
	}
	bar := lipgloss.NewStyle().Foreground(c).Render(strings.Repeat("█", filled))
	return bar + strings.Repeat("░", batteryBarWidth-filled) + fmt.Sprintf(" %d%%", level)
}

func (m model) renderCard() string {
	s := m.snap
	title := lipgloss.NewStyle().Bold(true).Render(fmt.Sprintf("%s  %s", s.Name, s.DroneID))
	status := lipgloss.NewStyle().Foreground(statusColor(s)).Render(strings.ToUpper(string(s.Status)))
	lines := []string{
		title,
		fmt.Sprintf("%s  %s", status, s.Label),
		"Battery " + batteryBar(s.Battery),
		fmt.Sprintf("Load %d of %d", s.Load, s.Capacity),
	}
	if s.Trip != nil {
		lines = append(lines, fmt.Sprintf("Trip %s → %s", s.Trip.Origin.Name, s.Trip.Destination.Name))
	}
	if s.Offer != nil && s.State == driver.StateNotified {
		o := s.Offer
		lines = append(lines, fmt.Sprintf("Ride request: %s → %s, %d passengers, %s  [a]ccept [r]eject",
			o.Trip.Origin.Name, o.Trip.Destination.Name, o.Passengers, o.ETA))
	}
	if s.NeedsCharge {
		lines = append(lines, lipgloss.NewStyle().Foreground(colorOrange).Render("Battery depleted: press c to charge before accepting"))
	}
	return cardStyle.Render(strings.Join(lines, "\n"))
}

func indicator(on bool) string {
	c := colorRed
	if on {
		c = colorOn
	}
	return lipgloss.NewStyle().Foreground(c).Render("●")
}

func (m model) renderBottom() string {
	line := fmt.Sprintf("State %s | Charging %s | Wrap %s | Scroll %s | h help",
		m.snap.State, indicator(m.snap.Charging), indicator(m.wrap), indicator(m.autoscroll))
	if m.status != "" {
		line = m.status + " | " + line
	}
	return line
}

func (m model) renderHelp() string {
	lines := []string{
		"Key Bindings:",
		" q  quit",
		" a  accept ride request",
		" r  reject ride request",
		" c  start/stop charging",
		" b  set battery level",
		" w  toggle wrap for the event log",
		" s  toggle auto-scroll",
		" h/? toggle this help view",
		"",
		"When auto-scroll is disabled:",
		" up/down, pgup/pgdown scroll the event log",
	}
	return strings.Join(lines, "\n")
}
