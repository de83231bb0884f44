package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/hallservo/internal/position"
)

const (
	dialWidth       = 24
	dialHeight      = 12
	historyCapacity = 120
	frameRate       = 20
	gainStep        = 1.05
)

var (
	presetTargets = map[string]float64{"1": 90, "2": 180, "3": 270, "4": 360}
	gainKeys      = []string{"Kp", "Ki", "Kd"}
)

// Controller is the part of a position.Controller the view drives.
type Controller interface {
	Status() position.Status
	Start()
	Stop() error
	SetTarget(angle float64)
	Manual(speed float64) error
	Calibrate()
	Tune(name string, value float64) error
	Params() map[string]float64
}

type TickMsg time.Time

type Model struct {
	ctrl        Controller
	title       string
	manualSpeed float64

	status   position.Status
	params   map[string]float64
	angles   []float64
	selected int
	canvas   *Canvas
	message  string
	failed   bool
	showHelp bool
}

func NewModel(ctrl Controller, title string, manualSpeed float64) Model {
	m := Model{
		ctrl:        ctrl,
		title:       title,
		manualSpeed: manualSpeed,
		canvas:      NewCanvas(dialWidth, dialHeight),
		angles:      make([]float64, 0, historyCapacity),
	}
	m.refresh()
	return m
}

func tick() tea.Cmd {
	return tea.Tick(time.Second/frameRate, func(t time.Time) tea.Msg { return TickMsg(t) })
}

func (m Model) Init() tea.Cmd { return tick() }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		key := msg.String()
		if target, ok := presetTargets[key]; ok {
			m.ctrl.SetTarget(target)
			m.ctrl.Start()
			m.note(fmt.Sprintf("moving to %.0f°", target), nil)
			m.refresh()
			return m, nil
		}
		switch key {
		case "q", "ctrl+c":
			m.note("stopped", m.ctrl.Stop())
			return m, tea.Quit
		case "0":
			m.note("stopped", m.ctrl.Stop())
		case "s":
			m.ctrl.Start()
			m.note("closed loop", nil)
		case "c":
			m.ctrl.Calibrate()
			m.angles = m.angles[:0]
			m.note("calibrated", nil)
		case "m":
			m.note(fmt.Sprintf("manual %+.0f%%", m.manualSpeed), m.ctrl.Manual(m.manualSpeed))
		case "n":
			m.note(fmt.Sprintf("manual %+.0f%%", -m.manualSpeed), m.ctrl.Manual(-m.manualSpeed))
		case "tab":
			m.selected = (m.selected + 1) % len(gainKeys)
		case "up", "k":
			m.adjustGain(gainStep)
		case "down", "j":
			m.adjustGain(1 / gainStep)
		case "?":
			m.showHelp = !m.showHelp
		}
		m.refresh()
	case TickMsg:
		m.refresh()
		m.angles = append(m.angles, m.status.Current)
		if len(m.angles) > historyCapacity {
			m.angles = m.angles[1:]
		}
		return m, tick()
	}
	return m, nil
}

func (m *Model) note(msg string, err error) {
	m.failed = err != nil
	if err != nil {
		m.message = err.Error()
		return
	}
	m.message = msg
}

func (m *Model) adjustGain(factor float64) {
	key := gainKeys[m.selected]
	val := m.ctrl.Params()[key]
	if val == 0 {
		val = 0.01
	}
	m.note(fmt.Sprintf("%s = %.4f", key, val*factor), m.ctrl.Tune(key, val*factor))
}

func (m *Model) refresh() {
	m.status = m.ctrl.Status()
	m.params = m.ctrl.Params()
}

func (m Model) View() string {
	st := m.status
	m.canvas.Dial(st.Current, st.Target)
	dial := canvasStyle.Render(m.canvas.String())

	var s strings.Builder
	s.WriteString(headerStyle.Render(strings.ToUpper(m.title)) + "\n")
	s.WriteString(modeBadge(st.Mode.String()) + "\n\n")
	row := func(label, value string) {
		s.WriteString(labelStyle.Render(label) + valueStyle.Render(value) + "\n")
	}
	row("Target", fmt.Sprintf("%.1f°", st.Target))
	row("Current", fmt.Sprintf("%.1f°", st.Current))
	row("Error", fmt.Sprintf("%.1f°", st.Error))
	row("Output", fmt.Sprintf("%.1f%%", st.Output))
	row("Speed", fmt.Sprintf("%.1f rpm", st.RPM))

	if len(m.angles) > 1 {
		chart := asciigraph.Plot(m.angles, asciigraph.Height(5), asciigraph.Width(36), asciigraph.Caption("Angle"))
		s.WriteString(graphStyle.Render(chart) + "\n")
	}

	s.WriteString("\nGAINS\n")
	for i, k := range gainKeys {
		line := fmt.Sprintf("%-3s %.4f", k, m.params[k])
		if i == m.selected {
			s.WriteString(activeParamStyle.Render("> "+line) + "\n")
		} else {
			s.WriteString("  " + labelStyle.Render(line) + "\n")
		}
	}
	if m.message != "" {
		if m.failed {
			s.WriteString("\n" + errorStyle.Render(m.message) + "\n")
		} else {
			s.WriteString("\n" + valueStyle.Render(m.message) + "\n")
		}
	}
	s.WriteString(helpStyle.Render("─────────────────────\n1-4:Target 0:Stop S:Start C:Cal\nM/N:Manual Tab ↑↓:Tune ?:Help Q:Quit"))

	main := lipgloss.JoinHorizontal(lipgloss.Top, dial, statsStyle.Render(s.String()))
	if m.showHelp {
		return helpText + "\n" + main
	}
	return main
}

const helpText = `
╔══════════════════════════════════════╗
║           KEYBOARD SHORTCUTS         ║
╠══════════════════════════════════════╣
║  1-4      - Move to 90/180/270/360°  ║
║  0        - Stop (brake)             ║
║  S        - Start closed loop        ║
║  C        - Calibrate zero           ║
║  M / N    - Manual forward/reverse   ║
║  Tab      - Select gain              ║
║  Up/K     - Increase gain (+5%)      ║
║  Down/J   - Decrease gain (-5%)      ║
║  Q        - Stop and quit            ║
╚══════════════════════════════════════╝
`

// Run starts the view and blocks until the user quits.
func Run(ctrl Controller, title string, manualSpeed float64) error {
	_, err := tea.NewProgram(NewModel(ctrl, title, manualSpeed), tea.WithAltScreen()).Run()
	return err
}
