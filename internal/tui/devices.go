// SPDX-License-Identifier: MIT
package tui

import (
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"pitchd/internal/audio"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5"))

	highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#25A065")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#5C5C5C"))
)

var (
	upKey     = key.NewBinding(key.WithKeys("up", "k"))
	downKey   = key.NewBinding(key.WithKeys("down", "j"))
	enterKey  = key.NewBinding(key.WithKeys("enter"))
	backKey   = key.NewBinding(key.WithKeys("esc"))
	abortKeys = key.NewBinding(key.WithKeys("q", "ctrl+c"))
)

// CommonSampleRates are offered on the configuration screen. A device's
// default rate is added when missing.
var CommonSampleRates = []float64{16000, 22050, 44100, 48000, 88200, 96000}

// ScreenType defines which screen is currently active
type ScreenType int

const (
	ListScreen ScreenType = iota
	ConfigScreen
)

// Selection is the outcome of the device picker.
type Selection struct {
	DeviceID   int
	DeviceName string
	SampleRate float64
}

// DeviceListModel lists capture devices and lets the user pick one and a
// sample rate for it.
type DeviceListModel struct {
	fetch         func() ([]audio.Device, error)
	devices       []audio.Device // Input-capable devices only.
	selectedIndex int
	viewport      viewport.Model
	ready         bool
	err           error
	activeScreen  ScreenType

	sampleRates     []float64
	sampleRateIndex int

	selection *Selection
}

type devicesMsg struct {
	devices []audio.Device
}

type errMsg struct {
	err error
}

// NewDeviceListModel creates a picker over the host's devices.
func NewDeviceListModel() DeviceListModel {
	return newDeviceListModel(audio.GetDevices)
}

func newDeviceListModel(fetch func() ([]audio.Device, error)) DeviceListModel {
	return DeviceListModel{fetch: fetch, activeScreen: ListScreen}
}

func (m DeviceListModel) Init() tea.Cmd {
	fetch := m.fetch
	return func() tea.Msg {
		devices, err := fetch()
		if err != nil {
			return errMsg{err}
		}
		return devicesMsg{devices}
	}
}

// Selection returns the confirmed choice, if any.
func (m DeviceListModel) Selection() (Selection, bool) {
	if m.selection == nil {
		return Selection{}, false
	}
	return *m.selection, true
}

func (m DeviceListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-4)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - 4
		}
		m.refresh()

	case devicesMsg:
		m.devices = slices.DeleteFunc(msg.devices, func(d audio.Device) bool { return !d.IsInput() })
		m.refresh()

	case errMsg:
		m.err = msg.err

	case tea.KeyMsg:
		if key.Matches(msg, abortKeys) || m.err != nil {
			return m, tea.Quit
		}
		if m.activeScreen == ListScreen {
			return m.updateList(msg)
		}
		return m.updateConfig(msg)
	}

	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m DeviceListModel) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, upKey):
		m.selectedIndex = max(m.selectedIndex-1, 0)
	case key.Matches(msg, downKey):
		m.selectedIndex = max(min(m.selectedIndex+1, len(m.devices)-1), 0)
	case key.Matches(msg, enterKey):
		if len(m.devices) == 0 {
			return m, nil
		}
		device := m.devices[m.selectedIndex]
		m.sampleRates = sampleRatesFor(device.DefaultSampleRate)
		m.sampleRateIndex = max(slices.Index(m.sampleRates, device.DefaultSampleRate), 0)
		m.activeScreen = ConfigScreen
	}
	m.refresh()
	return m, nil
}

func (m DeviceListModel) updateConfig(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, backKey):
		m.activeScreen = ListScreen
	case key.Matches(msg, upKey):
		m.sampleRateIndex = max(m.sampleRateIndex-1, 0)
	case key.Matches(msg, downKey):
		m.sampleRateIndex = min(m.sampleRateIndex+1, len(m.sampleRates)-1)
	case key.Matches(msg, enterKey):
		device := m.devices[m.selectedIndex]
		m.selection = &Selection{
			DeviceID:   device.ID,
			DeviceName: device.Name,
			SampleRate: m.sampleRates[m.sampleRateIndex],
		}
		return m, tea.Quit
	}
	m.refresh()
	return m, nil
}

// sampleRatesFor returns the common rates plus def, sorted.
func sampleRatesFor(def float64) []float64 {
	rates := slices.Clone(CommonSampleRates)
	if def > 0 && !slices.Contains(rates, def) {
		rates = append(rates, def)
		slices.Sort(rates)
	}
	return rates
}

func (m *DeviceListModel) refresh() {
	if !m.ready {
		return
	}
	if m.activeScreen == ListScreen {
		m.viewport.SetContent(m.renderDevices())
	} else {
		m.viewport.SetContent(m.renderDeviceConfig())
	}
}

func (m DeviceListModel) View() string {
	if !m.ready {
		return "Initializing..."
	}

	if m.err != nil {
		return fmt.Sprintf("Error: %v\n\nPress any key to exit.", m.err)
	}

	var title, help string
	if m.activeScreen == ListScreen {
		title = titleStyle.Render("Input Devices")
		help = infoStyle.Render("↑/↓: Navigate • Enter: Configure • q: Quit")
	} else {
		title = titleStyle.Render("Device Configuration")
		help = infoStyle.Render("↑/↓: Sample Rate • Enter: Select • Esc: Back • q: Quit")
	}

	return fmt.Sprintf("%s\n\n%s\n\n%s", title, m.viewport.View(), help)
}

func (m DeviceListModel) renderDevices() string {
	if len(m.devices) == 0 {
		return "No input devices found."
	}

	var sb strings.Builder
	for i, device := range m.devices {
		line := fmt.Sprintf("[%d] %s\n", device.ID, device.Name)
		detail := fmt.Sprintf("    %d input channels, %.0f Hz, %.1f ms low latency\n",
			device.MaxInputChannels, device.DefaultSampleRate, device.LowInputLatency.Seconds()*1000)
		if device.HostAPI != "" {
			detail += fmt.Sprintf("    %s\n", device.HostAPI)
		}

		if i == m.selectedIndex {
			sb.WriteString(highlightStyle.Render(line + detail))
		} else {
			sb.WriteString(line)
			sb.WriteString(dimStyle.Render(detail))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m DeviceListModel) renderDeviceConfig() string {
	var sb strings.Builder
	device := m.devices[m.selectedIndex]

	fmt.Fprintf(&sb, "Configure Device: %s\n\n", device.Name)
	sb.WriteString("Sample Rate:\n")
	for i, rate := range m.sampleRates {
		marker, suffix := " ", ""
		if rate == device.DefaultSampleRate {
			suffix = " (default)"
		}
		if i == m.sampleRateIndex {
			marker = "▶"
			sb.WriteString(highlightStyle.Render(fmt.Sprintf("  %s %.0f Hz%s", marker, rate, suffix)))
		} else {
			fmt.Fprintf(&sb, "  %s %.0f Hz%s", marker, rate, suffix)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// StartDeviceListUI runs the picker. ok is false when the user quit
// without choosing.
func StartDeviceListUI() (sel Selection, ok bool, err error) {
	final, err := tea.NewProgram(NewDeviceListModel(), tea.WithAltScreen()).Run()
	if err != nil {
		return Selection{}, false, err
	}
	sel, ok = final.(DeviceListModel).Selection()
	return sel, ok, nil
}
