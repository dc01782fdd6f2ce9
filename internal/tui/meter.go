// SPDX-License-Identifier: MIT
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"pitchd/internal/analysis"
	"pitchd/internal/pitch"
)

const (
	labelWidth   = 12
	maxBarWidth  = 48
	centsBarHalf = 12
)

var (
	labelStyle   = lipgloss.NewStyle().Width(labelWidth).Foreground(lipgloss.Color("#8A8A8A"))
	pitchStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFDF5"))
	unvoicedText = lipgloss.NewStyle().Foreground(lipgloss.Color("#5C5C5C")).Render("unvoiced")
	quitKeys     = key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"))
)

// streamMsg carries one message from the result channel.
type streamMsg struct{ msg any }

// streamClosedMsg reports that the producer shut down.
type streamClosedMsg struct{}

// MeterModel is a live view of pitch events and voice-quality chunks read
// from a transport channel.
type MeterModel struct {
	messages <-chan any
	done     <-chan struct{}
	title    string

	confidence progress.Model

	event     pitch.Event
	haveEvent bool
	voice     analysis.VoiceQuality
	haveVoice bool
	windows   uint64
}

// NewMeterModel reads messages until done is closed.
func NewMeterModel(messages <-chan any, done <-chan struct{}, title string) MeterModel {
	return MeterModel{
		messages:   messages,
		done:       done,
		title:      title,
		confidence: progress.New(progress.WithDefaultGradient(), progress.WithWidth(maxBarWidth)),
	}
}

func waitForMessage(messages <-chan any, done <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		select {
		case m := <-messages:
			return streamMsg{m}
		case <-done:
			return streamClosedMsg{}
		}
	}
}

func (m MeterModel) Init() tea.Cmd {
	return waitForMessage(m.messages, m.done)
}

func (m MeterModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.confidence.Width = max(10, min(msg.Width-labelWidth-8, maxBarWidth))

	case tea.KeyMsg:
		if key.Matches(msg, quitKeys) {
			return m, tea.Quit
		}

	case streamClosedMsg:
		return m, tea.Quit

	case streamMsg:
		switch v := msg.msg.(type) {
		case pitch.Event:
			m.event, m.haveEvent = v, true
			m.windows++
		case *pitch.Event:
			m.event, m.haveEvent = *v, true
			m.windows++
		case analysis.VoiceQuality:
			m.voice, m.haveVoice = v, true
		}
		return m, waitForMessage(m.messages, m.done)
	}
	return m, nil
}

func (m MeterModel) View() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render(m.title))
	sb.WriteString("\n\n")

	if !m.haveEvent {
		sb.WriteString(infoStyle.Render("Waiting for audio..."))
		sb.WriteString("\n\n")
		sb.WriteString(infoStyle.Render("q: Quit"))
		return sb.String()
	}

	ev := m.event
	row := func(label, value string) {
		sb.WriteString(labelStyle.Render(label))
		sb.WriteString(value)
		sb.WriteString("\n")
	}

	if ev.Voiced {
		name, octave, cents := Note(ev.Frequency)
		row("Pitch", pitchStyle.Render(fmt.Sprintf("%7.2f Hz  %s%d", ev.Frequency, name, octave)))
		row("Cents", centsBar(cents)+fmt.Sprintf(" %+5.1f", cents))
	} else {
		row("Pitch", unvoicedText)
		row("Cents", centsBar(0))
	}
	row("Confidence", m.confidence.ViewAs(max(0, min(ev.Confidence, 1))))
	row("Latency", fmt.Sprintf("%.3f ms (avg %.3f ms)",
		ev.Latency.Seconds()*1000, ev.AvgLatency.Seconds()*1000))
	row("Clock", fmt.Sprintf("%.2f s, %d windows", ev.Timestamp, m.windows))

	if m.haveVoice {
		q := m.voice
		sb.WriteString("\n")
		row("Volume", fmt.Sprintf("%.3f RMS", q.Volume))
		row("Resonance", fmt.Sprintf("%.0f Hz", q.Resonance))
		formants := fmt.Sprintf("F1 %.0f  F2 %.0f  F3 %.0f", q.F1, q.F2, q.F3)
		if q.Vowel != "" {
			formants += "  /" + q.Vowel + "/"
		}
		row("Formants", formants)
		row("Weight", fmt.Sprintf("%.0f", q.Weight))
		row("Jitter", fmt.Sprintf("%.2f Hz", q.Jitter))
		row("Brightness", fmt.Sprintf("%+.2f HL, %.0f Hz centroid", q.Brightness.RatioHL, q.Brightness.Centroid))
	}

	sb.WriteString("\n")
	sb.WriteString(infoStyle.Render("q: Quit"))
	return sb.String()
}

// centsBar draws a tuning needle; the center mark is in tune.
func centsBar(cents float64) string {
	pos := int(cents/50*centsBarHalf + centsBarHalf + 0.5)
	pos = max(0, min(pos, 2*centsBarHalf))

	cells := []rune(strings.Repeat("-", 2*centsBarHalf+1))
	cells[centsBarHalf] = '|'
	cells[pos] = '#'
	return "[" + string(cells) + "]"
}

// RunMeter shows the live meter until the user quits, ctx is cancelled or
// done is closed.
func RunMeter(ctx context.Context, messages <-chan any, done <-chan struct{}, title string) error {
	p := tea.NewProgram(
		NewMeterModel(messages, done, title),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
