// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/mdplink/pkg/indicator"
	"github.com/Thermoquad/mdplink/pkg/session"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	log "github.com/sirupsen/logrus"
)

// Event log entry
type eventLogEntry struct {
	timestamp time.Time
	message   string
	level     log.Level
}

// Messages
type sessionTickMsg time.Time
type sessionDoneMsg struct{ err error }

// eventHook queues log entries for the TUI event pane. Entries are dropped
// while the queue is full so logging never waits on the screen.
type eventHook struct {
	entries chan eventLogEntry
}

func newEventHook() *eventHook {
	return &eventHook{entries: make(chan eventLogEntry, 256)}
}

func (h *eventHook) Levels() []log.Level {
	return []log.Level{log.ErrorLevel, log.WarnLevel, log.InfoLevel}
}

func (h *eventHook) Fire(e *log.Entry) error {
	if e.Data["component"] == "frames" {
		return nil
	}
	select {
	case h.entries <- eventLogEntry{timestamp: e.Time, message: e.Message, level: e.Level}:
	default:
	}
	return nil
}

// TUI model
type sessionModel struct {
	connInfo      string
	snapshot      func() session.Snapshot
	reset         func()
	lights        indicator.Reader
	incoming      <-chan eventLogEntry
	snap          session.Snapshot
	spinner       spinner.Model
	events        []eventLogEntry
	maxLogEntries int
	width         int
	height        int
	quitting      bool
	err           error
}

func newSessionModel(connInfo string, ctrl *session.Controller, lights indicator.Reader, incoming <-chan eventLogEntry) sessionModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))

	return sessionModel{
		connInfo:      connInfo,
		snapshot:      ctrl.Snapshot,
		reset:         ctrl.ResetStatistics,
		lights:        lights,
		incoming:      incoming,
		snap:          ctrl.Snapshot(),
		spinner:       s,
		events:        make([]eventLogEntry, 0),
		maxLogEntries: 100,
	}
}

func (m sessionModel) Init() tea.Cmd {
	return tea.Batch(
		sessionTickCmd(),
		m.spinner.Tick,
		tea.EnterAltScreen,
	)
}

func sessionTickCmd() tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(t time.Time) tea.Msg {
		return sessionTickMsg(t)
	})
}

func (m sessionModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			m.reset()
			m.snap = m.snapshot()
			m.addLogEntry(eventLogEntry{timestamp: time.Now(), message: "Statistics reset", level: log.InfoLevel})
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case sessionTickMsg:
		m.snap = m.snapshot()
		m.drainEvents()
		return m, sessionTickCmd()

	case sessionDoneMsg:
		m.err = msg.err
		m.quitting = true
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *sessionModel) drainEvents() {
	for {
		select {
		case entry := <-m.incoming:
			m.addLogEntry(entry)
		default:
			return
		}
	}
}

func (m *sessionModel) addLogEntry(entry eventLogEntry) {
	m.events = append(m.events, entry)

	// Keep only last N entries
	if len(m.events) > m.maxLogEntries {
		m.events = m.events[len(m.events)-m.maxLogEntries:]
	}
}

func (m sessionModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	statsLabelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	statsValueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	// Header
	var s strings.Builder
	s.WriteString(titleStyle.Render("MDPLINK - SESSION"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("Connection: %s | Serial: %s | 'r' reset stats | 'q' quit",
		m.connInfo, m.snap.Serial)))
	s.WriteString("\n\n")

	// Link state
	if m.snap.State.Paired() {
		s.WriteString(statsValueStyle.Render("✓ Paired"))
	} else {
		s.WriteString(m.spinner.View())
		s.WriteString(warningStyle.Render(" Pairing..."))
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("  %s for %s", m.snap.StateName,
		time.Since(m.snap.Since).Truncate(time.Second))))
	s.WriteString("\n\n")

	// Lights
	lightContent := strings.Builder{}
	for i, l := range indicator.Lights {
		if i > 0 {
			lightContent.WriteString("   ")
		}
		dot := headerStyle.Render("○")
		if m.lights.State(l) {
			if l == indicator.Error {
				dot = errorStyle.Render("●")
			} else {
				dot = statsValueStyle.Render("●")
			}
		}
		lightContent.WriteString(fmt.Sprintf("%s %s", dot, statsLabelStyle.Render(l.String())))
	}
	lightContent.WriteString(headerStyle.Render(fmt.Sprintf("   next heartbeat in %d", m.snap.Heartbeat)))
	s.WriteString(boxStyle.Render(lightContent.String()))
	s.WriteString("\n\n")

	// Statistics
	st := m.snap.Statistics
	statsContent := strings.Builder{}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s\n",
		statsLabelStyle.Render("Pairing:"), statsValueStyle.Render(fmt.Sprintf("%d sent, %d acked", st.PairingRequests, st.PairingAcks)),
		statsLabelStyle.Render("Data:"), statsValueStyle.Render(fmt.Sprintf("%d sent, %d acked", st.DataRequests, st.DataAcks)),
	))

	problems := func(n uint64) string {
		if n > 0 {
			return errorStyle.Render(fmt.Sprintf("%d", n))
		}
		return statsValueStyle.Render("0")
	}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Timeouts:"), problems(st.Timeouts),
		statsLabelStyle.Render("Unexpected:"), problems(st.Unexpected),
		statsLabelStyle.Render("Lost:"), problems(st.LostFrames),
		statsLabelStyle.Render("Reinits:"), statsValueStyle.Render(fmt.Sprintf("%d", st.Reinits)),
	))
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s",
		statsLabelStyle.Render("Request Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f req/s", st.RequestRate)),
		statsLabelStyle.Render("Ack Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f ack/s", st.AckRate)),
	))

	s.WriteString(boxStyle.Render(statsContent.String()))
	s.WriteString("\n\n")

	// Event log
	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	// Calculate how many log entries we can show
	logHeight := m.height - 17 // Reserve space for header, lights and stats
	if logHeight < 5 {
		logHeight = 5
	}

	logContent := strings.Builder{}
	startIdx := len(m.events) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.events) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.events); i++ {
			entry := m.events[i]
			timestamp := entry.timestamp.Format("01/02/06 15:04:05.000")
			switch entry.level {
			case log.ErrorLevel:
				logContent.WriteString(fmt.Sprintf("%s %s\n", headerStyle.Render(timestamp), errorStyle.Render("✗ "+entry.message)))
			case log.WarnLevel:
				logContent.WriteString(fmt.Sprintf("%s %s\n", headerStyle.Render(timestamp), warningStyle.Render("⚠ "+entry.message)))
			default:
				logContent.WriteString(fmt.Sprintf("%s %s\n", headerStyle.Render(timestamp), "ℹ "+entry.message))
			}
		}
	}

	width := m.width - 4
	if width < 20 {
		width = 20
	}
	s.WriteString(boxStyle.Width(width).Render(logContent.String()))

	return s.String()
}

// runSessionTUI drives the session in the background while the TUI owns
// the terminal. Quitting the TUI cancels the session.
func runSessionTUI(ctx context.Context, cancel context.CancelFunc, runner *session.Runner, ctrl *session.Controller, rl *radioLink) error {
	hook := newEventHook()
	log.AddHook(hook)
	defer log.StandardLogger().ReplaceHooks(make(log.LevelHooks))

	m := newSessionModel(rl.connInfo, ctrl, rl.lights, hook.entries)
	p := tea.NewProgram(m)

	errCh := make(chan error, 1)
	go func() {
		err := runner.Run(ctx)
		errCh <- err
		p.Send(sessionDoneMsg{err: err})
	}()

	go func() {
		select {
		case <-rl.driver.Done():
			if ctx.Err() == nil {
				p.Send(sessionDoneMsg{err: fmt.Errorf("bridge connection lost: %w", rl.driver.Err())})
			}
		case <-ctx.Done():
		}
	}()

	final, err := p.Run()
	cancel()
	runErr := <-errCh
	if err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	if fm, ok := final.(sessionModel); ok && fm.err != nil {
		return fm.err
	}
	return runErr
}
