// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/sdlink/pkg/sdlink"
)

// Event log entry
type eventLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for info
}

// Latest records seen on the link
type linkSnapshot struct {
	timestamp time.Time
	records   []sdlink.Record
	device    *sdlink.Descriptor
	uptime    uint32 // milliseconds
	hasUptime bool
}

// TUI model
type model struct {
	connInfo      string
	statsInterval int
	showAll       bool
	stats         *sdlink.Statistics
	eventLog      []eventLogEntry
	maxLogEntries int
	synchronized  bool
	skippedBytes  uint64
	disconnected  error
	width         int
	height        int
	quitting      bool
	latest        linkSnapshot
}

// Messages
type tickMsg time.Time
type linkEventMsg monitorEvent
type connectionLostMsg struct {
	err error
}

// formatUptime formats uptime in milliseconds to human-friendly string
func formatUptime(ms uint64) string {
	seconds := ms / 1000
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	seconds %= 60
	minutes %= 60
	hours %= 24

	units := []struct {
		n    uint64
		name string
	}{
		{days, "day"},
		{hours, "hour"},
		{minutes, "minute"},
		{seconds, "second"},
	}

	parts := []string{}
	for _, u := range units {
		if u.n == 0 {
			continue
		}
		if u.n == 1 {
			parts = append(parts, "1 "+u.name)
		} else {
			parts = append(parts, fmt.Sprintf("%d %ss", u.n, u.name))
		}
	}

	switch len(parts) {
	case 0:
		return "0 seconds"
	case 1:
		return parts[0]
	case 2:
		return parts[0] + " and " + parts[1]
	}
	last := parts[len(parts)-1]
	rest := strings.Join(parts[:len(parts)-1], ", ")
	return rest + ", and " + last
}

func initialModel(connInfo string, statsInterval int, showAll bool) model {
	return model{
		connInfo:      connInfo,
		statsInterval: statsInterval,
		showAll:       showAll,
		stats:         sdlink.NewStatistics(),
		eventLog:      make([]eventLogEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		tea.EnterAltScreen,
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			m.stats.Reset()
			m.addLogEntry("Statistics reset", false)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.stats.CalculateRates()
		return m, tickCmd()

	case connectionLostMsg:
		m.disconnected = msg.err
		m.addLogEntry(fmt.Sprintf("Connection lost: %v", msg.err), true)

	case linkEventMsg:
		ev := monitorEvent(msg)
		ev.record(m.stats)

		switch {
		case ev.synced:
			m.synchronized = true
			m.skippedBytes = ev.skipped
			if ev.skipped > 0 {
				m.addLogEntry(fmt.Sprintf("Synchronized after skipping %d bytes", ev.skipped), false)
			} else {
				m.addLogEntry("Synchronized", false)
			}

		case ev.err != nil:
			m.addLogEntry(fmt.Sprintf("DECODE ERROR: %v", ev.err), true)

		case ev.frame != nil:
			m.updateSnapshot(ev.frame)
			if len(ev.validation) > 0 {
				for _, err := range ev.validation {
					m.addLogEntry(fmt.Sprintf("%s: %s", ev.frame.Command(), err.Message), true)
				}
			} else if m.showAll {
				m.addLogEntry(fmt.Sprintf("%s (valid, %d bytes)", ev.frame.Command(), len(ev.frame.Payload())), false)
			}
		}
	}

	return m, nil
}

func (m *model) addLogEntry(message string, isError bool) {
	entry := eventLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.eventLog = append(m.eventLog, entry)

	// Keep only last N entries
	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

// updateSnapshot keeps the latest records and descriptor
func (m *model) updateSnapshot(f *sdlink.Frame) {
	s, err := f.Store()
	if err != nil {
		return
	}

	switch f.Command() {
	case sdlink.CmdSendData:
		m.latest.timestamp = f.Timestamp()
		m.latest.records = s.Records()
		if v, ok := s.Lookup("uptime_ms"); ok && v.Type() == sdlink.TypeUint32 {
			m.latest.uptime = v.Uint32()
			m.latest.hasUptime = true
		}

	case sdlink.CmdSendInfo:
		if d, err := sdlink.DescriptorFromStore(s); err == nil {
			m.latest.device = &d
		}
	}
}

func (m model) View() string {
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

	mode := "Errors only"
	if m.showAll {
		mode = "All frames"
	}

	// Header
	var s strings.Builder
	s.WriteString(titleStyle.Render("SDLINK - FRAME MONITOR"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Mode: %s | 'r' reset, 'q' quit", m.connInfo, mode)))
	s.WriteString("\n\n")

	// Sync status
	switch {
	case m.disconnected != nil:
		s.WriteString(errorStyle.Render("✗ Disconnected"))
	case !m.synchronized:
		s.WriteString(warningStyle.Render("⏳ Waiting for synchronization..."))
	default:
		s.WriteString(statsValueStyle.Render("✓ Synchronized"))
		if m.skippedBytes > 0 {
			s.WriteString(headerStyle.Render(fmt.Sprintf(" (skipped %d bytes)", m.skippedBytes)))
		}
	}
	s.WriteString("\n\n")

	// Statistics
	m.stats.CalculateRates()
	var validPercent, errorPercent float64
	totalErrors := m.stats.Errors() + m.stats.Anomalies
	if m.stats.TotalFrames > 0 {
		validPercent = float64(m.stats.ValidFrames) * 100.0 / float64(m.stats.TotalFrames)
		errorPercent = float64(totalErrors) * 100.0 / float64(m.stats.TotalFrames)
	}

	statsContent := strings.Builder{}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Total:"), statsValueStyle.Render(fmt.Sprintf("%d", m.stats.TotalFrames)),
		statsLabelStyle.Render("Valid:"), statsValueStyle.Render(fmt.Sprintf("%d (%.1f%%)", m.stats.ValidFrames, validPercent)),
		statsLabelStyle.Render("Errors:"), errorStyle.Render(fmt.Sprintf("%d (%.1f%%)", totalErrors, errorPercent)),
	))

	if m.stats.Errors() > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s   %s %s\n",
			statsLabelStyle.Render("CRC:"), errorStyle.Render(fmt.Sprintf("%d", m.stats.ChecksumErrors)),
			statsLabelStyle.Render("Terminator:"), errorStyle.Render(fmt.Sprintf("%d", m.stats.TerminatorErrors)),
			statsLabelStyle.Render("Length:"), errorStyle.Render(fmt.Sprintf("%d", m.stats.LengthErrors)),
			statsLabelStyle.Render("Decode:"), errorStyle.Render(fmt.Sprintf("%d", m.stats.DecodeErrors)),
		))
	}

	if m.stats.Anomalies > 0 || m.stats.DroppedBytes > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s   %s %s\n",
			statsLabelStyle.Render("Anomalies:"), warningStyle.Render(fmt.Sprintf("%d", m.stats.Anomalies)),
			statsLabelStyle.Render("Dropped bytes:"), warningStyle.Render(fmt.Sprintf("%d", m.stats.DroppedBytes)),
		))
	}

	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s",
		statsLabelStyle.Render("Frame Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f frames/s", m.stats.FrameRate)),
		statsLabelStyle.Render("Error Rate:"), func() string {
			if m.stats.ErrorRate > 0 {
				return errorStyle.Render(fmt.Sprintf("%.1f err/s", m.stats.ErrorRate))
			}
			return statsValueStyle.Render(fmt.Sprintf("%.1f err/s", m.stats.ErrorRate))
		}(),
	))

	s.WriteString(boxStyle.Render(statsContent.String()))
	s.WriteString("\n\n")

	// Latest device data (only shown once something arrived)
	if m.latest.device != nil || m.latest.records != nil {
		s.WriteString(statsLabelStyle.Render("Latest Data:"))
		s.WriteString("\n")

		dataContent := strings.Builder{}
		if d := m.latest.device; d != nil {
			dataContent.WriteString(fmt.Sprintf("%s %s   %s %d   %s %s\n",
				statsLabelStyle.Render("Device:"), statsValueStyle.Render(d.Name),
				statsLabelStyle.Render("Serial:"), d.Serial,
				statsLabelStyle.Render("Version:"), d.Version(),
			))
		}
		if m.latest.hasUptime {
			dataContent.WriteString(fmt.Sprintf("%s %s\n",
				statsLabelStyle.Render("Uptime:"), statsValueStyle.Render(formatUptime(uint64(m.latest.uptime))),
			))
		}
		for _, r := range m.latest.records {
			dataContent.WriteString(fmt.Sprintf("%s %s %s\n",
				statsLabelStyle.Render(r.Key+":"),
				statsValueStyle.Render(r.Value.String()),
				headerStyle.Render(r.Value.Type().String()),
			))
		}

		s.WriteString(boxStyle.Render(strings.TrimRight(dataContent.String(), "\n")))
		s.WriteString("\n\n")
	}

	// Event log
	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	// Calculate how many log entries we can show
	logHeight := m.height - 15 - len(m.latest.records)
	if logHeight < 5 {
		logHeight = 5
	}

	logContent := strings.Builder{}
	startIdx := len(m.eventLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.eventLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.eventLog); i++ {
			entry := m.eventLog[i]
			timestamp := entry.timestamp.Format("01/02/06 15:04:05.000")
			if entry.isError {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					errorStyle.Render("✗ "+entry.message),
				))
			} else {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					warningStyle.Render("ℹ "+entry.message),
				))
			}
		}
	}

	s.WriteString(boxStyle.Width(m.width - 4).Render(logContent.String()))

	return s.String()
}
