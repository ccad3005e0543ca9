// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/sdlink/pkg/sdlink"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

// Focus states
const (
	focusRecordList = iota
	focusComposer
)

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// recordItem is a received record shown in the list
type recordItem struct {
	record sdlink.Record
}

// Implement list.Item interface
func (r recordItem) Title() string { return r.record.Key }
func (r recordItem) Description() string {
	return fmt.Sprintf("%s %s", r.record.Value.Type(), r.record.Value)
}
func (r recordItem) FilterValue() string { return r.record.Key }

// consoleModel is the Bubble Tea model for the console TUI
type consoleModel struct {
	// Connection manager (for sending frames and reconnection)
	connMgr  *connectionManager
	connInfo string

	// Received data
	records    []sdlink.Record
	recordList list.Model
	lastData   time.Time
	device     *sdlink.Descriptor

	// Monitoring (reused from tui.go patterns)
	stats         *sdlink.Statistics
	eventLog      []eventLogEntry
	maxLogEntries int
	sentFrames    int
	suppressed    int

	// Composer
	fieldInput   textinput.Model
	focusedField int

	// UI state
	width          int
	height         int
	quitting       bool
	connectionLost bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type consoleTickMsg time.Time

type consoleBatchMsg struct {
	events []consoleEvent
}

type reconnectedMsg struct {
	connInfo string
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialConsoleModel(connMgr *connectionManager, connInfo string) consoleModel {
	ti := textinput.New()
	ti.Placeholder = "temp=i16:-40 mode=auto"
	ti.CharLimit = 512
	ti.Width = 40

	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.SetHeight(2)
	recordList := list.New([]list.Item{}, delegate, 30, 10)
	recordList.Title = "Records"
	recordList.SetShowStatusBar(false)
	recordList.SetShowHelp(false)
	recordList.SetFilteringEnabled(false)

	return consoleModel{
		connMgr:       connMgr,
		connInfo:      connInfo,
		recordList:    recordList,
		stats:         sdlink.NewStatistics(),
		eventLog:      make([]eventLogEntry, 0),
		maxLogEntries: 100,
		fieldInput:    ti,
		focusedField:  focusRecordList,
		width:         80,
		height:        24,
	}
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m consoleModel) Init() tea.Cmd {
	return consoleTickCmd()
}

func consoleTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return consoleTickMsg(t)
	})
}

func (m consoleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateListSize()

	case consoleTickMsg:
		m.stats.CalculateRates()
		return m, consoleTickCmd()

	case consoleBatchMsg:
		for _, ev := range msg.events {
			m.processEvent(ev)
		}

	case connectionLostMsg:
		m.connectionLost = true
		m.addLogEntry(fmt.Sprintf("Connection lost (%v) - reconnecting...", msg.err), true)

	case reconnectedMsg:
		m.connectionLost = false
		m.connInfo = msg.connInfo
		m.device = nil
		m.addLogEntry("Reconnected - requesting device info", false)
	}

	return m, nil
}

func (m consoleModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "tab", "shift+tab":
		m.toggleFocus()
		return m, nil
	}

	if m.focusedField == focusComposer {
		switch msg.String() {
		case "enter":
			m.sendComposed()
			return m, nil
		case "esc":
			m.toggleFocus()
			return m, nil
		}
		var cmd tea.Cmd
		m.fieldInput, cmd = m.fieldInput.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "q":
		m.quitting = true
		return m, tea.Quit
	case "i":
		m.send(consoleRequest{cmd: sdlink.CmdGetInfo})
		return m, nil
	case "s":
		m.send(consoleRequest{cmd: sdlink.CmdStopData})
		return m, nil
	case "r":
		m.stats.Reset()
		m.addLogEntry("Statistics reset", false)
		return m, nil
	}

	var cmd tea.Cmd
	m.recordList, cmd = m.recordList.Update(msg)
	return m, cmd
}

func (m *consoleModel) toggleFocus() {
	if m.focusedField == focusRecordList {
		m.focusedField = focusComposer
		m.fieldInput.Focus()
	} else {
		m.focusedField = focusRecordList
		m.fieldInput.Blur()
	}
}

func (m consoleModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder

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

	focusedBoxStyle := boxStyle.
		BorderForeground(lipgloss.Color("12"))

	// Header
	helpText := "q=quit Tab=composer i=info s=stop r=reset"
	if m.focusedField == focusComposer {
		helpText = "Enter=send Esc/Tab=back ctrl+c=quit"
	}
	s.WriteString(titleStyle.Render("SDLINK CONSOLE"))
	s.WriteString(" ")
	connStatus := m.connInfo
	if m.connectionLost {
		connStatus = warningStyle.Render("RECONNECTING...")
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | %s", connStatus, helpText)))
	s.WriteString("\n\n")

	// Layout: left panel (records) | right panel (device + composer)
	leftWidth := 30
	rightWidth := m.width - leftWidth - 6

	listStyle := boxStyle.Width(leftWidth)
	if m.focusedField == focusRecordList {
		listStyle = focusedBoxStyle.Width(leftWidth)
	}
	recordPanel := listStyle.Render(m.recordList.View())

	rightStyle := boxStyle.Width(rightWidth)
	if m.focusedField == focusComposer {
		rightStyle = focusedBoxStyle.Width(rightWidth)
	}
	rightPanel := rightStyle.Render(m.renderDevicePanel(statsLabelStyle, statsValueStyle, headerStyle))

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, recordPanel, " ", rightPanel))
	s.WriteString("\n\n")

	// Statistics bar
	s.WriteString(m.renderStatisticsBar(statsLabelStyle, statsValueStyle, errorStyle, warningStyle, boxStyle))
	s.WriteString("\n\n")

	// Event log
	s.WriteString(m.renderEventLog(statsLabelStyle, warningStyle, headerStyle, errorStyle, boxStyle))

	return s.String()
}

//////////////////////////////////////////////////////////////
// View Helpers
//////////////////////////////////////////////////////////////

func (m consoleModel) renderDevicePanel(statsLabelStyle, statsValueStyle, headerStyle lipgloss.Style) string {
	var s strings.Builder

	if d := m.device; d != nil {
		s.WriteString(fmt.Sprintf("%s %s %s\n", statsLabelStyle.Render("Device:"),
			statsValueStyle.Render(d.Name), headerStyle.Render("v"+d.Version())))
		s.WriteString(fmt.Sprintf("%s %d  %s %d  %s %d\n",
			statsLabelStyle.Render("Class:"), d.ClassID,
			statsLabelStyle.Render("Type:"), d.TypeID,
			statsLabelStyle.Render("Serial:"), d.Serial))
		s.WriteString(headerStyle.Render(d.Info))
		s.WriteString("\n\n")
	} else {
		s.WriteString(headerStyle.Render("No device info yet (press 'i')"))
		s.WriteString("\n\n")
	}

	if !m.lastData.IsZero() {
		s.WriteString(fmt.Sprintf("%s %s ago\n\n", statsLabelStyle.Render("Last data:"),
			statsValueStyle.Render(time.Since(m.lastData).Round(time.Second).String())))
	}

	s.WriteString(statsLabelStyle.Render("Send fields:"))
	s.WriteString("\n")
	if m.focusedField == focusComposer {
		s.WriteString(m.fieldInput.View())
	} else {
		val := m.fieldInput.Value()
		if val == "" {
			val = m.fieldInput.Placeholder
		}
		s.WriteString(headerStyle.Render(fmt.Sprintf("[%s]", val)))
	}

	return s.String()
}

func (m consoleModel) renderStatisticsBar(statsLabelStyle, statsValueStyle, errorStyle, warningStyle, boxStyle lipgloss.Style) string {
	m.stats.CalculateRates()
	var validPercent, errorPercent float64
	if m.stats.TotalFrames > 0 {
		validPercent = float64(m.stats.ValidFrames) * 100.0 / float64(m.stats.TotalFrames)
		errorPercent = float64(m.stats.Errors()+m.stats.Anomalies) * 100.0 / float64(m.stats.TotalFrames)
	}

	content := fmt.Sprintf("%s %s  %s %s  %s %s  %s %s  %s %s  %s %s",
		statsLabelStyle.Render("Rx:"), statsValueStyle.Render(fmt.Sprintf("%d", m.stats.TotalFrames)),
		statsLabelStyle.Render("Valid:"), statsValueStyle.Render(fmt.Sprintf("%.1f%%", validPercent)),
		statsLabelStyle.Render("Errors:"), func() string {
			if errorPercent > 0 {
				return errorStyle.Render(fmt.Sprintf("%.1f%%", errorPercent))
			}
			return statsValueStyle.Render("0.0%")
		}(),
		statsLabelStyle.Render("Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f frames/s", m.stats.FrameRate)),
		statsLabelStyle.Render("Tx:"), statsValueStyle.Render(fmt.Sprintf("%d", m.sentFrames)),
		statsLabelStyle.Render("Suppressed:"), func() string {
			if m.suppressed > 0 {
				return warningStyle.Render(fmt.Sprintf("%d", m.suppressed))
			}
			return statsValueStyle.Render("0")
		}(),
	)

	return boxStyle.Width(m.width - 4).Render(content)
}

func (m consoleModel) renderEventLog(statsLabelStyle, warningStyle, headerStyle, errorStyle, boxStyle lipgloss.Style) string {
	var s strings.Builder
	s.WriteString(statsLabelStyle.Render("EVENTS"))
	s.WriteString("\n")

	logHeight := 8
	if len(m.eventLog) < logHeight {
		logHeight = len(m.eventLog)
	}
	startIdx := len(m.eventLog) - logHeight

	if len(m.eventLog) == 0 {
		s.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.eventLog); i++ {
			entry := m.eventLog[i]
			timestamp := entry.timestamp.Format("15:04:05.000")
			icon := "i"
			style := warningStyle
			if entry.isError {
				icon = "x"
				style = errorStyle
			}
			s.WriteString(fmt.Sprintf("%s %s %s\n",
				headerStyle.Render(timestamp),
				style.Render(icon),
				entry.message))
		}
	}

	return boxStyle.Width(m.width - 4).Render(s.String())
}

//////////////////////////////////////////////////////////////
// Data Processing
//////////////////////////////////////////////////////////////

func (m *consoleModel) processEvent(ev consoleEvent) {
	switch ev.kind {
	case eventFrame:
		m.stats.Update(ev.frame, nil, ev.validation)
		for _, v := range ev.validation {
			m.addLogEntry(fmt.Sprintf("%s: %s", ev.frame.Command(), v.Message), true)
		}
		m.handleFrame(ev.frame)

	case eventRejected:
		m.stats.Update(nil, ev.err, nil)
		m.addLogEntry(fmt.Sprintf("REJECTED: %v", ev.err), true)

	case eventRecords:
		m.records = ev.records
		m.lastData = time.Now()
		m.updateRecordList()

	case eventSent:
		m.sentFrames++
		m.addLogEntry(fmt.Sprintf("Sent %s (%d bytes)", ev.cmd, ev.size), false)

	case eventSuppressed:
		m.suppressed++
		m.addLogEntry(fmt.Sprintf("%s suppressed: device sent STOP_DATA", ev.cmd), true)

	case eventSendFailed:
		m.addLogEntry(fmt.Sprintf("Failed to send %s: %v", ev.cmd, ev.err), true)
	}
}

func (m *consoleModel) handleFrame(f *sdlink.Frame) {
	switch f.Command() {
	case sdlink.CmdSendInfo:
		s, err := f.Store()
		if err != nil {
			return
		}
		d, err := sdlink.DescriptorFromStore(s)
		if err != nil {
			return
		}
		if m.device == nil || *m.device != d {
			m.addLogEntry(fmt.Sprintf("Device: %s v%s (serial %d)", d.Name, d.Version(), d.Serial), false)
		}
		m.device = &d

	case sdlink.CmdStopData:
		m.addLogEntry("Device sent STOP_DATA", false)

	case sdlink.CmdGetInfo:
		m.addLogEntry("Device requested info", false)
	}
}

//////////////////////////////////////////////////////////////
// Commands
//////////////////////////////////////////////////////////////

var errComposerEmpty = errors.New("nothing to send")

// composedRecords parses the composer text
func composedRecords(text string) ([]sdlink.Record, error) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil, errComposerEmpty
	}
	return parseFields(fields)
}

func (m *consoleModel) sendComposed() {
	records, err := composedRecords(m.fieldInput.Value())
	if err != nil {
		m.addLogEntry(fmt.Sprintf("Invalid fields: %v", err), true)
		return
	}
	if m.send(consoleRequest{cmd: sdlink.CmdSendData, records: records}) {
		m.fieldInput.Reset()
	}
}

func (m *consoleModel) send(req consoleRequest) bool {
	// Don't queue frames while the connection is lost
	if m.connectionLost {
		m.addLogEntry(fmt.Sprintf("Cannot send %s: connection lost", req.cmd), true)
		return false
	}
	if !m.connMgr.request(req) {
		m.addLogEntry(fmt.Sprintf("Cannot send %s: queue full", req.cmd), true)
		return false
	}
	return true
}

//////////////////////////////////////////////////////////////
// Helpers
//////////////////////////////////////////////////////////////

func (m *consoleModel) addLogEntry(message string, isError bool) {
	entry := eventLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.eventLog = append(m.eventLog, entry)

	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

func (m *consoleModel) updateRecordList() {
	items := make([]list.Item, len(m.records))
	for i, r := range m.records {
		items[i] = recordItem{record: r}
	}
	m.recordList.SetItems(items)
}

func (m *consoleModel) updateListSize() {
	listHeight := m.height / 3
	if listHeight < 5 {
		listHeight = 5
	}
	m.recordList.SetSize(28, listHeight)
}
