package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/AvengeMedia/ddcgo/internal/ddcdisplay"
	"github.com/AvengeMedia/ddcgo/internal/ddcevents"
	"github.com/AvengeMedia/ddcgo/internal/log"
	"github.com/AvengeMedia/ddcgo/pkg/ddc"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Live view of attached displays and status events",
	Run:   runMonitor,
}

const maxEventLog = 8

type monitorStyles struct {
	title  lipgloss.Style
	header lipgloss.Style
	event  lipgloss.Style
	subtle lipgloss.Style
}

func newMonitorStyles() monitorStyles {
	return monitorStyles{
		title:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213")),
		header: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("245")),
		event:  lipgloss.NewStyle().Foreground(lipgloss.Color("120")),
		subtle: lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
	}
}

type tickMsg time.Time

type eventMsg ddcevents.Event

type monitorModel struct {
	lib      *ddc.Library
	sub      chan ddcevents.Event
	styles   monitorStyles
	table    table.Model
	eventLog []string
}

func newDisplayTable() table.Model {
	columns := []table.Column{
		{Title: "Display", Width: 7},
		{Title: "Bus", Width: 10},
		{Title: "Model", Width: 20},
		{Title: "Communication", Width: 14},
	}
	t := table.New(table.WithColumns(columns), table.WithFocused(false), table.WithHeight(6))
	style := table.DefaultStyles()
	style.Header = style.Header.Bold(true).Foreground(lipgloss.Color("245"))
	style.Selected = style.Selected.Foreground(lipgloss.Color("252")).Background(lipgloss.Color("0"))
	t.SetStyles(style)
	return t
}

func newMonitorModel(lib *ddc.Library) monitorModel {
	sub := make(chan ddcevents.Event, 16)
	lib.Dispatcher().Register(func(ev ddcevents.Event) {
		select {
		case sub <- ev:
		default:
			// a full subscriber channel drops the event rather than
			// blocking the dispatcher's per-callback goroutine.
		}
	})
	return monitorModel{lib: lib, sub: sub, styles: newMonitorStyles(), table: newDisplayTable()}
}

func displayRows(displays []*ddcdisplay.Reference) []table.Row {
	rows := make([]table.Row, 0, len(displays))
	for _, ref := range displays {
		model := ref.ModelKey()
		if model == "" {
			model = "(unknown)"
		}
		comm := "not working"
		if ref.HasFlag(ddcdisplay.FlagCommunicationWorking) {
			comm = "working"
		}
		rows = append(rows, table.Row{
			strconv.Itoa(int(ref.Number)),
			"i2c-" + strconv.Itoa(ref.IOPath.Number),
			model,
			comm,
		})
	}
	return rows
}

func (m monitorModel) Init() tea.Cmd {
	return tea.Batch(waitForEvent(m.sub), scanTick(), rescan(m.lib))
}

func waitForEvent(sub chan ddcevents.Event) tea.Cmd {
	return func() tea.Msg { return eventMsg(<-sub) }
}

func scanTick() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

type rescanMsg struct{ displays []*ddcdisplay.Reference }

func rescan(lib *ddc.Library) tea.Cmd {
	return func() tea.Msg {
		if _, err := lib.ScanOnce(busScanSource{}); err != nil {
			log.Debugf("monitor rescan failed: %v", err)
		}
		return rescanMsg{displays: lib.Displays()}
	}
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		return m, nil
	case tickMsg:
		return m, tea.Batch(scanTick(), rescan(m.lib))
	case rescanMsg:
		m.table.SetRows(displayRows(msg.displays))
		return m, nil
	case eventMsg:
		ev := ddcevents.Event(msg)
		line := fmt.Sprintf("%s %-14s %s", time.Unix(0, ev.TimestampNS).Format("15:04:05"), ev.Type, ev.ConnectorName)
		m.eventLog = append(m.eventLog, line)
		if len(m.eventLog) > maxEventLog {
			m.eventLog = m.eventLog[len(m.eventLog)-maxEventLog:]
		}
		return m, waitForEvent(m.sub)
	}
	return m, nil
}

func (m monitorModel) View() string {
	var b strings.Builder

	b.WriteString(m.styles.title.Render("ddcctl monitor"))
	b.WriteString("\n\n")
	b.WriteString(m.table.View())
	b.WriteString("\n")
	b.WriteString(m.styles.header.Render("Recent events"))
	b.WriteString("\n")
	if len(m.eventLog) == 0 {
		b.WriteString(m.styles.subtle.Render("  (none yet)"))
		b.WriteString("\n")
	}
	for _, line := range m.eventLog {
		b.WriteString(m.styles.event.Render("  " + line))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.styles.subtle.Render("press q to quit"))
	return b.String()
}

func runMonitor(cmd *cobra.Command, args []string) {
	lib := ddc.New()
	if err := lib.Init(ddc.Options{}); err != nil {
		log.Fatalf("initializing ddc library: %v", err)
	}
	defer lib.Teardown()

	p := tea.NewProgram(newMonitorModel(lib))
	if _, err := p.Run(); err != nil {
		log.Fatalf("monitor: %v", err)
	}
}
