// Copyright 2026 The Switchyard Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// watchServices runs the full-screen live service table. The view
// polls the control socket on a fixed interval; a poll failure is
// shown in the status bar and retried, so a broker restart does not
// kill the watch.
func watchServices(socketPath, filter string, interval time.Duration) error {
	model := watchModel{
		socketPath: socketPath,
		interval:   interval,
		filter:     filter,
	}
	program := tea.NewProgram(model, tea.WithAltScreen())
	_, err := program.Run()
	return err
}

type servicesLoadedMsg struct {
	rows []serviceRow
	err  error
}

type pollMsg time.Time

type watchModel struct {
	socketPath string
	interval   time.Duration

	rows       []serviceRow
	err        error
	lastUpdate time.Time

	filter       string
	filterActive bool

	width  int
	height int
}

var (
	watchTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("24")).
			Padding(0, 1)

	watchHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("250"))

	watchPendingStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("178"))

	watchCheckedInStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("77"))

	watchFaintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244"))

	watchErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("203"))
)

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(m.fetch(), m.tick())
}

func (m watchModel) fetch() tea.Cmd {
	socketPath := m.socketPath
	return func() tea.Msg {
		rows, err := fetchServices(socketPath)
		return servicesLoadedMsg{rows: rows, err: err}
	}
}

func (m watchModel) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return pollMsg(t)
	})
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case pollMsg:
		return m, tea.Batch(m.fetch(), m.tick())

	case servicesLoadedMsg:
		m.err = msg.err
		if msg.err == nil {
			m.rows = msg.rows
			m.lastUpdate = time.Now()
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m watchModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.filterActive {
		switch msg.Type {
		case tea.KeyEscape:
			m.filter = ""
			m.filterActive = false
		case tea.KeyEnter:
			m.filterActive = false
		case tea.KeyBackspace:
			if len(m.filter) > 0 {
				runes := []rune(m.filter)
				m.filter = string(runes[:len(runes)-1])
			}
		case tea.KeyRunes:
			m.filter += string(msg.Runes)
		case tea.KeyCtrlC:
			return m, tea.Quit
		}
		return m, nil
	}

	switch msg.String() {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit
	case "/":
		m.filterActive = true
	case "r":
		return m, m.fetch()
	}
	return m, nil
}

func (m watchModel) View() string {
	var view strings.Builder

	title := fmt.Sprintf("switchyard services  %s", m.socketPath)
	view.WriteString(watchTitleStyle.Render(title))
	view.WriteString("\n\n")

	rows := fuzzyFilterServices(m.rows, m.filter)

	view.WriteString(watchHeaderStyle.Render(fmt.Sprintf("  %-40s %-14s %s", "NAME", "STATUS", "OWNER")))
	view.WriteString("\n")
	for _, row := range rows {
		owner := "-"
		if row.Owner != 0 {
			owner = fmt.Sprintf("%d", row.Owner)
		}
		line := fmt.Sprintf("  %-40s %-14s %s", row.Name, row.Status, owner)
		switch row.Status {
		case "checked-in":
			line = watchCheckedInStyle.Render(line)
		case "pending":
			line = watchPendingStyle.Render(line)
		default:
			line = watchFaintStyle.Render(line)
		}
		view.WriteString(line)
		view.WriteString("\n")
	}
	if len(rows) == 0 {
		view.WriteString(watchFaintStyle.Render("  (no services)"))
		view.WriteString("\n")
	}

	view.WriteString("\n")
	if m.filterActive {
		view.WriteString(" / " + m.filter + "▎\n")
	} else if m.filter != "" {
		view.WriteString(watchFaintStyle.Render(" filter: " + m.filter))
		view.WriteString("\n")
	}

	if m.err != nil {
		view.WriteString(watchErrorStyle.Render(fmt.Sprintf(" poll failed: %v", m.err)))
		view.WriteString("\n")
	} else if !m.lastUpdate.IsZero() {
		view.WriteString(watchFaintStyle.Render(
			fmt.Sprintf(" updated %s   q quit  / filter  r refresh", m.lastUpdate.Format("15:04:05"))))
		view.WriteString("\n")
	}

	return view.String()
}
