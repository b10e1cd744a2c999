package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/kchojnowski/locatefs/internal/index"
)

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case rowMsg:
		if msg.gen == m.gen {
			m.results = append(m.results, msg.e)
		}
		return m, waitForEvent(m.events)

	case doneMsg:
		if msg.gen == m.gen {
			m.searching = false
		}
		return m, waitForEvent(m.events)
	}

	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "ctrl+c":
		m.orch.CancelQuery()
		return m, tea.Quit

	case "up":
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil

	case "down":
		if m.cursor < len(m.results)-1 {
			m.cursor++
		}
		return m, nil

	case "ctrl+u":
		m.input = ""
		m.runQuery()
		return m, nil

	case "backspace":
		if len(m.input) > 0 {
			runes := []rune(m.input)
			m.input = string(runes[:len(runes)-1])
			m.runQuery()
		}
		return m, nil

	case "tab":
		if m.mode == index.Substring {
			m.mode = index.Regex
		} else {
			m.mode = index.Substring
		}
		m.runQuery()
		return m, nil
	}

	if msg.Type == tea.KeyRunes {
		m.input += msg.String()
		m.runQuery()
		return m, nil
	}

	return m, nil
}
