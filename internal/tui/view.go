package tui

import (
	"fmt"
	"path/filepath"
	"strings"
)

// View implements tea.Model.
func (m *Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("locatefs"))
	b.WriteString("\n")

	modeLabel := "substring"
	if m.mode != 0 {
		modeLabel = "regex"
	}
	prompt := fmt.Sprintf("[%s] %s_", modeLabel, m.input)
	b.WriteString(inputStyle.Render(prompt))
	b.WriteString("\n")

	status := fmt.Sprintf("%s matches", FormatCount(len(m.results)))
	if m.searching {
		status += " (searching...)"
	}
	b.WriteString(statusStyle.Render(status))
	b.WriteString("\n\n")

	visibleRows := m.height - 6
	if visibleRows < 3 {
		visibleRows = 3
	}

	startIdx := 0
	if m.cursor >= visibleRows {
		startIdx = m.cursor - visibleRows + 1
	}
	endIdx := len(m.results)
	if endIdx > startIdx+visibleRows {
		endIdx = startIdx + visibleRows
	}

	for i := startIdx; i < endIdx; i++ {
		e := m.results[i]
		line := fmt.Sprintf("%-32s %s", e.Name, filepath.Join(e.Path, e.Name))
		if i == m.cursor {
			line = selectedStyle.Render(line)
		} else {
			line = pathStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render(m.helpLine()))

	return b.String()
}
