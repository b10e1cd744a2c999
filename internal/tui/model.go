// Package tui implements the interactive search browser: a text field
// for the query pattern and a streaming results list fed by the
// Orchestrator's debounced query.
package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/kchojnowski/locatefs/internal/entry"
	"github.com/kchojnowski/locatefs/internal/index"
	"github.com/kchojnowski/locatefs/internal/orchestrator"
)

// rowMsg carries one matched entry from a query's onRow callback.
type rowMsg struct {
	gen int
	e   entry.Entry
}

// doneMsg signals a query's onDone callback fired.
type doneMsg struct {
	gen int
}

// Model holds the search browser state.
type Model struct {
	orch *orchestrator.Orchestrator
	mode index.Mode

	input  string
	cursor int

	gen       int
	results   []entry.Entry
	searching bool

	width, height int
	err           error

	events chan tea.Msg
}

// NewModel creates a search browser bound to a running Orchestrator.
func NewModel(orch *orchestrator.Orchestrator) *Model {
	return &Model{
		orch:   orch,
		mode:   index.Substring,
		events: make(chan tea.Msg, 64),
	}
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return waitForEvent(m.events)
}

// waitForEvent bridges the Index's asynchronous onRow/onDone callbacks
// into bubbletea's message loop; it is re-issued after every event so
// the program keeps listening for as long as the model is alive.
func waitForEvent(events chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-events
	}
}

func (m *Model) helpLine() string {
	return "Type to search | ctrl+u: clear | up/down: move | esc/ctrl+c: quit"
}

// runQuery fires a debounced Orchestrator.Query for the current input
// and bumps the generation counter so stale callbacks from a
// superseded query are ignored when their messages arrive.
func (m *Model) runQuery() {
	m.gen++
	gen := m.gen
	m.results = nil
	m.cursor = 0
	m.searching = true

	pattern := m.input
	m.orch.Query(pattern, m.mode, func(_ uint64, e entry.Entry) {
		m.events <- rowMsg{gen: gen, e: e}
	}, func() {
		m.events <- doneMsg{gen: gen}
	}, true)
}
