package main

import (
	"fmt"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/kchojnowski/locatefs/internal/orchestrator"
	"github.com/kchojnowski/locatefs/internal/pathutil"
	"github.com/kchojnowski/locatefs/internal/scanner"
	"github.com/kchojnowski/locatefs/internal/tui"
)

var tuiCmd = &cobra.Command{
	Use:   "tui [roots...]",
	Short: "Browse a live search index interactively",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runTUI,
}

func runTUI(cmd *cobra.Command, args []string) error {
	log := zerolog.Nop()
	orch := orchestrator.New(log, orchestrator.DefaultOptions())

	for _, a := range args {
		root, err := filepath.Abs(a)
		if err != nil {
			return newUsageError("locatefs: resolve %q: %v", a, err)
		}
		root = pathutil.Normalize(root)
		res, err := orch.AddRoot(root)
		if err != nil {
			return fmt.Errorf("locatefs: register root %q: %w", root, err)
		}
		if res != scanner.Ok {
			return newUsageError("locatefs: %q: %s", root, res)
		}
	}

	if err := orch.Start(); err != nil {
		return fmt.Errorf("locatefs: %w", err)
	}
	defer orch.Stop()

	model := tui.NewModel(orch)
	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("locatefs: tui: %w", err)
	}
	return nil
}
