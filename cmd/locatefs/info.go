package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kchojnowski/locatefs/internal/orchestrator"
	"github.com/kchojnowski/locatefs/internal/pathutil"
	"github.com/kchojnowski/locatefs/internal/scanner"
	"github.com/kchojnowski/locatefs/internal/stats"
)

var infoCmd = &cobra.Command{
	Use:   "info <root>",
	Short: "Scan a root once and print aggregate file counts and size",
	Args:  cobra.ExactArgs(1),
	RunE:  runInfo,
}

func runInfo(cmd *cobra.Command, args []string) error {
	root, err := filepath.Abs(args[0])
	if err != nil {
		return newUsageError("locatefs: resolve %q: %v", args[0], err)
	}
	root = pathutil.Normalize(root)

	log := zerolog.Nop()
	opts := orchestrator.DefaultOptions()
	orch := orchestrator.New(log, opts)

	res, err := orch.AddRoot(root)
	if err != nil {
		return fmt.Errorf("locatefs: register root %q: %w", root, err)
	}
	if res != scanner.Ok {
		return newUsageError("locatefs: %q: %s", root, res)
	}

	if err := orch.Start(); err != nil {
		return fmt.Errorf("locatefs: %w", err)
	}
	defer orch.Stop()

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription("scanning"),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWriter(cmd.ErrOrStderr()),
	)
	for !orch.Idle() {
		bar.Add(1)
		time.Sleep(50 * time.Millisecond)
	}
	bar.Finish()
	fmt.Fprintln(cmd.ErrOrStderr())

	s := stats.Compute(orch.Index, root, nil)

	fmt.Printf("Root:  %s\n", s.Root)
	fmt.Printf("Files: %s\n", humanize.Comma(s.FileCount))
	fmt.Printf("Size:  %s\n", humanize.Bytes(s.TotalSize))
	return nil
}
