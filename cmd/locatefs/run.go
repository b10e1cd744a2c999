package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/kchojnowski/locatefs/internal/entry"
	"github.com/kchojnowski/locatefs/internal/index"
	"github.com/kchojnowski/locatefs/internal/orchestrator"
	"github.com/kchojnowski/locatefs/internal/pathutil"
	"github.com/kchojnowski/locatefs/internal/scanner"
)

var runCmd = &cobra.Command{
	Use:   "run [roots...]",
	Short: "Scan and watch the given roots, serving query lines from stdin",
	Args:  cobra.ArbitraryArgs,
	RunE:  runRun,
}

var (
	runRegex   bool
	runVerbose bool
)

func init() {
	runCmd.Flags().BoolVarP(&runRegex, "regex", "r", false, "Treat query lines as regular expressions instead of substrings")
	runCmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Enable debug-level logging on stderr")

	rootCmd.Args = cobra.ArbitraryArgs
	rootCmd.RunE = runRun
	rootCmd.Flags().AddFlagSet(runCmd.Flags())
}

func runRun(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return newUsageError("locatefs: at least one root path is required")
	}

	level := zerolog.InfoLevel
	if runVerbose {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()

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
		switch res {
		case scanner.Ok:
		case scanner.DoesNotExist, scanner.NotDirectory:
			return newUsageError("locatefs: %q: %s", root, res)
		default:
			return newUsageError("locatefs: %q: %s", root, res)
		}
	}

	if err := orch.Start(); err != nil {
		return fmt.Errorf("locatefs: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	stopOnce := sync.Once{}
	stop := func() { stopOnce.Do(orch.Stop) }
	defer stop()

	done := make(chan struct{})
	go func() {
		select {
		case <-sigCh:
			stop()
			os.Exit(0)
		case <-done:
		}
	}()

	mode := index.Substring
	if runRegex {
		mode = index.Regex
	}

	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()

	stdinScanner := bufio.NewScanner(os.Stdin)
	for stdinScanner.Scan() {
		pattern := stdinScanner.Text()
		queryDone := make(chan struct{})
		orch.Query(pattern, mode, func(_ uint64, e entry.Entry) {
			fmt.Fprintf(w, "%s\t%s\n", e.Name, filepath.Join(e.Path, e.Name))
		}, func() {
			w.Flush()
			close(queryDone)
		}, false)
		<-queryDone
	}
	close(done)

	if err := stdinScanner.Err(); err != nil {
		return fmt.Errorf("locatefs: reading query input: %w", err)
	}
	return nil
}
