package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"pkt.systems/pslog"

	"github.com/abdul-hamid-achik/reqx/packages/core/config"
	"github.com/abdul-hamid-achik/reqx/packages/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch <file|directory>...",
	Short: "Re-run requests whenever files change",
	Long: `Run the requests once, then watch the request files, the project
configuration and the environments, and run everything again after each
burst of changes. Every re-run starts from a freshly loaded environment;
captures from the previous run are discarded.

Accepts the same flags as run.

Examples:
  reqx watch ./api --env dev
  reqx watch ./api --debounce 1s`,
	Args: cobra.MinimumNArgs(1),
	RunE: watchCommand,
}

var debounceFlag time.Duration

func init() {
	addRunFlags(watchCmd)
	watchCmd.Flags().DurationVar(&debounceFlag, "debounce", watch.DefaultDebounce, "Quiet period after a change before re-running")
}

func watchCommand(cmd *cobra.Command, args []string) error {
	logger := loggerFromCmd(cmd)
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	rerun := func(ctx context.Context) {
		if _, err := executeRun(ctx, cmd, args, logger); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		}
	}

	rerun(ctx)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	for _, dir := range watchDirs(args) {
		if err := watcher.Add(dir); err != nil {
			logger.Warn("cannot watch directory", "dir", dir, "error", err)
		}
	}

	events := make(chan []string)
	go forwardEvents(ctx, watcher, events, logger)

	fmt.Fprintf(out, "\nWatching for changes... (press Ctrl+C to stop)\n\n")

	err = watch.Loop(ctx, events, debounceFlag, func(ctx context.Context, changed []string) {
		fmt.Fprintf(out, "\nFile changed: %s\nRe-running...\n", strings.Join(changed, ", "))
		rerun(ctx)
		fmt.Fprintf(out, "\nWatching for changes... (press Ctrl+C to stop)\n")
	}, watch.WithLogger(logger))
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// watchDirs lists the directories to watch: every directory under the
// arguments, the directories of file arguments, and the project directory.
func watchDirs(args []string) []string {
	var dirs []string
	seen := make(map[string]bool)
	add := func(dir string) {
		if !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}

	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			continue
		}
		if !info.IsDir() {
			add(filepath.Dir(arg))
			continue
		}
		_ = filepath.Walk(arg, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return nil
			}
			if info.IsDir() {
				add(path)
			}
			return nil
		})
	}

	projectDir := config.DirName
	if configFlag != "" {
		projectDir = filepath.Dir(configFlag)
	}
	for _, dir := range []string{projectDir, filepath.Join(projectDir, "environments")} {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			add(dir)
		}
	}
	if envFileFlag != "" {
		add(filepath.Dir(envFileFlag))
	}
	return dirs
}

// forwardEvents turns relevant fsnotify events into change notifications.
// It closes events when the watcher stops or ctx ends.
func forwardEvents(ctx context.Context, watcher *fsnotify.Watcher, events chan<- []string, logger pslog.Base) {
	defer close(events)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !relevantChange(event) {
				continue
			}
			select {
			case events <- []string{event.Name}:
			case <-ctx.Done():
				return
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("watcher error", "error", err)
		}
	}
}

// relevantChange reports whether event touches a request, config,
// environment or dotenv file.
func relevantChange(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}
	base := filepath.Base(event.Name)
	if strings.HasPrefix(base, ".") && base != ".env" && !strings.HasPrefix(base, ".env.") {
		return false
	}
	switch filepath.Ext(base) {
	case FileExtension, ".toml", ".yaml", ".yml":
		return true
	}
	return base == ".env" || strings.HasPrefix(base, ".env.") || filepath.Ext(base) == ".env"
}
