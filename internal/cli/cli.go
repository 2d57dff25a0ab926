// Package cli implements the headless, line-oriented coxswain host. It
// bridges stdin submissions into the turn coordinator and prints coordinator
// notifications as they arrive.
package cli

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/joho/godotenv"

	"github.com/coxswain-dev/coxswain/internal/backend"
	"github.com/coxswain-dev/coxswain/internal/commands"
	"github.com/coxswain-dev/coxswain/internal/config"
	"github.com/coxswain-dev/coxswain/internal/core/turn"
)

// Run executes the headless client with the provided CLI arguments.
// It returns a POSIX-style exit code indicating whether execution succeeded.
func Run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if stdin == nil {
		stdin = os.Stdin
	}
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}

	if err := godotenv.Load(); err != nil {
		// A missing .env file is fine, but other errors should be surfaced to help with debugging.
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			fmt.Fprintf(stderr, "failed to load .env: %v\n", err)
			return 1
		}
	}

	flagSet := flag.NewFlagSet("coxswain", flag.ContinueOnError)
	flagSet.SetOutput(stderr)
	// Accepted so the entry point can forward its full argument list.
	_ = flagSet.Bool("headless", false, "run the line-oriented client instead of the TUI")
	configPath := flagSet.String("config", "", "path to the config file (defaults to the per-user location)")
	baseURL := flagSet.String("backend-url", os.Getenv("COXSWAIN_BACKEND_URL"), "override the backend base URL (optional)")
	// Optional: submit a prompt immediately to see streaming deltas without extra wiring.
	prompt := flagSet.String("prompt", "", "submit this prompt immediately and stream the response")

	if err := flagSet.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}
	if *baseURL != "" {
		cfg.Backend.BaseURL = *baseURL
	}

	logger := buildLogger(cfg, stderr)

	client, err := backend.NewClient(cfg.Backend.BaseURL, os.Getenv(cfg.Backend.APIKeyEnv), logger)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}

	metrics := turn.NewInMemoryMetrics()
	coord, err := turn.New(turn.Options{
		Backend:     client,
		EventBuffer: cfg.Client.EventBuffer,
		EmitTimeout: cfg.EmitTimeout(),
		Logger:      logger,
		Metrics:     metrics,
	})
	if err != nil {
		fmt.Fprintf(stderr, "failed to create coordinator: %v\n", err)
		return 1
	}
	defer coord.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		printEvents(coord.Events(), stdout)
	}()

	fmt.Fprintln(stdout, "coxswain ready. Type a prompt, '>' prefix to queue, 'cancel' to interrupt, /help for commands.")

	if p := strings.TrimSpace(*prompt); p != "" {
		coord.Submit(p)
	}

	code := consumeInput(ctx, stdin, stdout, coord, metrics)

	coord.Close()
	wg.Wait()
	return code
}

func buildLogger(cfg *config.Config, stderr io.Writer) turn.Logger {
	level := turn.LogLevel(strings.ToUpper(cfg.Client.LogLevel))
	switch level {
	case turn.LogLevelDebug, turn.LogLevelInfo, turn.LogLevelWarn, turn.LogLevelError:
	default:
		level = turn.LogLevelInfo
	}

	if cfg.Client.LogFile == "" {
		return turn.NoOpLogger{}
	}
	f, err := os.OpenFile(cfg.Client.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		fmt.Fprintf(stderr, "failed to open log file: %v\n", err)
		return turn.NoOpLogger{}
	}
	return turn.NewStdLogger(level, f)
}

// consumeInput reads stdin lines until EOF or /quit, routing each into the
// coordinator or the command registry.
func consumeInput(ctx context.Context, stdin io.Reader, stdout io.Writer, coord *turn.Coordinator, metrics *turn.InMemoryMetrics) int {
	scanner := bufio.NewScanner(stdin)
	for {
		select {
		case <-ctx.Done():
			return 0
		default:
		}

		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				fmt.Fprintf(stdout, "input error: %v\n", err)
				return 1
			}
			return 0
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if cmd := commands.Parse(line); cmd != nil {
			if quit := runCommand(cmd, stdout, coord, metrics); quit {
				return 0
			}
			continue
		}

		if strings.EqualFold(line, "cancel") {
			coord.Interrupt()
			continue
		}

		// A '>' prefix parks the message instead of pre-empting the active turn.
		if rest, ok := strings.CutPrefix(line, ">"); ok {
			coord.Enqueue(rest)
			continue
		}

		coord.Submit(line)
	}
}

func runCommand(cmd commands.Command, stdout io.Writer, coord *turn.Coordinator, metrics *turn.InMemoryMetrics) bool {
	switch cmd := cmd.(type) {
	case commands.Quit:
		return true
	case commands.Help:
		fmt.Fprintln(stdout, commands.HelpText)
	case commands.ShowQueue:
		snap := coord.Snapshot()
		if len(snap.Queue) == 0 {
			fmt.Fprintln(stdout, "queue is empty")
			break
		}
		for i, msg := range snap.Queue {
			fmt.Fprintf(stdout, "%d: %s\n", i, msg.Content)
		}
	case commands.ClearQueue:
		coord.ClearQueue()
		fmt.Fprintln(stdout, "queue cleared")
	case commands.EditQueued:
		if coord.UpdateQueued(cmd.Index, cmd.Content) {
			fmt.Fprintf(stdout, "queued message %d updated\n", cmd.Index)
		} else {
			fmt.Fprintf(stdout, "no queued message at index %d\n", cmd.Index)
		}
	case commands.Status:
		printStatus(stdout, coord, metrics)
	case commands.ShowHistory:
		printHistory(stdout, coord)
	case commands.ParseError:
		fmt.Fprintln(stdout, cmd.Message)
	}
	return false
}

func printStatus(stdout io.Writer, coord *turn.Coordinator, metrics *turn.InMemoryMetrics) {
	snap := coord.Snapshot()
	fmt.Fprintf(stdout, "status=%s generation=%d queue=%d tools=%d agents=%d\n",
		snap.Status, snap.Generation, len(snap.Queue), len(snap.ToolCalls), len(snap.Agents))
	if metrics != nil {
		m := metrics.Snapshot()
		fmt.Fprintf(stdout, "turns: started=%d completed=%d interrupted=%d deferred=%d\n",
			m.TurnsStarted, m.TurnsCompleted, m.TurnsInterrupted, m.DeferredCompletions)
	}
}

func printHistory(stdout io.Writer, coord *turn.Coordinator) {
	history := coord.History()
	if len(history) == 0 {
		fmt.Fprintln(stdout, "no finalized turns yet")
		return
	}
	for _, t := range history {
		fmt.Fprintf(stdout, "#%d [%s] %s (%dms)\n", t.Generation, t.Status, t.Prompt, t.Duration.Milliseconds())
	}
}

// printEvents renders coordinator notifications to the terminal. Deltas are
// printed raw so content streams smoothly; everything else gets a label.
func printEvents(events <-chan turn.Event, stdout io.Writer) {
	var streamed bool
	for evt := range events {
		switch evt.Type {
		case turn.EventTypeDelta:
			fmt.Fprint(stdout, evt.Message)
			streamed = true
		case turn.EventTypeTurnStarted:
			fmt.Fprintf(stdout, "\n--- turn %d ---\n", evt.Generation)
		case turn.EventTypeTurnFinalized:
			if streamed {
				fmt.Fprintln(stdout)
				streamed = false
			}
			if status, ok := evt.Metadata["status"].(turn.TurnStatus); ok {
				fmt.Fprintf(stdout, "[turn %d %s]\n", evt.Generation, status)
			}
		case turn.EventTypeToolUpdate:
			id, _ := evt.Metadata["tool_id"].(string)
			status, ok := evt.Metadata["status"].(turn.ToolStatus)
			if id != "" && ok {
				fmt.Fprintf(stdout, "\n[tool %s %s]\n", id, status)
			}
		case turn.EventTypeAskUser:
			fmt.Fprintf(stdout, "\n[agent asks] %s\n", evt.Message)
		case turn.EventTypeError:
			fmt.Fprintf(stdout, "\n[error] %s\n", evt.Message)
		case turn.EventTypeStatus:
			fmt.Fprintf(stdout, "\n[status] %s\n", evt.Message)
		}
	}
}
