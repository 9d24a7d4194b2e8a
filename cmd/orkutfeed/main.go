// Command orkutfeed publishes and reads the GitHub-backed feed from the
// command line. Results are printed as JSON on stdout and logs go to stderr.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// runtimeError marks failures that happen after the arguments were accepted.
// They are reported as a JSON envelope instead of usage text.
type runtimeError struct {
	err error
}

func (e *runtimeError) Error() string { return e.err.Error() }
func (e *runtimeError) Unwrap() error { return e.err }

func failed(err error) error {
	if err == nil {
		return nil
	}
	return &runtimeError{err: err}
}

type failure struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// execute runs the command line in args and returns the process exit code.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(&cli{stdout: stdout, stderr: stderr, newEnv: newEnv})
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	cmd, err := root.ExecuteContextC(ctx)
	if err == nil {
		return 0
	}

	var rerr *runtimeError
	if errors.As(err, &rerr) {
		_ = writeJSON(stdout, failure{Success: false, Error: rerr.Error()})
		return 1
	}

	fmt.Fprintf(stderr, "Error: %v\n\n%s", err, cmd.UsageString())
	return 1
}

type cli struct {
	stdout  io.Writer
	stderr  io.Writer
	verbose bool
	newEnv  func(ctx context.Context, logger *slog.Logger) (*env, error)
}

func (c *cli) logger() *slog.Logger {
	level := slog.LevelInfo
	if c.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(c.stderr, &slog.HandlerOptions{Level: level}))
}

// withEnv loads configuration and wires the services before calling fn.
func (c *cli) withEnv(cmd *cobra.Command, fn func(ctx context.Context, e *env) error) error {
	ctx := cmd.Context()
	e, err := c.newEnv(ctx, c.logger())
	if err != nil {
		return failed(err)
	}
	defer e.Close()
	return failed(fn(ctx, e))
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:           "orkutfeed",
		Short:         "Publish and read the Orkut feed stored in a GitHub repository",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newPublishCmd(c),
		newFetchCmd(c),
		newActivityCmd(c),
		newCommunityCmd(c),
		newReconcileCmd(c),
		newTailCmd(c),
	)
	return root
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeJSONLine(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// parseTags splits a comma separated list, dropping blank entries.
func parseTags(s string) []string {
	tags := []string{}
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
