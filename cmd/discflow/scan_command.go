package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"discflow/internal/job"
	"discflow/internal/pipeline"
	"discflow/internal/services"
)

func newScanCommand(ctx *commandContext) *cobra.Command {
	var useTUI bool

	cmd := &cobra.Command{
		Use:   "scan <source> [dest]",
		Short: "Read a disc and identify its main title without converting",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, dest, err := resolveSourceDest(args)
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			runCtx = services.WithRequestID(runCtx, uuid.NewString())

			sess, err := ctx.openSession(runCtx)
			if err != nil {
				return err
			}
			defer sess.Close()

			out := cmd.OutOrStdout()
			runner := &stageRunner{session: sess, tui: useTUI, in: cmd.InOrStdin(), out: out}
			j, result, err := runner.scan(runCtx, source, dest)
			if err != nil {
				return err
			}
			if !result.Succeeded() {
				return stageError(result)
			}
			printJob(out, j)
			return nil
		},
	}
	cmd.Flags().BoolVar(&useTUI, "tui", false, "Render progress with the interactive view")
	return cmd
}

func resolveSourceDest(args []string) (string, string, error) {
	source, err := expandArg(args[0])
	if err != nil {
		return "", "", err
	}
	dest := "."
	if len(args) > 1 {
		dest = args[1]
	}
	dest, err = expandArg(dest)
	if err != nil {
		return "", "", err
	}
	return source, dest, nil
}

func printJob(out io.Writer, j *job.Job) {
	fmt.Fprintf(out, "\nDisc:   %s\n", j.DisplayName())
	if j.Disc != nil && j.Disc.VolumeLabel != "" {
		fmt.Fprintf(out, "Label:  %s\n", j.Disc.VolumeLabel)
	}
	if m, ok := j.SelectedMetadata(); ok {
		fmt.Fprintf(out, "Match:  %s (via %s)\n", job.SearchQuery{Title: m.Title, Year: m.Year}, m.Provider)
	}
	if j.OutputPath != "" {
		fmt.Fprintf(out, "Output: %s\n", j.OutputPath)
	}
	if j.Disc == nil || len(j.Disc.Titles) == 0 {
		return
	}

	rows := make([][]string, 0, len(j.Disc.Titles))
	for _, t := range j.Disc.Titles {
		selected := ""
		if t.Index == j.SelectedTitle {
			selected = "*"
		}
		duration := "-"
		if t.Duration > 0 {
			duration = t.Duration.String()
		}
		rows = append(rows, []string{selected, strconv.Itoa(t.Index), t.Name, duration, humanize.IBytes(uint64(max(t.Size, 0)))})
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, renderTable(
		[]string{"", "#", "Title", "Duration", "Size"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignLeft, alignRight, alignRight},
	))
}

// stageFailure reports a stage that did not succeed. It unwraps to the stage
// error so cancellation keeps its exit code.
type stageFailure struct {
	result *pipeline.StageResult
}

func stageError(result *pipeline.StageResult) error {
	return &stageFailure{result: result}
}

func (e *stageFailure) Error() string {
	msg := e.result.Summary()
	if hint := services.Details(e.result.Err).Hint; hint != "" {
		msg += " (" + hint + ")"
	}
	return msg
}

func (e *stageFailure) Unwrap() error { return e.result.Err }
