package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"discflow/internal/builtin"
	"discflow/internal/job"
	"discflow/internal/logging"
	"discflow/internal/notifications"
	"discflow/internal/pipeline"
	"discflow/internal/services"
)

var errOutputExists = errors.New("conversion skipped: output already exists")

func newConvertCommand(ctx *commandContext) *cobra.Command {
	var assumeYes bool
	var useTUI bool

	cmd := &cobra.Command{
		Use:   "convert <source> <dest>",
		Short: "Scan a disc and convert its main title into dest",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, dest, err := resolveSourceDest(args)
			if err != nil {
				return err
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			lock := flock.New(cfg.LockPath())
			locked, err := lock.TryLock()
			if err != nil {
				return fmt.Errorf("acquire lock: %w", err)
			}
			if !locked {
				return fmt.Errorf("another discflow conversion is already running (lock %s)", cfg.LockPath())
			}
			defer func() { _ = lock.Unlock() }()

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			runCtx = services.WithRequestID(runCtx, uuid.NewString())

			sess, err := ctx.openSession(runCtx)
			if err != nil {
				return err
			}
			defer sess.Close()

			runner := &stageRunner{
				session:  sess,
				notifier: notifications.NewService(cfg),
				tui:      useTUI,
				in:       cmd.InOrStdin(),
				out:      cmd.OutOrStdout(),
			}
			return runConvert(runCtx, runner, source, dest, assumeYes || cfg.Output.Overwrite)
		},
	}
	cmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Overwrite an existing output without asking")
	cmd.Flags().BoolVar(&useTUI, "tui", false, "Render progress with the interactive view")
	return cmd
}

func runConvert(ctx context.Context, runner *stageRunner, source, dest string, overwrite bool) error {
	logger := runner.session.logger
	out := runner.out

	j, scan, err := runner.scan(ctx, source, dest)
	if err != nil {
		return err
	}
	if !scan.Succeeded() {
		notifyFailure(ctx, runner, j, scan)
		return stageError(scan)
	}

	allowed, err := confirmOverwrite(runner.in, out, j, overwrite)
	if err != nil {
		return err
	}
	if !allowed {
		logger.Info("conversion skipped",
			logging.String(logging.FieldEventType, "convert_skipped"),
			logging.String("output", j.OutputPath),
		)
		return errOutputExists
	}

	result, err := runner.convert(ctx, j)
	if err != nil {
		return err
	}
	if !result.Succeeded() {
		notifyFailure(ctx, runner, j, result)
		return stageError(result)
	}

	if runner.notifier != nil {
		if err := runner.notifier.NotifyStageCompleted(context.WithoutCancel(ctx), string(pipeline.StageConvert), j.DisplayName(), result.Duration()); err != nil {
			logger.Warn("stage notification failed",
				logging.String(logging.FieldEventType, "notification_failed"),
				logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
				logging.Error(err),
			)
		}
	}
	fmt.Fprintf(out, "Converted %s -> %s\n", j.DisplayName(), j.OutputPath)
	return nil
}

// confirmOverwrite decides whether an existing output may be replaced and
// records the decision on the job for the muxer.
func confirmOverwrite(in io.Reader, out io.Writer, j *job.Job, overwrite bool) (bool, error) {
	if j.OutputPath == "" {
		return true, nil
	}
	if _, err := os.Stat(j.OutputPath); err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, fmt.Errorf("inspect output %q: %w", j.OutputPath, err)
	}
	if !overwrite {
		ok, err := confirm(in, out, fmt.Sprintf("%s already exists. Overwrite?", j.OutputPath))
		if err != nil || !ok {
			return false, err
		}
	}
	j.SetAttribute(builtin.AttributeOverwrite, "true")
	return true, nil
}

func notifyFailure(ctx context.Context, runner *stageRunner, j *job.Job, result *pipeline.StageResult) {
	if runner.notifier == nil || result.State != pipeline.StateFailed {
		return
	}
	title := j.DisplayName()
	if err := runner.notifier.NotifyStageFailed(context.WithoutCancel(ctx), string(result.Stage), title, result.Err); err != nil {
		runner.session.logger.Warn("stage notification failed",
			logging.String(logging.FieldEventType, "notification_failed"),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
			logging.Error(err),
		)
	}
}
