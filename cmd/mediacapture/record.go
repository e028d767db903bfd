package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/thesyncim/mediacapture"
	"github.com/thesyncim/mediacapture/capture"
	"github.com/thesyncim/mediacapture/internal/config"
	"github.com/thesyncim/mediacapture/internal/logging"
	"github.com/thesyncim/mediacapture/internal/store"
)

type recordOptions struct {
	mode        string
	duration    time.Duration
	synthetic   bool
	deny        string
	revokeAfter time.Duration
	discard     bool
}

func newRecordCommand(ctx *commandContext) *cobra.Command {
	var opts recordOptions

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record one capture session and save it",
		Long: `Record one capture session.

The session runs until Enter is pressed (when stdin is a terminal), --duration
elapses, the process is interrupted, or the capture ends on its own, for
example when screen sharing is revoked. The artifact is then saved to the
store unless --discard is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				return runRecord(cmd, cfg, st, opts)
			})
		},
	}

	cmd.Flags().StringVarP(&opts.mode, "mode", "m", "camera", "Capture mode: camera, mic or screen")
	cmd.Flags().DurationVarP(&opts.duration, "duration", "d", 0, "Stop after this long (0 waits for Enter or Ctrl-C)")
	cmd.Flags().BoolVar(&opts.synthetic, "synthetic", false, "Use generated media instead of hardware devices")
	cmd.Flags().StringVar(&opts.deny, "deny", "", "Synthetic devices refuse these kinds: video, audio, display")
	cmd.Flags().DurationVar(&opts.revokeAfter, "revoke-after", 0, "Synthetic screen share is revoked after this long")
	cmd.Flags().BoolVar(&opts.discard, "discard", false, "Throw the recording away instead of saving it")
	return cmd
}

func runRecord(cmd *cobra.Command, cfg *config.Config, st *store.Store, opts recordOptions) error {
	mode, err := capture.ParseMode(opts.mode)
	if err != nil {
		return err
	}
	deny, err := mediacapture.ParseDenial(opts.deny)
	if err != nil {
		return err
	}
	synthetic := opts.synthetic || deny != 0 || opts.revokeAfter > 0
	devices, provider := mediaDevices(cfg, synthetic, deny)

	runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	// Saving must finish even after Ctrl-C ended the recording.
	saveCtx := context.WithoutCancel(runCtx)

	var (
		saved   *store.Record
		saveErr error
	)
	ctrl, err := capture.NewController(capture.Options{
		Mode:     mode,
		Acquirer: newAcquirer(cfg, devices),
		NewRecorder: func(m capture.Mode) capture.SegmentProducer {
			return capture.NewRecorder(recorderOptions(cfg, m))
		},
		NewSampler: func(m capture.Mode) capture.SnapshotProducer {
			return capture.NewSampler(capture.SamplerOptions{
				Interval:    cfg.SnapshotInterval(),
				FreshTarget: m.Descriptor().FreshTarget,
			})
		},
		Callbacks: capture.Callbacks{
			OnSave: func(art *capture.Artifact) {
				saved, saveErr = st.Save(saveCtx, art)
			},
		},
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if err := ctrl.Start(runCtx); err != nil {
		return fmt.Errorf("start %s session: %w", mode, err)
	}

	fmt.Fprintf(out, "Recording %s", mode.Descriptor().Label)
	stdinTTY := isTerminal(os.Stdin)
	if stdinTTY {
		fmt.Fprint(out, " (press Enter to stop)")
	}
	fmt.Fprintln(out)

	if opts.revokeAfter > 0 && provider != nil {
		t := time.AfterFunc(opts.revokeAfter, func() { provider.RevokeDisplay() })
		defer t.Stop()
	}

	reason := waitForStop(runCtx, ctrl, opts.duration, stdinTTY, cmd)
	log.Debug("stopping session", "reason", string(reason))
	if err := ctrl.Stop(); err != nil {
		log.Warn("session stop reported errors", logging.KeyError, err)
	}
	if reason == stopEnded {
		fmt.Fprintln(out, "Capture ended by the device")
	}

	if opts.discard {
		if err := ctrl.Reset(); err != nil {
			return err
		}
		fmt.Fprintln(out, "Recording discarded")
		return nil
	}

	art, err := ctrl.Save()
	if err != nil {
		return err
	}
	if art == nil {
		fmt.Fprintln(out, "Nothing was recorded")
		return nil
	}
	if saveErr != nil {
		return fmt.Errorf("store artifact: %w", saveErr)
	}
	printSaved(cmd, art, saved)
	return nil
}

type stopReason string

const (
	stopEnter     stopReason = "enter"
	stopDuration  stopReason = "duration"
	stopInterrupt stopReason = "interrupt"
	stopEnded     stopReason = "ended"
)

func waitForStop(ctx context.Context, ctrl *capture.Controller, duration time.Duration, readEnter bool, cmd *cobra.Command) stopReason {
	var timeout <-chan time.Time
	if duration > 0 {
		timer := time.NewTimer(duration)
		defer timer.Stop()
		timeout = timer.C
	}

	var enter chan struct{}
	if readEnter {
		enter = make(chan struct{})
		go func() {
			_, _ = bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			close(enter)
		}()
	}

	select {
	case <-enter:
		return stopEnter
	case <-timeout:
		return stopDuration
	case <-ctx.Done():
		return stopInterrupt
	case <-ctrl.Done():
		return stopEnded
	}
}

func printSaved(cmd *cobra.Command, art *capture.Artifact, rec *store.Record) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Saved %s\n", art.Name)
	fmt.Fprintf(out, "  id:        %s\n", art.ID)
	fmt.Fprintf(out, "  kind:      %s\n", art.Kind)
	if len(art.Payload) > 0 {
		fmt.Fprintf(out, "  payload:   %s (%s)\n", art.MIMEType, humanize.Bytes(uint64(len(art.Payload))))
	}
	if art.Duration > 0 {
		fmt.Fprintf(out, "  duration:  %s\n", art.Duration.Round(time.Millisecond))
	}
	if len(art.Snapshots) > 0 {
		fmt.Fprintf(out, "  snapshots: %d\n", len(art.Snapshots))
	}
	if art.SourceURL != "" {
		fmt.Fprintf(out, "  source:    %s\n", art.SourceURL)
	}
	if rec != nil {
		fmt.Fprintf(out, "  location:  %s\n", rec.Dir)
	}
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
