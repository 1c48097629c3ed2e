package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/skypro1111/meetscribe/internal/app"
	"github.com/skypro1111/meetscribe/internal/capture"
	"github.com/skypro1111/meetscribe/internal/session"
	"github.com/skypro1111/meetscribe/internal/summary"
)

func NewRecordCmd(deps *Dependencies) *cobra.Command {
	var mode string
	var outputDir string
	var noSummary bool

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a meeting in the foreground",
		Long:  "Record microphone (and, in mixed mode, system) audio and print transcript fragments as segments resolve.\nCtrl+C stops the recording; a second Ctrl+C stops waiting for outstanding segments.",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := capture.ParseMode(mode)
			if err != nil {
				return err
			}
			if outputDir == "" {
				outputDir = filepath.Join("meetings", time.Now().Format("2006-01-02_15-04-05"))
			}
			return runRecord(deps, m, outputDir, !noSummary)
		},
	}

	cmd.Flags().StringVarP(&mode, "mode", "m", string(capture.ModeMixed), "Capture mode: microphone or mixed")
	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "Directory for transcript.md and summary.md (default meetings/<timestamp>)")
	cmd.Flags().BoolVar(&noSummary, "no-summary", false, "Skip the summary even when an API key is configured")

	return cmd
}

func runRecord(deps *Dependencies, mode capture.Mode, outputDir string, summarize bool) error {
	cfg, err := deps.LoadConfig()
	if err != nil {
		return err
	}

	// The API is not served in the foreground; logs go to stderr so stdout
	// carries only the transcript.
	if cfg.Logging.Output == "stdout" || cfg.Logging.Output == "" {
		cfg.Logging.Output = "stderr"
	}
	logger := app.NewLogger(cfg.Logging)
	f := NewFormatter(deps.Stdout)

	application, err := app.New(cfg, logger, prometheus.NewRegistry())
	if err != nil {
		return fmt.Errorf("initializing app: %w", err)
	}

	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	s, err := application.Sessions.Create(context.Background(), mode)
	if err != nil {
		application.Close(context.Background())
		return fmt.Errorf("starting recording: %w", err)
	}

	events, cancelEvents := s.Subscribe(256)
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for ev := range events {
			switch ev.Type {
			case session.EventFragment:
				f.Fragment(ev.Segment, ev.Text)
			case session.EventSegmentError:
				f.SegmentFailed(ev.Segment, ev.Attempts, ev.Error)
			}
		}
	}()

	st := s.Status()
	f.RecordingStarted(s.ID(), string(mode), st.KeepAwake)
	started := time.Now()

	select {
	case sig := <-sigChan:
		logger.Info("Received stop signal", slog.String("signal", sig.String()))
	case <-s.Done():
		f.Warning("Capture source ended")
	}

	// A second signal abandons whatever is still resolving.
	waitCtx, cancelWait := context.WithCancel(context.Background())
	defer cancelWait()
	go func() {
		select {
		case <-sigChan:
			cancelWait()
		case <-waitCtx.Done():
		}
	}()

	if err := s.Stop(waitCtx); err != nil && !errors.Is(err, session.ErrNotRecording) {
		f.Warning(fmt.Sprintf("Stop interrupted: %v", err))
	}
	f.RecordingStopped(time.Since(started))

	if n := len(s.Status().InFlight); n > 0 {
		f.WaitingForSegments(n)
	}
	if err := s.Drain(waitCtx); err != nil {
		f.Warning("Stopped waiting for outstanding segments")
	}

	if err := writeTranscript(outputDir, s.Transcript()); err != nil {
		cancelEvents()
		application.Close(context.Background())
		return err
	}
	f.TranscriptSaved(filepath.Join(outputDir, "transcript.md"))

	if summarize && application.Summarizer != nil && s.Transcript() != "" {
		f.Summarizing()
		text, err := s.Summarize(waitCtx)
		if err != nil {
			f.Warning(fmt.Sprintf("Summary failed: %v", err))
		} else {
			path := filepath.Join(outputDir, "summary.md")
			if err := os.WriteFile(path, []byte(summary.Markdown(text)), 0o644); err != nil {
				f.Warning(fmt.Sprintf("Writing summary: %v", err))
			} else {
				f.SummarySaved(path)
			}
		}
	}

	cancelEvents()
	<-printed
	application.Close(context.Background())
	return nil
}

func writeTranscript(dir, transcript string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	content := "# Meeting Transcript\n\n" + transcript + "\n"
	path := filepath.Join(dir, "transcript.md")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing transcript: %w", err)
	}
	return nil
}
