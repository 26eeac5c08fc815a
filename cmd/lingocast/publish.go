package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ent0n29/lingocast/internal/audio"
	"github.com/ent0n29/lingocast/internal/capture"
	"github.com/ent0n29/lingocast/internal/protocol"
	"github.com/ent0n29/lingocast/internal/publisher"
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Open a session and publish stdin to it",
	Long: `Open a session and publish stdin to its listeners.

By default every non-empty stdin line is sent as one transcript line. With
--pcm, stdin is read as raw 16-bit little-endian mono PCM and uploaded as
fixed-length WAV segments.`,
	RunE: runPublish,
}

func init() {
	f := publishCmd.Flags()
	f.String("server", "http://localhost:8080", "Broadcast server base URL")
	f.String("code", "", "Session code to claim (random when empty)")
	f.Bool("replace", false, "Take over the code if a session already holds it")
	f.String("lang", "", "Input language reported to listeners")
	f.Bool("keep", false, "Leave the session open when publishing stops")
	f.Bool("pcm", false, "Read raw PCM16LE mono audio from stdin instead of text lines")
	f.Int("sample-rate", audio.DefaultSampleRate, "PCM sample rate for --pcm")
	f.Duration("segment", capture.DefaultSegmentDuration, "Segment length for --pcm")
}

func runPublish(cmd *cobra.Command, _ []string) error {
	f := cmd.Flags()
	server, _ := f.GetString("server")
	code, _ := f.GetString("code")
	replace, _ := f.GetBool("replace")
	lang, _ := f.GetString("lang")
	keep, _ := f.GetBool("keep")
	pcm, _ := f.GetBool("pcm")
	sampleRate, _ := f.GetInt("sample-rate")
	segment, _ := f.GetDuration("segment")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := publisher.NewClient(server, publisher.WithLogger(logger))
	info, err := client.CreateSession(ctx, protocol.CreateSessionRequest{Code: code, InputLang: lang, Replace: replace})
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	logger.Info("session open", "code", info.Code, "input_lang", info.InputLang, "expires_at", info.ExpiresAt.Format(time.RFC3339))
	fmt.Fprintln(cmd.OutOrStdout(), info.Code)

	if !keep {
		defer func() {
			endCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := client.EndSession(endCtx, info.Code); err != nil {
				logger.Warn("end session failed", "code", info.Code, "err", err)
				return
			}
			logger.Info("session ended", "code", info.Code)
		}()
	}

	in := cmd.InOrStdin()
	if pcm {
		err = publishPCM(ctx, client, info.Code, in, sampleRate, segment)
	} else {
		err = publishLines(ctx, client, info.Code, in)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func publishLines(ctx context.Context, client *publisher.Client, code string, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		ack, err := client.IngestText(ctx, code, line)
		if err != nil {
			return fmt.Errorf("ingest line: %w", err)
		}
		logger.Debug("line published", "seq", ack.Seq)
	}
	return scanner.Err()
}

func publishPCM(ctx context.Context, client *publisher.Client, code string, in io.Reader, sampleRate int, segment time.Duration) error {
	seg := capture.NewSegmenter(func(ctx context.Context, s capture.Segment) error {
		ack, err := client.IngestAudio(ctx, code, s.Audio, s.ContentType)
		if err != nil {
			return err
		}
		logger.Debug("segment published", "segment", s.Index, "seq", ack.Seq, "duration", s.Duration)
		return nil
	}, capture.WithSampleRate(sampleRate), capture.WithSegmentDuration(segment), capture.WithLogger(logger))

	frames := make(chan []byte, 16)
	readErr := make(chan error, 1)
	go func() {
		defer close(frames)
		// 100ms frames.
		buf := make([]byte, audio.PCMBytes(100*time.Millisecond, sampleRate))
		for {
			n, err := io.ReadFull(in, buf)
			if n > 0 {
				frame := append([]byte(nil), buf[:n]...)
				select {
				case frames <- frame:
				case <-ctx.Done():
					readErr <- ctx.Err()
					return
				}
			}
			if err != nil {
				if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
					err = nil
				}
				readErr <- err
				return
			}
		}
	}()

	if err := seg.Run(ctx, frames); err != nil {
		return err
	}
	return <-readErr
}
