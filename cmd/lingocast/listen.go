package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ent0n29/lingocast/internal/protocol"
	"github.com/ent0n29/lingocast/internal/publisher"
	"github.com/ent0n29/lingocast/internal/store"
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Follow a session and print its lines",
	RunE:  runListen,
}

func init() {
	f := listenCmd.Flags()
	f.String("server", "http://localhost:8080", "Broadcast server base URL")
	f.String("code", "", "Session code to follow")
	f.String("kind", string(store.KindEvents), "Log to follow: events or audio")
	f.Bool("json", false, "Print raw event JSON, pings included")
	_ = listenCmd.MarkFlagRequired("code")
}

func runListen(cmd *cobra.Command, _ []string) error {
	f := cmd.Flags()
	server, _ := f.GetString("server")
	code, _ := f.GetString("code")
	kindFlag, _ := f.GetString("kind")
	raw, _ := f.GetBool("json")

	kind, err := store.ParseKind(kindFlag)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	client := publisher.NewClient(server, publisher.WithLogger(logger))
	err = client.Listen(ctx, code, kind, func(ev protocol.Event) error {
		if raw {
			payload, err := json.Marshal(ev)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(out, string(payload))
			return err
		}
		switch ev.Type {
		case protocol.TypeLine:
			if len(ev.Data) > 0 {
				_, err := fmt.Fprintf(out, "[%d] %s segment, %d bytes\n", ev.Seq, ev.ContentType, len(ev.Data))
				return err
			}
			_, err := fmt.Fprintln(out, ev.Text)
			return err
		case protocol.TypeError:
			logger.Warn("stream error", "err", ev.Error, "at", time.UnixMilli(ev.T).Format(time.TimeOnly))
		case protocol.TypeEnd:
			logger.Info("session ended", "code", code)
		}
		return nil
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
