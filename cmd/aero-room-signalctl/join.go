package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wilsonzlin/aero/proxy/room-signaling/internal/client"
)

type joinOptions struct {
	signalTo  string
	payload   string
	maxEvents int
}

func newJoinCmd(root *rootOptions) *cobra.Command {
	opts := &joinOptions{}

	cmd := &cobra.Command{
		Use:   "join <room> <peer-id>",
		Short: "Join a room and print presence and signal events until interrupted",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJoin(cmd, root, opts, args[0], args[1])
		},
	}
	cmd.Flags().StringVar(&opts.signalTo, "signal-to", "", "send one signal to this peer after joining")
	cmd.Flags().StringVar(&opts.payload, "payload", `{}`, "JSON signal payload used with --signal-to")
	cmd.Flags().IntVar(&opts.maxEvents, "max-events", 0, "exit after printing this many events (0 = until interrupted)")
	return cmd
}

func runJoin(cmd *cobra.Command, root *rootOptions, opts *joinOptions, room, peerID string) error {
	if opts.signalTo != "" && !json.Valid([]byte(opts.payload)) {
		return fmt.Errorf("--payload is not valid JSON: %q", opts.payload)
	}

	logger, err := root.logger(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := client.Dial(ctx, root.server, client.Options{Header: root.header(), Logger: logger})
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Join(room, peerID); err != nil {
		return err
	}
	logger.Info("joined", "room", room, "peer_id", peerID)

	if opts.signalTo != "" {
		if err := c.Signal(opts.signalTo, json.RawMessage(opts.payload)); err != nil {
			return err
		}
		logger.Info("signal sent", "target_peer_id", opts.signalTo)
	}

	out := cmd.OutOrStdout()
	for n := 0; opts.maxEvents <= 0 || n < opts.maxEvents; n++ {
		msg, err := c.Next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, client.ErrClosed) {
				return nil
			}
			return err
		}
		if _, err := fmt.Fprintln(out, renderEvent(msg)); err != nil {
			return err
		}
	}
	return nil
}
