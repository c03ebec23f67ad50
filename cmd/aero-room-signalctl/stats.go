package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/wilsonzlin/aero/proxy/room-signaling/internal/client"
)

func newStatsCmd(root *rootOptions) *cobra.Command {
	var (
		asJSON  bool
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show rooms and peers currently registered on the relay",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			httpClient := &http.Client{Timeout: timeout}
			if h := root.header(); h != nil {
				httpClient.Transport = headerTransport{header: h, next: http.DefaultTransport}
			}

			stats, err := client.FetchStats(cmd.Context(), httpClient, root.server)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(stats)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), renderStats(stats))
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw /stats document")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "HTTP request timeout")
	return cmd
}

type headerTransport struct {
	header http.Header
	next   http.RoundTripper
}

func (t headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, vs := range t.header {
		req.Header[k] = vs
	}
	return t.next.RoundTrip(req)
}
