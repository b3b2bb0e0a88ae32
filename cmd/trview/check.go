// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/autobrr/trview/internal/buildinfo"
	"github.com/autobrr/trview/internal/config"
	"github.com/autobrr/trview/internal/transmission"
)

// daemonChecker is what the check command calls on the daemon.
type daemonChecker interface {
	FetchTorrents(ctx context.Context) ([]transmission.RemoteTorrent, error)
	PortTest(ctx context.Context) (bool, error)
	SessionInfo(ctx context.Context) (*transmission.SessionInfo, error)
}

type checkReport struct {
	Info       *transmission.SessionInfo
	PortIsOpen bool
	Torrents   int
}

// runChecks calls session-get, port-test and torrent-get concurrently. The
// first failure cancels the others.
func runChecks(ctx context.Context, daemon daemonChecker) (*checkReport, error) {
	var report checkReport
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		info, err := daemon.SessionInfo(ctx)
		if err != nil {
			return err
		}
		report.Info = info
		return nil
	})

	g.Go(func() error {
		open, err := daemon.PortTest(ctx)
		if err != nil {
			return err
		}
		report.PortIsOpen = open
		return nil
	})

	g.Go(func() error {
		records, err := daemon.FetchTorrents(ctx)
		if err != nil {
			return err
		}
		report.Torrents = len(records)
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &report, nil
}

func printReport(w io.Writer, endpoint string, report *checkReport) {
	fmt.Fprintf(w, "Daemon:      %s\n", endpoint)
	fmt.Fprintf(w, "Version:     %s (rpc %d, minimum %d)\n", report.Info.Version, report.Info.RPCVersion, report.Info.RPCVersionMinimum)
	if !report.Info.Supported() {
		fmt.Fprintf(w, "Warning:     daemon is older than %s\n", transmission.MinSupportedVersion)
	}
	fmt.Fprintf(w, "Port open:   %t\n", report.PortIsOpen)
	fmt.Fprintf(w, "Torrents:    %d\n", report.Torrents)
}

func RunCheckCommand() *cobra.Command {
	var (
		configDir string
		rpcURL    string
		timeout   time.Duration
	)

	command := &cobra.Command{
		Use:   "check",
		Short: "Check that the Transmission daemon is reachable",
		Long: `Check runs session-get, port-test and torrent-get against the configured
Transmission daemon and exits non-zero if any of them fails.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.New(configDir, buildinfo.Version)
			if err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}
			if rpcURL != "" {
				if err := cfg.SetRPCURL(rpcURL); err != nil {
					return err
				}
			}

			client, err := newTransmissionClient(cfg.Config, nil)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			report, err := runChecks(ctx, client)
			if err != nil {
				return fmt.Errorf("daemon check failed (%s): %w", transmission.KindOf(err), err)
			}

			printReport(cmd.OutOrStdout(), client.Endpoint(), report)
			return nil
		},
	}

	command.Flags().StringVar(&configDir, "config-dir", "",
		"config directory or file path (defaults to OS-specific location)")
	command.Flags().StringVar(&rpcURL, "rpc-url", "", "Transmission RPC endpoint, overrides rpcUrl from the config file")
	command.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "overall timeout for the checks")

	return command
}
