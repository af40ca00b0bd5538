package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/zhengren252/ntn-sub004/client"
	"github.com/zhengren252/ntn-sub004/cluster"
	"github.com/zhengren252/ntn-sub004/engine"
	"github.com/zhengren252/ntn-sub004/maintenance"
	"github.com/zhengren252/ntn-sub004/protocol"
	"github.com/zhengren252/ntn-sub004/requestlog"
)

func newCallCmd(flags *rootFlags) *cobra.Command {
	var (
		url     string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "call <method> [json-params]",
		Short: "Send one request through the broker frontend",
		Example: `  computed call health.check
  computed call get.market_data '{"symbols":["AAPL","MSFT"]}'`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg.Log, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			method := protocol.Method(args[0])
			if !method.Valid() {
				return fmt.Errorf("unsupported method %q (want one of %v)", method, protocol.Methods())
			}
			params := protocol.Params{}
			if len(args) == 2 {
				if err := sonic.ConfigStd.UnmarshalFromString(args[1], &params); err != nil {
					return fmt.Errorf("params: %w", err)
				}
			}
			if url == "" {
				url = "ws://" + net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.FrontendPort)) + "/"
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			c, err := client.Dial(ctx, url,
				client.WithLogger(logger),
				client.WithCodec(protocol.NewMessageHandler(protocol.GetCodec(cfg.Codec))),
			)
			if err != nil {
				return err
			}
			defer c.Close()

			resp, err := c.Call(ctx, method, params)
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), resp); err != nil {
				return err
			}
			if !resp.OK() {
				return fmt.Errorf("request %s failed", resp.RequestID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "broker frontend URL (default ws://host:frontend_port/)")
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 30*time.Second, "client-side timeout")
	return cmd
}

// statsReport is the output of computed stats.
type statsReport struct {
	Service *requestlog.ServiceStats  `json:"service"`
	Methods []*requestlog.MethodStats `json:"methods"`
	Workers []*cluster.WorkerStatus   `json:"workers"`
}

func newStatsCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print request and worker statistics from the persistence store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg.Log, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			st, err := engine.OpenStore(ctx, cfg.Persistence, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			var report statsReport
			if report.Service, err = st.ServiceStats(ctx); err != nil {
				return err
			}
			if report.Methods, err = st.MethodStatistics(ctx); err != nil {
				return err
			}
			if report.Workers, err = st.ListWorkerStatus(ctx); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}
}

func newCleanupCmd(flags *rootFlags) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete request logs and metrics older than the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("days") {
				cfg.Maintenance.RetentionDays = days
			}
			if cfg.Maintenance.RetentionDays <= 0 {
				return fmt.Errorf("retention must be positive, got %d days", cfg.Maintenance.RetentionDays)
			}
			logger, err := newLogger(cfg.Log, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			st, err := engine.OpenStore(ctx, cfg.Persistence, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			mcfg := maintenance.ConfigFrom(cfg.Config)
			mcfg.CleanupSchedule, mcfg.SnapshotSchedule = "", ""
			sched, err := maintenance.NewScheduler(st, mcfg, logger)
			if err != nil {
				return err
			}
			res, err := sched.Cleanup(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "retention in days (overrides retention_days)")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	out, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
