// Package app 命令行入口：serve / run / migrate / version
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"qa-compass-server/src/app/option"
	"qa-compass-server/src/configs"
	"qa-compass-server/src/core/evaluation"
	"qa-compass-server/src/core/utils"
	"qa-compass-server/src/httpsvr"

	"github.com/common-nighthawk/go-figure"
	"github.com/spf13/cobra"
)

// NewCommand 创建根命令
func NewCommand(version string) *cobra.Command {
	opt := &option.Option{}
	cmd := &cobra.Command{
		Use:          "qa-compass-server",
		Long:         "qa-compass-server scores recorded conversations against a weighted rubric and stores the verdicts",
		Example:      figure.NewColorFigure("qa-compass", "isometric1", "green", true).String(),
		Version:      version,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}
	opt.BindFlags(cmd.PersistentFlags())

	versionCmd := &cobra.Command{
		Use:     "version",
		Short:   "Print version and exit",
		Example: "qa-compass-server version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "version:", version)
		},
	}

	serveCmd := &cobra.Command{
		Use:     "serve",
		Short:   "Run the HTTP server",
		Example: "qa-compass-server --config /etc/qa-compass/config.yaml serve",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opt, func(ctx context.Context, a *App) error {
				routes, err := a.Router()
				if err != nil {
					return err
				}
				router := httpsvr.NewRouter(*routes, a.Logger)
				srv := httpsvr.NewServer(a.Config.Server.IP, a.Config.Server.Port, router, a.Logger)
				return srv.Run(ctx)
			})
		},
	}

	runOpt := &option.RunOption{}
	runCmd := &cobra.Command{
		Use:     "run",
		Short:   "Evaluate a batch of conversations and print the report",
		Example: "qa-compass-server run --ids c1,c2\n  qa-compass-server run --limit 10",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opt, func(ctx context.Context, a *App) error {
				report, runErr := a.Orchestrator.Run(ctx, evaluation.Request{
					ConversationIDs: runOpt.ConversationIDs,
					Limit:           runOpt.Limit,
				})
				if report != nil {
					if err := printReport(cmd, report); err != nil {
						return err
					}
				}
				return runErr
			})
		},
	}
	runOpt.BindFlags(runCmd.Flags())

	migrateCmd := &cobra.Command{
		Use:     "migrate",
		Short:   "Create or update the database schema",
		Example: "qa-compass-server -c config.yaml migrate",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := load(opt)
			if err != nil {
				return err
			}
			defer logger.Close()
			return Migrate(cfg, logger)
		},
	}

	cmd.AddCommand(versionCmd, serveCmd, runCmd, migrateCmd)
	return cmd
}

func load(opt *option.Option) (*configs.Config, *utils.Logger, error) {
	cfg, err := opt.GenerateConfig()
	if err != nil {
		return nil, nil, err
	}
	logger, err := NewLogger(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("初始化日志失败: %w", err)
	}
	return cfg, logger, nil
}

func withApp(parent context.Context, opt *option.Option, fn func(context.Context, *App) error) error {
	cfg, logger, err := load(opt)
	if err != nil {
		return err
	}
	defer logger.Close()

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("初始化失败: %v", err)
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("释放资源失败: %v", err)
		}
	}()
	return fn(ctx, a)
}

func printReport(cmd *cobra.Command, report *evaluation.Report) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(struct {
		*evaluation.Report
		Summary evaluation.Summary `json:"summary"`
	}{report, report.Summary()})
}
