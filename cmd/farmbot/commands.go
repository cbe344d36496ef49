package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/m3rciful/farmbot/core/bootstrap"
	"github.com/m3rciful/farmbot/core/buildinfo"
	corecmd "github.com/m3rciful/farmbot/core/cmd"
	coreconfig "github.com/m3rciful/farmbot/core/config"
	"github.com/m3rciful/farmbot/core/logger"
	"github.com/m3rciful/farmbot/internal/app"
	"github.com/m3rciful/farmbot/internal/store"
)

const defaultConfigPath = "config.yaml"

// rootOptions holds flags shared by every command.
type rootOptions struct {
	ConfigPath string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "farmbot",
		Short:         "Farm shop Telegram bot",
		Version:       fmt.Sprintf("%s (%s, %s)", buildinfo.Version, buildinfo.Commit, buildinfo.Date),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(opts)
		},
	}
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to config.yaml (default $CONFIG_PATH, then ./config.yaml)")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newStatsCommand(opts))
	return cmd
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Poll Telegram and serve customers (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(opts)
		},
	}
}

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(opts, func(ctx context.Context, cfg *app.Config) error {
				res, err := bootstrap.Run(ctx, bootstrap.Options{Config: &cfg.Config, Database: cfg.Database})
				if err != nil {
					return err
				}
				logger.Info(ctx, logger.CompMigrate, "migrate.done", slog.String("driver", cfg.Database.Driver))
				return res.DB.Close()
			})
		},
	}
}

func newStatsCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print order and customer statistics as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(opts, func(ctx context.Context, cfg *app.Config) error {
				res, err := bootstrap.Run(ctx, bootstrap.Options{
					Config:   &cfg.Config,
					Database: cfg.Database,
					// Keep stdout clean for the JSON document.
					LoggerInit: func(*coreconfig.Config) error { return nil },
				})
				if err != nil {
					return err
				}
				defer res.DB.Close()
				st, err := store.New(res.DB).Stats(ctx)
				if err != nil {
					return err
				}
				return printStats(cmd.OutOrStdout(), st)
			})
		},
	}
}

func serve(opts *rootOptions) error {
	return run(opts, func(ctx context.Context, cfg *app.Config) error {
		res, err := bootstrap.Run(ctx, bootstrap.Options{
			Config:       &cfg.Config,
			Database:     cfg.Database,
			ResolveToken: true,
		})
		if err != nil {
			return err
		}
		a, err := app.New(ctx, cfg, app.Deps{DB: res.DB})
		if err != nil {
			_ = res.DB.Close()
			return err
		}
		a.OnClose(res.DB.Close)
		defer a.Close()
		return a.Run(ctx)
	})
}

// run loads the bot config and hands it to task.
func run(opts *rootOptions, task func(ctx context.Context, cfg *app.Config) error) error {
	return corecmd.Run(corecmd.Options{
		ConfigPath:        opts.ConfigPath,
		ConfigEnvVar:      "CONFIG_PATH",
		DefaultConfigPath: defaultConfigPath,
		LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
			return app.Load(path)
		},
		Task: func(ctx context.Context, c corecmd.ConfigCarrier) error {
			cfg, ok := c.(*app.Config)
			if !ok {
				return fmt.Errorf("unexpected config type %T", c)
			}
			return task(ctx, cfg)
		},
	})
}

func printStats(w io.Writer, st store.Stats) error {
	doc := make(map[string]any, 8)
	for k, v := range st.Map() {
		doc[k] = v
	}
	doc["revenue"] = st.Revenue
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}
