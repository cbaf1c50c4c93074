package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mindwatch/internal/app"
	"mindwatch/internal/config"

	"github.com/spf13/cobra"

	// Asia/Shanghai must resolve on hosts without a zoneinfo database.
	_ "time/tzdata"
)

var (
	cfgPath string
	envFile string

	rootCmd = &cobra.Command{
		Use:           "mindwatch",
		Short:         "Reminder scheduler that dispatches due minds to email, DingTalk and Telegram",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadDotEnv(envFile)
		},
	}
)

func main() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "./config.yaml", "path to config (yaml or json)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the config (ignored if missing)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler and management API until interrupted",
		RunE:  func(cmd *cobra.Command, args []string) error { return runServe() },
	})

	tickCmd := &cobra.Command{
		Use:   "tick",
		Short: "Run one dispatch tick and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			timeout, _ := cmd.Flags().GetDuration("timeout")
			return runTick(timeout)
		},
	}
	tickCmd.Flags().Duration("timeout", 0, "upper bound for the tick (0 = none)")
	rootCmd.AddCommand(tickCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Validate the config and the stored documents",
		RunE:  func(cmd *cobra.Command, args []string) error { return runCheck() },
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func runServe() error {
	a, err := app.New(cfgPath)
	if err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	if err := a.Start(context.Background()); err != nil {
		_ = a.Stop(context.Background(), app.StopFatalError)
		return err
	}

	reason := app.StopUnknown
	select {
	case sig := <-sigCh:
		reason = app.StopSIGTERM
		if sig == os.Interrupt {
			reason = app.StopSIGINT
		}
	case <-a.Done():
		reason = app.StopFatalError
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	_ = a.Stop(ctx, reason)
	if reason == app.StopFatalError {
		return a.Err()
	}
	return nil
}

func runTick(timeout time.Duration) error {
	a, err := app.New(cfgPath)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	rep, tickErr := a.Tick(ctx)
	out := map[string]any{
		"due":      rep.Due,
		"expired":  rep.Expired,
		"invalid":  rep.Invalid,
		"sent":     rep.Sent,
		"failed":   rep.Failed,
		"skipped":  rep.Skipped,
		"panicked": rep.Panicked,
		"elapsed":  rep.Elapsed.String(),
	}
	if tickErr != nil {
		out["error"] = tickErr.Error()
	}
	if err := printJSON(out); err != nil {
		return err
	}
	return tickErr
}

func runCheck() error {
	rep, err := app.Check(context.Background(), cfgPath)
	if err != nil {
		return err
	}
	return printJSON(rep)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
