// Package main is the entry point for chardb.
//
// chardb serves the character records of a single CSV file over a small JSON
// HTTP API. Flags can also be set with CHARDB_<FLAG> environment variables,
// read from the process environment, .env and .env.local. Server policy
// (paging cap, body limit, JWT secret, rate limits) lives in
// server_config.yaml.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/maruel/chardb/internal/config"
	"github.com/maruel/chardb/internal/dataset"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	if err := newRootCmd().Execute(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "chardb: %v\n", err)
		os.Exit(1)
	}
}

// logLevel is shared by the default logger of every command.
var logLevel = &slog.LevelVar{}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:               "chardb",
		Short:             "Serve character records stored in a CSV file",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: processConfig,
	}
	f := root.PersistentFlags()
	f.String("data-file", filepath.Join("data", "friends_data.csv"), "CSV file holding the records")
	f.String("config", "", "Server policy file (default: "+config.FileName+" next to the data file)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.Duration("lock-timeout", dataset.DefaultLockTimeout, "How long to wait for the data file guard")
	root.AddCommand(newServeCmd(), newNormalizeCmd(), newTokenCmd(), newConfigSchemaCmd(), newVersionCmd())
	return root
}

// processConfig binds the flags of the running command to viper and installs
// the default logger.
func processConfig(cmd *cobra.Command, _ []string) error {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")
	viper.SetEnvPrefix("chardb")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	if err := setLogLevel(viper.GetString("log-level")); err != nil {
		return err
	}
	slog.SetDefault(newLogger(logLevel))
	return nil
}

func setLogLevel(level string) error {
	switch level {
	case "debug":
		logLevel.Set(slog.LevelDebug)
	case "info":
		logLevel.Set(slog.LevelInfo)
	case "warn":
		logLevel.Set(slog.LevelWarn)
	case "error":
		logLevel.Set(slog.LevelError)
	default:
		return fmt.Errorf("unknown log level: %q", level)
	}
	return nil
}

func newLogger(level slog.Leveler) *slog.Logger {
	// Skip timestamps when running under systemd (it adds its own).
	underSystemd := os.Getenv("JOURNAL_STREAM") != ""
	return slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05.000",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if underSystemd && a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			if a.Key == "ip" {
				if v := a.Value.String(); v == "127.0.0.1" || v == "::1" {
					return slog.Attr{}
				}
			}
			if isZeroAttr(a.Value.Any()) {
				return slog.Attr{}
			}
			return a
		},
	}))
}

func isZeroAttr(v any) bool {
	switch t := v.(type) {
	case string:
		return t == ""
	case bool:
		return !t
	case uint64:
		return t == 0
	case int64:
		return t == 0
	case float64:
		return t == 0
	case time.Time:
		return t.IsZero()
	case time.Duration:
		return t == 0
	case nil:
		return true
	}
	return false
}

// configPath returns the policy file path, defaulting to the data file
// directory.
func configPath() string {
	if p := viper.GetString("config"); p != "" {
		return p
	}
	return filepath.Join(filepath.Dir(viper.GetString("data-file")), config.FileName)
}

// openStore returns the store for --data-file with --lock-timeout applied.
func openStore() *dataset.Store {
	s := dataset.NewStore(viper.GetString("data-file"), nil)
	s.LockTimeout = viper.GetDuration("lock-timeout")
	return s
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and exit",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			printVersion(cmd)
		},
	}
}

func printVersion(cmd *cobra.Command) {
	version, goVersion, revision, dirty := getBuildInfo()
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "chardb %s\n", version)
	fmt.Fprintf(w, "  Go version: %s\n", goVersion)
	fmt.Fprintf(w, "  Revision:   %s\n", revision)
	if dirty {
		fmt.Fprintf(w, "  Modified:   true\n")
	}
}

func getBuildInfo() (version, goVersion, revision string, dirty bool) {
	version = "unknown"
	goVersion = "unknown"
	revision = "unknown"
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	version = info.Main.Version
	if version == "" || version == "(devel)" {
		version = "dev"
	}
	goVersion = info.GoVersion
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.modified":
			dirty = setting.Value == "true"
		}
	}
	return
}
