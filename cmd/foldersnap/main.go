package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tangthinker/foldersnap/internal/config"
	"github.com/tangthinker/foldersnap/internal/logging"
)

var (
	envFile      string
	settingsPath string
	socketPath   string
	pidFile      string
	historyDB    string
	logLevel     string
	logFormat    string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "foldersnap",
		Short:             "Periodic folder snapshots",
		Long:              "Copies each source folder into a timestamped run directory under the target, every <frequency> seconds",
		SilenceUsage:      true,
		PersistentPreRunE: setup,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&envFile, "env-file", "", "Env file to load (default .env)")
	flags.StringVar(&settingsPath, "settings", "", "Settings file (env FOLDERSNAP_SETTINGS)")
	flags.StringVar(&socketPath, "socket", "", "Control socket (env FOLDERSNAP_SOCKET)")
	flags.StringVar(&pidFile, "pid-file", "", "PID file of the running daemon (env FOLDERSNAP_PID_FILE)")
	flags.StringVar(&historyDB, "history-db", "", "Run history database (env FOLDERSNAP_HISTORY_DB)")
	flags.StringVar(&logLevel, "log-level", "", "debug, info, warn or error (env FOLDERSNAP_LOG_LEVEL)")
	flags.StringVar(&logFormat, "log-format", "", "console or json (env FOLDERSNAP_LOG_FORMAT)")

	rootCmd.AddCommand(
		newRunCmd(),
		newStatusCmd(),
		newStopCmd(),
		newValidateCmd(),
		newInitCmd(),
		newHistoryCmd(),
	)
	return rootCmd
}

// setup 加载环境变量，命令行参数优先
func setup(cmd *cobra.Command, args []string) error {
	var files []string
	if envFile != "" {
		files = append(files, envFile)
	}
	env, err := config.LoadEnv(files...)
	if err != nil {
		return fmt.Errorf("failed to load env: %w", err)
	}

	fallback(&settingsPath, env.Settings)
	fallback(&socketPath, env.Socket)
	fallback(&pidFile, env.PIDFile)
	fallback(&historyDB, env.HistoryDB)
	fallback(&logLevel, env.LogLevel)
	fallback(&logFormat, env.LogFormat)

	return logging.Setup(logLevel, logFormat)
}

func fallback(v *string, def string) {
	if *v == "" {
		*v = def
	}
}
