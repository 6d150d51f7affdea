package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tangthinker/foldersnap/internal/backup"
	"github.com/tangthinker/foldersnap/internal/config"
	"github.com/tangthinker/foldersnap/internal/daemon"
	"github.com/tangthinker/foldersnap/internal/history"
	"github.com/tangthinker/foldersnap/internal/watch"
)

func newRunCmd() *cobra.Command {
	var (
		label string
		live  bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start a backup run and keep copying until stopped",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(label, live)
		},
	}
	cmd.Flags().StringVar(&label, "label", "", "Run label, used as the run directory name (default ddMMyyyy_HHmmss)")
	cmd.Flags().BoolVar(&live, "live", false, "Redraw the status of every folder on stdout each second")
	return cmd
}

// loadRunConfig 读取并校验配置
func loadRunConfig(path string) (*config.RunConfig, error) {
	settings, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	cfg, err := settings.RunConfig()
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runDaemon(label string, live bool) error {
	cfg, err := loadRunConfig(settingsPath)
	if err != nil {
		return err
	}
	for _, w := range config.Warnings(cfg) {
		log.Warn().Msg(w)
	}

	// 检查是否已有守护进程在运行
	if checkRunningDaemon(pidFile) {
		return errors.New("foldersnap daemon is already running")
	}
	if err := createPIDFile(pidFile); err != nil {
		return err
	}
	defer cleanupPIDFile(pidFile)

	if err := config.EnsureTarget(cfg); err != nil {
		return err
	}

	opts := []backup.Option{}

	// 历史记录不可用时照常备份
	store, err := history.NewSQLite(historyDB)
	if err != nil {
		log.Warn().Err(err).Str("path", historyDB).Msg("run history disabled")
	} else {
		defer store.Close()
		opts = append(opts, backup.WithRecorder(store))
	}

	tracker, err := watch.NewTracker(cfg.SourcePaths())
	if err != nil {
		log.Warn().Err(err).Msg("change tracking disabled")
	} else {
		tracker.Start()
		defer tracker.Close()
		opts = append(opts, backup.WithChangeCounter(tracker))
	}

	if live {
		opts = append(opts, backup.WithStatusFunc(func(st backup.Status) {
			printLive(os.Stdout, st)
		}))
	}

	scheduler := backup.NewScheduler(cfg, opts...)

	server, err := daemon.NewServer(socketPath, scheduler)
	if err != nil {
		return err
	}
	defer server.Close()
	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("control socket stopped")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if label == "" {
		label = backup.NewLabel(time.Now())
	}
	if err := scheduler.Start(ctx, label); err != nil {
		return fmt.Errorf("failed to start run: %w", err)
	}
	log.Info().Str("socket", socketPath).Int("pid", os.Getpid()).Msg("foldersnap daemon started")

	err = scheduler.Wait()
	log.Info().Msg("shutting down foldersnap")
	return err
}

// printLive 清屏后重绘状态
func printLive(w io.Writer, st backup.Status) {
	fmt.Fprint(w, "\033[H\033[2J")
	fmt.Fprintf(w, "Run %s (%s)\n\n", st.Label, st.State)
	for _, line := range st.Lines() {
		fmt.Fprintln(w, line)
	}
}
