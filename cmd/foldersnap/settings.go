package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tangthinker/foldersnap/internal/backup"
	"github.com/tangthinker/foldersnap/internal/config"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the settings file and show what every folder contains",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load(settingsPath)
			if err != nil {
				return err
			}
			cfg, err := settings.RunConfig()
			if err != nil {
				return err
			}
			printFolders(os.Stdout, cfg)
			if err := config.Validate(cfg); err != nil {
				return err
			}
			for _, w := range config.Warnings(cfg) {
				fmt.Printf("Warning: %s\n", w)
			}
			fmt.Println("Settings are valid")
			return nil
		},
	}
}

// printFolders 打印每个目录的路径、角色、频率和直接子项
func printFolders(w io.Writer, cfg *config.RunConfig) {
	for _, f := range cfg.Folders {
		fmt.Fprintf(w, "%s\n", f.Path)
		fmt.Fprintf(w, "  role:      %s\n", f.Role)
		if f.Role == config.Source {
			fmt.Fprintf(w, "  frequency: %s\n", backup.FormatClock(f.Frequency))
		}

		entries, err := os.ReadDir(f.Path)
		if err != nil {
			fmt.Fprintf(w, "  contents:  unavailable (%v)\n", err)
			continue
		}
		var files, dirs []string
		for _, e := range entries {
			if e.IsDir() {
				dirs = append(dirs, e.Name())
			} else {
				files = append(files, e.Name())
			}
		}
		fmt.Fprintf(w, "  files:     %s\n", joinOrDash(files))
		fmt.Fprintf(w, "  folders:   %s\n", joinOrDash(dirs))
	}
}

func joinOrDash(names []string) string {
	if len(names) == 0 {
		return "-"
	}
	return strings.Join(names, ", ")
}

func newInitCmd() *cobra.Command {
	var (
		target  string
		sources []string
		force   bool
	)
	cmd := &cobra.Command{
		Use:     "init",
		Short:   "Write a settings file",
		Example: "  foldersnap init --target /srv/backups --source ~/Docs:3600 --source \"~/Photos:@every 6h\"",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := buildSettings(target, sources)
			if err != nil {
				return err
			}
			cfg, err := settings.RunConfig()
			if err != nil {
				return err
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}

			if _, err := os.Stat(settingsPath); err == nil && !force {
				return fmt.Errorf("%s already exists, use --force to replace it", settingsPath)
			}
			if err := config.Save(settingsPath, settings); err != nil {
				return err
			}
			for _, w := range config.Warnings(cfg) {
				fmt.Printf("Warning: %s\n", w)
			}
			fmt.Printf("Settings written to %s\n", settingsPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&target, "target", "", "Target folder")
	cmd.Flags().StringArrayVar(&sources, "source", nil, "Source folder as path:seconds or path:<cron descriptor>, repeatable")
	cmd.Flags().BoolVar(&force, "force", false, "Replace an existing settings file")
	cmd.MarkFlagRequired("target")
	return cmd
}

func buildSettings(target string, sources []string) (*config.Settings, error) {
	if len(sources) == 0 {
		return nil, errors.New("at least one --source is required")
	}
	settings := &config.Settings{Target: config.TargetSettings{Path: target}}
	for _, s := range sources {
		src, err := parseSource(s)
		if err != nil {
			return nil, err
		}
		settings.Sources = append(settings.Sources, src)
	}
	return settings, nil
}

// parseSource 解析 path:frequency，频率可以是秒数或 cron 描述符
func parseSource(s string) (config.SourceSettings, error) {
	// cron descriptors start with '@' and may contain ':' themselves
	if i := strings.Index(s, ":@"); i > 0 {
		return config.SourceSettings{Path: s[:i], Every: s[i+1:]}, nil
	}
	i := strings.LastIndex(s, ":")
	if i <= 0 || i == len(s)-1 {
		return config.SourceSettings{}, fmt.Errorf("invalid source %q, want path:frequency", s)
	}
	seconds, err := strconv.Atoi(s[i+1:])
	if err != nil {
		return config.SourceSettings{}, fmt.Errorf("invalid frequency in %q: %w", s, err)
	}
	return config.SourceSettings{Path: s[:i], Frequency: seconds}, nil
}
