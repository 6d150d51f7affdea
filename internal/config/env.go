package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// Env holds process level settings taken from the environment.
type Env struct {
	Settings  string
	Socket    string
	PIDFile   string
	HistoryDB string
	LogLevel  string
	LogFormat string
}

const (
	DefaultSocket  = "/tmp/foldersnap.sock"
	DefaultPIDFile = "/tmp/foldersnap.pid"
)

// LoadEnv reads the given .env files (".env" when none is given) into the
// process environment, then builds an Env with defaults for unset values.
// A missing .env file is not an error.
func LoadEnv(files ...string) (*Env, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	home := filepath.Join(os.Getenv("HOME"), ".foldersnap")

	return &Env{
		Settings:  getenv("FOLDERSNAP_SETTINGS", filepath.Join(home, "settings.toml")),
		Socket:    getenv("FOLDERSNAP_SOCKET", DefaultSocket),
		PIDFile:   getenv("FOLDERSNAP_PID_FILE", DefaultPIDFile),
		HistoryDB: getenv("FOLDERSNAP_HISTORY_DB", filepath.Join(home, "history.db")),
		LogLevel:  getenv("FOLDERSNAP_LOG_LEVEL", "info"),
		LogFormat: getenv("FOLDERSNAP_LOG_FORMAT", "console"),
	}, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
