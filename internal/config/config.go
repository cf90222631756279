package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	envPrefix      = "LIBRECUR"
	defaultEnvFile = ".env"
	maxDays        = 366
)

// Store backends
const (
	StoreMemory = "memory"
	StoreMySQL  = "mysql"
)

// Output formats
const (
	FormatText = "text"
	FormatXCal = "xcal"
	FormatICS  = "ics"
)

type Database struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
}

type Runtime struct {
	EnvFile string

	SiteID     string
	CalendarID string
	Location   *time.Location

	Store    string
	Database Database

	Engine     string
	LogLevel   slog.Level
	Format     string
	ImportFile string
	Days       int
}

// Load reads the optional env file named by LIBRECUR_ENV_FILE (default
// .env), then the LIBRECUR_* environment. Variables already set win over the
// file.
func Load() (Runtime, error) {
	envFile := strings.TrimSpace(os.Getenv(envPrefix + "_ENV_FILE"))
	if envFile == "" {
		envFile = defaultEnvFile
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Runtime{}, fmt.Errorf("load env file %s: %w", envFile, err)
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	v.SetDefault("site_id", "default")
	v.SetDefault("calendar_id", "")
	v.SetDefault("timezone", "UTC")
	v.SetDefault("store", StoreMemory)
	v.SetDefault("db_host", "localhost")
	v.SetDefault("db_port", 3306)
	v.SetDefault("db_user", "root")
	v.SetDefault("db_password", "")
	v.SetDefault("db_name", "librecur")
	v.SetDefault("engine", "default")
	v.SetDefault("log_level", "info")
	v.SetDefault("format", FormatText)
	v.SetDefault("import_file", "")
	v.SetDefault("days", 1)

	siteID := strings.TrimSpace(v.GetString("site_id"))
	if siteID == "" {
		return Runtime{}, fmt.Errorf("%s_SITE_ID must not be empty", envPrefix)
	}

	loc, err := time.LoadLocation(strings.TrimSpace(v.GetString("timezone")))
	if err != nil {
		return Runtime{}, fmt.Errorf("invalid timezone: %w", err)
	}

	store := strings.ToLower(strings.TrimSpace(v.GetString("store")))
	switch store {
	case StoreMemory, StoreMySQL:
	default:
		return Runtime{}, fmt.Errorf("unknown store %q", store)
	}

	format := strings.ToLower(strings.TrimSpace(v.GetString("format")))
	switch format {
	case FormatText, FormatXCal, FormatICS:
	default:
		format = FormatText
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(v.GetString("log_level"))); err != nil {
		level = slog.LevelInfo
	}

	port := v.GetInt("db_port")
	if port <= 0 || port > 65535 {
		port = 3306
	}

	days := v.GetInt("days")
	if days < 1 {
		days = 1
	}
	if days > maxDays {
		days = maxDays
	}

	return Runtime{
		EnvFile:    envFile,
		SiteID:     siteID,
		CalendarID: strings.TrimSpace(v.GetString("calendar_id")),
		Location:   loc,
		Store:      store,
		Database: Database{
			Host:     v.GetString("db_host"),
			Port:     port,
			User:     v.GetString("db_user"),
			Password: v.GetString("db_password"),
			Name:     v.GetString("db_name"),
		},
		Engine:     strings.TrimSpace(v.GetString("engine")),
		LogLevel:   level,
		Format:     format,
		ImportFile: strings.TrimSpace(v.GetString("import_file")),
		Days:       days,
	}, nil
}
