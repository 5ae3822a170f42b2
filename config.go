package main

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"library-service/library"
)

// config is read from LIBRARY_* environment variables first; command-line
// flags registered with those values as defaults override them.
type config struct {
	DBDriver  string `env:"DB_DRIVER" envDefault:"sqlite3"`
	DBDSN     string `env:"DB_DSN"`
	DBPath    string `env:"DB_PATH" envDefault:"library.db"`
	Addr      string `env:"ADDR" envDefault:":8080"`
	UploadDir string `env:"UPLOAD_DIR" envDefault:"uploads"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
	LoanDays  int    `env:"LOAN_DAYS" envDefault:"14"`
}

func loadConfig() (*config, error) {
	cfg := &config{}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: "LIBRARY_"}); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	return cfg, nil
}

func (c *config) registerFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.DBDriver, "db-driver", c.DBDriver, "database driver (sqlite3 or postgres)")
	fs.StringVar(&c.DBDSN, "db-dsn", c.DBDSN, "database DSN (required for postgres)")
	fs.StringVar(&c.DBPath, "db-path", c.DBPath, "sqlite database file")
	fs.StringVar(&c.Addr, "addr", c.Addr, "HTTP listen address")
	fs.StringVar(&c.UploadDir, "upload-dir", c.UploadDir, "directory for uploaded files")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level")
	fs.StringVar(&c.LogFormat, "log-format", c.LogFormat, "log format (text or json)")
	fs.IntVar(&c.LoanDays, "loan-days", c.LoanDays, "default loan period in days")
}

func (c *config) database() library.DatabaseConfig {
	return library.DatabaseConfig{Driver: c.DBDriver, DSN: c.DBDSN, Path: c.DBPath}
}

func (c *config) logger() (*logrus.Logger, error) {
	log := logrus.New()
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	log.SetLevel(level)
	switch c.LogFormat {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	case "text":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	return log, nil
}

func (c *config) manager(log logrus.FieldLogger) (*library.LibraryManager, error) {
	return library.NewLibraryManager(c.database(),
		library.WithLogger(log),
		library.WithLoanPeriod(time.Duration(c.LoanDays)*24*time.Hour),
	)
}
