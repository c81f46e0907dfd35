package app

import (
	"os"
	"strings"

	"github.com/promptarchitect/server/internal/config"
	"github.com/promptarchitect/server/internal/db"
)

// Sources a running server's DSN may come from.
const (
	dsnSourceEnv    = "env"
	dsnSourceConfig = "config"
)

// initPrefill mirrors InitRequest's database fields so a dashboard can show the active target.
type initPrefill struct {
	DatabaseType        string `json:"database_type"`
	DatabaseHost        string `json:"database_host,omitempty"`
	DatabasePort        int    `json:"database_port,omitempty"`
	DatabaseUser        string `json:"database_user,omitempty"`
	DatabaseName        string `json:"database_name,omitempty"`
	DatabaseSSLMode     string `json:"database_ssl_mode,omitempty"`
	DatabasePath        string `json:"database_path,omitempty"`
	DatabasePasswordSet bool   `json:"database_password_set"`
	DatabaseSource      string `json:"database_source"`
}

func initPrefillFromDSN(dsn string) (initPrefill, error) {
	info, errParse := db.ParseDSN(dsn)
	if errParse != nil {
		return initPrefill{}, errParse
	}
	return initPrefill{
		DatabaseType:        info.Dialect,
		DatabaseHost:        info.Host,
		DatabasePort:        info.Port,
		DatabaseUser:        info.User,
		DatabaseName:        info.Name,
		DatabaseSSLMode:     info.SSLMode,
		DatabasePath:        info.Path,
		DatabasePasswordSet: info.PasswordSet,
		DatabaseSource:      dsnSource(dsn),
	}, nil
}

// dsnSource reports whether dsn was taken from DB_CONNECTION or from the config file.
func dsnSource(dsn string) string {
	if env := strings.TrimSpace(os.Getenv(config.EnvDBConnection)); env != "" && env == strings.TrimSpace(dsn) {
		return dsnSourceEnv
	}
	return dsnSourceConfig
}
