package db

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const defaultPostgresPort = 5432

// DSNInfo is the connection target described by a DSN, without the password.
type DSNInfo struct {
	Dialect     string
	Host        string
	Port        int
	User        string
	Name        string
	SSLMode     string
	Path        string // SQLite file path without pragmas.
	PasswordSet bool
}

func isSQLiteDSN(dsn string) bool {
	lower := strings.ToLower(strings.TrimSpace(dsn))
	return strings.HasPrefix(lower, "file:") || strings.HasPrefix(lower, "sqlite://")
}

// ParseDSN describes a DSN accepted by Open: a `file:`/`sqlite://` SQLite DSN
// (including BuildSQLiteDSN output), a postgres URL, or a libpq keyword string.
func ParseDSN(dsn string) (DSNInfo, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return DSNInfo{}, fmt.Errorf("db: empty dsn")
	}

	if isSQLiteDSN(trimmed) {
		path := trimmed
		if strings.HasPrefix(strings.ToLower(path), "sqlite://") {
			path = path[len("sqlite://"):]
		}
		if strings.HasPrefix(strings.ToLower(path), "file:") {
			path = path[len("file:"):]
		}
		path, _, _ = strings.Cut(path, "?")
		path = strings.TrimSpace(path)
		if path == "" {
			return DSNInfo{}, fmt.Errorf("db: sqlite dsn without path")
		}
		return DSNInfo{Dialect: DialectSQLite, Path: path}, nil
	}

	if strings.Contains(trimmed, "://") {
		return parsePostgresURL(trimmed)
	}
	if strings.Contains(trimmed, "=") {
		return parsePostgresKeywords(trimmed)
	}
	return DSNInfo{}, fmt.Errorf("db: unsupported dsn format")
}

func parsePostgresURL(dsn string) (DSNInfo, error) {
	u, errParse := url.Parse(dsn)
	if errParse != nil {
		return DSNInfo{}, fmt.Errorf("db: parse dsn: %w", errParse)
	}
	switch strings.ToLower(u.Scheme) {
	case "postgres", "postgresql":
	default:
		return DSNInfo{}, fmt.Errorf("db: unsupported dsn scheme %q", u.Scheme)
	}

	info := DSNInfo{
		Dialect: DialectPostgres,
		Host:    strings.TrimSpace(u.Hostname()),
		Port:    defaultPostgresPort,
		Name:    strings.TrimSpace(strings.TrimPrefix(u.Path, "/")),
		SSLMode: strings.TrimSpace(u.Query().Get("sslmode")),
	}
	if rawPort := u.Port(); rawPort != "" {
		port, errPort := strconv.Atoi(rawPort)
		if errPort != nil {
			return DSNInfo{}, fmt.Errorf("db: parse port: %w", errPort)
		}
		info.Port = port
	}
	if u.User != nil {
		info.User = u.User.Username()
		_, info.PasswordSet = u.User.Password()
	}
	if info.SSLMode == "" {
		info.SSLMode = "disable"
	}
	return info, nil
}

func parsePostgresKeywords(dsn string) (DSNInfo, error) {
	info := DSNInfo{Dialect: DialectPostgres, Port: defaultPostgresPort, SSLMode: "disable"}
	for _, field := range strings.Fields(dsn) {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			return DSNInfo{}, fmt.Errorf("db: malformed dsn field %q", field)
		}
		value = strings.Trim(value, "'")
		switch strings.ToLower(key) {
		case "host":
			info.Host = value
		case "port":
			port, errPort := strconv.Atoi(value)
			if errPort != nil {
				return DSNInfo{}, fmt.Errorf("db: parse port: %w", errPort)
			}
			info.Port = port
		case "user":
			info.User = value
		case "password":
			info.PasswordSet = value != ""
		case "dbname":
			info.Name = value
		case "sslmode":
			info.SSLMode = value
		}
	}
	return info, nil
}
