package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/syssam/nodestore/dialect"
)

// Default ports of the network dialects.
const (
	defaultPostgresPort = 5432
	defaultMySQLPort    = 3306
)

// DataSource returns the driver data source name for the configured
// dialect. MySQL sources always report matched rather than changed rows,
// so an update that rewrites identical values still counts as a hit.
func (d DatabaseConfig) DataSource() (string, error) {
	switch d.Dialect {
	case dialect.Postgres:
		return d.postgres(), nil
	case dialect.MySQL:
		return d.mysql()
	case dialect.SQLite:
		return d.sqlite(), nil
	default:
		return "", fmt.Errorf("config: %w", dialect.Valid(d.Dialect))
	}
}

// Address returns host:port for network dialects and the database file
// for SQLite. It never includes credentials.
func (d DatabaseConfig) Address() string {
	switch d.Dialect {
	case dialect.Postgres:
		if d.DSN != "" {
			if u, err := url.Parse(d.DSN); err == nil && u.Host != "" {
				return u.Host
			}
			return "postgres"
		}
		return net.JoinHostPort(d.host(), strconv.Itoa(d.port(defaultPostgresPort)))
	case dialect.MySQL:
		if d.DSN != "" {
			if cfg, err := mysql.ParseDSN(d.DSN); err == nil {
				return cfg.Addr
			}
			return "mysql"
		}
		return net.JoinHostPort(d.host(), strconv.Itoa(d.port(defaultMySQLPort)))
	default:
		if d.DSN != "" {
			return strings.TrimPrefix(strings.SplitN(d.DSN, "?", 2)[0], "file:")
		}
		return d.Database
	}
}

func (d DatabaseConfig) postgres() string {
	if d.DSN != "" {
		return d.DSN
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(d.host(), strconv.Itoa(d.port(defaultPostgresPort))),
		Path:   "/" + d.Database,
	}
	if d.User != "" {
		if d.Password != "" {
			u.User = url.UserPassword(d.User, d.Password)
		} else {
			u.User = url.User(d.User)
		}
	}
	q := url.Values{}
	if d.SSLMode != "" {
		q.Set("sslmode", d.SSLMode)
	}
	if d.Schema != "" {
		q.Set("search_path", d.Schema)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func (d DatabaseConfig) mysql() (string, error) {
	cfg := mysql.NewConfig()
	if d.DSN != "" {
		var err error
		if cfg, err = mysql.ParseDSN(d.DSN); err != nil {
			return "", fmt.Errorf("config: mysql dsn: %w", err)
		}
	} else {
		cfg.User = d.User
		cfg.Passwd = d.Password
		cfg.Net = "tcp"
		cfg.Addr = net.JoinHostPort(d.host(), strconv.Itoa(d.port(defaultMySQLPort)))
		cfg.DBName = d.Database
	}
	cfg.ClientFoundRows = true
	return cfg.FormatDSN(), nil
}

func (d DatabaseConfig) sqlite() string {
	if d.DSN != "" {
		return d.DSN
	}
	return "file:" + d.Database + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
}

func (d DatabaseConfig) host() string {
	if d.Host == "" {
		return "localhost"
	}
	return d.Host
}

func (d DatabaseConfig) port(def int) int {
	if d.Port == 0 {
		return def
	}
	return d.Port
}
