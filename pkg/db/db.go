package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	_ "github.com/SAP/go-hdb/driver"
	_ "github.com/denisenkom/go-mssqldb"
)

// Dialect selects the driver and wire protocol used to reach a target server.
type Dialect string

const (
	DialectSQLServer Dialect = "sqlserver"
	DialectHANA      Dialect = "hana"
)

// Profile identifies one database server and the credentials used to reach it.
// It is immutable once a session starts and must never be logged in cleartext.
type Profile struct {
	Server           string  `json:"server"`
	Instance         string  `json:"instance,omitempty"`
	User             string  `json:"user"`
	Password         string  `json:"password"`
	Dialect          Dialect `json:"dialect,omitempty"`
	DefaultTimeoutMs int     `json:"timeoutMs,omitempty"`
}

func (p Profile) dialect() Dialect {
	if p.Dialect == "" {
		return DialectSQLServer
	}
	return p.Dialect
}

// LogValue keeps credentials out of log output.
func (p Profile) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("server", p.Server),
		slog.String("user", p.User),
		slog.String("dialect", string(p.dialect())),
	)
}

func (p Profile) connString(database string) (string, error) {
	if p.Server == "" || p.User == "" {
		return "", fmt.Errorf("profile server and user are required")
	}

	switch p.dialect() {
	case DialectSQLServer:
		u := &url.URL{
			Scheme: "sqlserver",
			User:   url.UserPassword(p.User, p.Password),
			Host:   p.Server,
		}
		if p.Instance != "" {
			u.Path = p.Instance
		}

		q := url.Values{}
		if database != "" {
			q.Set("database", database)
		}
		q.Set("encrypt", "disable")
		u.RawQuery = q.Encode()
		return u.String(), nil

	case DialectHANA:
		u := &url.URL{
			Scheme: "hdb",
			User:   url.UserPassword(p.User, p.Password),
			Host:   p.Server,
		}
		if database != "" {
			q := url.Values{}
			q.Set("databaseName", database)
			u.RawQuery = q.Encode()
		}
		return u.String(), nil
	}

	return "", fmt.Errorf("unsupported dialect %q", p.Dialect)
}

func (p Profile) driverName() string {
	if p.dialect() == DialectHANA {
		return "hdb"
	}
	return "sqlserver"
}

func (p Profile) pingQuery() string {
	if p.dialect() == DialectHANA {
		return "SELECT 1 FROM DUMMY"
	}
	return "SELECT 1"
}

func (p Profile) catalogQuery() string {
	if p.dialect() == DialectHANA {
		return "SELECT DATABASE_NAME FROM SYS.M_DATABASES ORDER BY DATABASE_NAME"
	}
	return "SELECT name FROM sys.databases WHERE database_id > 4 AND state = 0 ORDER BY name"
}

const pingTimeout = 5 * time.Second

// Manager opens and probes connections to individual database targets. All of
// its methods block and are meant to run inside a worker, never on the
// coordinating goroutine.
type Manager struct {
	log *slog.Logger
}

func NewManager(log *slog.Logger) *Manager {
	return &Manager{log: log}
}

// Conn is a single-target session. Close is idempotent.
type Conn struct {
	db      *sql.DB
	profile Profile
	close   sync.Once
}

// Open builds a connection to one database catalog and verifies it with a
// bounded ping. The returned Conn must be closed by the caller on every path.
func (m *Manager) Open(ctx context.Context, profile Profile, database string) (*Conn, error) {
	connStr, err := profile.connString(database)
	if err != nil {
		return nil, err
	}

	pool, err := sql.Open(profile.driverName(), connStr)
	if err != nil {
		return nil, classifyConnect(err)
	}

	// One session per worker; the pool behind it must not fan out further.
	pool.SetMaxOpenConns(1)
	pool.SetMaxIdleConns(1)
	pool.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.PingContext(pingCtx); err != nil {
		_ = pool.Close()
		m.log.Debug("target ping failed", "profile", profile, "database", database)
		return nil, classifyConnect(err)
	}

	return &Conn{db: pool, profile: profile}, nil
}

// Close releases the session. Calling it more than once is safe and never
// double-releases the underlying pool.
func (c *Conn) Close() error {
	var err error
	c.close.Do(func() {
		err = c.db.Close()
	})
	return err
}

// Execute runs one batch on the session. Row-returning statements are scanned
// into materialized result sets; other statements report rows affected.
func (c *Conn) Execute(ctx context.Context, batch string) (*BatchResult, error) {
	if returnsRows(batch) {
		rows, err := c.db.QueryContext(ctx, batch)
		if err != nil {
			return nil, classifyExecute(err)
		}
		defer rows.Close()

		sets, total, err := scanResultSets(rows)
		if err != nil {
			return nil, classifyExecute(err)
		}
		return &BatchResult{Sets: sets, RowsTotal: total}, nil
	}

	result, err := c.db.ExecContext(ctx, batch)
	if err != nil {
		return nil, classifyExecute(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		affected = 0
	}
	return &BatchResult{RowsAffected: affected}, nil
}

func returnsRows(batch string) bool {
	low := strings.ToLower(strings.TrimSpace(batch))
	for _, prefix := range []string{"select", "with", "values", "exec", "execute"} {
		if strings.HasPrefix(low, prefix) {
			return true
		}
	}
	return false
}

// TestConnection opens and immediately closes a probe session, returning only
// success or failure. Used for pre-flight credential validation.
func (m *Manager) TestConnection(ctx context.Context, profile Profile) error {
	conn, err := m.Open(ctx, profile, "")
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.db.ExecContext(ctx, profile.pingQuery()); err != nil {
		return classifyConnect(err)
	}
	return nil
}

// ListDatabases returns the user-visible database catalogs on the server, for
// the target-selection collaborator.
func (m *Manager) ListDatabases(ctx context.Context, profile Profile) ([]string, error) {
	conn, err := m.Open(ctx, profile, "")
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	rows, err := conn.db.QueryContext(ctx, profile.catalogQuery())
	if err != nil {
		return nil, classifyExecute(err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, classifyExecute(err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyExecute(err)
	}
	return names, nil
}
