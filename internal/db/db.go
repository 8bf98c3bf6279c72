package db

import (
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

// Open connects to DATABASE_URL. postgres:// and postgresql:// URLs use pgx;
// sqlite:///path (or a bare file path) uses the embedded sqlite driver.
func Open(databaseURL string) (*sqlx.DB, string, error) {
	url := strings.TrimSpace(databaseURL)
	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		db, err := OpenPostgres(url)
		return db, DialectPostgres, err
	case strings.HasPrefix(url, "sqlite://"):
		db, err := OpenSQLite(sqlitePath(url))
		return db, DialectSQLite, err
	case url == "":
		return nil, "", fmt.Errorf("empty database url")
	default:
		db, err := OpenSQLite(url)
		return db, DialectSQLite, err
	}
}

func OpenPostgres(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// OpenSQLite opens a file database. A single connection serialises writers,
// which keeps multi-statement transactions free of SQLITE_BUSY upgrades.
func OpenSQLite(path string) (*sqlx.DB, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// sqlitePath converts sqlite:///relative.db and sqlite:////abs/path.db into
// filesystem paths.
func sqlitePath(url string) string {
	path := strings.TrimPrefix(url, "sqlite://")
	if strings.HasPrefix(path, "//") {
		return path[1:]
	}
	return strings.TrimPrefix(path, "/")
}
