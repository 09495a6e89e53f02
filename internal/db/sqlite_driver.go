package db

import (
	"database/sql"
	"fmt"
	"strings"

	sqlite3 "github.com/mutecomm/go-sqlcipher/v4"
)

const (
	// SQLiteDriverName is the project-specific SQLCipher driver with custom SQL functions.
	SQLiteDriverName = "sqlite3_notes_api"
)

func init() {
	sql.Register(SQLiteDriverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			// SQLite's built-in lower() only folds ASCII.
			if err := conn.RegisterFunc("casefold", sqliteCasefold, true); err != nil {
				return fmt.Errorf("register casefold SQL function: %w", err)
			}
			return nil
		},
	})
}

func sqliteCasefold(s string) string {
	return strings.ToLower(s)
}
