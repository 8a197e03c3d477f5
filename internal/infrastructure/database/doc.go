// Package database provides SQLite connectivity for the playout store.
//
// This package manages:
//   - Database connection with WAL mode for concurrent access
//   - Schema migrations loaded from any fs.FS (normally the embedded migrations package)
//   - Connection pool and lifecycle management
//
// Security Considerations:
//   - All queries use parameterised statements
//   - Database file permissions are set to 0600 (owner read/write only)
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    log.Fatal(err)
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with a
// matching .down.sql, and live at the root of the filesystem passed in.
package database
