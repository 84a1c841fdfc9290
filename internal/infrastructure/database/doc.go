// Package database provides SQLite connectivity for hapticd.
//
// The database holds the playback history (one row per started or
// stopped pattern) and the schema_migrations bookkeeping table.
//
// This package manages:
//   - Connection setup with WAL mode and a busy timeout
//   - Versioned up/down migrations loaded from an fs.FS
//   - Health checks used by the API health endpoint
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migrations are additive: new columns must be nullable or carry a
// default, and every .up.sql ships with a matching .down.sql.
package database
