// Package database provides the SQLite store behind the audit trail and
// telemetry history.
//
// Schema changes live as paired .up.sql/.down.sql files in the top-level
// migrations package and are applied at startup:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if _, err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Both tables are append-only from the application's point of view. Prune
// removes rows older than database.retention_days at startup; a zero
// retention keeps everything.
package database
