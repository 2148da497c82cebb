// Package database provides the SQLite connection used by the control
// history.
//
// This package manages:
//   - Database connection with WAL mode for concurrent access
//   - Schema migrations supplied by the owning package
//   - Connection lifecycle and health checks
//
// Security Considerations:
//   - All queries use parameterised statements
//   - Database file permissions are set to 0600 (owner read/write only)
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrationsFS, "migrations"); err != nil {
//	    return err
//	}
//
// Migrations are additive: new columns are NULLABLE or carry a DEFAULT, and
// applied files are never edited.
package database
