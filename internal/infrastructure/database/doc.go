// Package database provides SQLite connectivity for Gatekeeper Core.
//
// The database is the durable home of the device registry (cameras and gates)
// and of the gate actuation audit log. The registry keeps an in-memory cache
// in front of it; this package only deals with the connection and schema.
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.Source()); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with an
// optional matching .down.sql. Migrations are additive: new columns must be
// nullable or carry a default.
package database
