// Package sqlite implements store.Store on SQLite through grove and its
// sqlite driver. Timestamps are stored as unix nanoseconds and payloads
// as JSON text. The schema is the grove migration group Migrations.
//
// Usage:
//
//	s, err := sqlite.Open(ctx, "compute.db")
//	if err != nil { ... }
//	defer s.Close()
//	if err := s.Migrate(ctx); err != nil { ... }
package sqlite
