// Package all wires all built-in storage backends into the storage factory.
//
// This package exists purely for side effects: importing it (even as a blank
// import) causes the init functions of each concrete storage backend to run,
// which in turn register their factories with the storage package.
//
// Importing this package makes the following storage kinds available:
//
//   - "postgres" (taxietl/internal/storage/postgres)
//   - "sqlite"   (taxietl/internal/storage/sqlite)
//   - "mysql"    (taxietl/internal/storage/mysql)
//   - "mssql"    (taxietl/internal/storage/mssql)
//
// Typical usage (in cmd/taxietl):
//
//	import _ "taxietl/internal/storage/all" // enable all built-in backends
//
//	repo, err := storage.New(ctx, storage.Config{Kind: cfg.Storage.Kind, DSN: cfg.Storage.DSN})
//	if err != nil {
//	    // handle error
//	}
//	defer repo.Close()
//
// A binary that needs only a subset of backends can import those packages
// directly instead.
package all

import (
	_ "taxietl/internal/storage/mssql"
	_ "taxietl/internal/storage/mysql"
	_ "taxietl/internal/storage/postgres"
	_ "taxietl/internal/storage/sqlite"
)
