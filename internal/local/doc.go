// Package local is the transactional persistence core of driftdb.
//
// It owns the single SQLite connection for a client installation and makes
// the engine's transaction and binding surface safe, typed, and observable:
//   - Connection lifecycle with exclusive single-writer locking
//   - Versioned schema migrations applied during Start
//   - A transaction bracket that notifies a reference delegate
//   - Typed positional binding over a closed set of value kinds
//   - Scoped row-cursor access patterns that always release the cursor
//
// # Concurrency
//
// The core is synchronous and single-writer. Exactly one Persistence may be
// live per database name; the underlying connection is opened in exclusive
// locking mode so no other process can interleave. Callers serialise their
// own use of RunTransaction — nested transactions are a programming error.
//
// # Errors
//
// Contract violations (double start, nested transaction, binding an invalid
// value, gapped migration steps) panic: they indicate caller or
// implementation bugs, never routine data conditions. Ordinary I/O and SQL
// failures are returned as wrapped errors. Exclusive-lock contention during
// Start is reported as ErrDatabaseLocked so callers can distinguish
// multi-process access from corruption or disk-space problems.
//
// # Usage
//
//	p := local.New(local.Config{
//	    Dir:            cfg.Storage.Dir,
//	    PersistenceKey: key,
//	    ProjectID:      cfg.Client.ProjectID,
//	    DatabaseID:     cfg.Client.DatabaseID,
//	})
//	if err := p.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer p.Shutdown()
//
//	err := p.RunTransaction(ctx, "Acknowledge batch", func() error {
//	    return p.Execute(ctx,
//	        "DELETE FROM mutations WHERE uid = ? AND batch_id = ?",
//	        local.Text(uid), local.Int64(batchID))
//	})
package local
