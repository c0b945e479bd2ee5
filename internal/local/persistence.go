package local

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nerrad567/driftdb/internal/infrastructure/logging"
)

// Config contains the inputs that identify and locate a client database.
type Config struct {
	// Dir is the directory holding database files. Created if missing.
	Dir string

	// PersistenceKey is stable per logical client installation.
	PersistenceKey string

	// ProjectID and DatabaseID identify the backing database.
	ProjectID  string
	DatabaseID string

	// BusyTimeout is the maximum time to wait for an engine lock, in
	// seconds. Under exclusive locking this only matters during open.
	BusyTimeout int
}

// Persistence owns the single database connection for a client installation
// and is the sole entry point through which transactions, statements, and
// the caches built on top reach it.
//
// Lifecycle is strictly single-use: New → Start → Shutdown. Starting twice,
// shutting down without starting, or reusing a shut-down instance are fatal
// programming errors. A fresh instance is required for a subsequent start.
type Persistence struct {
	cfg      Config
	log      *logging.Logger
	delegate ReferenceDelegate

	queryCache *QueryCache

	db     *sql.DB
	dbConn *sql.Conn

	started  bool
	shutdown bool
	txActive bool
}

// New creates a Persistence for the given configuration. The instance does
// nothing until Start is called.
func New(cfg Config) *Persistence {
	p := &Persistence{
		cfg:      cfg,
		log:      logging.Default(),
		delegate: noopReferenceDelegate{},
	}
	p.queryCache = newQueryCache(p)
	return p
}

// SetLogger replaces the default logger. Call before Start.
func (p *Persistence) SetLogger(log *logging.Logger) {
	p.log = log
}

// SetReferenceDelegate installs the reference-counting collaborator that is
// notified around every transaction bracket. Call before Start.
func (p *Persistence) SetReferenceDelegate(delegate ReferenceDelegate) {
	hardAssert(delegate != nil, "reference delegate must not be nil")
	p.delegate = delegate
}

// Start opens the database, applies schema migrations, and initialises the
// collaborators. Calling Start on an already-started or shut-down instance
// is a fatal programming error. If Start fails, the instance is unusable for
// this session; there is no automatic retry at this layer.
func (p *Persistence) Start(ctx context.Context) error {
	hardAssert(!p.started, "persistence double-started")
	hardAssert(!p.shutdown, "persistence restarted after shutdown")
	p.started = true

	o := &opener{cfg: p.cfg, log: p.log}
	db, conn, err := o.open(ctx)
	if err != nil {
		return fmt.Errorf("starting persistence: %w", err)
	}
	p.db = db
	p.dbConn = conn

	if err := p.queryCache.Start(ctx); err != nil {
		return fmt.Errorf("starting query cache: %w", err)
	}
	p.delegate.Start(p.queryCache.HighestListenSequenceNumber())

	p.log.Info("persistence started",
		"database", DatabaseName(p.cfg.PersistenceKey, p.cfg.ProjectID, p.cfg.DatabaseID),
		"schema_version", schemaVersion,
	)
	return nil
}

// Shutdown closes the connection and releases the exclusive lock. The
// instance is not reusable afterwards. Shutting down a non-started instance
// is a fatal programming error.
func (p *Persistence) Shutdown() error {
	hardAssert(p.started, "persistence shutdown without start")
	p.started = false
	p.shutdown = true

	var errs []error
	if p.dbConn != nil {
		if err := p.dbConn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing connection: %w", err))
		}
		p.dbConn = nil
	}
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing database: %w", err))
		}
		p.db = nil
	}
	return errors.Join(errs...)
}

// IsStarted reports whether the instance is currently started.
func (p *Persistence) IsStarted() bool {
	return p.started
}

// QueryCache returns the query-target bookkeeping collaborator.
func (p *Persistence) QueryCache() *QueryCache {
	return p.queryCache
}

// conn returns the pinned connection, asserting the lifecycle state.
func (p *Persistence) conn() *sql.Conn {
	hardAssert(p.started, "persistence used before Start or after Shutdown")
	return p.dbConn
}

// RunTransaction executes op inside a transaction bracket:
//
//  1. Notify the reference delegate that a transaction is starting
//  2. Begin an engine-level transaction
//  3. Run op; a failure propagates to the caller untouched
//  4. Commit if op completed, otherwise roll back every statement since 2
//  5. Notify the delegate that the bracket closed
//
// The closing notification fires whether the transaction committed or rolled
// back — it means "no transaction is active", not "changes are visible".
// Invoking RunTransaction while a transaction is already active is a fatal
// programming error; nesting is not supported.
func (p *Persistence) RunTransaction(ctx context.Context, action string, op func() error) (err error) {
	hardAssert(p.started, "RunTransaction before Start or after Shutdown")
	if p.txActive {
		fail("transaction %q started while another transaction is active", action)
	}

	p.log.Debug("starting transaction", "action", action)
	p.txActive = true
	p.delegate.OnTransactionStarted()

	if _, beginErr := p.dbConn.ExecContext(ctx, "BEGIN"); beginErr != nil {
		p.txActive = false
		p.delegate.OnTransactionCommitted()
		return fmt.Errorf("beginning transaction %q: %w", action, beginErr)
	}

	commit := false
	defer func() {
		// The bracket always closes, even when op fails or panics, and the
		// delegate always hears about it. Rollback must not be skipped by a
		// cancelled context, hence WithoutCancel.
		endErr := p.endTransaction(context.WithoutCancel(ctx), commit)
		p.txActive = false
		p.delegate.OnTransactionCommitted()
		if err == nil {
			err = endErr
		}
	}()

	if opErr := op(); opErr != nil {
		return opErr
	}
	commit = true
	return nil
}

// endTransaction commits or rolls back the active engine transaction.
func (p *Persistence) endTransaction(ctx context.Context, commit bool) error {
	stmt := "ROLLBACK"
	if commit {
		stmt = "COMMIT"
	}
	if _, err := p.dbConn.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("ending transaction (%s): %w", stmt, err)
	}
	return nil
}

// RunTransactionValue is RunTransaction for operations producing a result.
func RunTransactionValue[T any](ctx context.Context, p *Persistence, action string, op func() (T, error)) (T, error) {
	var out T
	err := p.RunTransaction(ctx, action, func() error {
		value, opErr := op()
		if opErr != nil {
			return opErr
		}
		out = value
		return nil
	})
	return out, err
}

// Execute runs the given non-query SQL statement with the supplied bindings.
// Equivalent to preparing and executing once.
func (p *Persistence) Execute(ctx context.Context, sqlText string, values ...BoundValue) error {
	if _, err := p.conn().ExecContext(ctx, sqlText, bindArgs(values)...); err != nil {
		return fmt.Errorf("executing statement: %w", err)
	}
	return nil
}

// Statement is a prepared non-query statement, reusable with fresh bindings.
type Statement struct {
	stmt *sql.Stmt
}

// Prepare compiles the given non-query SQL statement for repeated execution.
func (p *Persistence) Prepare(ctx context.Context, sqlText string) (*Statement, error) {
	stmt, err := p.conn().PrepareContext(ctx, sqlText)
	if err != nil {
		return nil, fmt.Errorf("preparing statement: %w", err)
	}
	return &Statement{stmt: stmt}, nil
}

// Execute runs the prepared statement with the supplied bindings, replacing
// any bindings from previous executions. It returns the number of rows
// affected.
func (s *Statement) Execute(ctx context.Context, values ...BoundValue) (int64, error) {
	res, err := s.stmt.ExecContext(ctx, bindArgs(values)...)
	if err != nil {
		return 0, fmt.Errorf("executing prepared statement: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading affected row count: %w", err)
	}
	return affected, nil
}

// Close releases the prepared statement.
func (s *Statement) Close() error {
	return s.stmt.Close()
}

// Query creates a new Query for the given SQL. Supply bindings and execute
// by chaining methods off the result.
func (p *Persistence) Query(sqlText string) *Query {
	return &Query{p: p, sql: sqlText}
}
