package local

import (
	"context"
	"errors"
	"testing"
)

func TestStart_DoubleStartPanics(t *testing.T) {
	dir := t.TempDir()
	p := startTestPersistence(t, dir)

	defer expectPanic(t, "starting an already-started instance")
	_ = p.Start(context.Background()) //nolint:errcheck // Panics before returning
}

func TestShutdown_WithoutStartPanics(t *testing.T) {
	p := New(testConfig(t.TempDir()))

	defer expectPanic(t, "shutting down a never-started instance")
	_ = p.Shutdown() //nolint:errcheck // Panics before returning
}

func TestStart_AfterShutdownPanics(t *testing.T) {
	dir := t.TempDir()
	p := startTestPersistence(t, dir)
	if err := p.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	defer expectPanic(t, "restarting a shut-down instance")
	_ = p.Start(context.Background()) //nolint:errcheck // Panics before returning
}

func TestStart_FreshInstanceAfterShutdown(t *testing.T) {
	dir := t.TempDir()

	p := startTestPersistence(t, dir)
	if err := p.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if p.IsStarted() {
		t.Error("IsStarted() = true after Shutdown")
	}

	// The same installation reopens through a new instance.
	p2 := startTestPersistence(t, dir)
	if !p2.IsStarted() {
		t.Error("IsStarted() = false after Start")
	}
}

func TestStart_SecondInstanceFailsWithLockedError(t *testing.T) {
	dir := t.TempDir()
	_ = startTestPersistence(t, dir)

	second := New(testConfig(dir))
	err := second.Start(context.Background())
	if err == nil {
		t.Fatal("Start() should fail while another instance holds the lock")
	}
	if !errors.Is(err, ErrDatabaseLocked) {
		t.Errorf("Start() error = %v, want ErrDatabaseLocked in chain", err)
	}
}

func TestSetReferenceDelegate_NilPanics(t *testing.T) {
	p := New(testConfig(t.TempDir()))

	defer expectPanic(t, "installing a nil delegate")
	p.SetReferenceDelegate(nil)
}

// recordingDelegate captures the order of delegate notifications.
type recordingDelegate struct {
	events        []string
	startSequence int64
}

func (d *recordingDelegate) Start(highestSequenceNumber int64) {
	d.startSequence = highestSequenceNumber
	d.events = append(d.events, "start")
}

func (d *recordingDelegate) OnTransactionStarted() {
	d.events = append(d.events, "tx-started")
}

func (d *recordingDelegate) OnTransactionCommitted() {
	d.events = append(d.events, "tx-committed")
}

func TestRunTransaction_CommitIsDurable(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	p := startTestPersistence(t, dir)
	err := p.RunTransaction(ctx, "insert item", func() error {
		return p.Execute(ctx,
			"INSERT INTO items (path, contents) VALUES (?, ?)",
			Text("rooms/a"), Blob([]byte("doc-a")),
		)
	})
	if err != nil {
		t.Fatalf("RunTransaction() error = %v", err)
	}
	if err := p.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	// The write must survive a full reopen.
	p2 := startTestPersistence(t, dir)
	contents, found, err := FirstValue(ctx,
		p2.Query("SELECT contents FROM items WHERE path = ?").Binding(Text("rooms/a")),
		func(row Row) ([]byte, error) { return row.Blob(0), nil })
	if err != nil {
		t.Fatalf("querying after reopen: %v", err)
	}
	if !found {
		t.Fatal("committed row missing after reopen")
	}
	if string(contents) != "doc-a" {
		t.Errorf("contents = %q, want %q", contents, "doc-a")
	}
}

func TestRunTransaction_ErrorRollsBack(t *testing.T) {
	ctx := context.Background()
	p := startTestPersistence(t, t.TempDir())

	opErr := errors.New("operation failed")
	err := p.RunTransaction(ctx, "failing op", func() error {
		if execErr := p.Execute(ctx,
			"INSERT INTO items (path, contents) VALUES (?, ?)",
			Text("rooms/b"), Null(),
		); execErr != nil {
			return execErr
		}
		return opErr
	})
	if !errors.Is(err, opErr) {
		t.Fatalf("RunTransaction() error = %v, want the operation's own error", err)
	}

	empty, err := p.Query("SELECT path FROM items").IsEmpty(ctx)
	if err != nil {
		t.Fatalf("IsEmpty() error = %v", err)
	}
	if !empty {
		t.Error("rolled-back insert is still visible")
	}
}

func TestRunTransaction_DelegateNotificationOrder(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	useTestMigrations(t)

	delegate := &recordingDelegate{}
	p := New(testConfig(dir))
	p.SetReferenceDelegate(delegate)
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer p.Shutdown() //nolint:errcheck // Test cleanup

	if len(delegate.events) != 1 || delegate.events[0] != "start" {
		t.Fatalf("events after Start = %v, want [start]", delegate.events)
	}
	if delegate.startSequence != 0 {
		t.Errorf("delegate started with sequence %d, want 0", delegate.startSequence)
	}

	// A successful transaction brackets exactly one started/committed pair.
	if err := p.RunTransaction(ctx, "noop", func() error { return nil }); err != nil {
		t.Fatalf("RunTransaction() error = %v", err)
	}

	// The closing notification fires on failure too.
	failure := errors.New("boom")
	if err := p.RunTransaction(ctx, "fails", func() error { return failure }); !errors.Is(err, failure) {
		t.Fatalf("RunTransaction() error = %v, want boom", err)
	}

	want := []string{"start", "tx-started", "tx-committed", "tx-started", "tx-committed"}
	if len(delegate.events) != len(want) {
		t.Fatalf("events = %v, want %v", delegate.events, want)
	}
	for i, event := range want {
		if delegate.events[i] != event {
			t.Fatalf("events = %v, want %v", delegate.events, want)
		}
	}
}

func TestRunTransaction_NestedPanics(t *testing.T) {
	ctx := context.Background()
	p := startTestPersistence(t, t.TempDir())

	defer expectPanic(t, "nesting transactions")
	_ = p.RunTransaction(ctx, "outer", func() error { //nolint:errcheck // Panics before returning
		return p.RunTransaction(ctx, "inner", func() error { return nil })
	})
}

func TestRunTransactionValue(t *testing.T) {
	ctx := context.Background()
	p := startTestPersistence(t, t.TempDir())

	id, err := RunTransactionValue(ctx, p, "allocate", func() (int64, error) {
		return p.QueryCache().AllocateTargetID(ctx)
	})
	if err != nil {
		t.Fatalf("RunTransactionValue() error = %v", err)
	}
	if id != 1 {
		t.Errorf("allocated id = %d, want 1", id)
	}

	wantErr := errors.New("no value")
	_, err = RunTransactionValue(ctx, p, "fails", func() (int64, error) {
		return 0, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("RunTransactionValue() error = %v, want no value", err)
	}
}

func TestPrepare_ReusableStatement(t *testing.T) {
	ctx := context.Background()
	p := startTestPersistence(t, t.TempDir())

	stmt, err := p.Prepare(ctx, "INSERT INTO items (path, contents) VALUES (?, ?)")
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	defer stmt.Close() //nolint:errcheck // Test cleanup

	// Each execution replaces the previous bindings entirely.
	for _, path := range []string{"rooms/a", "rooms/b"} {
		affected, err := stmt.Execute(ctx, Text(path), Blob([]byte(path)))
		if err != nil {
			t.Fatalf("Execute(%q) error = %v", path, err)
		}
		if affected != 1 {
			t.Errorf("Execute(%q) affected %d rows, want 1", path, affected)
		}
	}

	count, _, err := FirstValue(ctx,
		p.Query("SELECT COUNT(*) FROM items"),
		func(row Row) (int64, error) { return row.Int64(0), nil })
	if err != nil {
		t.Fatalf("counting items: %v", err)
	}
	if count != 2 {
		t.Errorf("items count = %d, want 2", count)
	}
}

func TestExecute_StatementError(t *testing.T) {
	ctx := context.Background()
	p := startTestPersistence(t, t.TempDir())

	if err := p.Execute(ctx, "INSERT INTO no_such_table VALUES (1)"); err == nil {
		t.Error("Execute() should fail for a missing table")
	}
}
