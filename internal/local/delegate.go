package local

// ReferenceDelegate is the reference-counting/eviction collaborator notified
// around every transaction bracket. Its sequence-number bookkeeping must
// never straddle a transaction boundary, which is the sole reason the two
// transaction notifications exist.
type ReferenceDelegate interface {
	// Start is called once during Persistence.Start with the highest
	// listen sequence number recorded in the database.
	Start(highestSequenceNumber int64)

	// OnTransactionStarted is called immediately before an engine-level
	// transaction begins.
	OnTransactionStarted()

	// OnTransactionCommitted is called after the transaction bracket
	// closes. It fires on rollback too: treat it as "no transaction is
	// active", not as "changes are durably visible".
	OnTransactionCommitted()
}

// noopReferenceDelegate is the default when no delegate is installed.
type noopReferenceDelegate struct{}

func (noopReferenceDelegate) Start(int64)             {}
func (noopReferenceDelegate) OnTransactionStarted()   {}
func (noopReferenceDelegate) OnTransactionCommitted() {}
