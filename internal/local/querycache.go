package local

import (
	"context"
	"errors"
	"fmt"
)

// QueryCache tracks query-target bookkeeping: the highest allocated target
// id and the highest listen sequence number, mirrored in memory from the
// single target_globals row. All reads and writes go through the owning
// Persistence, so mutations take part in whatever transaction is active.
type QueryCache struct {
	p *Persistence

	highestTargetID             int64
	highestListenSequenceNumber int64
}

func newQueryCache(p *Persistence) *QueryCache {
	return &QueryCache{p: p}
}

// Start loads the global bookkeeping row. The row is created by the schema
// migration that introduces it, so its absence means the database is broken.
func (c *QueryCache) Start(ctx context.Context) error {
	n, err := c.p.Query(
		"SELECT highest_target_id, highest_listen_sequence_number FROM target_globals LIMIT 1",
	).First(ctx, func(row Row) error {
		c.highestTargetID = row.Int64(0)
		c.highestListenSequenceNumber = row.Int64(1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("reading target globals: %w", err)
	}
	if n == 0 {
		return errors.New("missing target_globals row")
	}
	return nil
}

// HighestTargetID returns the highest target id ever allocated.
func (c *QueryCache) HighestTargetID() int64 {
	return c.highestTargetID
}

// HighestListenSequenceNumber returns the highest listen sequence number
// recorded across all targets.
func (c *QueryCache) HighestListenSequenceNumber() int64 {
	return c.highestListenSequenceNumber
}

// AllocateTargetID hands out the next target id and persists the new high
// water mark. Call inside a transaction alongside the target write it
// identifies.
func (c *QueryCache) AllocateTargetID(ctx context.Context) (int64, error) {
	next := c.highestTargetID + 1
	err := c.p.Execute(ctx,
		"UPDATE target_globals SET highest_target_id = ?",
		Int64(next),
	)
	if err != nil {
		return 0, fmt.Errorf("allocating target id: %w", err)
	}
	c.highestTargetID = next
	return next, nil
}

// UpdateListenSequenceNumber records a newly observed listen sequence
// number if it exceeds the current high water mark.
func (c *QueryCache) UpdateListenSequenceNumber(ctx context.Context, sequenceNumber int64) error {
	if sequenceNumber <= c.highestListenSequenceNumber {
		return nil
	}
	err := c.p.Execute(ctx,
		"UPDATE target_globals SET highest_listen_sequence_number = ?",
		Int64(sequenceNumber),
	)
	if err != nil {
		return fmt.Errorf("recording listen sequence number: %w", err)
	}
	c.highestListenSequenceNumber = sequenceNumber
	return nil
}

// TargetCount returns the number of targets currently cached.
func (c *QueryCache) TargetCount(ctx context.Context) (int64, error) {
	count, found, err := FirstValue(ctx,
		c.p.Query("SELECT COUNT(*) FROM targets"),
		func(row Row) (int64, error) {
			return row.Int64(0), nil
		})
	if err != nil {
		return 0, fmt.Errorf("counting targets: %w", err)
	}
	if !found {
		return 0, nil
	}
	return count, nil
}
