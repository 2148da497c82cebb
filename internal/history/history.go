package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nerrad567/webmixer/internal/infrastructure/database"
	"github.com/nerrad567/webmixer/internal/infrastructure/logging"
	"github.com/nerrad567/webmixer/internal/mixer"
	"github.com/nerrad567/webmixer/migrations"
)

const (
	defaultQueryLimit = 100
	maxQueryLimit     = 1000

	defaultBuffer = 1024

	// writeTimeout bounds a single insert so a locked database cannot
	// stall the worker indefinitely.
	writeTimeout = 5 * time.Second

	pruneInterval = time.Hour
	day           = 24 * time.Hour
)

// ErrAddressRequired is returned by Query for an empty address.
var ErrAddressRequired = errors.New("address is required")

// Record is one stored control change.
type Record struct {
	ID      int64     `json:"id"`
	Address string    `json:"address"`
	Args    []any     `json:"args"`
	Origin  string    `json:"origin"`
	At      time.Time `json:"at"`
}

// Recorder persists cached control changes to SQLite.
//
// Observe is called on the engine loop and never blocks: changes are
// queued and written by Run. When the queue is full the change is
// dropped and counted.
type Recorder struct {
	db        *database.DB
	logger    *logging.Logger
	retention time.Duration
	queue     chan mixer.Change
	dropped   atomic.Uint64
}

// Options configures a Recorder.
type Options struct {
	// RetentionDays removes records older than this many days. Zero keeps
	// everything.
	RetentionDays int

	// Buffer is the queue length between the engine and the writer.
	Buffer int
}

// Open applies the schema migrations and returns a Recorder writing to db.
func Open(ctx context.Context, db *database.DB, logger *logging.Logger, opts Options) (*Recorder, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if err := db.Migrate(ctx, migrations.FS, migrations.Dir); err != nil {
		return nil, fmt.Errorf("migrating history schema: %w", err)
	}

	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Recorder{
		db:        db,
		logger:    logger.With("component", "history"),
		retention: time.Duration(opts.RetentionDays) * day,
		queue:     make(chan mixer.Change, buffer),
	}, nil
}

// Observe queues a cached change for storage.
func (r *Recorder) Observe(change mixer.Change) {
	if !change.Cached {
		return
	}
	select {
	case r.queue <- change:
	default:
		if r.dropped.Add(1) == 1 {
			r.logger.Warn("history queue full, dropping changes")
		}
	}
}

// Dropped returns how many changes were discarded because the queue was full.
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

// Run writes queued changes until ctx is cancelled, then flushes what is
// already queued. It prunes old records on start and every hour.
func (r *Recorder) Run(ctx context.Context) error {
	r.prune(ctx)

	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.drain()
			return nil
		case change := <-r.queue:
			r.write(ctx, change)
		case <-ticker.C:
			r.prune(ctx)
		}
	}
}

func (r *Recorder) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	for {
		select {
		case change := <-r.queue:
			r.write(ctx, change)
		default:
			return
		}
	}
}

func (r *Recorder) write(ctx context.Context, change mixer.Change) {
	// A change already taken off the queue is written even during shutdown.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()
	if err := r.Insert(ctx, change); err != nil {
		r.logger.Warn("recording control change failed", "address", change.Message.Address, "error", err)
	}
}

func (r *Recorder) prune(ctx context.Context) {
	if r.retention <= 0 {
		return
	}
	n, err := r.Prune(ctx, time.Now().Add(-r.retention))
	if err != nil {
		r.logger.Warn("pruning history failed", "error", err)
		return
	}
	if n > 0 {
		r.logger.Info("pruned history", "removed", n)
	}
}

// Insert stores one change synchronously.
func (r *Recorder) Insert(ctx context.Context, change mixer.Change) error {
	args := change.Message.Args
	if args == nil {
		args = []any{}
	}
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("marshalling args: %w", err)
	}
	at := change.At
	if at.IsZero() {
		at = time.Now()
	}

	_, err = r.db.ExecContext(ctx,
		"INSERT INTO control_changes (address, args, origin, recorded_at) VALUES (?, ?, ?, ?)",
		change.Message.Address,
		string(argsJSON),
		string(change.Origin),
		at.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("inserting control change: %w", err)
	}
	return nil
}

// Query returns the most recent changes to address, newest first.
// A limit below one means the default of 100; it is capped at 1000.
func (r *Recorder) Query(ctx context.Context, address string, limit int) ([]Record, error) {
	if address == "" {
		return nil, ErrAddressRequired
	}
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	if limit > maxQueryLimit {
		limit = maxQueryLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, address, args, origin, recorded_at
		 FROM control_changes
		 WHERE address = ?
		 ORDER BY id DESC
		 LIMIT ?`,
		address,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0, limit)
	for rows.Next() {
		var rec Record
		var argsJSON string
		var recordedAt int64
		if err := rows.Scan(&rec.ID, &rec.Address, &argsJSON, &rec.Origin, &recordedAt); err != nil {
			return nil, fmt.Errorf("scanning history: %w", err)
		}
		if err := json.Unmarshal([]byte(argsJSON), &rec.Args); err != nil {
			return nil, fmt.Errorf("unmarshalling args: %w", err)
		}
		rec.At = time.UnixMilli(recordedAt).UTC()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating history: %w", err)
	}
	return records, nil
}

// Prune deletes records older than before and reports how many went.
func (r *Recorder) Prune(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM control_changes WHERE recorded_at < ?",
		before.UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("deleting history: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}
