package requestlog

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jackycchen/api-mock-platform/pkg/logging"
	"github.com/jackycchen/api-mock-platform/pkg/metrics"
)

//go:embed schema.sql
var schemaSQL string

const (
	defaultBufferSize    = 1024
	defaultBatchSize     = 100
	defaultFlushInterval = 500 * time.Millisecond
)

// SQLiteConfig tunes the SQLite write path. Zero values use the defaults.
type SQLiteConfig struct {
	Path          string
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
}

// SQLiteStore implements Store with buffered, batched writes to SQLite.
// Append never blocks; records are dropped when the buffer is full.
type SQLiteStore struct {
	db      *sql.DB
	log     *slog.Logger
	cfg     SQLiteConfig
	writeCh chan *Record
	flushCh chan chan struct{}
	wg      sync.WaitGroup

	mu     sync.RWMutex // guards closed against Append racing Close
	closed bool
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the database at cfg.Path and starts the
// background writer.
func NewSQLiteStore(cfg SQLiteConfig, log *slog.Logger) (*SQLiteStore, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaultFlushInterval
	}
	if log == nil {
		log = logging.Nop()
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(2) // one writer, one reader
	db.SetMaxIdleConns(2)

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	s := &SQLiteStore{
		db:      db,
		log:     log,
		cfg:     cfg,
		writeCh: make(chan *Record, cfg.BufferSize),
		flushCh: make(chan chan struct{}),
	}
	s.wg.Add(1)
	go s.consumeWrites()
	return s, nil
}

// Append enqueues rec for persistence. It returns ErrBufferFull when the
// record had to be dropped.
func (s *SQLiteStore) Append(_ context.Context, rec *Record) error {
	if rec == nil {
		return nil
	}
	c := rec.Clone()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	select {
	case s.writeCh <- c:
		return nil
	default:
		metrics.RecordCallLogDropped(1)
		return ErrBufferFull
	}
}

// Flush blocks until every record enqueued before the call is committed.
func (s *SQLiteStore) Flush(ctx context.Context) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrClosed
	}
	done := make(chan struct{})
	select {
	case s.flushCh <- done:
	case <-ctx.Done():
		s.mu.RUnlock()
		return ctx.Err()
	}
	s.mu.RUnlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SQLiteStore) consumeWrites() {
	defer s.wg.Done()

	batch := make([]*Record, 0, s.cfg.BatchSize)
	ticker := time.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) > 0 {
			s.flushBatch(batch)
			clear(batch)
			batch = batch[:0]
		}
	}

	for {
		select {
		case rec, ok := <-s.writeCh:
			if !ok {
				flush()
				return
			}
			if rec == nil {
				continue
			}
			batch = append(batch, rec)
			if len(batch) >= s.cfg.BatchSize {
				flush()
			}

		case done := <-s.flushCh:
			// Close may shut writeCh while the buffer is being drained.
			closed := false
		drain:
			for {
				select {
				case rec, ok := <-s.writeCh:
					if !ok {
						closed = true
						break drain
					}
					if rec != nil {
						batch = append(batch, rec)
					}
				default:
					break drain
				}
			}
			flush()
			close(done)
			if closed {
				return
			}

		case <-ticker.C:
			flush()
		}
	}
}

const insertSQL = `
	INSERT OR IGNORE INTO mock_call_logs (
		id, rule_id, rule_name, project_id, mode, method, path,
		request_headers, request_body, request_params,
		response_status, response_headers, response_body, response_time_ms,
		client_ip, annotation, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (s *SQLiteStore) flushBatch(batch []*Record) {
	tx, err := s.db.Begin()
	if err != nil {
		s.log.Error("begin call log tx", "error", err, "dropped", len(batch))
		metrics.RecordCallLogDropped(len(batch))
		return
	}

	stmt, err := tx.Prepare(insertSQL)
	if err != nil {
		_ = tx.Rollback()
		s.log.Error("prepare call log insert", "error", err, "dropped", len(batch))
		metrics.RecordCallLogDropped(len(batch))
		return
	}
	defer stmt.Close()

	for _, rec := range batch {
		if _, err := stmt.Exec(
			rec.ID, rec.RuleID, rec.RuleName, rec.ProjectID, rec.Mode, rec.Method, rec.Path,
			rec.RequestHeaders, rec.RequestBody, rec.RequestParams,
			rec.ResponseStatus, rec.ResponseHeaders, rec.ResponseBody, rec.ResponseTimeMs,
			rec.ClientIP, rec.Annotation, rec.CreatedAt.UnixNano(),
		); err != nil {
			s.log.Error("insert call log", "id", rec.ID, "error", err)
			metrics.RecordCallLogDropped(1)
		}
	}

	if err := tx.Commit(); err != nil {
		s.log.Error("commit call logs", "error", err, "dropped", len(batch))
		metrics.RecordCallLogDropped(len(batch))
	}
}

const selectColumns = `
	id, rule_id, rule_name, project_id, mode, method, path,
	request_headers, request_body, request_params,
	response_status, response_headers, response_body, response_time_ms,
	client_ip, annotation, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var rec Record
	var created int64
	if err := row.Scan(
		&rec.ID, &rec.RuleID, &rec.RuleName, &rec.ProjectID, &rec.Mode, &rec.Method, &rec.Path,
		&rec.RequestHeaders, &rec.RequestBody, &rec.RequestParams,
		&rec.ResponseStatus, &rec.ResponseHeaders, &rec.ResponseBody, &rec.ResponseTimeMs,
		&rec.ClientIP, &rec.Annotation, &created,
	); err != nil {
		return nil, err
	}
	rec.CreatedAt = time.Unix(0, created)
	return &rec, nil
}

// Get returns the committed record with the given ID.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+selectColumns+" FROM mock_call_logs WHERE id = ?", id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get call log: %w", err)
	}
	return rec, nil
}

// List returns committed records newest first.
func (s *SQLiteStore) List(ctx context.Context, filter *Filter) ([]*Record, error) {
	var conds []string
	var args []any

	if filter != nil {
		if filter.RuleID != "" {
			conds = append(conds, "rule_id = ?")
			args = append(args, filter.RuleID)
		}
		if filter.ProjectID != "" {
			conds = append(conds, "project_id = ?")
			args = append(args, filter.ProjectID)
		}
		if filter.Mode != "" {
			conds = append(conds, "mode = ? COLLATE NOCASE")
			args = append(args, filter.Mode)
		}
		if filter.Method != "" {
			conds = append(conds, "method = ? COLLATE NOCASE")
			args = append(args, filter.Method)
		}
		if filter.Path != "" {
			conds = append(conds, "substr(path, 1, ?) = ?")
			args = append(args, len(filter.Path), filter.Path)
		}
		if filter.Status != 0 {
			conds = append(conds, "response_status = ?")
			args = append(args, filter.Status)
		}
		if !filter.Since.IsZero() {
			conds = append(conds, "created_at >= ?")
			args = append(args, filter.Since.UnixNano())
		}
		if !filter.Until.IsZero() {
			conds = append(conds, "created_at < ?")
			args = append(args, filter.Until.UnixNano())
		}
	}

	query := "SELECT " + selectColumns + " FROM mock_call_logs"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, seq DESC LIMIT ? OFFSET ?"
	args = append(args, filter.limit(), filter.offset())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list call logs: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan call log: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Count returns the number of committed records.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM mock_call_logs").Scan(&n); err != nil {
		return 0, fmt.Errorf("count call logs: %w", err)
	}
	return n, nil
}

// PurgeOlderThan deletes committed records created before t.
func (s *SQLiteStore) PurgeOlderThan(ctx context.Context, t time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM mock_call_logs WHERE created_at < ?", t.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("purge call logs: %w", err)
	}
	return res.RowsAffected()
}

// Close stops the writer after committing buffered records, then closes the
// database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.writeCh)
	s.mu.Unlock()

	s.wg.Wait()
	return s.db.Close()
}
