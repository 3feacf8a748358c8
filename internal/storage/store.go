// Package storage persists jobs in SQLite or PostgreSQL and serves the
// filtered, paginated listings the list controller fetches.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/dthanhvu03/threadsauto-sub000/internal/domain"
)

const operationTimeout = 5 * time.Second

// Store is a SQL-backed job store.
type Store struct {
	db  *sql.DB
	d   dialect
	now func() time.Time
}

// JobUpdate carries the fields of a partial update. Nil fields are left
// untouched.
type JobUpdate struct {
	Status  *domain.JobStatus `json:"status,omitempty"`
	Title   *string           `json:"title,omitempty"`
	Content *string           `json:"content,omitempty"`
	Retries *int              `json:"retries,omitempty"`
}

// Open connects to dsn with driver and creates the schema when missing.
// For SQLite the dsn is a file path whose directory is created on demand.
func Open(driver, dsn string) (*Store, error) {
	d, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("storage: dsn cannot be empty")
	}
	if d.driver == DriverSQLite && dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("storage: create db directory: %w", err)
		}
	}

	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open db: %w", err)
	}
	if d.driver == DriverSQLite {
		// One connection keeps :memory: databases and pragmas consistent.
		db.SetMaxOpenConns(1)
	}

	s := &Store{db: db, d: d, now: func() time.Time { return time.Now().UTC() }}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Driver returns the driver name the store was opened with.
func (s *Store) Driver() string { return s.d.driver }

func (s *Store) init() error {
	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	stmts := append(append([]string{}, s.d.setup...), schemaSQL)
	stmts = append(stmts, indexSQL...)
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("storage: create schema: %w", err)
		}
	}
	return nil
}

// List returns the page of jobs matching filters, newest first, together
// with the total number of matches.
func (s *Store) List(ctx context.Context, filters domain.FilterState, p domain.Pagination) (domain.Page[domain.Job], error) {
	if p.PageSize <= 0 {
		return domain.Page[domain.Job]{}, fmt.Errorf("storage: page size must be positive")
	}
	w := buildWhere(s.d, filters)

	var total int
	if err := s.db.QueryRowContext(ctx, countQuery(w), w.args...).Scan(&total); err != nil {
		return domain.Page[domain.Job]{}, fmt.Errorf("storage: count jobs: %w", err)
	}

	query, args := listQuery(w, p)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return domain.Page[domain.Job]{}, fmt.Errorf("storage: list jobs: %w", err)
	}
	defer rows.Close()

	items := make([]domain.Job, 0, p.PageSize)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return domain.Page[domain.Job]{}, err
		}
		items = append(items, job)
	}
	if err := rows.Err(); err != nil {
		return domain.Page[domain.Job]{}, fmt.Errorf("storage: list jobs: %w", err)
	}
	return domain.Page[domain.Job]{Items: items, Total: total}, nil
}

// FetchList adapts List to the list controller's data source contract.
func (s *Store) FetchList(ctx context.Context, filters domain.FilterState, p domain.Pagination) (domain.Page[domain.Job], error) {
	return s.List(ctx, filters, p)
}

// Get returns one job.
func (s *Store) Get(ctx context.Context, id string) (domain.Job, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Job{}, ErrInvalidJobID
	}
	query := "SELECT " + jobColumns + " FROM " + jobsTable + " WHERE id = " + s.d.placeholder(1)
	job, err := scanJob(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Job{}, fmt.Errorf("storage: get job: %w: id %s", ErrJobNotFound, id)
	}
	return job, err
}

// Create inserts job. Missing IDs, statuses and timestamps are filled in.
func (s *Store) Create(ctx context.Context, job domain.Job) (domain.Job, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = domain.StatusPending
	}
	if err := validateJob(job); err != nil {
		return domain.Job{}, err
	}
	now := s.now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.CreatedAt = job.CreatedAt.UTC()
	job.UpdatedAt = now

	ph := make([]string, 9)
	for i := range ph {
		ph[i] = s.d.placeholder(i + 1)
	}
	query := "INSERT INTO " + jobsTable + " (" + jobColumns + ") VALUES (" + strings.Join(ph, ", ") + ")"
	_, err := s.db.ExecContext(ctx, query,
		job.ID, job.AccountID, string(job.Platform), string(job.Status), job.Title, job.Content, job.Retries,
		job.CreatedAt.Format(timeLayout), job.UpdatedAt.Format(timeLayout))
	if err != nil {
		return domain.Job{}, fmt.Errorf("storage: create job: %w", err)
	}
	return job, nil
}

// Update applies u to the job with id and returns the stored result.
func (s *Store) Update(ctx context.Context, id string, u JobUpdate) (domain.Job, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Job{}, ErrInvalidJobID
	}
	if u.Status != nil && !u.Status.IsValid() {
		return domain.Job{}, fmt.Errorf("%w: unknown status %q", ErrInvalidJob, *u.Status)
	}
	if u.Retries != nil && *u.Retries < 0 {
		return domain.Job{}, fmt.Errorf("%w: retries must be >= 0", ErrInvalidJob)
	}

	var sets []string
	var args []any
	set := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, col+" = "+s.d.placeholder(len(args)))
	}
	if u.Status != nil {
		set("status", string(*u.Status))
	}
	if u.Title != nil {
		set("title", *u.Title)
	}
	if u.Content != nil {
		set("content", *u.Content)
	}
	if u.Retries != nil {
		set("retries", *u.Retries)
	}
	set("updated_at", s.now().Format(timeLayout))
	args = append(args, id)
	query := "UPDATE " + jobsTable + " SET " + strings.Join(sets, ", ") + " WHERE id = " + s.d.placeholder(len(args))

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return domain.Job{}, fmt.Errorf("storage: update job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Job{}, fmt.Errorf("storage: read rows affected: %w", err)
	}
	if affected == 0 {
		return domain.Job{}, fmt.Errorf("storage: update job: %w: id %s", ErrJobNotFound, id)
	}
	return s.Get(ctx, id)
}

func validateJob(job domain.Job) error {
	if strings.TrimSpace(job.AccountID) == "" {
		return fmt.Errorf("%w: account_id is required", ErrInvalidJob)
	}
	if strings.TrimSpace(string(job.Platform)) == "" {
		return fmt.Errorf("%w: platform is required", ErrInvalidJob)
	}
	if !job.Status.IsValid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidJob, job.Status)
	}
	if job.Retries < 0 {
		return fmt.Errorf("%w: retries must be >= 0", ErrInvalidJob)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (domain.Job, error) {
	var (
		job                  domain.Job
		platform, status     string
		createdAt, updatedAt string
	)
	err := row.Scan(&job.ID, &job.AccountID, &platform, &status, &job.Title, &job.Content, &job.Retries, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Job{}, err
	}
	if err != nil {
		return domain.Job{}, fmt.Errorf("storage: scan job: %w", err)
	}
	job.Platform = domain.Platform(platform)
	job.Status = domain.JobStatus(status)
	if job.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return domain.Job{}, fmt.Errorf("storage: parse created_at %q: %w", createdAt, err)
	}
	if job.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return domain.Job{}, fmt.Errorf("storage: parse updated_at %q: %w", updatedAt, err)
	}
	return job, nil
}
