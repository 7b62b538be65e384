// Package deploy executes a migration plan against a live database.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgcompose/pgcompose/internal/fingerprint"
	"github.com/pgcompose/pgcompose/internal/logger"
	"github.com/pgcompose/pgcompose/internal/plan"
	"github.com/pgcompose/pgcompose/internal/source"
)

// Options configures Execute.
type Options struct {
	// DryRun returns the statements without connecting.
	DryRun bool
	// LockTimeout bounds how long each statement waits for locks. Zero keeps
	// the server setting.
	LockTimeout time.Duration
	// VerifyFingerprint reloads the target first and refuses to run unless it
	// still matches the plan's source fingerprint.
	VerifyFingerprint bool
	// Source must be the options the plan's source catalog was loaded with,
	// so the reloaded target is filtered and scoped the same way.
	Source source.Options
	// ApplicationName is reported in pg_stat_activity.
	ApplicationName string
}

// Result describes what Execute did.
type Result struct {
	Statements []string      `json:"statements"`
	Executed   int           `json:"executed"`
	DryRun     bool          `json:"dry_run"`
	Duration   time.Duration `json:"duration"`
}

// StatementError reports the statement that failed. The transaction was
// rolled back, so no earlier statement of the plan is left applied.
type StatementError struct {
	Index int
	SQL   string
	Err   error
}

func (e *StatementError) Error() string {
	msg := e.Err.Error()
	var pgErr *pgconn.PgError
	if errors.As(e.Err, &pgErr) {
		msg = fmt.Sprintf("%s (SQLSTATE %s)", pgErr.Message, pgErr.Code)
	}
	return fmt.Sprintf("statement %d failed: %s\n%s", e.Index+1, msg, e.SQL)
}

func (e *StatementError) Unwrap() error { return e.Err }

// Execute runs every statement of p on the database at url in a single
// transaction.
func Execute(ctx context.Context, url string, p *plan.Plan, opts Options) (*Result, error) {
	res := &Result{Statements: p.Statements(), DryRun: opts.DryRun}
	if opts.DryRun || p.Empty() {
		return res, nil
	}
	start := time.Now()
	log := logger.Get()

	cfg, err := pgx.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("invalid database URL: %w", err)
	}
	if opts.ApplicationName != "" {
		cfg.RuntimeParams["application_name"] = opts.ApplicationName
	}
	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	defer conn.Close(context.Background())

	if opts.VerifyFingerprint {
		if err := verify(ctx, url, p, opts.Source); err != nil {
			return nil, err
		}
	}

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		// No-op after a successful commit.
		_ = tx.Rollback(context.Background())
	}()

	if opts.LockTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", opts.LockTimeout.Milliseconds())
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to set lock timeout: %w", err)
		}
	}

	for i, stmt := range res.Statements {
		if logger.IsDebug() {
			log.Debug("Executing SQL", "index", i+1, "sql", stmt)
		}
		if _, err := tx.Exec(ctx, stmt); err != nil {
			log.Debug("SQL execution failed", "index", i+1, "error", err)
			return nil, &StatementError{Index: i, SQL: stmt, Err: err}
		}
		res.Executed++
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	res.Duration = time.Since(start)
	log.Debug("plan applied", "statements", res.Executed, "duration", res.Duration)
	return res, nil
}

// verify reloads the target through the same source path the plan was
// computed from and compares fingerprints.
func verify(ctx context.Context, url string, p *plan.Plan, opts source.Options) error {
	if p.SourceFingerprint == nil {
		return errors.New("plan has no source fingerprint to verify against")
	}
	loaded, err := source.Load(ctx, url, opts)
	if err != nil {
		return fmt.Errorf("failed to reload target for fingerprint check: %w", err)
	}
	current, err := fingerprint.ComputeFingerprint(loaded.Catalog)
	if err != nil {
		return err
	}
	if err := fingerprint.Compare(p.SourceFingerprint, current); err != nil {
		return fmt.Errorf("target changed since the plan was generated: %w", err)
	}
	return nil
}
