package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/humanmade/backend/internal/metrics"
	"github.com/humanmade/backend/internal/storage/schema"
	"github.com/humanmade/backend/pkg/apperror"
	"github.com/humanmade/backend/pkg/logger"
	"github.com/humanmade/backend/pkg/retry"
)

var dialect = goqu.Dialect("sqlite3")

// Client runs schema-checked statements against one SQLite file. It holds a
// single connection, so every statement is serialized by database/sql.
type Client struct {
	db       *sqlx.DB
	q        sqlx.ExtContext
	inTx     bool
	registry *schema.Registry
	retry    retry.Config
}

func NewClient(dbPath string, registry *schema.Registry) (*Client, error) {
	if registry == nil {
		registry = schema.Default
	}

	db, err := sqlx.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	_, err = db.Exec("PRAGMA busy_timeout = 5000")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	retryCfg := retry.DefaultConfig()
	retryCfg.ShouldRetry = IsBusy
	retryCfg.Logger = logger.Named("sqlite")

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db, q: db, registry: registry, retry: retryCfg}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// IsBusy reports whether err is SQLite refusing a lock, which is worth retrying.
func IsBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}

// CreateSchema creates every registered table and index that does not exist yet.
func (c *Client) CreateSchema(ctx context.Context) error {
	for _, t := range c.registry.Tables() {
		for _, stmt := range t.CreateStatements() {
			if _, err := c.exec(ctx, "create", t.Name, stmt, nil); err != nil {
				return fmt.Errorf("failed to initialize schema: %w", err)
			}
		}
	}

	logger.Info("SQLite schema initialized", zap.Int("tables", len(c.registry.Tables())))
	return nil
}

// WithTx runs fn against a client bound to one transaction. A busy database
// restarts the whole transaction; any other error rolls it back.
func (c *Client) WithTx(ctx context.Context, fn func(tx *Client) error) error {
	if c.inTx {
		return fn(c)
	}

	return retry.Do(ctx, c.retry, func() error {
		tx, err := c.db.BeginTxx(ctx, nil)
		if err != nil {
			return apperror.Store("begin transaction", err)
		}

		txClient := *c
		txClient.q = tx
		txClient.inTx = true

		if err := fn(&txClient); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				logger.Warn("Transaction rollback failed", zap.Error(rbErr))
			}
			return err
		}

		if err := tx.Commit(); err != nil {
			return apperror.Store("commit transaction", err)
		}
		return nil
	})
}

func (c *Client) table(name string) (schema.Table, error) {
	t, ok := c.registry.Table(name)
	if !ok {
		return schema.Table{}, apperror.Validation("unknown table %q", name)
	}
	return t, nil
}

// settable returns the whitelisted values of row, in schema order. With
// onlyPresent, columns missing from row are left out instead of set to NULL.
func settable(t schema.Table, row Record, onlyPresent bool) goqu.Record {
	values := goqu.Record{}
	for _, col := range t.Settable() {
		v, ok := row[col]
		if !ok && onlyPresent {
			continue
		}
		values[col] = v
	}
	return values
}

// Insert writes the settable columns of row and returns the new primary key:
// the generated id for AUTOINCREMENT tables, otherwise the key from row.
func (c *Client) Insert(ctx context.Context, table string, row Record) (interface{}, error) {
	t, err := c.table(table)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, apperror.Validation("no row data provided for %s", table)
	}

	query, args, err := dialect.Insert(t.Name).
		Rows(settable(t, row, false)).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build insert into %s: %w", t.Name, err)
	}

	res, err := c.exec(ctx, "insert", t.Name, query, args)
	if err != nil {
		return nil, err
	}

	pk, ok := t.PrimaryKey()
	if !ok {
		return nil, nil
	}
	if pk.AutoIncrement {
		id, err := res.LastInsertId()
		if err != nil {
			return nil, apperror.Store("read inserted id", err)
		}
		logger.Debug("Row inserted", zap.String("table", t.Name), zap.Int64("id", id))
		return id, nil
	}

	logger.Debug("Row inserted", zap.String("table", t.Name), zap.Any("key", row[pk.Name]))
	return row[pk.Name], nil
}

// Update sets the settable columns present in row on every row matching where.
// An empty where updates the whole table, as in plain SQL.
func (c *Client) Update(ctx context.Context, table string, row Record, where Where) (int64, error) {
	t, err := c.table(table)
	if err != nil {
		return 0, err
	}
	if row == nil {
		return 0, apperror.Validation("no row data provided for %s", table)
	}

	values := settable(t, row, true)
	if len(values) == 0 {
		return 0, apperror.Validation("no settable column given for %s", table)
	}

	exps, err := where.expressions(t)
	if err != nil {
		return 0, err
	}

	query, args, err := dialect.Update(t.Name).
		Set(values).
		Where(exps...).
		Prepared(true).
		ToSQL()
	if err != nil {
		return 0, fmt.Errorf("failed to build update of %s: %w", t.Name, err)
	}

	res, err := c.exec(ctx, "update", t.Name, query, args)
	if err != nil {
		return 0, err
	}
	return affected(res)
}

// Delete refuses to run without at least one where clause.
func (c *Client) Delete(ctx context.Context, table string, where Where) (int64, error) {
	t, err := c.table(table)
	if err != nil {
		return 0, err
	}

	exps, err := where.expressions(t)
	if err != nil {
		return 0, err
	}
	if len(exps) == 0 {
		return 0, apperror.Validation("refusing to delete from %s without a where clause", t.Name)
	}

	query, args, err := dialect.Delete(t.Name).
		Where(exps...).
		Prepared(true).
		ToSQL()
	if err != nil {
		return 0, fmt.Errorf("failed to build delete from %s: %w", t.Name, err)
	}

	res, err := c.exec(ctx, "delete", t.Name, query, args)
	if err != nil {
		return 0, err
	}
	return affected(res)
}

func (c *Client) Count(ctx context.Context, table string, where Where) (int64, error) {
	t, err := c.table(table)
	if err != nil {
		return 0, err
	}

	query, args, err := selectSQL(t, ComputedOptions{
		Select: []Projection{Expr("COUNT(*) AS count")},
		Where:  where,
	})
	if err != nil {
		return 0, err
	}

	var n int64
	start := time.Now()
	err = sqlx.GetContext(ctx, c.q, &n, query, args...)
	observe("count", t.Name, start, err)
	if err != nil {
		return 0, apperror.Store("count "+t.Name, err)
	}
	return n, nil
}

// ListComputed runs an arbitrary projection/aggregate query. Rows come back as
// Records because aliases and aggregates have no static shape.
func (c *Client) ListComputed(ctx context.Context, table string, opts ComputedOptions) ([]Record, error) {
	t, err := c.table(table)
	if err != nil {
		return nil, err
	}

	query, args, err := selectSQL(t, opts)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	rows, err := c.q.QueryxContext(ctx, query, args...)
	if err != nil {
		observe("select", t.Name, start, err)
		return nil, apperror.Store("select from "+t.Name, err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		r := Record{}
		if err := rows.MapScan(r); err != nil {
			observe("select", t.Name, start, err)
			return nil, apperror.Store("scan "+t.Name, err)
		}
		for k, v := range r {
			if b, ok := v.([]byte); ok {
				r[k] = string(b)
			}
		}
		records = append(records, r)
	}
	err = rows.Err()
	observe("select", t.Name, start, err)
	if err != nil {
		return nil, apperror.Store("iterate "+t.Name, err)
	}

	return records, nil
}

// List returns whole rows of table scanned into T, whose db tags must cover
// every column of the table.
func List[T any](ctx context.Context, c *Client, table string, opts ListOptions) ([]T, error) {
	t, err := c.table(table)
	if err != nil {
		return nil, err
	}

	query, args, err := selectSQL(t, ComputedOptions{
		Where:   opts.Where,
		OrderBy: opts.OrderBy,
		Limit:   opts.Limit,
	})
	if err != nil {
		return nil, err
	}

	var rows []T
	start := time.Now()
	err = sqlx.SelectContext(ctx, c.q, &rows, query, args...)
	observe("select", t.Name, start, err)
	if err != nil {
		return nil, apperror.Store("select from "+t.Name, err)
	}
	return rows, nil
}

func selectSQL(t schema.Table, opts ComputedOptions) (string, []interface{}, error) {
	ds := dialect.From(t.Name).Prepared(true)

	if len(opts.Select) > 0 {
		cols := make([]interface{}, 0, len(opts.Select))
		for _, p := range opts.Select {
			sel, err := p.selection(t)
			if err != nil {
				return "", nil, err
			}
			cols = append(cols, sel)
		}
		ds = ds.Select(cols...)
	}

	exps, err := opts.Where.expressions(t)
	if err != nil {
		return "", nil, err
	}
	if len(exps) > 0 {
		ds = ds.Where(exps...)
	}

	if len(opts.GroupBy) > 0 {
		groups := make([]interface{}, 0, len(opts.GroupBy))
		for _, col := range opts.GroupBy {
			if !t.Has(col) {
				return "", nil, apperror.Validation("unknown group column %q in table %s", col, t.Name)
			}
			groups = append(groups, goqu.C(col))
		}
		ds = ds.GroupBy(groups...)
	}

	for _, o := range opts.OrderBy {
		ord, err := o.expression(t)
		if err != nil {
			return "", nil, err
		}
		ds = ds.OrderAppend(ord)
	}

	if opts.Limit > 0 {
		ds = ds.Limit(opts.Limit)
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return "", nil, fmt.Errorf("failed to build select from %s: %w", t.Name, err)
	}
	return query, args, nil
}

// exec retries busy errors itself unless it runs inside WithTx, which retries
// the whole transaction instead.
func (c *Client) exec(ctx context.Context, op, table, query string, args []interface{}) (sql.Result, error) {
	run := func() (sql.Result, error) {
		return c.q.ExecContext(ctx, query, args...)
	}

	start := time.Now()
	var (
		res sql.Result
		err error
	)
	if c.inTx {
		res, err = run()
	} else {
		res, err = retry.DoWithResult(ctx, c.retry, run)
	}
	observe(op, table, start, err)
	if err != nil {
		return nil, apperror.Store(op+" "+table, err)
	}
	return res, nil
}

func affected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperror.Store("rows affected", err)
	}
	return n, nil
}

func observe(op, table string, start time.Time, err error) {
	metrics.StoreOperationDuration.WithLabelValues(op, table).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.StoreErrors.WithLabelValues(op, table).Inc()
	}
}
