// Package mysql is a MySQL implementation of the soteria.Datastore
// interface.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/VividCortex/mysqlerr"
	"github.com/WatchBeam/clock"
	"github.com/cenkalti/backoff/v4"
	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/mysql"
	kitlog "github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/soteriadm/soteria/server/config"
	"github.com/soteriadm/soteria/server/contexts/ctxerr"
)

var dialect = goqu.Dialect("mysql")

// dbReader is an interface that defines the methods required for reads.
type dbReader interface {
	sqlx.QueryerContext

	Close() error
	Rebind(string) string
}

// Datastore is an implementation of soteria.Datastore backed by MySQL.
type Datastore struct {
	reader dbReader // so it cannot be used to perform writes
	writer *sqlx.DB

	logger kitlog.Logger
	clock  clock.Clock
	config config.MysqlConfig
}

type dbOptions struct {
	maxAttempts int
	logger      kitlog.Logger
}

// DBOption is used to pass optional arguments to New.
type DBOption func(o *dbOptions)

// Logger sets a logger for the datastore.
func Logger(l kitlog.Logger) DBOption {
	return func(o *dbOptions) {
		o.logger = l
	}
}

// MaxAttempts sets the number of connection attempts before giving up.
func MaxAttempts(n int) DBOption {
	return func(o *dbOptions) {
		o.maxAttempts = n
	}
}

// New creates a MySQL datastore.
func New(conf config.MysqlConfig, c clock.Clock, opts ...DBOption) (*Datastore, error) {
	options := &dbOptions{
		maxAttempts: 15,
		logger:      kitlog.NewNopLogger(),
	}
	for _, setOpt := range opts {
		if setOpt != nil {
			setOpt(options)
		}
	}

	if err := checkConfig(&conf); err != nil {
		return nil, err
	}

	db, err := newDB(&conf, options)
	if err != nil {
		return nil, err
	}

	return &Datastore{
		writer: db,
		reader: db,
		logger: options.logger,
		clock:  c,
		config: conf,
	}, nil
}

func newDB(conf *config.MysqlConfig, opts *dbOptions) (*sqlx.DB, error) {
	driverConf := mysql.NewConfig()
	driverConf.Net = conf.Protocol
	driverConf.Addr = conf.Address
	driverConf.User = conf.Username
	driverConf.Passwd = conf.Password
	driverConf.DBName = conf.Database
	driverConf.ParseTime = true
	driverConf.Loc = time.UTC

	db, err := sqlx.Open("mysql", driverConf.FormatDSN())
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(conf.MaxIdleConns)
	db.SetMaxOpenConns(conf.MaxOpenConns)
	db.SetConnMaxLifetime(time.Second * time.Duration(conf.ConnMaxLifetime))

	var dbError error
	for attempt := 0; attempt < opts.maxAttempts; attempt++ {
		dbError = db.Ping()
		if dbError == nil {
			break
		}
		interval := time.Duration(attempt) * time.Second
		level.Info(opts.logger).Log(
			"msg", fmt.Sprintf("could not connect to db: %v, sleeping %v", dbError, interval))
		time.Sleep(interval)
	}
	if dbError != nil {
		return nil, dbError
	}
	return db, nil
}

func checkConfig(conf *config.MysqlConfig) error {
	if conf.PasswordPath != "" && conf.Password != "" {
		return ctxerr.New(context.Background(), "A MySQL password and a MySQL password file were provided - please specify only one")
	}

	// Check to see if the flag is populated. Check for a password file first.
	if conf.PasswordPath != "" {
		fileContents, err := os.ReadFile(conf.PasswordPath)
		if err != nil {
			return err
		}
		conf.Password = strings.TrimSpace(string(fileContents))
	}
	return nil
}

// Close closes the database handles.
func (d *Datastore) Close() error {
	err := d.writer.Close()
	if d.reader != d.writer {
		if rerr := d.reader.Close(); err == nil {
			err = rerr
		}
	}
	return err
}

// HealthCheck returns an error if the MySQL backend is not healthy.
func (d *Datastore) HealthCheck() error {
	if _, err := d.writer.Exec("select 1"); err != nil {
		return err
	}
	if _, err := d.reader.QueryContext(context.Background(), "select 1"); err != nil {
		return err
	}
	return nil
}

type txFn func(tx sqlx.ExtContext) error

// retryableError determines whether a MySQL error can be retried. By default
// errors are considered non-retryable. Only errors that we know have a
// possibility of succeeding on a retry should return true in this function.
func retryableError(err error) bool {
	base := ctxerr.Cause(err)
	if b, ok := base.(*mysql.MySQLError); ok {
		switch b.Number {
		// Consider lock related errors to be retryable
		case mysqlerr.ER_LOCK_DEADLOCK, mysqlerr.ER_LOCK_WAIT_TIMEOUT:
			return true
		}
	}
	return false
}

// withRetryTxx provides a common way to commit/rollback a txFn wrapped in a
// retry with exponential backoff.
func (d *Datastore) withRetryTxx(ctx context.Context, fn txFn) error {
	operation := func() error {
		tx, err := d.writer.BeginTxx(ctx, nil)
		if err != nil {
			return ctxerr.Wrap(ctx, err, "create transaction")
		}

		defer func() {
			if p := recover(); p != nil {
				if err := tx.Rollback(); err != nil {
					d.logger.Log("err", err, "msg", "error encountered during transaction panic rollback")
				}
				panic(p)
			}
		}()

		if err := fn(tx); err != nil {
			rbErr := tx.Rollback()
			if rbErr != nil && rbErr != sql.ErrTxDone {
				// Consider rollback errors to be non-retryable
				return backoff.Permanent(ctxerr.Wrapf(ctx, err, "got err '%s' rolling back after err", rbErr.Error()))
			}

			if retryableError(err) {
				return err
			}

			// Consider any other errors to be non-retryable
			return backoff.Permanent(err)
		}

		if err := tx.Commit(); err != nil {
			err = ctxerr.Wrap(ctx, err, "commit transaction")

			if retryableError(err) {
				return err
			}

			return backoff.Permanent(err)
		}

		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 5 * time.Second
	return backoff.Retry(operation, bo)
}

// batchPlaceholders returns "(?,?,...),(?,?,...)" for n rows of width cols.
func batchPlaceholders(rows, cols int) string {
	row := "(" + strings.TrimSuffix(strings.Repeat("?,", cols), ",") + ")"
	return strings.TrimSuffix(strings.Repeat(row+",", rows), ",")
}
