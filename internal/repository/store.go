package repository

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
)

// PostgresStore runs the ledger against Postgres through sqlx.
type PostgresStore struct {
	db         *sqlx.DB
	maxRetries int
}

func NewPostgresStore(db *sqlx.DB, maxRetries int) *PostgresStore {
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}
	return &PostgresStore{db: db, maxRetries: maxRetries}
}

func newRepositories(db sqlx.ExtContext) Repositories {
	return Repositories{
		Leases:   NewLeaseRepository(db),
		Charges:  NewChargeRepository(db),
		Payments: NewPaymentRepository(db),
		Policies: NewLateFeePolicyRepository(db),
	}
}

func (s *PostgresStore) Repos() Repositories {
	return newRepositories(s.db)
}

// WithinTx runs fn in a SERIALIZABLE transaction. Conflicts with concurrent
// transactions roll back and run fn again from scratch.
func (s *PostgresStore) WithinTx(ctx context.Context, fn TxFunc) error {
	return WithRetries(ctx, func() error {
		tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if err := fn(ctx, newRepositories(tx)); err != nil {
			return err
		}

		return tx.Commit()
	}, s.maxRetries, IsContentionError)
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
