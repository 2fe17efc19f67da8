package postgres

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kirinyoku/staygo/internal/repository"
)

//go:embed schema.sql
var Schema string

type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	pool *pgxpool.Pool
}

var _ repository.Store = (*Store)(nil)

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		pool: pool,
	}
}

// RunTx runs fn in a transaction. Without opts the transaction is
// SERIALIZABLE and read-write.
func (s *Store) RunTx(
	ctx context.Context,
	opts *pgx.TxOptions,
	fn func(ctx context.Context, tx DB) error,
) error {
	txOpts := pgx.TxOptions{
		IsoLevel:   pgx.Serializable,
		AccessMode: pgx.ReadWrite,
	}

	if opts != nil {
		txOpts.IsoLevel = opts.IsoLevel
		txOpts.AccessMode = opts.AccessMode
		txOpts.DeferrableMode = opts.DeferrableMode
	}

	tx, err := s.pool.BeginTx(ctx, txOpts)
	if err != nil {
		return err
	}

	defer tx.Rollback(ctx)

	if err := fn(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return nil
}

// InTx runs fn with Facts bound to a single serializable transaction.
// Serialization failures, including ones reported at commit, come back as
// repository.ErrConflict.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, facts repository.Facts) error) error {
	const op = "postgres.Store.InTx"

	err := s.RunTx(ctx, nil, func(ctx context.Context, tx DB) error {
		return fn(ctx, s.factRepo().With(tx))
	})
	if err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

// Migrate applies the embedded schema. Every statement in it is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	const op = "postgres.Store.Migrate"

	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

func (s *Store) Facts() repository.Facts { return s.factRepo() }

func (s *Store) factRepo() *FactRepo { return &FactRepo{pool: s.pool} }
