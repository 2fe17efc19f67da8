package uow

import (
	"context"

	"github.com/kirinyoku/staygo/internal/repository"
)

// AfterCommit is a function that runs after a successful transaction commit.
type AfterCommit func(ctx context.Context)

// UoW represents a unit of work.
type UoW struct {
	store repository.Store
}

func NewUoW(store repository.Store) *UoW {
	return &UoW{store: store}
}

// Do runs fn inside the store transaction. After a successful commit,
// it executes all after-commit hooks in registration order.
func (u *UoW) Do(
	ctx context.Context,
	fn func(ctx context.Context, facts repository.Facts, after func(AfterCommit)) error,
) error {
	var hooks []AfterCommit

	err := u.store.InTx(ctx, func(ctx context.Context, facts repository.Facts) error {
		// a retried or failed attempt must not leak hooks
		hooks = hooks[:0]

		return fn(ctx, facts, func(h AfterCommit) {
			hooks = append(hooks, h)
		})
	})
	if err != nil {
		return err
	}

	for _, h := range hooks {
		h(ctx)
	}

	return nil
}
