package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/retail-checkout/internal/domain/member"
)

var _ member.Repository = (*MemberRepository)(nil)

// MemberRepository implements member.Repository backed by PostgreSQL.
type MemberRepository struct {
	pool *pgxpool.Pool
}

// NewMemberRepository returns a MemberRepository that uses the given pool.
func NewMemberRepository(pool *pgxpool.Pool) *MemberRepository {
	return &MemberRepository{pool: pool}
}

// GetByID returns a member by identifier.
// Returns member.ErrNotFound when no matching member exists.
func (r *MemberRepository) GetByID(ctx context.Context, id int64) (*member.Member, error) {
	var m member.Member
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, balance FROM members WHERE id = $1`, id).
		Scan(&m.ID, &m.Name, &m.Balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, member.ErrNotFound
		}
		return nil, fmt.Errorf("getting member %d: %w", id, err)
	}
	return &m, nil
}

// AdjustBalance applies a signed delta to the member's balance.
func (r *MemberRepository) AdjustBalance(ctx context.Context, id int64, delta decimal.Decimal) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE members SET balance = balance + $2 WHERE id = $1`, id, delta)
	if err != nil {
		return fmt.Errorf("adjusting balance for member %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return member.ErrNotFound
	}
	return nil
}
