package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ideaforge/billingcore/pkg/pg"
	"github.com/ideaforge/billingcore/pkg/plan"
)

// PostgresStore implements Store on pgx. Quota guards and the monthly reset
// boundary are expressed in the statement predicates so concurrent webhook
// handling, request-path increments, and the sweeper stay consistent
// without locks.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// quotaColumns maps quota types to their fixed column pair. Lookup failure
// means a programming error upstream, never user input reaching SQL.
func quotaColumns(q plan.Quota) (usedCol, limitCol string, err error) {
	switch q {
	case plan.QuotaIdeas:
		return "ideas_used", "ideas_limit", nil
	case plan.QuotaValidations:
		return "validations_used", "validations_limit", nil
	case plan.QuotaContent:
		return "content_used", "content_limit", nil
	default:
		return "", "", fmt.Errorf("%w: %q", ErrUnknownQuota, q)
	}
}

func (s *PostgresStore) Get(ctx context.Context, userID string) (*Limits, error) {
	var l Limits
	var ideasUsed, validationsUsed, contentUsed int64
	var ideasLimit, validationsLimit, contentLimit int64

	err := s.pool.QueryRow(ctx,
		`SELECT user_id, plan_type,
			ideas_used, validations_used, content_used,
			ideas_limit, validations_limit, content_limit,
			reset_date, updated_at
		 FROM usage_limits WHERE user_id = $1`,
		userID).Scan(&l.UserID, &l.PlanType,
		&ideasUsed, &validationsUsed, &contentUsed,
		&ideasLimit, &validationsLimit, &contentLimit,
		&l.ResetDate, &l.UpdatedAt)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	l.Used = map[plan.Quota]int64{
		plan.QuotaIdeas:       ideasUsed,
		plan.QuotaValidations: validationsUsed,
		plan.QuotaContent:     contentUsed,
	}
	l.Limits = map[plan.Quota]int64{
		plan.QuotaIdeas:       ideasLimit,
		plan.QuotaValidations: validationsLimit,
		plan.QuotaContent:     contentLimit,
	}
	return &l, nil
}

func (s *PostgresStore) Create(ctx context.Context, l *Limits) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO usage_limits
			(user_id, plan_type,
			 ideas_used, validations_used, content_used,
			 ideas_limit, validations_limit, content_limit,
			 reset_date, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (user_id) DO NOTHING`,
		l.UserID, l.PlanType,
		l.Used[plan.QuotaIdeas], l.Used[plan.QuotaValidations], l.Used[plan.QuotaContent],
		l.Limits[plan.QuotaIdeas], l.Limits[plan.QuotaValidations], l.Limits[plan.QuotaContent],
		l.ResetDate, l.UpdatedAt)
	return err
}

func (s *PostgresStore) Increment(ctx context.Context, userID string, q plan.Quota, limit int64) (bool, error) {
	usedCol, _, err := quotaColumns(q)
	if err != nil {
		return false, err
	}

	// The guard compares against the caller-supplied call-time limit, not
	// the stored one, so plan changes apply without a row rewrite racing
	// the check.
	tag, err := s.pool.Exec(ctx,
		`UPDATE usage_limits
		 SET `+usedCol+` = `+usedCol+` + 1, updated_at = NOW()
		 WHERE user_id = $1 AND ($2 = -1 OR `+usedCol+` < $2)`,
		userID, limit)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM usage_limits WHERE user_id = $1)`, userID).Scan(&exists); err != nil {
			return false, err
		}
		if !exists {
			return false, ErrNotFound
		}
		return false, nil
	}
	return true, nil
}

func (s *PostgresStore) ResetIfDue(ctx context.Context, userID string, now time.Time) (bool, error) {
	// reset_date advances exactly one month per reset; the predicate keeps
	// a concurrent reset from double-advancing.
	tag, err := s.pool.Exec(ctx,
		`UPDATE usage_limits
		 SET ideas_used = 0, validations_used = 0, content_used = 0,
			reset_date = reset_date + INTERVAL '1 month',
			updated_at = NOW()
		 WHERE user_id = $1 AND reset_date <= $2`,
		userID, now)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM usage_limits WHERE user_id = $1)`, userID).Scan(&exists); err != nil {
			return false, err
		}
		if !exists {
			return false, ErrNotFound
		}
		return false, nil
	}
	return true, nil
}

func (s *PostgresStore) ApplyPlan(ctx context.Context, userID string, planType plan.Type, limits map[plan.Quota]int64, resetDate time.Time) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO usage_limits
			(user_id, plan_type,
			 ideas_used, validations_used, content_used,
			 ideas_limit, validations_limit, content_limit,
			 reset_date, updated_at)
		 VALUES ($1, $2, 0, 0, 0, $3, $4, $5, $6, NOW())
		 ON CONFLICT (user_id) DO UPDATE SET
			plan_type = EXCLUDED.plan_type,
			ideas_used = 0, validations_used = 0, content_used = 0,
			ideas_limit = EXCLUDED.ideas_limit,
			validations_limit = EXCLUDED.validations_limit,
			content_limit = EXCLUDED.content_limit,
			reset_date = EXCLUDED.reset_date,
			updated_at = NOW()`,
		userID, planType,
		limits[plan.QuotaIdeas], limits[plan.QuotaValidations], limits[plan.QuotaContent],
		resetDate)
	return err
}
