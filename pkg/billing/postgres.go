package billing

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ideaforge/billingcore/pkg/pg"
	"github.com/ideaforge/billingcore/pkg/plan"
)

// PostgresSubscriptionStore implements SubscriptionStore on pgx. Every guard
// the interface promises is expressed in the WHERE clause of the statement,
// so the guarantee holds across stateless instances without locks.
type PostgresSubscriptionStore struct {
	pool *pgxpool.Pool
}

func NewPostgresSubscriptionStore(pool *pgxpool.Pool) *PostgresSubscriptionStore {
	return &PostgresSubscriptionStore{pool: pool}
}

const subscriptionColumns = `id, user_id, external_subscription_id, status, plan_type,
	current_period_start, current_period_end, cancel_at_period_end, created_at, updated_at`

func scanSubscription(row pgx.Row) (*Subscription, error) {
	var sub Subscription
	err := row.Scan(&sub.ID, &sub.UserID, &sub.ExternalID, &sub.Status, &sub.PlanType,
		&sub.CurrentPeriodStart, &sub.CurrentPeriodEnd, &sub.CancelAtPeriodEnd,
		&sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}
	return &sub, nil
}

func (s *PostgresSubscriptionStore) GetByExternalID(ctx context.Context, externalID string) (*Subscription, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE external_subscription_id = $1`,
		externalID)
	return scanSubscription(row)
}

func (s *PostgresSubscriptionStore) CurrentByUserID(ctx context.Context, userID string) (*Subscription, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions
		 WHERE user_id = $1 ORDER BY created_at DESC LIMIT 1`,
		userID)
	return scanSubscription(row)
}

func (s *PostgresSubscriptionStore) UpsertActive(ctx context.Context, sub *Subscription) error {
	// The conflict branch carries the monotonic guard: a replayed activation
	// whose period end is older than the stored one updates zero rows, so it
	// can never rewind a renewal or resurrect a cleared cancellation flag.
	// A plan change is the one legitimate reason to rewrite the period.
	_, err := s.pool.Exec(ctx,
		`INSERT INTO subscriptions (`+subscriptionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (external_subscription_id) DO UPDATE SET
			status = EXCLUDED.status,
			plan_type = EXCLUDED.plan_type,
			current_period_start = EXCLUDED.current_period_start,
			current_period_end = EXCLUDED.current_period_end,
			cancel_at_period_end = FALSE,
			updated_at = NOW()
		 WHERE EXCLUDED.current_period_end >= subscriptions.current_period_end
			OR EXCLUDED.plan_type <> subscriptions.plan_type`,
		sub.ID, sub.UserID, sub.ExternalID, sub.Status, sub.PlanType,
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.CancelAtPeriodEnd,
		sub.CreatedAt, sub.UpdatedAt)
	return err
}

func (s *PostgresSubscriptionStore) ExtendPeriod(ctx context.Context, externalID string, newEnd time.Time) (bool, error) {
	// Monotonic guard lives in the predicate: a stale renewal updates zero rows.
	tag, err := s.pool.Exec(ctx,
		`UPDATE subscriptions
		 SET current_period_end = $2, updated_at = NOW()
		 WHERE external_subscription_id = $1 AND current_period_end < $2`,
		externalID, newEnd)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		// Distinguish "guard rejected" from "no such subscription".
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM subscriptions WHERE external_subscription_id = $1)`,
			externalID).Scan(&exists); err != nil {
			return false, err
		}
		if !exists {
			return false, ErrSubscriptionNotFound
		}
		return false, nil
	}
	return true, nil
}

func (s *PostgresSubscriptionStore) MarkCancelAtPeriodEnd(ctx context.Context, externalID string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE subscriptions
		 SET cancel_at_period_end = TRUE, updated_at = NOW()
		 WHERE external_subscription_id = $1 AND status = $2 AND NOT cancel_at_period_end`,
		externalID, StatusActive)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM subscriptions WHERE external_subscription_id = $1)`,
			externalID).Scan(&exists); err != nil {
			return false, err
		}
		if !exists {
			return false, ErrSubscriptionNotFound
		}
		return false, nil
	}
	return true, nil
}

func (s *PostgresSubscriptionStore) ClaimExpired(ctx context.Context, now time.Time, limit int) ([]Subscription, error) {
	// Claiming stamps the lease instead of flipping the status: the flip
	// belongs to MarkExpired, after the downgrade succeeded. Rows with a
	// lapsed lease are re-claimable, so a crashed or failed sweep is resumed
	// by the next one. FOR UPDATE SKIP LOCKED keeps concurrent sweepers from
	// blocking each other.
	rows, err := s.pool.Query(ctx,
		`UPDATE subscriptions SET sweep_claimed_at = $3, updated_at = NOW()
		 WHERE id IN (
			SELECT id FROM subscriptions
			WHERE status = $1 AND cancel_at_period_end AND current_period_end < $3
				AND (sweep_claimed_at IS NULL OR sweep_claimed_at < $2)
			ORDER BY current_period_end
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+subscriptionColumns,
		StatusActive, now.Add(-sweepClaimLease), now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var claimed []Subscription
	for rows.Next() {
		var sub Subscription
		if err := rows.Scan(&sub.ID, &sub.UserID, &sub.ExternalID, &sub.Status, &sub.PlanType,
			&sub.CurrentPeriodStart, &sub.CurrentPeriodEnd, &sub.CancelAtPeriodEnd,
			&sub.CreatedAt, &sub.UpdatedAt); err != nil {
			return nil, err
		}
		claimed = append(claimed, sub)
	}
	return claimed, rows.Err()
}

func (s *PostgresSubscriptionStore) MarkExpired(ctx context.Context, externalID string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE subscriptions
		 SET status = $2, sweep_claimed_at = NULL, updated_at = NOW()
		 WHERE external_subscription_id = $1 AND status = $3`,
		externalID, StatusCancelled, StatusActive)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM subscriptions WHERE external_subscription_id = $1)`,
			externalID).Scan(&exists); err != nil {
			return false, err
		}
		if !exists {
			return false, ErrSubscriptionNotFound
		}
		return false, nil
	}
	return true, nil
}

// PostgresUserStore implements UserStore on pgx.
type PostgresUserStore struct {
	pool *pgxpool.Pool
}

func NewPostgresUserStore(pool *pgxpool.Pool) *PostgresUserStore {
	return &PostgresUserStore{pool: pool}
}

func (s *PostgresUserStore) Get(ctx context.Context, id string) (*User, error) {
	var u User
	err := s.pool.QueryRow(ctx,
		`SELECT id, plan_type, subscription_status, updated_at FROM users WHERE id = $1`,
		id).Scan(&u.ID, &u.PlanType, &u.SubscriptionStatus, &u.UpdatedAt)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *PostgresUserStore) SetPlan(ctx context.Context, id string, planType plan.Type, subStatus string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, plan_type, subscription_status, updated_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (id) DO UPDATE SET
			plan_type = EXCLUDED.plan_type,
			subscription_status = EXCLUDED.subscription_status,
			updated_at = NOW()`,
		id, planType, subStatus)
	return err
}

// PostgresPaymentStore implements PaymentStore on pgx.
type PostgresPaymentStore struct {
	pool *pgxpool.Pool
}

func NewPostgresPaymentStore(pool *pgxpool.Pool) *PostgresPaymentStore {
	return &PostgresPaymentStore{pool: pool}
}

func (s *PostgresPaymentStore) Insert(ctx context.Context, tx *PaymentTransaction) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO payment_transactions
			(id, user_id, external_payment_id, external_subscription_id, amount, currency, status, captured_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (external_payment_id) DO NOTHING`,
		tx.ID, tx.UserID, tx.ExternalPaymentID, tx.ExternalSubscriptionID,
		tx.Amount, tx.Currency, tx.Status, tx.CapturedAt, tx.CreatedAt)
	if pg.IsDuplicateKeyError(err) {
		return nil
	}
	return err
}

func (s *PostgresPaymentStore) ListByUser(ctx context.Context, userID string) ([]PaymentTransaction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, external_payment_id, external_subscription_id, amount, currency, status, captured_at, created_at
		 FROM payment_transactions WHERE user_id = $1 ORDER BY created_at DESC`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PaymentTransaction
	for rows.Next() {
		var tx PaymentTransaction
		if err := rows.Scan(&tx.ID, &tx.UserID, &tx.ExternalPaymentID, &tx.ExternalSubscriptionID,
			&tx.Amount, &tx.Currency, &tx.Status, &tx.CapturedAt, &tx.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}
