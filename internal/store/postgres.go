package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/epicdeals/instant-offer/internal/db"
	"github.com/epicdeals/instant-offer/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"save_session": `INSERT INTO sessions (token, state, created_at, updated_at) VALUES ($1, $2, $3, $4)
	                 ON CONFLICT (token) DO UPDATE SET state = $2, updated_at = $4`,
	"get_session":     `SELECT state FROM sessions WHERE token = $1`,
	"delete_session":  `DELETE FROM sessions WHERE token = $1`,
	"insert_offer":    `INSERT INTO offers (id, session_token, recommendation, sell_now, payload, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
	"get_offer":       `SELECT payload FROM offers WHERE id = $1`,
	"enqueue_review":  `INSERT INTO review_queue (id, product, contact, preliminary, notes, status, sla_deadline, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
	"complete_review": `UPDATE review_queue SET status = $1, final_offer = $2, notes = $3, completed_at = $4 WHERE id = $5`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. Used by tests with pgxmock.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS sessions (
	token      TEXT PRIMARY KEY,
	state      JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS offers (
	id             TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	session_token  TEXT NOT NULL,
	recommendation TEXT NOT NULL,
	sell_now       DOUBLE PRECISION NOT NULL,
	payload        JSONB NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS price_observations (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	offer_id      TEXT NOT NULL REFERENCES offers(id),
	source        TEXT NOT NULL,
	kind          TEXT NOT NULL,
	amount        DOUBLE PRECISION NOT NULL,
	title         TEXT,
	is_new_retail BOOLEAN NOT NULL DEFAULT false,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS review_queue (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	product      JSONB NOT NULL,
	contact      JSONB NOT NULL,
	preliminary  JSONB,
	notes        TEXT NOT NULL DEFAULT '',
	final_offer  DOUBLE PRECISION NOT NULL DEFAULT 0,
	status       TEXT NOT NULL DEFAULT 'pending',
	sla_deadline TIMESTAMPTZ NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_sessions_updated_at ON sessions(updated_at);
CREATE INDEX IF NOT EXISTS idx_offers_session ON offers(session_token);
CREATE INDEX IF NOT EXISTS idx_offers_recommendation ON offers(recommendation);
CREATE INDEX IF NOT EXISTS idx_observations_offer ON price_observations(offer_id);
CREATE INDEX IF NOT EXISTS idx_review_queue_status ON review_queue(status);
CREATE INDEX IF NOT EXISTS idx_review_queue_deadline ON review_queue(sla_deadline);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SaveSession(ctx context.Context, token string, state []byte) error {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sessions (token, state, created_at, updated_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (token) DO UPDATE SET state = $2, updated_at = $4`,
		token, state, now, now,
	)
	return eris.Wrapf(err, "postgres: save session %s", token)
}

func (s *PostgresStore) GetSession(ctx context.Context, token string) ([]byte, error) {
	var state []byte
	err := s.pool.QueryRow(ctx,
		`SELECT state FROM sessions WHERE token = $1`, token,
	).Scan(&state)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get session %s", token)
	}
	return state, nil
}

func (s *PostgresStore) DeleteSession(ctx context.Context, token string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE token = $1`, token)
	return eris.Wrapf(err, "postgres: delete session %s", token)
}

func (s *PostgresStore) DeleteStaleSessions(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM sessions WHERE updated_at < $1`, cutoff,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete stale sessions")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) SaveOffer(ctx context.Context, sessionToken string, offer *model.OfferResult) error {
	if offer.ID == "" {
		offer.ID = uuid.New().String()
	}
	if offer.CreatedAt.IsZero() {
		offer.CreatedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(offer)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal offer")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO offers (id, session_token, recommendation, sell_now, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		offer.ID, sessionToken, string(offer.Recommendation), offer.SellNowAmount,
		payload, offer.CreatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert offer %s", offer.ID)
	}

	// The denormalized observation rows feed pricing analytics; losing
	// them does not invalidate the offer itself.
	if offer.Research != nil {
		if _, err := db.CopyObservations(ctx, s.pool, offer.ID, offer.Research.Observations); err != nil {
			zap.L().Warn("failed to persist price observations",
				zap.String("offer_id", offer.ID), zap.Error(err))
		}
	}
	return nil
}

func (s *PostgresStore) GetOffer(ctx context.Context, offerID string) (*model.OfferResult, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT payload FROM offers WHERE id = $1`, offerID,
	).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Errorf("offer not found: %s", offerID)
		}
		return nil, eris.Wrapf(err, "postgres: get offer %s", offerID)
	}
	var offer model.OfferResult
	if err := json.Unmarshal(payload, &offer); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal offer")
	}
	return &offer, nil
}

func (s *PostgresStore) ListOffers(ctx context.Context, filter OfferFilter) ([]model.OfferResult, error) {
	query := `SELECT payload FROM offers WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Recommendation != "" {
		query += fmt.Sprintf(` AND recommendation = $%d`, argIdx)
		args = append(args, string(filter.Recommendation))
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
		argIdx++
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list offers")
	}
	defer rows.Close()

	var offers []model.OfferResult
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "postgres: scan offer")
		}
		var o model.OfferResult
		if err := json.Unmarshal(payload, &o); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal offer")
		}
		offers = append(offers, o)
	}
	return offers, eris.Wrap(rows.Err(), "postgres: list offers iterate")
}

func (s *PostgresStore) EnqueueReview(ctx context.Context, item *model.ReviewItem) error {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	if item.SLADeadline.IsZero() {
		item.SLADeadline = SLADeadline(item.CreatedAt, ReviewSLABusinessDays)
	}
	item.Status = model.ReviewPending

	productJSON, err := json.Marshal(item.Product)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal review product")
	}
	contactJSON, err := json.Marshal(item.Contact)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal review contact")
	}
	var preliminaryJSON []byte
	if item.Preliminary != nil {
		preliminaryJSON, err = json.Marshal(item.Preliminary)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal review preliminary")
		}
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO review_queue (id, product, contact, preliminary, notes, status, sla_deadline, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		item.ID, productJSON, contactJSON, preliminaryJSON,
		item.Notes, string(item.Status), item.SLADeadline, item.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: enqueue review %s", item.ID)
}

func (s *PostgresStore) GetReview(ctx context.Context, reviewID string) (*model.ReviewItem, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, product, contact, preliminary, notes, final_offer, status, sla_deadline, created_at, completed_at
		 FROM review_queue WHERE id = $1`,
		reviewID,
	)
	item, err := scanPgReview(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Errorf("review not found: %s", reviewID)
		}
		return nil, err
	}
	return item, nil
}

func (s *PostgresStore) ListReviews(ctx context.Context, filter ReviewFilter) ([]model.ReviewItem, error) {
	query := `SELECT id, product, contact, preliminary, notes, final_offer, status, sla_deadline, created_at, completed_at
	          FROM review_queue WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.OverdueOnly {
		query += fmt.Sprintf(` AND sla_deadline < $%d`, argIdx)
		args = append(args, time.Now().UTC())
		argIdx++
	}
	query += ` ORDER BY sla_deadline ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list reviews")
	}
	defer rows.Close()

	var items []model.ReviewItem
	for rows.Next() {
		item, err := scanPgReview(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, eris.Wrap(rows.Err(), "postgres: list reviews iterate")
}

func (s *PostgresStore) CompleteReview(ctx context.Context, reviewID string, finalOffer float64, notes string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE review_queue SET status = $1, final_offer = $2, notes = $3, completed_at = $4 WHERE id = $5`,
		string(model.ReviewComplete), finalOffer, notes, time.Now().UTC(), reviewID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete review %s", reviewID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("review not found: %s", reviewID)
	}
	return nil
}

func scanPgReview(row pgx.Row) (*model.ReviewItem, error) {
	var item model.ReviewItem
	var productJSON, contactJSON []byte
	var preliminaryJSON *[]byte
	var completedAt *time.Time

	err := row.Scan(&item.ID, &productJSON, &contactJSON, &preliminaryJSON,
		&item.Notes, &item.FinalOffer, &item.Status, &item.SLADeadline,
		&item.CreatedAt, &completedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "postgres: scan review")
	}

	if err := json.Unmarshal(productJSON, &item.Product); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal review product")
	}
	if err := json.Unmarshal(contactJSON, &item.Contact); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal review contact")
	}
	if preliminaryJSON != nil {
		item.Preliminary = &model.OfferResult{}
		if err := json.Unmarshal(*preliminaryJSON, item.Preliminary); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal review preliminary")
		}
	}
	item.CompletedAt = completedAt
	return &item, nil
}
