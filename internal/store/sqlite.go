package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/epicdeals/instant-offer/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS sessions (
	token      TEXT PRIMARY KEY,
	state      TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS offers (
	id             TEXT PRIMARY KEY,
	session_token  TEXT NOT NULL,
	recommendation TEXT NOT NULL,
	sell_now       REAL NOT NULL,
	payload        TEXT NOT NULL,
	created_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS review_queue (
	id           TEXT PRIMARY KEY,
	product      TEXT NOT NULL,
	contact      TEXT NOT NULL,
	preliminary  TEXT,
	notes        TEXT NOT NULL DEFAULT '',
	final_offer  REAL NOT NULL DEFAULT 0,
	status       TEXT NOT NULL DEFAULT 'pending',
	sla_deadline DATETIME NOT NULL,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	completed_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_sessions_updated_at ON sessions(updated_at);
CREATE INDEX IF NOT EXISTS idx_offers_session ON offers(session_token);
CREATE INDEX IF NOT EXISTS idx_offers_recommendation ON offers(recommendation);
CREATE INDEX IF NOT EXISTS idx_review_queue_status ON review_queue(status);
CREATE INDEX IF NOT EXISTS idx_review_queue_deadline ON review_queue(sla_deadline);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveSession(ctx context.Context, token string, state []byte) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (token, state, created_at, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (token) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`,
		token, string(state), now, now,
	)
	return eris.Wrapf(err, "sqlite: save session %s", token)
}

func (s *SQLiteStore) GetSession(ctx context.Context, token string) ([]byte, error) {
	var state string
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM sessions WHERE token = ?`, token,
	).Scan(&state)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get session %s", token)
	}
	return []byte(state), nil
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token)
	return eris.Wrapf(err, "sqlite: delete session %s", token)
}

func (s *SQLiteStore) DeleteStaleSessions(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE updated_at < ?`, cutoff,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete stale sessions")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) SaveOffer(ctx context.Context, sessionToken string, offer *model.OfferResult) error {
	if offer.ID == "" {
		offer.ID = uuid.New().String()
	}
	if offer.CreatedAt.IsZero() {
		offer.CreatedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(offer)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal offer")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO offers (id, session_token, recommendation, sell_now, payload, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		offer.ID, sessionToken, string(offer.Recommendation), offer.SellNowAmount,
		string(payload), offer.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert offer %s", offer.ID)
}

func (s *SQLiteStore) GetOffer(ctx context.Context, offerID string) (*model.OfferResult, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM offers WHERE id = ?`, offerID,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("offer not found: %s", offerID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get offer %s", offerID)
	}
	var offer model.OfferResult
	if err := json.Unmarshal([]byte(payload), &offer); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal offer")
	}
	return &offer, nil
}

func (s *SQLiteStore) ListOffers(ctx context.Context, filter OfferFilter) ([]model.OfferResult, error) {
	query := `SELECT payload FROM offers WHERE 1=1`
	var args []any

	if filter.Recommendation != "" {
		query += ` AND recommendation = ?`
		args = append(args, string(filter.Recommendation))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list offers")
	}
	defer rows.Close()

	var offers []model.OfferResult
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan offer")
		}
		var o model.OfferResult
		if err := json.Unmarshal([]byte(payload), &o); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal offer")
		}
		offers = append(offers, o)
	}
	return offers, eris.Wrap(rows.Err(), "sqlite: list offers iterate")
}

func (s *SQLiteStore) EnqueueReview(ctx context.Context, item *model.ReviewItem) error {
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
		return eris.Wrap(err, "sqlite: marshal review product")
	}
	contactJSON, err := json.Marshal(item.Contact)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal review contact")
	}
	var preliminaryJSON []byte
	if item.Preliminary != nil {
		preliminaryJSON, err = json.Marshal(item.Preliminary)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal review preliminary")
		}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO review_queue (id, product, contact, preliminary, notes, status, sla_deadline, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, string(productJSON), string(contactJSON), nullableString(preliminaryJSON),
		item.Notes, string(item.Status), item.SLADeadline, item.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: enqueue review %s", item.ID)
}

func (s *SQLiteStore) GetReview(ctx context.Context, reviewID string) (*model.ReviewItem, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, product, contact, preliminary, notes, final_offer, status, sla_deadline, created_at, completed_at
		 FROM review_queue WHERE id = ?`,
		reviewID,
	)
	item, err := scanReview(row)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("review not found: %s", reviewID)
	}
	return item, err
}

func (s *SQLiteStore) ListReviews(ctx context.Context, filter ReviewFilter) ([]model.ReviewItem, error) {
	query := `SELECT id, product, contact, preliminary, notes, final_offer, status, sla_deadline, created_at, completed_at
	          FROM review_queue WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.OverdueOnly {
		query += ` AND sla_deadline < ?`
		args = append(args, time.Now().UTC())
	}
	query += ` ORDER BY sla_deadline ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list reviews")
	}
	defer rows.Close()

	var items []model.ReviewItem
	for rows.Next() {
		item, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, eris.Wrap(rows.Err(), "sqlite: list reviews iterate")
}

func (s *SQLiteStore) CompleteReview(ctx context.Context, reviewID string, finalOffer float64, notes string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE review_queue SET status = ?, final_offer = ?, notes = ?, completed_at = ? WHERE id = ?`,
		string(model.ReviewComplete), finalOffer, notes, time.Now().UTC(), reviewID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete review %s", reviewID)
	}
	return checkRowsAffected(res, "review", reviewID)
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

func nullableString(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

type scannable interface {
	Scan(dest ...any) error
}

func scanReview(row scannable) (*model.ReviewItem, error) {
	var item model.ReviewItem
	var productJSON, contactJSON string
	var preliminaryJSON sql.NullString
	var completedAt sql.NullTime

	err := row.Scan(&item.ID, &productJSON, &contactJSON, &preliminaryJSON,
		&item.Notes, &item.FinalOffer, &item.Status, &item.SLADeadline,
		&item.CreatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan review")
	}

	if err := json.Unmarshal([]byte(productJSON), &item.Product); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal review product")
	}
	if err := json.Unmarshal([]byte(contactJSON), &item.Contact); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal review contact")
	}
	if preliminaryJSON.Valid {
		item.Preliminary = &model.OfferResult{}
		if err := json.Unmarshal([]byte(preliminaryJSON.String), item.Preliminary); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal review preliminary")
		}
	}
	if completedAt.Valid {
		t := completedAt.Time
		item.CompletedAt = &t
	}
	return &item, nil
}
