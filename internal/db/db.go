// Package db provides shared pgx helpers for the Postgres store.
package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"

	"github.com/epicdeals/instant-offer/internal/model"
)

// Pool is the subset of pgxpool.Pool the store depends on. pgxmock
// satisfies it in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
	Ping(ctx context.Context) error
}

var observationColumns = []string{
	"id", "offer_id", "source", "kind", "amount", "title", "is_new_retail", "created_at",
}

// CopyObservations bulk-inserts the price observations backing an offer
// using the PostgreSQL COPY protocol. A valuation pass can produce
// dozens of observations, so COPY beats row-at-a-time inserts.
func CopyObservations(ctx context.Context, pool Pool, offerID string, obs []model.PriceObservation) (int64, error) {
	if len(obs) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	rows := make([][]any, 0, len(obs))
	for _, o := range obs {
		rows = append(rows, []any{
			uuid.New().String(), offerID, o.Source, string(o.Kind),
			o.Amount, o.Title, o.IsNewRetailEstimate, now,
		})
	}

	n, err := pool.CopyFrom(ctx, pgx.Identifier{"price_observations"}, observationColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, eris.Wrap(err, "db: COPY INTO price_observations")
	}
	return n, nil
}
