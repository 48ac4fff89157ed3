package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epicdeals/instant-offer/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return NewPostgresWithPool(mock), mock
}

func TestPostgresStore_GetSession_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT state FROM sessions WHERE token = \$1`).
		WithArgs("missing-token").
		WillReturnError(pgx.ErrNoRows)

	state, err := s.GetSession(context.Background(), "missing-token")
	require.NoError(t, err)
	assert.Nil(t, state)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveSession_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`ON CONFLICT \(token\) DO UPDATE`).
		WithArgs("tok-1", []byte(`{"state":"greeting"}`), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.SaveSession(context.Background(), "tok-1", []byte(`{"state":"greeting"}`))
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteStaleSessions(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM sessions WHERE updated_at < \$1`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	n, err := s.DeleteStaleSessions(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveOffer_CopiesObservations(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO offers`).
		WithArgs(pgxmock.AnyArg(), "tok-1", string(model.RecommendInstantOffer),
			4095.0, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCopyFrom(pgx.Identifier{"price_observations"},
		[]string{"id", "offer_id", "source", "kind", "amount", "title", "is_new_retail", "created_at"}).
		WillReturnResult(1)

	err := s.SaveOffer(context.Background(), "tok-1", testOffer())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveOffer_ObservationFailureNonFatal(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO offers`).
		WithArgs(pgxmock.AnyArg(), "tok-1", pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCopyFrom(pgx.Identifier{"price_observations"},
		[]string{"id", "offer_id", "source", "kind", "amount", "title", "is_new_retail", "created_at"}).
		WillReturnError(assert.AnError)

	err := s.SaveOffer(context.Background(), "tok-1", testOffer())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetOffer_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT payload FROM offers WHERE id = \$1`).
		WithArgs("missing-offer").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetOffer(context.Background(), "missing-offer")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "offer not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetOffer_Found(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	offer := testOffer()
	offer.ID = "offer-1"
	payload, err := json.Marshal(offer)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT payload FROM offers WHERE id = \$1`).
		WithArgs("offer-1").
		WillReturnRows(pgxmock.NewRows([]string{"payload"}).AddRow(payload))

	fetched, err := s.GetOffer(context.Background(), "offer-1")
	require.NoError(t, err)
	assert.Equal(t, 4095.0, fetched.SellNowAmount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_EnqueueReview(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO review_queue`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			"needs manual pricing", string(model.ReviewPending), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	item := &model.ReviewItem{
		Product: model.ProductRecord{Name: "Antique clock", Category: "furniture"},
		Contact: model.Contact{Name: "Sipho", Email: "sipho@example.co.za"},
		Notes:   "needs manual pricing",
	}
	err := s.EnqueueReview(context.Background(), item)
	require.NoError(t, err)
	assert.NotEmpty(t, item.ID)
	assert.False(t, item.SLADeadline.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CompleteReview_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE review_queue SET status = \$1`).
		WithArgs(string(model.ReviewComplete), 9000.0, "done", pgxmock.AnyArg(), "missing-id").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.CompleteReview(context.Background(), "missing-id", 9000, "done")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "review not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}
