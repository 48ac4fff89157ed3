package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epicdeals/instant-offer/internal/model"
)

func TestCopyObservations_Empty(t *testing.T) {
	n, err := CopyObservations(context.TODO(), nil, "offer-1", nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCopyObservations_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"price_observations"}, observationColumns).WillReturnResult(2)

	obs := []model.PriceObservation{
		{Amount: 7500, Source: "Gumtree", Kind: model.SourceListingScrape, Title: "iPhone 13 128GB"},
		{Amount: 7800, Source: "Perplexity Research", Kind: model.SourceExpertResearch},
	}
	n, err := CopyObservations(context.Background(), mock, "offer-1", obs)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyObservations_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"price_observations"}, observationColumns).
		WillReturnError(fmt.Errorf("copy failed"))

	obs := []model.PriceObservation{{Amount: 100, Source: "Gumtree", Kind: model.SourceListingScrape}}
	_, err = CopyObservations(context.Background(), mock, "offer-1", obs)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
