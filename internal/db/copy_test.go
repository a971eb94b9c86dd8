package db

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyFrom_EmptyRows(t *testing.T) {
	n, err := CopyFrom(context.TODO(), nil, "scores", []string{"a", "b"}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCopyFrom_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	rows := [][]any{
		{"run-1", "2sfca_doc", "17031", 1.5},
		{"run-1", "2sfca_doc", "17043", 0.5},
	}
	mock.ExpectCopyFrom(pgx.Identifier{"scores"}, []string{"run_id", "column_name", "location_id", "value"}).
		WillReturnResult(2)

	n, err := CopyFrom(context.Background(), mock, "scores", []string{"run_id", "column_name", "location_id", "value"}, rows)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
