package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"library_circulation/circulation"
	"library_circulation/models"
)

func Test_translate(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"not found", gorm.ErrRecordNotFound, circulation.ErrNoRecord},
		{"duplicated key", gorm.ErrDuplicatedKey, circulation.ErrConflict},
		{"unique index", &pgconn.PgError{Code: "23505", ConstraintName: "lib_loans_one_open_per_copy"}, circulation.ErrConflict},
		{"serialization failure", fmt.Errorf("commit: %w", &pgconn.PgError{Code: "40001"}), circulation.ErrConflict},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, circulation.ErrConflict},
		{"lock timeout", &pgconn.PgError{Code: "55P03"}, circulation.ErrConflict},
		{"malformed uuid", &pgconn.PgError{Code: "22P02"}, circulation.ErrNoRecord},
		{"deadline", context.DeadlineExceeded, circulation.ErrTransient},
		{"other pg error", &pgconn.PgError{Code: "42P01"}, circulation.ErrTransient},
		{"anything else", errors.New("connection reset"), circulation.ErrTransient},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, translate(tc.err), tc.want)
		})
	}
	assert.NoError(t, translate(nil))
	assert.Contains(t, translate(&pgconn.PgError{Code: "23505", ConstraintName: "x_key"}).Error(), "x_key")
}

func Test_repo_GetMalformedID(t *testing.T) {
	r := newRepo[models.Loan, circulation.LoanFilter](nil, nil, "")

	_, err := r.Get(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, circulation.ErrNoRecord)
	_, err = r.GetForUpdate(context.Background(), "")
	assert.ErrorIs(t, err, circulation.ErrNoRecord)
}

func Test_encodeState(t *testing.T) {
	got, err := encodeState(nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	var missing *models.Member
	got, err = encodeState(missing)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = encodeState(models.BookCopy{ID: "c1", CopyNumber: 2, Status: models.CopyReserved})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Contains(t, *got, `"status":"reserved"`)
	assert.Contains(t, *got, `"copyNumber":2`)
}
