package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	insertQuestion   = "INSERT INTO questions"
	insertStatistics = "INSERT INTO question_statistics"
	updateStatistics = "UPDATE question_statistics"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func TestRunInTransaction(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		setup   func(mock sqlmock.Sqlmock)
		fn      TxFn
		wantErr error
		wantMsg string
	}{
		{
			name: "question and statistics rows commit together",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(regexp.QuoteMeta(insertQuestion)).WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectExec(regexp.QuoteMeta(insertStatistics)).WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectCommit()
			},
			fn: func(ctx context.Context, tx *sql.Tx) error {
				if _, err := tx.ExecContext(ctx, insertQuestion+" VALUES ($1)", "q"); err != nil {
					return err
				}
				_, err := tx.ExecContext(ctx, insertStatistics+" VALUES ($1)", "q")
				return err
			},
		},
		{
			name: "stale statistics write rolls back and keeps the sentinel",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(regexp.QuoteMeta(updateStatistics)).WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectRollback()
			},
			fn: func(ctx context.Context, tx *sql.Tx) error {
				res, err := tx.ExecContext(ctx, updateStatistics+" SET version = version + 1 WHERE version = $1", 3)
				if err != nil {
					return err
				}
				if n, _ := res.RowsAffected(); n == 0 {
					return ErrStaleWrite
				}
				return nil
			},
			wantErr: ErrStaleWrite,
		},
		{
			name: "duplicate fingerprint surfaces as a store error",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectRollback()
			},
			fn: func(ctx context.Context, tx *sql.Tx) error {
				return NewStoreError("question", "create", "fingerprint exists", ErrQuestionFingerprintExists)
			},
			wantErr: ErrDuplicate,
		},
		{
			name: "begin failure",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin().WillReturnError(errors.New("connection refused"))
			},
			fn:      func(context.Context, *sql.Tx) error { return nil },
			wantMsg: "failed to begin transaction",
		},
		{
			name: "commit failure",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectCommit().WillReturnError(errors.New("could not serialize access"))
			},
			fn:      func(context.Context, *sql.Tx) error { return nil },
			wantMsg: "failed to commit transaction",
		},
		{
			name: "rollback failure reports both errors",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectRollback().WillReturnError(errors.New("rollback failed"))
			},
			fn:      func(context.Context, *sql.Tx) error { return ErrCardStateNotFound },
			wantErr: ErrNotFound,
			wantMsg: "error rolling back transaction",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			db, mock := newMockDB(t)
			tt.setup(mock)

			err := RunInTransaction(context.Background(), db, tt.fn)
			switch {
			case tt.wantErr == nil && tt.wantMsg == "":
				assert.NoError(t, err)
			default:
				require.Error(t, err)
				if tt.wantErr != nil {
					assert.ErrorIs(t, err, tt.wantErr)
				}
				if tt.wantMsg != "" {
					assert.Contains(t, err.Error(), tt.wantMsg)
				}
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestRunInTransaction_PanicRollsBack(t *testing.T) {
	t.Parallel()

	for _, rollbackErr := range []error{nil, errors.New("rollback failed")} {
		t.Run(fmt.Sprintf("rollback error %v", rollbackErr), func(t *testing.T) {
			t.Parallel()
			db, mock := newMockDB(t)
			mock.ExpectBegin()
			mock.ExpectRollback().WillReturnError(rollbackErr)

			assert.PanicsWithValue(t, "scheduler exploded", func() {
				_ = RunInTransaction(context.Background(), db, func(context.Context, *sql.Tx) error {
					panic("scheduler exploded")
				})
			})
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestRunInTransaction_CanceledContext(t *testing.T) {
	t.Parallel()
	db, mock := newMockDB(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := RunInTransaction(ctx, db, func(context.Context, *sql.Tx) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTransactionWithOptions_ReadOnlyLexiconRead(t *testing.T) {
	t.Parallel()
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT word FROM lexical_items")).
		WithArgs("item-1").
		WillReturnRows(sqlmock.NewRows([]string{"word"}).AddRow("break"))
	mock.ExpectCommit()

	var word string
	err := RunInTransactionWithOptions(context.Background(), db, &sql.TxOptions{ReadOnly: true},
		func(ctx context.Context, tx *sql.Tx) error {
			return tx.QueryRowContext(ctx, "SELECT word FROM lexical_items WHERE id = ?", "item-1").Scan(&word)
		})
	require.NoError(t, err)
	assert.Equal(t, "break", word)
	assert.NoError(t, mock.ExpectationsWereMet())
}
