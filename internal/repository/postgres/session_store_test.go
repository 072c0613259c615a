package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/newsletter-ai/internal/service/workflow"
)

func newMockSessions(t *testing.T) (*SessionStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSessionStore(db), mock
}

func TestSessionStore_Store(t *testing.T) {
	store, mock := newMockSessions(t)
	sess := workflow.NewSession("s1")
	sess.Revision = 3
	raw, err := json.Marshal(sess)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO newsletter_sessions").
		WithArgs("s1", raw, float64(86400)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Store(context.Background(), sess, 24*time.Hour))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionStore_Load(t *testing.T) {
	store, mock := newMockSessions(t)
	sess := workflow.NewSession("s1")
	sess.State = workflow.Saved
	sess.Link = "https://news.example.com/?=Mars"
	sess.Revision = 7
	raw, err := json.Marshal(sess)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT snapshot FROM newsletter_sessions").
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"snapshot"}).AddRow(raw))

	got, ok, err := store.Load(context.Background(), "s1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, workflow.Saved, got.State)
	assert.Equal(t, sess.Link, got.Link)
	assert.Equal(t, int64(7), got.Revision)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionStore_LoadMissing(t *testing.T) {
	store, mock := newMockSessions(t)
	mock.ExpectQuery("SELECT snapshot FROM newsletter_sessions").
		WithArgs("gone").
		WillReturnRows(sqlmock.NewRows([]string{"snapshot"}))

	_, ok, err := store.Load(context.Background(), "gone")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSessionStore_LoadError(t *testing.T) {
	store, mock := newMockSessions(t)
	mock.ExpectQuery("SELECT snapshot").WillReturnError(errors.New("conn reset"))

	_, _, err := store.Load(context.Background(), "s1")
	assert.ErrorContains(t, err, "load session s1")
}

func TestSessionStore_Expire(t *testing.T) {
	store, mock := newMockSessions(t)
	mock.ExpectExec("DELETE FROM newsletter_sessions WHERE expires_at").
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := store.Expire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
