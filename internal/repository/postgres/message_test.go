package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ignite/delivery-engine/internal/domain"
	"github.com/ignite/delivery-engine/internal/service/messaging"
	"github.com/ignite/delivery-engine/internal/service/suppression"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

var testTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func messageRow(id string, status domain.MessageStatus, attempts int) []driver.Value {
	return []driver.Value{
		id, "tenant-a", "key-" + id, "x@example.com", "Ops", "ops@sender.test",
		"hello", "body", "transactional", []byte(`{"order":"42"}`), string(status), attempts, 5,
		nil, nil, nil, nil,
		testTime, testTime, nil, nil,
	}
}

func TestMessageRepo_GetByID(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewMessageRepo(db)

	mock.ExpectQuery(`FROM messages WHERE id = \$1`).
		WithArgs("m1").
		WillReturnRows(sqlmock.NewRows(messageFields).AddRow(messageRow("m1", domain.StatusSent, 1)...))

	m, err := repo.GetByID(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, "m1", m.ID)
	assert.Equal(t, domain.StatusSent, m.Status)
	assert.Equal(t, domain.CategoryTransactional, m.Category)
	assert.Equal(t, map[string]string{"order": "42"}, m.Metadata)
	assert.Nil(t, m.NextAttemptAt)
	assert.Nil(t, m.ProviderMessageID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageRepo_GetByID_NotFound(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewMessageRepo(db)

	mock.ExpectQuery(`FROM messages WHERE id = \$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(messageFields))

	_, err := repo.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, messaging.ErrNotFound)
}

func TestMessageRepo_MalformedIDIsNotFound(t *testing.T) {
	badUUID := &pq.Error{Code: "22P02", Message: `invalid input syntax for type uuid: "not-a-uuid"`}

	t.Run("get", func(t *testing.T) {
		db, mock := setupMockDB(t)
		mock.ExpectQuery(`FROM messages WHERE id = \$1`).WithArgs("not-a-uuid").WillReturnError(badUUID)

		_, err := NewMessageRepo(db).GetByID(context.Background(), "not-a-uuid")
		assert.ErrorIs(t, err, messaging.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("transition", func(t *testing.T) {
		db, mock := setupMockDB(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`FOR UPDATE`).WithArgs("not-a-uuid").WillReturnError(badUUID)
		mock.ExpectRollback()

		applied, err := NewMessageRepo(db).Transition(context.Background(), "not-a-uuid", "", nil)
		assert.ErrorIs(t, err, messaging.ErrNotFound)
		assert.False(t, applied)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("events", func(t *testing.T) {
		db, mock := setupMockDB(t)
		mock.ExpectQuery(`FROM delivery_events`).WithArgs("not-a-uuid").WillReturnError(badUUID)

		_, err := NewMessageRepo(db).Events(context.Background(), "not-a-uuid")
		assert.ErrorIs(t, err, messaging.ErrNotFound)
	})

	t.Run("other errors stay storage errors", func(t *testing.T) {
		db, mock := setupMockDB(t)
		mock.ExpectQuery(`FROM messages WHERE id = \$1`).WithArgs("m1").WillReturnError(errors.New("conn reset"))

		_, err := NewMessageRepo(db).GetByID(context.Background(), "m1")
		require.Error(t, err)
		assert.NotErrorIs(t, err, messaging.ErrNotFound)
	})
}

func TestMessageRepo_Create_Inserted(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewMessageRepo(db)

	msg := &domain.Message{
		ID: "m1", TenantID: "tenant-a", IdempotencyKey: "t1", Recipient: "x@example.com",
		Category: domain.CategoryTransactional, Status: domain.StatusQueued, MaxAttempts: 5,
		CreatedAt: testTime, UpdatedAt: testTime,
	}
	created := &domain.DeliveryEvent{MessageID: "m1", Type: domain.EventCreated, CreatedAt: testTime}

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO messages`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("m1"))
	mock.ExpectExec(`INSERT INTO delivery_events`).
		WithArgs("m1", "created", "", nil, testTime).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	id, inserted, err := repo.Create(context.Background(), msg, created)
	require.NoError(t, err)
	assert.Equal(t, "m1", id)
	assert.True(t, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageRepo_Create_ConflictReturnsWinner(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewMessageRepo(db)

	msg := &domain.Message{ID: "loser", TenantID: "tenant-a", IdempotencyKey: "t1", Status: domain.StatusQueued}

	mock.ExpectBegin()
	mock.ExpectQuery(`ON CONFLICT \(tenant_id, idempotency_key\) DO NOTHING`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`SELECT id FROM messages WHERE tenant_id = \$1 AND idempotency_key = \$2`).
		WithArgs("tenant-a", "t1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("winner"))
	mock.ExpectRollback()

	id, inserted, err := repo.Create(context.Background(), msg, &domain.DeliveryEvent{MessageID: "loser"})
	require.NoError(t, err)
	assert.Equal(t, "winner", id)
	assert.False(t, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageRepo_Transition_CommitsLedgerWithStatus(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewMessageRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).
		WithArgs("m1").
		WillReturnRows(sqlmock.NewRows(messageFields).AddRow(messageRow("m1", domain.StatusSent, 1)...))
	mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM delivery_events WHERE provider_event_id = \$1\)`).
		WithArgs("evt-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(`INSERT INTO suppression_bounces`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE messages SET`).
		WithArgs("m1", "bounced", 1, nil, nil, nil, nil, nil, nil, testTime).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO delivery_events`).
		WithArgs("m1", "bounced", "evt-1", nil, testTime).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	applied, err := repo.Transition(context.Background(), "m1", "evt-1",
		func(ctx context.Context, cur *domain.Message, duplicate bool, ledger suppression.LedgerWriter) (*messaging.Change, error) {
			assert.False(t, duplicate)
			assert.Equal(t, domain.StatusSent, cur.Status)
			if err := ledger.AppendBounce(ctx, &domain.Bounce{Address: cur.Recipient, Kind: domain.BounceHard, CreatedAt: testTime}); err != nil {
				return nil, err
			}
			next := *cur
			next.Status = domain.StatusBounced
			next.UpdatedAt = testTime
			return &messaging.Change{
				Message: &next,
				Event:   &domain.DeliveryEvent{MessageID: "m1", Type: "bounced", ProviderEventID: "evt-1", CreatedAt: testTime},
			}, nil
		})
	require.NoError(t, err)
	assert.True(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageRepo_Transition_NoChangeRollsBack(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewMessageRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).
		WithArgs("m1").
		WillReturnRows(sqlmock.NewRows(messageFields).AddRow(messageRow("m1", domain.StatusDelivered, 1)...))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("evt-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	applied, err := repo.Transition(context.Background(), "m1", "evt-1",
		func(_ context.Context, _ *domain.Message, duplicate bool, _ suppression.LedgerWriter) (*messaging.Change, error) {
			assert.True(t, duplicate)
			return nil, nil
		})
	require.NoError(t, err)
	assert.False(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageRepo_Transition_LedgerErrorRollsBack(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewMessageRepo(db)
	ledgerErr := errors.New("disk full")

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).
		WithArgs("m1").
		WillReturnRows(sqlmock.NewRows(messageFields).AddRow(messageRow("m1", domain.StatusSent, 1)...))
	mock.ExpectExec(`INSERT INTO suppression_bounces`).WillReturnError(ledgerErr)
	mock.ExpectRollback()

	applied, err := repo.Transition(context.Background(), "m1", "",
		func(ctx context.Context, cur *domain.Message, _ bool, ledger suppression.LedgerWriter) (*messaging.Change, error) {
			return nil, ledger.AppendBounce(ctx, &domain.Bounce{Address: cur.Recipient, Kind: domain.BounceHard})
		})
	assert.False(t, applied)
	assert.ErrorIs(t, err, ledgerErr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageRepo_Transition_ProviderEventRaceIsDuplicate(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewMessageRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).
		WithArgs("m1").
		WillReturnRows(sqlmock.NewRows(messageFields).AddRow(messageRow("m1", domain.StatusSent, 1)...))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("evt-9").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(`UPDATE messages SET`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO delivery_events`).WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	applied, err := repo.Transition(context.Background(), "m1", "evt-9",
		func(_ context.Context, cur *domain.Message, _ bool, _ suppression.LedgerWriter) (*messaging.Change, error) {
			next := *cur
			next.Status = domain.StatusDelivered
			return &messaging.Change{
				Message: &next,
				Event:   &domain.DeliveryEvent{MessageID: "m1", Type: "delivered", ProviderEventID: "evt-9"},
			}, nil
		})
	require.NoError(t, err)
	assert.False(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageRepo_Transition_NotFound(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewMessageRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WithArgs("nope").WillReturnRows(sqlmock.NewRows(messageFields))
	mock.ExpectRollback()

	_, err := repo.Transition(context.Background(), "nope", "", nil)
	assert.ErrorIs(t, err, messaging.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageRepo_ClaimDue(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewMessageRepo(db)

	mock.ExpectQuery(`WITH due AS \(`).
		WithArgs(testTime, 10).
		WillReturnRows(sqlmock.NewRows(messageFields).
			AddRow(messageRow("m1", domain.StatusProcessing, 0)...).
			AddRow(messageRow("m2", domain.StatusProcessing, 2)...))

	msgs, err := repo.ClaimDue(context.Background(), testTime, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.Equal(t, 2, msgs[1].AttemptCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageRepo_ListStale(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewMessageRepo(db)
	cutoff := testTime.Add(-10 * time.Minute)

	mock.ExpectQuery(`SELECT id FROM messages`).
		WithArgs("processing", cutoff, 50).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("a").AddRow("b"))

	ids, err := repo.ListStale(context.Background(), domain.StatusProcessing, cutoff, 50)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)
}

func TestMessageRepo_Events(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewMessageRepo(db)

	mock.ExpectQuery(`FROM delivery_events`).
		WithArgs("m1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "message_id", "event_type", "provider_event_id", "provider_timestamp", "created_at"}).
			AddRow(int64(1), "m1", "created", "", nil, testTime).
			AddRow(int64(2), "m1", "sent", "evt-1", testTime, testTime))

	events, err := repo.Events(context.Background(), "m1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventCreated, events[0].Type)
	assert.Nil(t, events[0].ProviderTimestamp)
	assert.Equal(t, "evt-1", events[1].ProviderEventID)
	require.NotNil(t, events[1].ProviderTimestamp)
}
