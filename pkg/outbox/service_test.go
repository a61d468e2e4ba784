package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-affiliates/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-affiliates/pkg/enums"
	"github.com/angelmondragon/storefront-affiliates/pkg/outbox/payloads"
)

func TestEmitStoresEnvelope(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	svc := NewService(repo, nil)
	ctx := context.Background()
	referralID := uuid.New()

	err := conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(ctx, tx, DomainEvent{
			EventType:     enums.EventReferralStatusChanged,
			AggregateType: enums.AggregateReferral,
			AggregateID:   referralID,
			Actor:         &ActorRef{Subject: "admin-1", Role: "admin"},
			Data: payloads.ReferralStatusChangedEvent{
				ReferralID: referralID,
				FromStatus: enums.ReferralStatusApproved,
				ToStatus:   enums.ReferralStatusPaid,
			},
		})
	})
	require.NoError(t, err)

	rows, err := repo.FetchUnpublished(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, enums.EventReferralStatusChanged, rows[0].EventType)
	require.Equal(t, referralID, rows[0].AggregateID)

	env, err := DecodeEnvelope(rows[0].Payload)
	require.NoError(t, err)
	require.Equal(t, 1, env.Version)
	require.Equal(t, rows[0].ID.String(), env.EventID)
	require.Equal(t, string(enums.EventReferralStatusChanged), env.EventType)
	require.Equal(t, "admin-1", env.Actor.Subject)

	var data payloads.ReferralStatusChangedEvent
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.Equal(t, enums.ReferralStatusPaid, data.ToStatus)
}

func TestEmitRollsBackWithTransaction(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	svc := NewService(repo, nil)
	ctx := context.Background()

	boom := errors.New("boom")
	err := conn.Transaction(func(tx *gorm.DB) error {
		if err := svc.Emit(ctx, tx, DomainEvent{
			EventType:     enums.EventReferralCreated,
			AggregateType: enums.AggregateReferral,
			AggregateID:   uuid.New(),
			Data:          map[string]string{"k": "v"},
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	rows, err := repo.FetchUnpublished(ctx, 10, 0)
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestEmitValidatesInput(t *testing.T) {
	conn := dbtest.Open(t)
	svc := NewService(NewRepository(conn), nil)
	ctx := context.Background()

	require.Error(t, svc.Emit(ctx, nil, DomainEvent{}))
	require.Error(t, svc.Emit(ctx, conn, DomainEvent{
		EventType:     "order_created",
		AggregateType: enums.AggregateReferral,
	}))
	require.Error(t, svc.Emit(ctx, conn, DomainEvent{
		EventType:     enums.EventReferralCreated,
		AggregateType: "store",
	}))
}

func TestRepositoryPublishLifecycle(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	svc := NewService(repo, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		require.NoError(t, svc.Emit(ctx, conn, DomainEvent{
			EventType:     enums.EventAffiliateBalanceRepaired,
			AggregateType: enums.AggregateAffiliate,
			AggregateID:   uuid.New(),
			Data:          payloads.AffiliateBalanceRepairedEvent{PendingCommission: "0.00"},
		}))
	}

	rows, err := repo.FetchUnpublished(ctx, 10, 3)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	require.NoError(t, repo.MarkPublished(ctx, rows[0].ID))
	for i := 0; i < 3; i++ {
		require.NoError(t, repo.MarkFailed(ctx, rows[1].ID, errors.New("publish failed")))
	}

	pending, err := repo.FetchUnpublished(ctx, 10, 3)
	require.NoError(t, err)
	require.Empty(t, pending, "exhausted rows are skipped")

	pending, err = repo.FetchUnpublished(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, 3, pending[0].AttemptCount)
	require.NotNil(t, pending[0].LastError)

	deleted, err := repo.DeletePublishedBefore(ctx, time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)

	deleted, err = repo.DeletePublishedBefore(ctx, time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	require.Zero(t, deleted)
}

func TestDecodeEnvelopeRejectsIncompletePayloads(t *testing.T) {
	_, err := DecodeEnvelope([]byte(`{"version":1,"data":{}}`))
	require.Error(t, err)

	_, err = DecodeEnvelope([]byte(`{"version":1,"eventId":"abc"}`))
	require.Error(t, err)

	_, err = DecodeEnvelope([]byte(`not json`))
	require.Error(t, err)

	env, err := DecodeEnvelope([]byte(`{"version":1,"eventId":"abc","data":{"order_id":"x"}}`))
	require.NoError(t, err)
	require.Equal(t, "abc", env.EventID)
}

func TestEmitRejectsUnknownTypes(t *testing.T) {
	conn := dbtest.Open(t)
	svc := NewService(NewRepository(conn), nil)

	err := svc.Emit(context.Background(), conn, DomainEvent{EventType: "order_created", AggregateType: enums.AggregateReferral})
	require.ErrorIs(t, err, ErrUnknownEventType)

	err = svc.Emit(context.Background(), conn, DomainEvent{EventType: enums.EventReferralCreated, AggregateType: "order"})
	require.ErrorIs(t, err, ErrUnknownAggregateType)

	require.ErrorIs(t, svc.Emit(context.Background(), nil, DomainEvent{}), ErrTxRequired)
}

func TestRecordKeepsExplicitTimestamp(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	row, err := record(DomainEvent{
		EventType:     enums.EventAffiliateBalanceRepaired,
		AggregateType: enums.AggregateAffiliate,
		AggregateID:   uuid.New(),
		Data:          map[string]string{"field": "pending_commission"},
		OccurredAt:    at,
	}, time.Now())
	require.NoError(t, err)

	env, err := DecodeEnvelope(row.Payload)
	require.NoError(t, err)
	require.True(t, at.Equal(env.OccurredAt))
	require.Equal(t, row.ID.String(), env.EventID)
}
