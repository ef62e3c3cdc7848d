package outbox_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bagflow-backend/pkg/db/dbtest"
	"github.com/angelmondragon/bagflow-backend/pkg/enums"
	"github.com/angelmondragon/bagflow-backend/pkg/logger"
	"github.com/angelmondragon/bagflow-backend/pkg/outbox"
	"github.com/angelmondragon/bagflow-backend/pkg/outbox/payloads"
)

func TestEmitWritesEnvelopeInsideTransaction(t *testing.T) {
	client := dbtest.Open(t)
	repo := outbox.NewRepository(client.DB())
	svc := outbox.NewService(repo, logger.Nop())
	bagID := uuid.New()

	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, outbox.DomainEvent{
			EventType:     enums.EventBagStatusChanged,
			AggregateType: enums.AggregateBag,
			AggregateID:   bagID,
			Data: payloads.BagStatusChangedEvent{
				BagID: bagID,
				From:  enums.BagStatusRequested,
				To:    enums.BagStatusUnderReview,
			},
		})
	})
	if err != nil {
		t.Fatalf("emit: %v", err)
	}

	rows, err := repo.ListForAggregate(nil, bagID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 event, got %d", len(rows))
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(rows[0].Payload, &envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if envelope.Version != outbox.EnvelopeVersion || envelope.EventID != rows[0].ID.String() {
		t.Fatalf("unexpected envelope %+v", envelope)
	}
	if envelope.AggregateID != bagID.String() || envelope.EventType != enums.EventBagStatusChanged {
		t.Fatalf("envelope missing routing fields %+v", envelope)
	}
	var data payloads.BagStatusChangedEvent
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data.To != enums.BagStatusUnderReview {
		t.Fatalf("unexpected data %+v", data)
	}
}

func TestEmitRollsBackWithTransaction(t *testing.T) {
	client := dbtest.Open(t)
	repo := outbox.NewRepository(client.DB())
	svc := outbox.NewService(repo, nil)
	bagID := uuid.New()
	boom := errors.New("boom")

	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		if err := svc.Emit(context.Background(), tx, outbox.DomainEvent{
			EventType:     enums.EventBagCreated,
			AggregateType: enums.AggregateBag,
			AggregateID:   bagID,
			Data:          payloads.BagCreatedEvent{BagID: bagID},
		}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	rows, err := repo.ListForAggregate(nil, bagID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected rollback to drop the event, got %d", len(rows))
	}
}

func TestEmitRequiresTransaction(t *testing.T) {
	svc := outbox.NewService(outbox.NewRepository(nil), nil)
	if err := svc.Emit(context.Background(), nil, outbox.DomainEvent{}); err == nil {
		t.Fatal("expected error without transaction")
	}
}

func TestPublishBookkeeping(t *testing.T) {
	client := dbtest.Open(t)
	repo := outbox.NewRepository(client.DB())
	svc := outbox.NewService(repo, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		id := uuid.New()
		if err := client.WithTx(ctx, func(tx *gorm.DB) error {
			return svc.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventBagCreated,
				AggregateType: enums.AggregateBag,
				AggregateID:   id,
				Data:          payloads.BagCreatedEvent{BagID: id},
			})
		}); err != nil {
			t.Fatalf("emit: %v", err)
		}
	}

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := repo.FetchUnpublishedForPublish(tx, 10, 5)
		if err != nil {
			return err
		}
		if len(rows) != 3 {
			t.Fatalf("expected 3 pending rows, got %d", len(rows))
		}
		if err := repo.MarkPublishedTx(tx, rows[0].ID); err != nil {
			return err
		}
		if err := repo.MarkFailedTx(tx, rows[1].ID, errors.New("broker down")); err != nil {
			return err
		}
		return repo.MarkTerminalTx(tx, rows[2].ID, errors.New("bad payload"), 5)
	})
	if err != nil {
		t.Fatalf("bookkeeping: %v", err)
	}

	err = client.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := repo.FetchUnpublishedForPublish(tx, 10, 5)
		if err != nil {
			return err
		}
		if len(rows) != 1 {
			t.Fatalf("expected only the retryable row, got %d", len(rows))
		}
		if rows[0].AttemptCount != 1 || rows[0].LastError == nil {
			t.Fatalf("unexpected retry bookkeeping %+v", rows[0])
		}
		return nil
	})
	if err != nil {
		t.Fatalf("refetch: %v", err)
	}
}
