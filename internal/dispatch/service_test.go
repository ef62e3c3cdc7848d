package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/bagflow-backend/pkg/db"
	"github.com/angelmondragon/bagflow-backend/pkg/db/dbtest"
	"github.com/angelmondragon/bagflow-backend/pkg/db/models"
	"github.com/angelmondragon/bagflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bagflow-backend/pkg/errors"
	"github.com/angelmondragon/bagflow-backend/pkg/outbox"
)

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingBroadcaster) Broadcast(_ context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingBroadcaster) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	client *db.Client
	svc    *Service
	casts  *recordingBroadcaster
	fx     dbtest.Fixture
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client := dbtest.Open(t)
	f := &fixture{
		client: client,
		casts:  &recordingBroadcaster{},
		fx:     dbtest.Seed(t, client, 8990, 4500),
		now:    time.Now().UTC(),
	}
	svc, err := NewService(ServiceParams{
		Repo:        NewRepository(client.DB()),
		Fees:        NewFeeCalculator(testPricing, nil, nil),
		Broadcaster: f.casts,
		Outbox:      outbox.NewService(outbox.NewRepository(client.DB()), nil),
		Clock:       func() time.Time { return f.now },
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *fixture) publish(t *testing.T, bag *models.Bag, jobType enums.DispatchJobType) *models.DispatchJob {
	t.Helper()
	origin, destination := dbtest.StoreAddress(), dbtest.ClientAddress()
	if jobType == enums.DispatchJobTypePickup {
		origin, destination = destination, origin
	}
	leg := Leg{
		JobType:     jobType,
		Origin:      origin,
		Destination: destination,
		Quote:       f.svc.Quote(context.Background(), origin, destination),
	}
	var job *models.DispatchJob
	err := f.client.WithTx(context.Background(), func(tx *gorm.DB) error {
		var err error
		job, err = f.svc.Publish(context.Background(), tx, bag, leg)
		return err
	})
	require.NoError(t, err)
	f.svc.Announce(context.Background(), EventJobPublished, *job)
	return job
}

func (f *fixture) claim(bagID, courierID uuid.UUID) (*Claim, error) {
	var claim *Claim
	err := f.client.WithTx(context.Background(), func(tx *gorm.DB) error {
		var err error
		claim, err = f.svc.Claim(context.Background(), tx, bagID, courierID)
		return err
	})
	return claim, err
}

func (f *fixture) bag(t *testing.T, id uuid.UUID) models.Bag {
	t.Helper()
	var bag models.Bag
	require.NoError(t, f.client.DB().Where("id = ?", id).First(&bag).Error)
	return bag
}

func TestPublishStoresOpenJobWithFee(t *testing.T) {
	f := newFixture(t)
	bag := dbtest.InsertBag(t, f.client, f.fx, enums.BagStatusAwaitingCourier)

	job := f.publish(t, &bag, enums.DispatchJobTypeDelivery)

	assert.Equal(t, enums.DispatchJobStatusOpen, job.Status)
	assert.Equal(t, int64(1500), job.FeeCents)
	assert.Greater(t, job.DistanceMeters, int64(0))

	open, err := f.svc.OpenJobs(context.Background())
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, bag.ID, open[0].BagID)
	assert.Equal(t, []EventType{EventJobPublished}, f.casts.types())
}

func TestPublishReplacesOpenJob(t *testing.T) {
	f := newFixture(t)
	bag := dbtest.InsertBag(t, f.client, f.fx, enums.BagStatusAwaitingCourier)

	first := f.publish(t, &bag, enums.DispatchJobTypeDelivery)
	second := f.publish(t, &bag, enums.DispatchJobTypeDelivery)

	open, err := f.svc.OpenJobs(context.Background())
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, second.ID, open[0].JobID)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestConcurrentClaimsHaveOneWinner(t *testing.T) {
	f := newFixture(t)
	bag := dbtest.InsertBag(t, f.client, f.fx, enums.BagStatusAwaitingCourier)
	f.publish(t, &bag, enums.DispatchJobTypeDelivery)

	const couriers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []uuid.UUID
		losses  int
	)
	start := make(chan struct{})
	for i := 0; i < couriers; i++ {
		courierID := uuid.New()
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.claim(bag.ID, courierID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners = append(winners, courierID)
			case pkgerrors.Is(err, pkgerrors.CodeConcurrentClaim):
				losses++
			default:
				t.Errorf("unexpected claim error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	require.Len(t, winners, 1)
	assert.Equal(t, couriers-1, losses)

	got := f.bag(t, bag.ID)
	require.NotNil(t, got.CourierID)
	assert.Equal(t, winners[0], *got.CourierID)
	assert.Equal(t, enums.BagStatusCourierEnRouteToStore, got.Status)

	open, err := f.svc.OpenJobs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestClaimPickupMovesToReturnLeg(t *testing.T) {
	f := newFixture(t)
	bag := dbtest.InsertBag(t, f.client, f.fx, enums.BagStatusAwaitingReturnCourier)
	job := f.publish(t, &bag, enums.DispatchJobTypePickup)
	courierID := uuid.New()

	claim, err := f.claim(bag.ID, courierID)
	require.NoError(t, err)

	assert.Equal(t, job.ID, claim.Job.ID)
	assert.Equal(t, enums.BagStatusAwaitingReturnCourier, claim.From)
	assert.Equal(t, enums.BagStatusCourierEnRouteToPickup, claim.To)
	assert.Equal(t, enums.DispatchJobStatusClaimed, claim.Job.Status)
	assert.Equal(t, enums.BagStatusCourierEnRouteToPickup, f.bag(t, bag.ID).Status)
}

func TestClaimFailsWhenBagMovedOn(t *testing.T) {
	f := newFixture(t)
	bag := dbtest.InsertBag(t, f.client, f.fx, enums.BagStatusAwaitingCourier)
	f.publish(t, &bag, enums.DispatchJobTypeDelivery)
	require.NoError(t, f.client.DB().Model(&models.Bag{}).Where("id = ?", bag.ID).
		Update("status", enums.BagStatusCancelled).Error)

	_, err := f.claim(bag.ID, uuid.New())
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeConcurrentClaim), "got %v", err)
}

func TestClaimWithoutJob(t *testing.T) {
	f := newFixture(t)
	bag := dbtest.InsertBag(t, f.client, f.fx, enums.BagStatusAwaitingCourier)

	_, err := f.claim(bag.ID, uuid.New())
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeConcurrentClaim))
}

func TestWithdrawRemovesJob(t *testing.T) {
	f := newFixture(t)
	bag := dbtest.InsertBag(t, f.client, f.fx, enums.BagStatusAwaitingCourier)
	job := f.publish(t, &bag, enums.DispatchJobTypeDelivery)

	var withdrawn []models.DispatchJob
	require.NoError(t, f.client.WithTx(context.Background(), func(tx *gorm.DB) error {
		var err error
		withdrawn, err = f.svc.Withdraw(context.Background(), tx, bag.ID)
		return err
	}))
	require.Len(t, withdrawn, 1)
	assert.Equal(t, job.ID, withdrawn[0].ID)
	assert.Equal(t, enums.DispatchJobStatusWithdrawn, withdrawn[0].Status)

	snapshot, err := f.svc.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snapshot)
}

func TestRebroadcastAnnouncesStaleOpenJobs(t *testing.T) {
	f := newFixture(t)
	bag := dbtest.InsertBag(t, f.client, f.fx, enums.BagStatusAwaitingCourier)
	f.publish(t, &bag, enums.DispatchJobTypeDelivery)

	n, err := f.svc.Rebroadcast(context.Background(), 5*time.Minute, 50)
	require.NoError(t, err)
	assert.Zero(t, n, "fresh jobs are not rebroadcast")

	f.now = f.now.Add(10 * time.Minute)
	n, err = f.svc.Rebroadcast(context.Background(), 5*time.Minute, 50)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = f.svc.Rebroadcast(context.Background(), 5*time.Minute, 50)
	require.NoError(t, err)
	assert.Zero(t, n, "touched jobs wait for the next window")
	assert.Equal(t, []EventType{EventJobPublished, EventJobPublished}, f.casts.types())
}
