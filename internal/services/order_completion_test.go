package services

import (
	"context"
	"delivery-estimate-service/internal/adapters/repositories"
	"delivery-estimate-service/internal/domain"
	"delivery-estimate-service/internal/platform/db"
	"delivery-estimate-service/internal/ports"
	"path/filepath"
	"testing"
	"time"

	"github.com/jaswdr/faker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/clockz"
)

// addressDistances resolves known addresses to fixed miles and everything
// else to 3.5.
type addressDistances map[string]float64

func (a addressDistances) Resolve(_ context.Context, address string) domain.Distance {
	miles, ok := a[address]
	if !ok {
		miles = 3.5
	}
	return matrixDistance(miles)
}

type completionFixture struct {
	orders    *repositories.SqliteOrderRepository
	estimates *repositories.SqliteEstimateRepository
	estimator *Estimator
	service   *CompletionService
	clock     *clockz.FakeClock
}

func newCompletionFixture(t *testing.T, distances DistanceSource) completionFixture {
	t.Helper()

	conn, err := db.OpenSQLite(filepath.Join(t.TempDir(), "app.db"))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, repositories.InitSchema(conn))

	clock := clockz.NewFakeClock()
	settings := testSettings(t)
	orders := repositories.NewSqliteOrderRepository(conn)
	estimates := repositories.NewSqliteEstimateRepository(conn)

	estimator := NewEstimator(settings, distances, NewLoadCalculator(settings, orders, clock),
		WithRandSource(fixedRand(5)),
		WithClock(clock),
		WithOrderRepository(orders),
		WithEstimateRepository(estimates),
	)

	return completionFixture{
		orders:    orders,
		estimates: estimates,
		estimator: estimator,
		service:   NewCompletionService(orders, estimates, estimator, clock),
		clock:     clock,
	}
}

func (f completionFixture) create(t *testing.T, address string, st domain.OrderState, age time.Duration) *domain.Order {
	t.Helper()
	created := f.clock.Now().Add(-age)
	o := &domain.Order{
		CustomerName: "test",
		Address:      address,
		Status:       st,
		CreatedAt:    created,
		UpdatedAt:    created,
		Details:      domain.OrderContext{Pizzas: []domain.Pizza{{Size: "medium", Quantity: 1}}},
	}
	id, err := f.orders.CreateOrder(context.Background(), o)
	require.NoError(t, err)
	o.ID = id
	return o
}

func TestCompleteDeliveryRecordsActualAndReestimates(t *testing.T) {
	ctx := context.Background()
	fake := faker.New()
	f := newCompletionFixture(t, addressDistances{})

	done := f.create(t, fake.Address().Address(), domain.OrderOutForDelivery, 32*time.Minute)
	_, err := f.estimator.EstimateForOrder(ctx, done)
	require.NoError(t, err)

	var waiting []*domain.Order
	for _, st := range []domain.OrderState{domain.OrderPending, domain.OrderPaymentConfirmed, domain.OrderPreparing, domain.OrderPending} {
		waiting = append(waiting, f.create(t, fake.Address().Address(), st, 10*time.Minute))
	}
	f.create(t, fake.Address().Address(), domain.OrderDelivered, time.Hour)

	_, err = f.estimator.EstimateForOrder(ctx, waiting[0])
	require.NoError(t, err)

	res, err := f.service.CompleteDelivery(ctx, done.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.OrderDelivered, res.Order.Status)
	assert.Equal(t, 32, res.ActualMinutes)
	assert.Len(t, res.Reestimated, len(waiting))

	active, err := f.estimates.ActiveForOrder(ctx, done.ID)
	require.NoError(t, err)
	require.NotNil(t, active.ActualDeliveryMinutes)
	assert.Equal(t, 32, *active.ActualDeliveryMinutes)

	history, err := f.estimates.ListForOrder(ctx, waiting[0].ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	activeCount := 0
	for _, h := range history {
		if h.Active {
			activeCount++
		}
	}
	assert.Equal(t, 1, activeCount, "re-estimate must supersede the earlier record")
}

func TestUpdateEstimateOnCompletionSkipsUndeliverable(t *testing.T) {
	ctx := context.Background()
	f := newCompletionFixture(t, addressDistances{"99 Far Away Rd": 12})

	near := f.create(t, "1 Near St", domain.OrderPending, time.Minute)
	f.create(t, "99 Far Away Rd", domain.OrderPending, 2*time.Minute)
	other := f.create(t, "2 Near St", domain.OrderPreparing, 3*time.Minute)

	got, err := f.estimator.UpdateEstimateOnCompletion(ctx, near.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)

	active, err := f.estimates.ActiveForOrder(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, got[0].EstimatedMinutes, active.Estimate.EstimatedMinutes)

	_, err = f.estimates.ActiveForOrder(ctx, near.ID)
	assert.ErrorIs(t, err, ports.ErrEstimateNotFound)
}

func TestCompleteDeliveryWithoutEstimate(t *testing.T) {
	f := newCompletionFixture(t, addressDistances{})
	o := f.create(t, "5 Pine St", domain.OrderOutForDelivery, 20*time.Minute)

	res, err := f.service.CompleteDelivery(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, 20, res.ActualMinutes)
	assert.Empty(t, res.Reestimated)
}

func TestCompleteDeliveryUnknownOrder(t *testing.T) {
	f := newCompletionFixture(t, addressDistances{})

	_, err := f.service.CompleteDelivery(context.Background(), 404)
	assert.ErrorIs(t, err, ports.ErrOrderNotFound)
}

func TestCompleteDeliveryRejectsRepeatCompletion(t *testing.T) {
	ctx := context.Background()
	f := newCompletionFixture(t, addressDistances{})

	o := f.create(t, "9 Repeat St", domain.OrderOutForDelivery, 30*time.Minute)
	_, err := f.estimator.EstimateForOrder(ctx, o)
	require.NoError(t, err)

	res, err := f.service.CompleteDelivery(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, 30, res.ActualMinutes)
	firstDelivered := *res.Order.DeliveredAt

	f.clock.Advance(2 * time.Hour)
	_, err = f.service.CompleteDelivery(ctx, o.ID)
	assert.ErrorIs(t, err, ports.ErrOrderNotDeliverable)

	stored, err := f.orders.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.DeliveredAt)
	assert.True(t, stored.DeliveredAt.Equal(firstDelivered))

	active, err := f.estimates.ActiveForOrder(ctx, o.ID)
	require.NoError(t, err)
	require.NotNil(t, active.ActualDeliveryMinutes)
	assert.Equal(t, 30, *active.ActualDeliveryMinutes)
}

func TestCompleteDeliveryRejectsCancelledOrder(t *testing.T) {
	ctx := context.Background()
	f := newCompletionFixture(t, addressDistances{})

	o := f.create(t, "10 Cancel Ave", domain.OrderCancelled, 20*time.Minute)

	_, err := f.service.CompleteDelivery(ctx, o.ID)
	assert.ErrorIs(t, err, ports.ErrOrderNotDeliverable)
	assert.NotErrorIs(t, err, ports.ErrOrderNotFound)

	stored, err := f.orders.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCancelled, stored.Status)
	assert.Nil(t, stored.DeliveredAt)
}
