package services

import (
	"context"
	"delivery-estimate-service/internal/domain"
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/zoobzio/clockz"
)

func TestComputeLoad(t *testing.T) {
	cases := []struct {
		name            string
		active, pending int
		want            domain.LoadSnapshot
	}{
		{"idle", 0, 0, domain.LoadSnapshot{EstimatedQueuePosition: 1}},
		{"typical", 2, 1, domain.LoadSnapshot{
			ActiveOrders: 2, PendingOrders: 1, LoadFactorMinutes: 6,
			CapacityUtilization: 0.5, QueueTimeMinutes: 5, EstimatedQueuePosition: 2,
		}},
		{"queue capped below capacity", 1, 5, domain.LoadSnapshot{
			ActiveOrders: 1, PendingOrders: 5, LoadFactorMinutes: 3,
			CapacityUtilization: 0.25, QueueTimeMinutes: 15, EstimatedQueuePosition: 6,
		}},
		{"at capacity", 4, 3, domain.LoadSnapshot{
			ActiveOrders: 4, PendingOrders: 3, LoadFactorMinutes: 12,
			CapacityUtilization: 1.0, QueueTimeMinutes: 22, IsAtCapacity: true, EstimatedQueuePosition: 4,
		}},
		{"over capacity", 6, 2, domain.LoadSnapshot{
			ActiveOrders: 6, PendingOrders: 2, LoadFactorMinutes: 18,
			CapacityUtilization: 1.0, QueueTimeMinutes: 15, IsAtCapacity: true, EstimatedQueuePosition: 3,
		}},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, ComputeLoad(c.active, c.pending, 3, 4))
		})
	}
}

func TestComputeLoadProperties(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("utilization stays in [0, 1]", prop.ForAll(
		func(active, pending, maxConcurrent int) bool {
			s := ComputeLoad(active, pending, 3, maxConcurrent)
			return s.CapacityUtilization >= 0 && s.CapacityUtilization <= 1
		},
		gen.IntRange(0, 50), gen.IntRange(0, 50), gen.IntRange(1, 20),
	))

	properties.Property("queue position follows pending count", prop.ForAll(
		func(active, pending int) bool {
			return ComputeLoad(active, pending, 3, 4).EstimatedQueuePosition == pending+1
		},
		gen.IntRange(0, 50), gen.IntRange(0, 50),
	))

	properties.Property("load minutes never decrease with more active orders", prop.ForAll(
		func(active, pending int) bool {
			return ComputeLoad(active+1, pending, 3, 4).LoadFactorMinutes >= ComputeLoad(active, pending, 3, 4).LoadFactorMinutes
		},
		gen.IntRange(0, 50), gen.IntRange(0, 50),
	))

	properties.TestingRun(t)
}

func TestCurrentLoadCountsStates(t *testing.T) {
	orders := counterFunc(func(states []domain.OrderState) (int, error) {
		if len(states) == 1 && states[0] == domain.OrderPending {
			return 1, nil
		}
		return 2, nil
	})

	lc := NewLoadCalculator(testSettings(t), orders, nil)
	got := lc.CurrentLoad(context.Background())

	assert.Equal(t, ComputeLoad(2, 1, 3, 4), got)
}

func TestCurrentLoadFallsBackOnStoreError(t *testing.T) {
	orders := counterFunc(func([]domain.OrderState) (int, error) {
		return 0, errors.New("database is locked")
	})

	lc := NewLoadCalculator(testSettings(t), orders, nil)
	assert.Equal(t, domain.FallbackLoadSnapshot(), lc.CurrentLoad(context.Background()))

	lc = NewLoadCalculator(testSettings(t), nil, nil)
	assert.Equal(t, domain.FallbackLoadSnapshot(), lc.CurrentLoad(context.Background()))
}

func TestPeakFactorForHour(t *testing.T) {
	want := map[int]float64{
		11: 1.2, 12: 1.2, 13: 1.2, 14: 1.2,
		17: 1.2, 18: 1.2, 19: 1.2, 20: 1.2, 21: 1.2,
		15: 1.1, 16: 1.1, 22: 1.1, 23: 1.1,
	}

	for hour := 0; hour < 24; hour++ {
		expected, ok := want[hour]
		if !ok {
			expected = 1.0
		}
		assert.Equal(t, expected, PeakFactorForHour(hour), "hour %d", hour)
	}
}

func TestPeakHoursFactorUsesClock(t *testing.T) {
	clock := clockz.NewFakeClock()
	lc := NewLoadCalculator(testSettings(t), nil, clock)

	assert.Equal(t, PeakFactorForHour(clock.Now().Hour()), lc.PeakHoursFactor())
}

func TestOrderComplexity(t *testing.T) {
	pizza := func(qty int, toppings ...string) domain.Pizza {
		return domain.Pizza{Size: "large", Quantity: qty, Toppings: toppings}
	}

	cases := []struct {
		name string
		oc   *domain.OrderContext
		want float64
	}{
		{"no context", nil, 1.0},
		{"small order", &domain.OrderContext{Pizzas: []domain.Pizza{pizza(2, "cheese")}}, 1.0},
		{"many pizzas", &domain.OrderContext{Pizzas: []domain.Pizza{pizza(3), pizza(1)}}, 1.1},
		{"zero quantity counts once", &domain.OrderContext{Pizzas: []domain.Pizza{pizza(0), pizza(0), pizza(0), pizza(0)}}, 1.1},
		{"loaded pizza", &domain.OrderContext{Pizzas: []domain.Pizza{pizza(1, "a", "b", "c", "d")}}, 1.1},
		{"both", &domain.OrderContext{Pizzas: []domain.Pizza{pizza(5, "a", "b", "c", "d")}}, 1.2},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.InDelta(t, c.want, OrderComplexity(c.oc), 1e-9)
		})
	}
}
