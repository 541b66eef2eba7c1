package services

import "delivery-estimate-service/internal/domain"

// OrderComplexity is an informational multiplier in [1.0, 1.2]: +0.1 for
// more than three pizzas, +0.1 when any pizza has more than three toppings.
// It is not applied to the ETA.
func OrderComplexity(oc *domain.OrderContext) float64 {
	if oc == nil {
		return 1.0
	}

	factor := 1.0

	count := 0
	heavy := false
	for _, p := range oc.Pizzas {
		q := p.Quantity
		if q <= 0 {
			q = 1
		}
		count += q
		if len(p.Toppings) > 3 {
			heavy = true
		}
	}

	if count > 3 {
		factor += 0.1
	}
	if heavy {
		factor += 0.1
	}
	return min(factor, 1.2)
}
