package domain

import (
	"errors"
	"fmt"
)

var ErrOutsideDeliveryRadius = errors.New("address is outside the delivery radius")

// OutsideRadiusError reports an undeliverable address.
type OutsideRadiusError struct {
	DistanceMiles float64
	RadiusMiles   float64
}

func (e *OutsideRadiusError) Error() string {
	return fmt.Sprintf("address is %.1f miles away, outside our %.1f-mile delivery radius",
		e.DistanceMiles, e.RadiusMiles)
}

func (e *OutsideRadiusError) Is(target error) bool {
	return target == ErrOutsideDeliveryRadius
}
