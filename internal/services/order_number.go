package services

import (
	"fmt"
	"math/rand/v2"
	"time"

	domain "github.com/autox/api/internal/domain"
)

// OrderNumberGenerator produces a display order number for a request of the given kind created at now.
type OrderNumberGenerator func(kind domain.ServiceRequestKind, now time.Time) string

// NewOrderNumber formats PREFIX-TS6-RND3 where TS6 is the low six digits of the epoch milliseconds and
// RND3 a random value in [0, 999].
func NewOrderNumber(kind domain.ServiceRequestKind, now time.Time) string {
	return formatOrderNumber(kind, now, rand.IntN(1000))
}

func formatOrderNumber(kind domain.ServiceRequestKind, now time.Time, suffix int) string {
	prefix := "MAT"
	if kind == domain.ServiceRequestKindVehicle {
		prefix = "VEH"
	}
	return fmt.Sprintf("%s-%06d-%03d", prefix, now.UnixMilli()%1_000_000, suffix%1000)
}
