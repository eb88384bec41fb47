package domain

import "strings"

// Shipping fee constants, VND.
const (
	// FreeShippingThreshold waives the standard fee once the subtotal reaches it.
	FreeShippingThreshold int64 = 500_000
	// ExpressSurcharge is added on top of the standard fee for express delivery.
	ExpressSurcharge int64 = 50_000
	// SameDayMajorCity is the same-day surcharge inside a major city.
	SameDayMajorCity int64 = 40_000
	// SameDayProvince is the same-day surcharge everywhere else.
	SameDayProvince int64 = 60_000
	// ScheduledRelaxed applies when the slot is at least ScheduledLeadDays away.
	ScheduledRelaxed int64 = 10_000
	// ScheduledRush applies to slots closer than ScheduledLeadDays.
	ScheduledRush int64 = 25_000
	// ScheduledLeadDays separates relaxed from rush scheduling.
	ScheduledLeadDays = 3
	// EcoRebate is subtracted from the standard fee for eco delivery.
	EcoRebate int64 = 10_000
	// LockerRebate is subtracted from the standard fee for locker delivery.
	LockerRebate int64 = 15_000
)

var majorCities = map[string]struct{}{
	"ha noi":      {},
	"hanoi":       {},
	"ho chi minh": {},
	"hcmc":        {},
	"da nang":     {},
	"danang":      {},
}

// MajorCity reports whether the destination qualifies for the major-city
// same-day rate. Matching is case-insensitive and tolerates the common
// diacritic-stripped spellings.
func MajorCity(city string) bool {
	_, ok := majorCities[strings.ToLower(strings.Join(strings.Fields(city), " "))]
	return ok
}
