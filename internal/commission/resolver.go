// Package commission resolves the platform cut applied to a reservation's
// gross amount.
package commission

import (
	"math"

	"courtbook/internal/models"
)

// Resolve returns the effective commission rule for a venue. A venue-level
// rule overrides the platform default as an atomic kind+value pair; there
// is no partial override. Pure: the platform default is the guaranteed
// fallback, so resolution itself cannot fail.
func Resolve(venue *models.Venue, platformDefault models.CommissionRule) models.CommissionRule {
	if venue != nil && venue.Commission != nil {
		return *venue.Commission
	}
	return platformDefault
}

// Fee computes the platform fee for a gross amount under a rule.
// A flat fee is capped at gross: the commission never exceeds what was
// collected, so the venue amount never goes negative.
func Fee(rule models.CommissionRule, gross int64) int64 {
	if gross <= 0 {
		return 0
	}

	var fee int64
	switch rule.Kind {
	case models.CommissionFlat:
		fee = int64(math.Round(rule.Value))
	default: // percentage
		fee = int64(math.Round(float64(gross) * rule.Value / 100))
	}

	if fee < 0 {
		fee = 0
	}
	if fee > gross {
		fee = gross
	}
	return fee
}

// Split returns (platformFee, venueAmount) for a gross amount; the two
// always sum back to gross.
func Split(rule models.CommissionRule, gross int64) (int64, int64) {
	fee := Fee(rule, gross)
	return fee, gross - fee
}
