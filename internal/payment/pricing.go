package payment

import "strings"

// Prices in paise, keyed by appointment type.
var priceTable = map[string]int64{
	"standard": 250000,
	"premium":  350000,
	"express":  500000,
}

const defaultTier = "standard"

// PriceFor returns the amount charged for an appointment type. Unknown types
// fall back to the default tier.
func PriceFor(appointmentType string) int64 {
	if p, ok := priceTable[strings.ToLower(strings.TrimSpace(appointmentType))]; ok {
		return p
	}
	return priceTable[defaultTier]
}
