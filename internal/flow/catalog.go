package flow

import (
	"github.com/zuora-seed/catalog-assistant/internal/model"
)

// Canned catalog lookups for the identify steps. Real product resolution is
// delegated to the remote services; the scripted wizard answers from these
// fixtures so the conversation keeps moving while the chat call is in flight.

func lookupUpdateProduct(input string) *model.ProductSummary {
	return &model.ProductSummary{
		ID:             "P-000234",
		Name:           input,
		SKU:            "SOLAR-001",
		Description:    "Solar Plan Basic",
		EffectiveStart: "2024-01-01",
		EffectiveEnd:   "2026-12-31",
		Currency:       "US, Canada",
	}
}

func lookupExpireProduct(input string) *model.ProductSummary {
	return &model.ProductSummary{
		ID:             "P-000567",
		Name:           input,
		SKU:            "SOLAR-PREM-001",
		Description:    "Solar Plan Premium",
		EffectiveStart: "2024-01-01",
		EffectiveEnd:   "2027-12-31",
	}
}

func lookupViewProduct(input string) *model.ProductSummary {
	return &model.ProductSummary{
		ID:             "P-000234",
		Name:           input,
		SKU:            "SOLAR-PREM-001",
		Description:    "Solar Plan Premium",
		EffectiveStart: "2024-01-01",
		EffectiveEnd:   "2027-12-31",
		OrgUnits:       "US, Canada, Europe",
	}
}
