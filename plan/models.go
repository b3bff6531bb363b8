// Package plan holds the free-tier decision table: which capabilities are
// hard-locked, which are metered against daily caps, and the caps themselves.
package plan

import (
	"errors"
	"fmt"
	"slices"
)

// Feature keys. Hard-locked features are unavailable to the free tier;
// metered features are available up to the daily limits.
const (
	FeatureAdditionalPetProfile = "pet_profile_additional"
	FeatureVetFinder            = "vet_finder"
	FeatureShopFinder           = "shop_finder"
	FeatureFoodScan             = "food_scan"
	FeatureVaccineCardScan      = "vaccine_card_scan"
	FeatureAIVaccineSchedule    = "ai_vaccine_schedule"
	FeatureExpenseAnalytics     = "expense_analytics"
	FeatureHealthReportExport   = "health_report_export"
	FeatureAIImageAttachment    = "ai_image_attachment"

	FeatureAIChat = "ai_chat"

	FeaturePetProfile = "pet_profile"
	FeatureHealthLog  = "health_log"
	FeatureWeightLog  = "weight_log"
	FeatureExpenseLog = "expense_log"
	FeatureReminders  = "reminders"
)

// FeatureType says how a feature is gated for the free tier.
type FeatureType string

const (
	// FeatureLocked is unavailable to the free tier regardless of usage.
	FeatureLocked FeatureType = "locked"
	// FeatureMetered is available to the free tier up to the daily limits.
	FeatureMetered FeatureType = "metered"
	// FeatureOpen is known and ungated.
	FeatureOpen FeatureType = "open"
)

// Feature is one row of the decision table.
type Feature struct {
	Key  string      `json:"key"`
	Name string      `json:"name"`
	Type FeatureType `json:"type"`
}

// Limits are the free tier's daily caps.
type Limits struct {
	DailyMessages int64 `json:"daily_messages" yaml:"daily_messages"`
	DailyActions  int64 `json:"daily_actions" yaml:"daily_actions"`
}

// DefaultLimits returns the caps shipped with the free tier.
func DefaultLimits() Limits {
	return Limits{DailyMessages: 10, DailyActions: 1}
}

// Plan is the free-tier decision table.
type Plan struct {
	Name     string    `json:"name"`
	Features []Feature `json:"features"`
	Limits   Limits    `json:"limits"`
}

// Free returns the default free-tier plan.
func Free() *Plan {
	return &Plan{
		Name: "free",
		Features: []Feature{
			{Key: FeatureAdditionalPetProfile, Name: "Additional pet profiles", Type: FeatureLocked},
			{Key: FeatureVetFinder, Name: "Nearby vet finder", Type: FeatureLocked},
			{Key: FeatureShopFinder, Name: "Nearby pet shop finder", Type: FeatureLocked},
			{Key: FeatureFoodScan, Name: "Food label scanning", Type: FeatureLocked},
			{Key: FeatureVaccineCardScan, Name: "Vaccine card scanning", Type: FeatureLocked},
			{Key: FeatureAIVaccineSchedule, Name: "AI vaccination schedules", Type: FeatureLocked},
			{Key: FeatureExpenseAnalytics, Name: "Expense analytics", Type: FeatureLocked},
			{Key: FeatureHealthReportExport, Name: "Health report export", Type: FeatureLocked},
			{Key: FeatureAIImageAttachment, Name: "AI image attachments", Type: FeatureLocked},
			{Key: FeatureAIChat, Name: "AI chat", Type: FeatureMetered},
			{Key: FeaturePetProfile, Name: "Pet profile", Type: FeatureOpen},
			{Key: FeatureHealthLog, Name: "Health log", Type: FeatureOpen},
			{Key: FeatureWeightLog, Name: "Weight log", Type: FeatureOpen},
			{Key: FeatureExpenseLog, Name: "Expense log", Type: FeatureOpen},
			{Key: FeatureReminders, Name: "Reminders", Type: FeatureOpen},
		},
		Limits: DefaultLimits(),
	}
}

// FindFeature returns the row for key, or nil.
func (p *Plan) FindFeature(key string) *Feature {
	for i := range p.Features {
		if p.Features[i].Key == key {
			return &p.Features[i]
		}
	}
	return nil
}

// Keys returns every feature key in table order.
func (p *Plan) Keys() []string {
	keys := make([]string, 0, len(p.Features))
	for _, f := range p.Features {
		keys = append(keys, f.Key)
	}
	return keys
}

// KeysOfType returns the keys of every feature of type t.
func (p *Plan) KeysOfType(t FeatureType) []string {
	var keys []string
	for _, f := range p.Features {
		if f.Type == t {
			keys = append(keys, f.Key)
		}
	}
	return keys
}

// ErrInvalidPlan is returned by Validate.
var ErrInvalidPlan = errors.New("plan: invalid plan")

// Validate checks for empty or duplicate keys, unknown feature types and
// negative limits.
func (p *Plan) Validate() error {
	if p.Limits.DailyMessages < 0 || p.Limits.DailyActions < 0 {
		return fmt.Errorf("%w: negative daily limit", ErrInvalidPlan)
	}
	seen := make([]string, 0, len(p.Features))
	for _, f := range p.Features {
		if f.Key == "" {
			return fmt.Errorf("%w: empty feature key", ErrInvalidPlan)
		}
		if slices.Contains(seen, f.Key) {
			return fmt.Errorf("%w: duplicate feature key %q", ErrInvalidPlan, f.Key)
		}
		switch f.Type {
		case FeatureLocked, FeatureMetered, FeatureOpen:
		default:
			return fmt.Errorf("%w: feature %q has unknown type %q", ErrInvalidPlan, f.Key, f.Type)
		}
		seen = append(seen, f.Key)
	}
	return nil
}
