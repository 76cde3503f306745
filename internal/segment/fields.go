// internal/segment/fields.go
package segment

import (
	"time"

	"github.com/optiportal/campaign-engine/internal/model"
)

type fieldKind int

const (
	kindString fieldKind = iota
	kindNumber
	kindBool
	kindTime
)

// accessor resolves one named field on the customer aggregate. The
// second return is false when the field is null for that customer.
type accessor struct {
	kind fieldKind
	get  func(c *model.Customer, now time.Time) (any, bool)
}

func stringField(get func(c *model.Customer) string) accessor {
	return accessor{kind: kindString, get: func(c *model.Customer, _ time.Time) (any, bool) {
		s := get(c)
		return s, s != ""
	}}
}

func numberField(get func(c *model.Customer) float64) accessor {
	return accessor{kind: kindNumber, get: func(c *model.Customer, _ time.Time) (any, bool) {
		return get(c), true
	}}
}

func daysSinceField(get func(c *model.Customer) *time.Time) accessor {
	return accessor{kind: kindNumber, get: func(c *model.Customer, now time.Time) (any, bool) {
		t := get(c)
		if t == nil {
			return 0.0, false
		}
		return now.Sub(*t).Hours() / 24, true
	}}
}

func timeField(get func(c *model.Customer) *time.Time) accessor {
	return accessor{kind: kindTime, get: func(c *model.Customer, _ time.Time) (any, bool) {
		t := get(c)
		if t == nil {
			return time.Time{}, false
		}
		return *t, true
	}}
}

// fieldRegistry is the closed catalog of segmentable fields. A
// condition naming anything else fails the campaign at compile time.
var fieldRegistry = map[string]accessor{
	"first_name":      stringField(func(c *model.Customer) string { return c.FirstName }),
	"last_name":       stringField(func(c *model.Customer) string { return c.LastName }),
	"city":            stringField(func(c *model.Customer) string { return c.City }),
	"email":           stringField(func(c *model.Customer) string { return c.Email }),
	"phone":           stringField(func(c *model.Customer) string { return c.Phone }),
	"preferred_brand": stringField(func(c *model.Customer) string { return c.PreferredBrand }),

	"total_spent": numberField(func(c *model.Customer) float64 { return c.TotalSpent }),
	"order_count": numberField(func(c *model.Customer) float64 { return float64(c.OrderCount) }),

	"days_since_last_order": daysSinceField(func(c *model.Customer) *time.Time { return c.LastOrderAt }),
	"days_since_last_exam":  daysSinceField(func(c *model.Customer) *time.Time { return c.LastExamAt }),

	"last_order_at": timeField(func(c *model.Customer) *time.Time { return c.LastOrderAt }),
	"last_exam_at":  timeField(func(c *model.Customer) *time.Time { return c.LastExamAt }),
	"birth_date":    timeField(func(c *model.Customer) *time.Time { return c.BirthDate }),
	"created_at": timeField(func(c *model.Customer) *time.Time {
		t := c.CreatedAt
		return &t
	}),

	"marketing_opt_out": {kind: kindBool, get: func(c *model.Customer, _ time.Time) (any, bool) {
		return c.MarketingOptOut, true
	}},

	"age": {kind: kindNumber, get: func(c *model.Customer, now time.Time) (any, bool) {
		if c.BirthDate == nil {
			return 0.0, false
		}
		years := now.Year() - c.BirthDate.Year()
		if now.YearDay() < c.BirthDate.YearDay() {
			years--
		}
		return float64(years), true
	}},

	"birth_month": {kind: kindNumber, get: func(c *model.Customer, _ time.Time) (any, bool) {
		if c.BirthDate == nil {
			return 0.0, false
		}
		return float64(c.BirthDate.Month()), true
	}},
}
