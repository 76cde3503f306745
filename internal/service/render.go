// internal/service/render.go
package service

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/optiportal/campaign-engine/internal/model"
)

var placeholderRe = regexp.MustCompile(`\{[a-z_]+\}`)

// RenderTemplate substitutes {placeholder} tokens from data. Tokens
// with no value render as empty string, not as an error.
func RenderTemplate(template string, data map[string]string) string {
	result := template
	for k, v := range data {
		result = strings.ReplaceAll(result, "{"+k+"}", v)
	}
	return placeholderRe.ReplaceAllString(result, "")
}

// CustomerPlaceholders builds the merge data for one customer.
func CustomerPlaceholders(c *model.Customer) map[string]string {
	data := map[string]string{
		"first_name":      c.FirstName,
		"last_name":       c.LastName,
		"city":            c.City,
		"phone":           c.Phone,
		"email":           c.Email,
		"preferred_brand": c.PreferredBrand,
		"order_count":     fmt.Sprintf("%d", c.OrderCount),
		"total_spent":     fmt.Sprintf("%.2f", c.TotalSpent),
	}
	if c.LastOrderAt != nil {
		data["last_order_date"] = c.LastOrderAt.Format("Jan 2, 2006")
	}
	if c.LastExamAt != nil {
		data["last_exam_date"] = c.LastExamAt.Format("Jan 2, 2006")
	}
	return data
}
