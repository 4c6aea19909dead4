// Package holiday answers whether a local date is a public holiday in a
// country, using rule-based calendars so every year is covered.
package holiday

import (
	"strings"
	"time"

	"github.com/rickar/cal/v2"
	"github.com/rickar/cal/v2/de"
	"github.com/rickar/cal/v2/mx"
	"github.com/rickar/cal/v2/us"
)

// DefaultCountry is used when a caller does not name one.
const DefaultCountry = "mx"

// Calendar answers holiday queries per lower-case country code. A country
// may have rules, extra ISO dates, or both.
type Calendar struct {
	rules map[string]*cal.BusinessCalendar
	dates map[string]map[string]struct{}
}

// NewCalendar builds a calendar from ISO dates (YYYY-MM-DD) keyed by
// country code, with no rule-based holidays.
func NewCalendar(byCountry map[string][]string) *Calendar {
	c := &Calendar{
		rules: map[string]*cal.BusinessCalendar{},
		dates: make(map[string]map[string]struct{}, len(byCountry)),
	}
	for country, list := range byCountry {
		c.AddDates(country, list...)
	}
	return c
}

// NewDefaultCalendar returns the national holidays of mx, us and de.
func NewDefaultCalendar() *Calendar {
	c := NewCalendar(nil)
	c.AddRules("mx", mx.Holidays...)
	c.AddRules("us", us.Holidays...)
	c.AddRules("de", de.Holidays...)
	return c
}

// AddRules registers rule-based holidays for country.
func (c *Calendar) AddRules(country string, holidays ...*cal.Holiday) {
	country = strings.ToLower(country)
	bc, ok := c.rules[country]
	if !ok {
		bc = cal.NewBusinessCalendar()
		c.rules[country] = bc
	}
	bc.AddHoliday(holidays...)
}

// AddDates registers one-off ISO dates for country, such as bridge days.
func (c *Calendar) AddDates(country string, dates ...string) {
	country = strings.ToLower(country)
	set, ok := c.dates[country]
	if !ok {
		set = make(map[string]struct{}, len(dates))
		c.dates[country] = set
	}
	for _, d := range dates {
		set[d] = struct{}{}
	}
}

// IsHoliday reports whether t, read in loc, falls on a holiday in country.
// Observed days count. Unknown countries never have holidays. A nil loc
// means UTC.
func (c *Calendar) IsHoliday(country string, t time.Time, loc *time.Location) bool {
	if c == nil {
		return false
	}
	if loc == nil {
		loc = time.UTC
	}
	country = strings.ToLower(country)
	local := t.In(loc)

	if _, ok := c.dates[country][local.Format(time.DateOnly)]; ok {
		return true
	}
	if bc, ok := c.rules[country]; ok {
		actual, observed, _ := bc.IsHoliday(local)
		return actual || observed
	}
	return false
}

// Supports reports whether the calendar has data for country.
func (c *Calendar) Supports(country string) bool {
	if c == nil {
		return false
	}
	country = strings.ToLower(country)
	if _, ok := c.rules[country]; ok {
		return true
	}
	_, ok := c.dates[country]
	return ok
}
