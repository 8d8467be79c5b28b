// Package calendar loads non-business days from a YAML file.
package calendar

import (
	"context"
	"fmt"
	"time"

	"github.com/SscSPs/recurring_journal_engine/internal/core/domain"
	"github.com/SscSPs/recurring_journal_engine/internal/core/ports/gateways"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// fileFormat is the on-disk layout:
//
//	holidays:
//	  - date: 2025-12-25
//	    name: Christmas Day
//	annual:
//	  - date: 01-01
//	    name: New Year's Day
type fileFormat struct {
	Holidays []holidayEntry `yaml:"holidays"`
	Annual   []holidayEntry `yaml:"annual"`
}

type holidayEntry struct {
	Date string `yaml:"date"`
	Name string `yaml:"name"`
}

type monthDay struct {
	month time.Month
	day   int
}

// FileCalendar answers holiday lookups from a set loaded once at startup.
type FileCalendar struct {
	dates  map[time.Time]string
	annual map[monthDay]string
}

var _ gateways.HolidayCalendar = (*FileCalendar)(nil)

// LoadFileCalendar reads and parses the calendar at path from fs.
func LoadFileCalendar(fs afero.Fs, path string) (*FileCalendar, error) {
	raw, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read holiday calendar %s: %w", path, err)
	}
	var f fileFormat
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("failed to parse holiday calendar %s: %w", path, err)
	}

	cal := &FileCalendar{
		dates:  make(map[time.Time]string, len(f.Holidays)),
		annual: make(map[monthDay]string, len(f.Annual)),
	}
	for _, h := range f.Holidays {
		d, err := domain.ParseDate(h.Date)
		if err != nil {
			return nil, fmt.Errorf("holiday calendar %s: invalid date %q: %w", path, h.Date, err)
		}
		cal.dates[d] = h.Name
	}
	for _, h := range f.Annual {
		// a leap year keeps 02-29 parseable
		d, err := time.Parse("2006-01-02", "2000-"+h.Date)
		if err != nil {
			return nil, fmt.Errorf("holiday calendar %s: invalid annual date %q: %w", path, h.Date, err)
		}
		cal.annual[monthDay{d.Month(), d.Day()}] = h.Name
	}
	return cal, nil
}

// IsHoliday implements gateways.HolidayCalendar.
func (c *FileCalendar) IsHoliday(_ context.Context, date time.Time) (bool, error) {
	_, ok := c.Name(date)
	return ok, nil
}

// Name returns the holiday's name when date is a holiday.
func (c *FileCalendar) Name(date time.Time) (string, bool) {
	date = domain.DateOf(date)
	if name, ok := c.dates[date]; ok {
		return name, true
	}
	name, ok := c.annual[monthDay{date.Month(), date.Day()}]
	return name, ok
}

// Len returns the number of configured holidays.
func (c *FileCalendar) Len() int {
	return len(c.dates) + len(c.annual)
}
