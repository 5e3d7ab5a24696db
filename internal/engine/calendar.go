package engine

import (
	"embed"
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/orbitcrm/blueprint-engine/internal/pkg/blueprinterr"
	"github.com/orbitcrm/blueprint-engine/internal/pkg/logger"
)

const calendarConfigEnv = "BLUEPRINT_CALENDAR_YAML"

//go:embed calendar.yaml
var calendarYamlFS embed.FS

type yamlCalendarFile struct {
	Calendar      string `yaml:"calendar"`
	Version       int    `yaml:"version"`
	BusinessHours struct {
		StartHour int `yaml:"start_hour"`
		EndHour   int `yaml:"end_hour"`
	} `yaml:"business_hours"`
	Timezone string `yaml:"timezone"`
}

// CalendarConfig is the validated business-window configuration.
type CalendarConfig struct {
	StartHour int
	EndHour   int
	Timezone  string
}

var calendarCfgOnce sync.Once
var calendarCfgCache CalendarConfig
var calendarCfgErr error

// LoadCalendarConfig reads the embedded calendar definition, honoring the
// BLUEPRINT_CALENDAR_YAML path override.
func LoadCalendarConfig(log *logger.Logger) (CalendarConfig, error) {
	calendarCfgOnce.Do(func() {
		calendarCfgCache, calendarCfgErr = readCalendarConfig()
	})
	if calendarCfgErr != nil {
		if log != nil {
			log.Warn("calendar: config load failed", "error", calendarCfgErr)
		}
		return CalendarConfig{}, calendarCfgErr
	}
	return calendarCfgCache, nil
}

func readCalendarConfig() (CalendarConfig, error) {
	var data []byte
	var err error
	if path := os.Getenv(calendarConfigEnv); path != "" {
		data, err = os.ReadFile(path)
	} else {
		data, err = calendarYamlFS.ReadFile("calendar.yaml")
	}
	if err != nil {
		return CalendarConfig{}, err
	}

	var file yamlCalendarFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return CalendarConfig{}, err
	}
	tz := file.Timezone
	if tz == "" {
		tz = "UTC"
	}
	return CalendarConfig{
		StartHour: file.BusinessHours.StartHour,
		EndHour:   file.BusinessHours.EndHour,
		Timezone:  tz,
	}, nil
}

// Calendar converts raw durations into deadlines that honor a daily business
// window and weekend exclusion, and computes the inverse elapsed duration.
// Both directions walk the same day-window chunks, so for any start and
// d >= 0, Elapsed(start, Deadline(start, d, flags), flags) == d.
type Calendar struct {
	startHour int
	endHour   int
	loc       *time.Location
}

func NewCalendar(cfg CalendarConfig) (*Calendar, error) {
	if cfg.StartHour < 0 || cfg.EndHour > 24 || cfg.StartHour >= cfg.EndHour {
		return nil, fmt.Errorf("%w: business window [%d, %d)", blueprinterr.ErrCalendarConfigInvalid, cfg.StartHour, cfg.EndHour)
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q: %v", blueprinterr.ErrCalendarConfigInvalid, cfg.Timezone, err)
	}
	return &Calendar{
		startHour: cfg.StartHour,
		endHour:   cfg.EndHour,
		loc:       loc,
	}, nil
}

// Deadline returns the instant at which d countable time has elapsed after
// start. With both flags false it is plain wall-clock addition; d <= 0
// returns start unchanged.
func (c *Calendar) Deadline(start time.Time, d time.Duration, businessHoursOnly, excludeWeekends bool) time.Time {
	if d <= 0 {
		return start
	}
	if !businessHoursOnly && !excludeWeekends {
		return start.Add(d)
	}

	t := start.In(c.loc)
	remaining := d
	for {
		if excludeWeekends && isWeekend(t) {
			t = c.nextDayStart(t, businessHoursOnly)
			continue
		}
		dayStart, dayEnd := c.window(t, businessHoursOnly)
		if t.Before(dayStart) {
			t = dayStart
		}
		if !t.Before(dayEnd) {
			t = c.nextDayStart(t, businessHoursOnly)
			continue
		}
		avail := dayEnd.Sub(t)
		if remaining <= avail {
			return t.Add(remaining)
		}
		remaining -= avail
		t = c.nextDayStart(t, businessHoursOnly)
	}
}

// Elapsed returns the countable time between start and now under the given
// flags. Never negative; now before start yields 0.
func (c *Calendar) Elapsed(start, now time.Time, businessHoursOnly, excludeWeekends bool) time.Duration {
	if !now.After(start) {
		return 0
	}
	if !businessHoursOnly && !excludeWeekends {
		return now.Sub(start)
	}

	t := start.In(c.loc)
	end := now.In(c.loc)
	var total time.Duration
	for t.Before(end) {
		if excludeWeekends && isWeekend(t) {
			t = c.nextDayStart(t, businessHoursOnly)
			continue
		}
		dayStart, dayEnd := c.window(t, businessHoursOnly)
		if t.Before(dayStart) {
			t = dayStart
			continue
		}
		if !t.Before(dayEnd) {
			t = c.nextDayStart(t, businessHoursOnly)
			continue
		}
		chunkEnd := dayEnd
		if end.Before(chunkEnd) {
			chunkEnd = end
		}
		total += chunkEnd.Sub(t)
		t = c.nextDayStart(t, businessHoursOnly)
	}
	return total
}

func (c *Calendar) window(t time.Time, businessHoursOnly bool) (time.Time, time.Time) {
	y, m, d := t.Date()
	if businessHoursOnly {
		return time.Date(y, m, d, c.startHour, 0, 0, 0, c.loc),
			time.Date(y, m, d, c.endHour, 0, 0, 0, c.loc)
	}
	dayStart := time.Date(y, m, d, 0, 0, 0, 0, c.loc)
	return dayStart, dayStart.AddDate(0, 0, 1)
}

func (c *Calendar) nextDayStart(t time.Time, businessHoursOnly bool) time.Time {
	y, m, d := t.Date()
	hour := 0
	if businessHoursOnly {
		hour = c.startHour
	}
	return time.Date(y, m, d+1, hour, 0, 0, 0, c.loc)
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
