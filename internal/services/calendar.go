package services

import (
	"time"

	"github.com/huangang/teamsync/internal/config"

	"github.com/6tail/lunar-go/HolidayUtil"
	"github.com/6tail/lunar-go/calendar"
	"github.com/rickar/cal/v2"
	"github.com/rickar/cal/v2/at"
	"github.com/rickar/cal/v2/au"
	"github.com/rickar/cal/v2/be"
	"github.com/rickar/cal/v2/br"
	"github.com/rickar/cal/v2/ca"
	"github.com/rickar/cal/v2/ch"
	"github.com/rickar/cal/v2/de"
	"github.com/rickar/cal/v2/dk"
	"github.com/rickar/cal/v2/es"
	"github.com/rickar/cal/v2/fi"
	"github.com/rickar/cal/v2/fr"
	"github.com/rickar/cal/v2/gb"
	"github.com/rickar/cal/v2/ie"
	"github.com/rickar/cal/v2/it"
	"github.com/rickar/cal/v2/jp"
	"github.com/rickar/cal/v2/nl"
	"github.com/rickar/cal/v2/no"
	"github.com/rickar/cal/v2/nz"
	"github.com/rickar/cal/v2/pl"
	"github.com/rickar/cal/v2/pt"
	"github.com/rickar/cal/v2/se"
	"github.com/rickar/cal/v2/us"
)

// CalendarService answers workday questions for meeting suggestions. CN uses
// the lunar-go statutory holiday table, which also knows adjusted workdays;
// other codes use rickar/cal business calendars. NONE means Mon-Fri only.
type CalendarService struct {
	calendars map[string]*cal.BusinessCalendar
	country   string
	slotHours []int
}

func NewCalendarService(cfg *config.CalendarConfig) *CalendarService {
	s := &CalendarService{
		calendars: make(map[string]*cal.BusinessCalendar),
		country:   "NONE",
		slotHours: []int{14, 10},
	}
	if cfg != nil {
		if cfg.Country != "" {
			s.country = cfg.Country
		}
		if len(cfg.SlotHours) > 0 {
			s.slotHours = cfg.SlotHours
		}
	}
	s.initCalendars()
	return s
}

func (s *CalendarService) initCalendars() {
	s.calendars["US"] = newBusinessCalendar("United States", us.Holidays...)
	s.calendars["GB"] = newBusinessCalendar("United Kingdom", gb.Holidays...)
	s.calendars["DE"] = newBusinessCalendar("Germany", de.Holidays...)
	s.calendars["FR"] = newBusinessCalendar("France", fr.Holidays...)
	s.calendars["JP"] = newBusinessCalendar("Japan", jp.Holidays...)
	s.calendars["AU"] = newBusinessCalendar("Australia", au.HolidaysNSW...)
	s.calendars["CA"] = newBusinessCalendar("Canada", ca.Holidays...)
	s.calendars["NZ"] = newBusinessCalendar("New Zealand", nz.Holidays...)
	s.calendars["IT"] = newBusinessCalendar("Italy", it.Holidays...)
	s.calendars["ES"] = newBusinessCalendar("Spain", es.Holidays...)
	s.calendars["NL"] = newBusinessCalendar("Netherlands", nl.Holidays...)
	s.calendars["BE"] = newBusinessCalendar("Belgium", be.Holidays...)
	s.calendars["AT"] = newBusinessCalendar("Austria", at.Holidays...)
	s.calendars["CH"] = newBusinessCalendar("Switzerland", ch.Holidays...)
	s.calendars["SE"] = newBusinessCalendar("Sweden", se.Holidays...)
	s.calendars["NO"] = newBusinessCalendar("Norway", no.Holidays...)
	s.calendars["DK"] = newBusinessCalendar("Denmark", dk.Holidays...)
	s.calendars["FI"] = newBusinessCalendar("Finland", fi.Holidays...)
	s.calendars["PL"] = newBusinessCalendar("Poland", pl.Holidays...)
	s.calendars["PT"] = newBusinessCalendar("Portugal", pt.Holidays...)
	s.calendars["IE"] = newBusinessCalendar("Ireland", ie.Holidays...)
	s.calendars["BR"] = newBusinessCalendar("Brazil", br.Holidays...)
}

func newBusinessCalendar(name string, holidays ...*cal.Holiday) *cal.BusinessCalendar {
	c := cal.NewBusinessCalendar()
	c.Name = name
	c.AddHoliday(holidays...)
	return c
}

func (s *CalendarService) IsWorkday(t time.Time) bool {
	switch s.country {
	case "CN":
		return isWorkdayChina(t)
	case "NONE":
		return !cal.IsWeekend(t)
	}

	c, ok := s.calendars[s.country]
	if !ok {
		return !cal.IsWeekend(t)
	}
	return c.IsWorkday(t)
}

func isWorkdayChina(t time.Time) bool {
	solar := calendar.NewSolarFromDate(t)
	holiday := HolidayUtil.GetHolidayByYmd(solar.GetYear(), solar.GetMonth(), solar.GetDay())
	if holiday != nil {
		return holiday.IsWork()
	}
	return !cal.IsWeekend(t)
}

// SuggestSlots returns count meeting starts on the workdays after from, one
// per day, cycling through the configured slot hours.
func (s *CalendarService) SuggestSlots(from time.Time, count int) []time.Time {
	slots := make([]time.Time, 0, count)
	day := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, from.Location())

	// A year of lookahead is plenty even across long holiday runs.
	for i := 0; i < 366 && len(slots) < count; i++ {
		day = day.AddDate(0, 0, 1)
		if !s.IsWorkday(day) {
			continue
		}
		hour := s.slotHours[len(slots)%len(s.slotHours)]
		slots = append(slots, day.Add(time.Duration(hour)*time.Hour))
	}
	return slots
}

// FormatSlot renders a slot like "Wednesday, Jan 7 at 2:00 PM".
func FormatSlot(t time.Time) string {
	return t.Format("Monday, Jan 2 at 3:04 PM")
}
