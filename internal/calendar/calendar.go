// Package calendar renders an event's best date as an iCalendar file.
package calendar

import (
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-ical"

	"github.com/dukerupert/togetherplan/internal/model"
)

const productID = "-//TogetherPlan//Best Date//EN"

// Start returns the start of a date option. Options without a time are
// all-day. Proposed times carry no zone and are read as UTC.
func Start(o *model.DateOption) (t time.Time, allDay bool, err error) {
	if o.ProposedTime == nil {
		t, err = time.Parse(time.DateOnly, o.ProposedDate)
		return t, true, err
	}
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02 15:04"} {
		if t, err = time.Parse(layout, o.ProposedDate+" "+*o.ProposedTime); err == nil {
			return t, false, nil
		}
	}
	return time.Time{}, false, fmt.Errorf("parse date option %d: %w", o.ID, err)
}

// Format renders a date option for people: "2026-05-01" or "2026-05-01 18:30".
func Format(o *model.DateOption) string {
	t, allDay, err := Start(o)
	if err != nil {
		return o.ProposedDate
	}
	if allDay {
		return t.Format(time.DateOnly)
	}
	return t.Format("2006-01-02 15:04")
}

// Encode writes a VCALENDAR with one VEVENT for e on its best date option.
// host qualifies the event UID.
func Encode(w io.Writer, e *model.Event, best *model.DateOption, host string, now time.Time) error {
	start, allDay, err := Start(best)
	if err != nil {
		return err
	}

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)

	ev := ical.NewEvent()
	ev.Props.SetText(ical.PropUID, fmt.Sprintf("event-%d-option-%d@%s", e.ID, best.ID, host))
	ev.Props.SetDateTime(ical.PropDateTimeStamp, now.UTC())
	ev.Props.SetText(ical.PropSummary, e.Title)
	if e.Description != "" {
		ev.Props.SetText(ical.PropDescription, e.Description)
	}
	ev.Props.SetText(ical.PropLocation, e.Location)
	ev.Props.SetText(ical.PropCategories, e.Category)
	if allDay {
		ev.Props.SetDate(ical.PropDateTimeStart, start)
		ev.Props.SetDate(ical.PropDateTimeEnd, start.AddDate(0, 0, 1))
	} else {
		ev.Props.SetDateTime(ical.PropDateTimeStart, start)
	}
	cal.Children = append(cal.Children, ev.Component)

	if err := ical.NewEncoder(w).Encode(cal); err != nil {
		return fmt.Errorf("encode calendar: %w", err)
	}
	return nil
}
