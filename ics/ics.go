// Package ics encodes projected calendar events as an iCalendar feed.
package ics

import (
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	"codeberg.org/kvo/std/errors"

	"main/site"
)

const (
	busyStatus   = ical.ComponentProperty("X-MICROSOFT-CDO-BUSYSTATUS")
	status       = ical.ComponentProperty("STATUS")
	transparency = ical.ComponentProperty("TRANSP")
)

// check rejects events that violate the engine's output contract.
// A violation reaching the encoder means a bug upstream of it, so it is
// surfaced as a request failure rather than patched over.
func check(event site.Event) errors.Error {
	if !event.Start.Before(event.End) {
		return errors.New("event does not start before it ends", nil)
	}
	if event.Title == "" || event.Description == "" || event.Location == "" {
		return errors.New("event has an empty descriptive field", nil)
	}
	return nil
}

// Encode serializes events as a single iCalendar document. The calendar
// is named after the access that produced the events.
func Encode(events []site.Event) (string, errors.Error) {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	if len(events) > 0 {
		cal.SetXWRCalName(events[0].CalendarName)
	}

	stamp := time.Now().UTC()
	for _, event := range events {
		err := check(event)
		if err != nil {
			return "", errors.New("cannot encode calendar", err)
		}

		entry := cal.AddEvent(uuid.New().String())
		entry.SetDtStampTime(stamp)
		entry.SetStartAt(event.Start.UTC())
		entry.SetEndAt(event.End.UTC())
		entry.SetSummary(event.Title)
		entry.SetDescription(event.Description)
		entry.SetLocation(event.Location)
		if event.Confirmed {
			entry.SetStatus(ical.ObjectStatusConfirmed)
		} else {
			entry.SetStatus(ical.ObjectStatusCancelled)
		}
		if event.Busy {
			entry.SetTimeTransparency(ical.TransparencyOpaque)
			entry.SetProperty(busyStatus, "BUSY")
		} else {
			entry.SetTimeTransparency(ical.TransparencyTransparent)
			entry.SetProperty(busyStatus, "FREE")
		}
	}
	return cal.Serialize(), nil
}

// Parse reads an iCalendar document back into events, keeping only the
// fields Encode writes. Used by feed round-trip tests.
func Parse(body string) ([]site.Event, errors.Error) {
	cal, err := ical.ParseCalendar(strings.NewReader(body))
	if err != nil {
		return nil, errors.New("cannot parse calendar", errors.New(err.Error(), nil))
	}

	var events []site.Event
	for _, entry := range cal.Events() {
		start, err := entry.GetStartAt()
		if err != nil {
			return nil, errors.New("cannot parse event start", errors.New(err.Error(), nil))
		}
		end, err := entry.GetEndAt()
		if err != nil {
			return nil, errors.New("cannot parse event end", errors.New(err.Error(), nil))
		}

		event := site.Event{Start: start.UTC(), End: end.UTC()}
		if p := entry.GetProperty(ical.ComponentPropertySummary); p != nil {
			event.Title = p.Value
		}
		if p := entry.GetProperty(ical.ComponentPropertyDescription); p != nil {
			event.Description = p.Value
		}
		if p := entry.GetProperty(ical.ComponentPropertyLocation); p != nil {
			event.Location = p.Value
		}
		if p := entry.GetProperty(status); p != nil {
			event.Confirmed = p.Value != string(ical.ObjectStatusCancelled)
		}
		if p := entry.GetProperty(transparency); p != nil {
			event.Busy = p.Value != string(ical.TransparencyTransparent)
		}
		events = append(events, event)
	}
	return events, nil
}
