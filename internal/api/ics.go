package api

import (
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-ical"

	"github.com/paul-bouzian/saycal/internal/model"
)

const icsProductID = "-//SayCal//Voice Calendar//FR"

// EncodeICS writes events as a VCALENDAR. Times are emitted in UTC.
func EncodeICS(w io.Writer, events []*model.Event, stamp time.Time) error {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, icsProductID)

	for _, e := range events {
		ev := ical.NewEvent()
		ev.Props.SetText(ical.PropUID, e.ID+"@saycal.app")
		ev.Props.SetDateTime(ical.PropDateTimeStamp, stamp.UTC())
		ev.Props.SetDateTime(ical.PropDateTimeStart, e.StartAt.UTC())
		ev.Props.SetDateTime(ical.PropDateTimeEnd, e.EndAt.UTC())
		ev.Props.SetText(ical.PropSummary, e.Title)
		if e.Description != nil && *e.Description != "" {
			ev.Props.SetText(ical.PropDescription, *e.Description)
		}
		if e.Color != nil {
			ev.Props.SetText(ical.PropColor, *e.Color)
		}
		ev.Props.SetDateTime(ical.PropLastModified, e.UpdatedAt.UTC())
		cal.Children = append(cal.Children, ev.Component)
	}
	if len(cal.Children) == 0 {
		// An empty calendar is valid for clients but the encoder rejects it.
		cal.Children = append(cal.Children, emptyTimezone())
	}
	if err := ical.NewEncoder(w).Encode(cal); err != nil {
		return fmt.Errorf("encode ics: %w", err)
	}
	return nil
}

func emptyTimezone() *ical.Component {
	tz := ical.NewComponent(ical.CompTimezone)
	tz.Props.SetText(ical.PropTimezoneID, "UTC")
	std := ical.NewComponent(ical.CompTimezoneStandard)
	std.Props.SetDateTime(ical.PropDateTimeStart, time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC))
	std.Props.SetText(ical.PropTimezoneOffsetFrom, "+0000")
	std.Props.SetText(ical.PropTimezoneOffsetTo, "+0000")
	tz.Children = append(tz.Children, std)
	return tz
}
