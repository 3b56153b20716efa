package export

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	"orgcal/internal/model"
)

const (
	icsUTCLayout   = "20060102T150405Z"
	icsLocalLayout = "20060102T150405"
)

// WriteSeriesCalendar writes a series as an iCalendar document. The parent row becomes a
// recurring VEVENT carrying the stored rule, ending at the last stored start. Rule instances with no stored row (deleted
// occurrences) become EXDATEs, and stored rows that no longer sit on a rule instance
// (moved occurrences) are written as standalone VEVENTs. A series whose parent row is gone
// is written as plain events.
func WriteSeriesCalendar(w io.Writer, series []model.Event, room model.Room, loc *time.Location) error {
	if len(series) == 0 {
		return fmt.Errorf("empty series")
	}
	if loc == nil {
		loc = time.UTC
	}

	rows := slices.Clone(series)
	slices.SortFunc(rows, func(a, b model.Event) int { return a.Start.Compare(b.Start) })

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//orgcal//room scheduling//EN")

	idx := slices.IndexFunc(rows, func(e model.Event) bool { return e.IsParent() && e.RecurrenceRule != "" })
	if idx < 0 {
		for _, e := range rows {
			addEvent(cal, e.UID, e, room, loc)
		}
		return write(w, cal)
	}
	parent := rows[idx]
	last := rows[len(rows)-1]

	rule := boundRule(parent.RecurrenceRule, last.Start)

	r, err := rrule.StrToRRule(rule)
	if err != nil {
		return fmt.Errorf("invalid recurrence rule %q: %w", parent.RecurrenceRule, err)
	}
	r.DTStart(parent.Start.In(loc))
	instants := r.Between(parent.Start, last.Start, true)

	onRule := make(map[int64]struct{}, len(instants))
	for _, t := range instants {
		onRule[t.Unix()] = struct{}{}
	}
	stored := make(map[int64]struct{}, len(rows))
	for _, e := range rows {
		stored[e.Start.Unix()] = struct{}{}
	}

	master := addEvent(cal, parent.SeriesID, parent, room, loc)
	master.SetProperty(ical.ComponentPropertyRrule, rule)
	for _, t := range instants {
		if _, ok := stored[t.Unix()]; !ok {
			addTime(master, ical.ComponentPropertyExdate, t, loc)
		}
	}

	for _, e := range rows {
		if e.ID == parent.ID {
			continue
		}
		if _, ok := onRule[e.Start.Unix()]; !ok {
			addEvent(cal, e.UID, e, room, loc)
		}
	}

	return write(w, cal)
}

// boundRule replaces the rule's COUNT or UNTIL with UNTIL=until. Calendar clients skip
// months lacking BYMONTHDAY where stored series clamp to the month end, so the stored
// terminator would let clients expand instances past the last stored row.
func boundRule(rule string, until time.Time) string {
	parts := strings.Split(strings.TrimPrefix(rule, "RRULE:"), ";")
	out := make([]string, 0, len(parts)+1)
	for _, p := range parts {
		key, _, _ := strings.Cut(p, "=")
		switch strings.ToUpper(key) {
		case "COUNT", "UNTIL", "":
			continue
		}
		out = append(out, p)
	}
	out = append(out, "UNTIL="+until.UTC().Format(icsUTCLayout))
	return strings.Join(out, ";")
}

func write(w io.Writer, cal *ical.Calendar) error {
	_, err := io.WriteString(w, cal.Serialize())
	return err
}

func addEvent(cal *ical.Calendar, uid string, e model.Event, room model.Room, loc *time.Location) *ical.VEvent {
	ev := cal.AddEvent(uid)
	stamp := e.UpdatedAt
	if stamp.IsZero() {
		stamp = e.Start
	}
	ev.SetDtStampTime(stamp)
	setTime(ev, ical.ComponentPropertyDtStart, e.Start, loc)
	setTime(ev, ical.ComponentPropertyDtEnd, e.End, loc)
	ev.SetSummary(e.Title)
	if e.Description != "" {
		ev.SetDescription(e.Description)
	}
	if room.Name != "" {
		ev.SetLocation(room.Name)
	}
	ev.SetStatus(icsStatus(e.Status))
	return ev
}

// setTime writes a DATE-TIME in loc so recurring instances keep their wall-clock time
// across DST changes. UTC values use the Z form.
func setTime(ev *ical.VEvent, prop ical.ComponentProperty, t time.Time, loc *time.Location) {
	value, params := icsTime(t, loc)
	ev.SetProperty(prop, value, params...)
}

func addTime(ev *ical.VEvent, prop ical.ComponentProperty, t time.Time, loc *time.Location) {
	value, params := icsTime(t, loc)
	ev.AddProperty(prop, value, params...)
}

func icsTime(t time.Time, loc *time.Location) (string, []ical.PropertyParameter) {
	if loc == time.UTC {
		return t.UTC().Format(icsUTCLayout), nil
	}
	return t.In(loc).Format(icsLocalLayout), []ical.PropertyParameter{
		&ical.KeyValues{Key: "TZID", Value: []string{loc.String()}},
	}
}

func icsStatus(s model.Status) ical.ObjectStatus {
	switch s {
	case model.StatusApproved, model.StatusPublished:
		return ical.ObjectStatusConfirmed
	case model.StatusCancelled, model.StatusRejected:
		return ical.ObjectStatusCancelled
	}
	return ical.ObjectStatusTentative
}
