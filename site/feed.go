package site

import (
	"fmt"
	"strings"
	"time"

	"codeberg.org/kvo/std/errors"

	"main/logger"
)

// Fallback literals for lessons with missing descriptive fields. The
// engine never drops a record over absent subjects, rooms or text.
const (
	noTitle       = "NO TITLE"
	noDescription = "NO DESCRIPTION"
	noLocation    = "NO LOCATION"
)

// Appended to a lesson's title when homework is attached to it.
const homeworkMark = " \U0001F4DD"

// Window returns the feed query window for the given instant: Monday of
// the ISO week containing now, through the Sunday thirteen days later.
// The window covers 14 calendar days regardless of the time of day.
func Window(now time.Time) (time.Time, time.Time) {
	weekday := int(now.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	start = start.AddDate(0, 0, 1-weekday)
	return start, start.AddDate(0, 0, 13)
}

// daysBetween returns the number of calendar days from start to end,
// ignoring the time of day on either side.
func daysBetween(start, end time.Time) int {
	y, m, d := start.Date()
	u1 := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	y, m, d = end.Date()
	u2 := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return int(u2.Sub(u1) / (24 * time.Hour))
}

// fetchResilient attempts one bulk range query. If the bulk query fails,
// every day of [start, end] is queried independently and concurrently,
// and the per-day results are reassembled in day order. A failed day is
// logged and contributes zero records; fetchResilient itself never
// fails. There is no third level: one bulk attempt, one pass over days.
func fetchResilient[T any](start, end time.Time, bulk func(time.Time, time.Time) ([]T, errors.Error), day func(time.Time) ([]T, errors.Error)) []T {
	records, err := bulk(start, end)
	if err == nil {
		return records
	}
	logger.Debug("bulk range query failed, falling back to per-day queries: %v", err)

	days := daysBetween(start, end) + 1
	ch := make(chan Pair[int, []T])
	for i := 0; i < days; i++ {
		go func(i int) {
			date := start.AddDate(0, 0, i)
			fetched, err := day(date)
			if err != nil {
				logger.Debug("query for day %s failed: %v", date.Format("2006-01-02"), err)
				fetched = nil
			}
			ch <- Pair[int, []T]{i, fetched}
		}(i)
	}

	perDay := make([][]T, days)
	for i := 0; i < days; i++ {
		result := <-ch
		perDay[result.First] = result.Second
	}

	var merged []T
	for _, fetched := range perDay {
		merged = append(merged, fetched...)
	}
	return merged
}

// Feed produces the calendar events for one access from an open
// provider session. Lessons' events precede exams' events; within each,
// upstream day order is preserved.
func Feed(s Session, access Access, now time.Time) []Event {
	start, end := Window(now.In(access.Timezone))

	var lessons []Lesson
	if access.Type == Private {
		lessons = fetchResilient(start, end, s.FetchOwnRange, s.FetchOwnDay)
	} else {
		lessons = fetchResilient(start, end,
			func(start, end time.Time) ([]Lesson, errors.Error) {
				return s.FetchRangeForClass(start, end, access.ClassId)
			},
			func(day time.Time) ([]Lesson, errors.Error) {
				return s.FetchDayForClass(day, access.ClassId)
			},
		)
	}

	var homework HomeworkBundle
	var exams []Exam
	if access.Type == Private {
		var err errors.Error
		homework, err = s.FetchHomework(start, end)
		if err != nil {
			logger.Debug("cannot get homework: %v", err)
			homework = HomeworkBundle{}
		}
		// Exams are fetched across the current school year, not the
		// 14-day window.
		year, err := s.SchoolYear()
		if err != nil {
			logger.Debug("cannot get current school year: %v", err)
		} else {
			exams = fetchResilient(
				unpackDate(year.Start, access.Timezone),
				unpackDate(year.End, access.Timezone),
				s.FetchExams,
				func(day time.Time) ([]Exam, errors.Error) {
					return s.FetchExams(day, day)
				},
			)
		}
	}

	events := make([]Event, 0, len(lessons)+len(exams))
	for _, lesson := range lessons {
		events = append(events, lessonEvent(lesson, access, homework))
	}
	for _, exam := range exams {
		events = append(events, examEvent(exam, access))
	}
	return events
}

// unpackDate converts a packed YYYYMMDD integer to midnight of that
// civil date in loc. Upstream months are 1-based, matching time.Month.
func unpackDate(packed int, loc *time.Location) time.Time {
	year := packed / 10000
	month := packed % 10000 / 100
	day := packed % 100
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc)
}

// unpackInstant combines a packed YYYYMMDD date and a packed HHMM time
// of day into one instant: interpreted as civil time in loc, converted
// to UTC.
func unpackInstant(date, clock int, loc *time.Location) time.Time {
	year := date / 10000
	month := date % 10000 / 100
	day := date % 100
	hour := clock / 100
	minute := clock % 100
	return time.Date(year, time.Month(month), day, hour, minute, 0, 0, loc).UTC()
}

// firstOf returns the first non-empty string of its arguments.
func firstOf(options ...string) string {
	for _, s := range options {
		if s != "" {
			return s
		}
	}
	return ""
}

// subjectLabel is the composite form under which the provider reports a
// lesson's subject in homework records.
func subjectLabel(subject Ref) string {
	return fmt.Sprintf("%s (%s)", subject.Longname, subject.Name)
}

func describe(lesson Lesson) string {
	names := make([]string, 0, len(lesson.Classes))
	for _, class := range lesson.Classes {
		names = append(names, class.Name)
	}
	switch {
	case len(lesson.Subjects) > 0:
		return lesson.Subjects[0].Longname + " - " + strings.Join(names, ", ")
	case lesson.Text != "" && len(names) > 0:
		return lesson.Text + " - " + names[0]
	case lesson.Text != "":
		return lesson.Text
	default:
		return noDescription
	}
}

func locate(lesson Lesson) string {
	if len(lesson.Rooms) == 0 {
		return noLocation
	}
	return fmt.Sprintf("%s (%s)", lesson.Rooms[0].Longname, lesson.Rooms[0].Name)
}

// annotations collects the homework notes pertaining to one lesson: an
// assignment note when the homework was handed out on the lesson's day,
// a due note when it is due that day. Both may apply to one record.
func annotations(lesson Lesson, homework HomeworkBundle) []string {
	if len(lesson.Subjects) == 0 {
		return nil
	}
	label := subjectLabel(lesson.Subjects[0])
	var notes []string
	for _, record := range homework.Homeworks {
		if homework.Subjects[record.LessonId] != label {
			continue
		}
		if record.Date == lesson.Date {
			notes = append(notes, record.Text+" (Start)")
		}
		if record.DueDate == lesson.Date {
			notes = append(notes, record.Text+" (End)")
		}
	}
	return notes
}

func lessonEvent(lesson Lesson, access Access, homework HomeworkBundle) Event {
	var subject string
	if len(lesson.Subjects) > 0 {
		subject = lesson.Subjects[0].Name
	}
	title := firstOf(subject, lesson.Text, noTitle)
	desc := describe(lesson)

	notes := annotations(lesson, homework)
	if len(notes) > 0 {
		title += homeworkMark
		desc += "\n" + strings.Join(notes, "\n")
	}

	cancelled := lesson.Code == "cancelled"
	return Event{
		Start:        unpackInstant(lesson.Date, lesson.StartTime, access.Timezone),
		End:          unpackInstant(lesson.Date, lesson.EndTime, access.Timezone),
		Title:        title,
		Description:  desc,
		Location:     locate(lesson),
		Confirmed:    !cancelled,
		Busy:         !cancelled,
		CalendarName: access.Name,
	}
}

// examEvent maps an exam record to an event. Exams are never cancelled
// in this feed.
func examEvent(exam Exam, access Access) Event {
	parts := make([]string, 0, 5)
	for _, part := range []string{
		exam.Name,
		exam.Subject,
		strings.Join(exam.Classes, ", "),
		strings.Join(exam.Teachers, ", "),
		exam.Text,
	} {
		if part != "" {
			parts = append(parts, part)
		}
	}
	return Event{
		Start:        unpackInstant(exam.Date, exam.StartTime, access.Timezone),
		End:          unpackInstant(exam.Date, exam.EndTime, access.Timezone),
		Title:        fmt.Sprintf("%s (%s)", exam.Name, exam.Type),
		Description:  firstOf(strings.Join(parts, " - "), noDescription),
		Location:     firstOf(strings.Join(exam.Rooms, ", "), noLocation),
		Confirmed:    true,
		Busy:         true,
		CalendarName: access.Name,
	}
}
