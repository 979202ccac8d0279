package site

import (
	"time"

	"codeberg.org/kvo/std/errors"
)

// Pair represents a tuple of two elements.
type Pair[T, U any] struct {
	First  T
	Second U
}

// Access modes. Exactly one of the mode-specific fields of Access is
// populated, matching the mode.
const (
	Public  = "public"
	Private = "private"
)

// Access is a user's configured binding to one upstream institution,
// identified by an opaque shareable id.
type Access struct {
	Id       string
	Owner    string
	Name     string
	Type     string
	School   string
	Domain   string
	Timezone *time.Location
	ClassId  int    // public accesses only
	Username string // private accesses only
	Password string // private accesses only
}

// Ref is a named upstream element (subject, class, or room) attached to
// a lesson. Name is the short form, Longname the display form.
type Ref struct {
	Id       int
	Name     string
	Longname string
}

// Lesson is a raw timetable period as returned by the upstream
// provider. Date is a packed YYYYMMDD integer; StartTime and EndTime
// are packed HHMM integers. The element lists may be empty: absence of
// data is normal, not an error.
type Lesson struct {
	Id        int
	Date      int
	StartTime int
	EndTime   int
	Code      string
	Subjects  []Ref
	Classes   []Ref
	Rooms     []Ref
	Text      string
}

// Homework is a raw homework record. Date is the day the homework was
// assigned and DueDate the day it is due, both packed YYYYMMDD.
type Homework struct {
	Id       int
	LessonId int
	Date     int
	DueDate  int
	Text     string
}

// HomeworkBundle pairs homework records with the subject labels of the
// lessons they reference. Subjects maps a lesson id to its subject
// label as reported by the provider.
type HomeworkBundle struct {
	Homeworks []Homework
	Subjects  map[int]string
}

// Exam is a raw exam record. Date is packed YYYYMMDD; StartTime and
// EndTime are packed HHMM.
type Exam struct {
	Id        int
	Date      int
	StartTime int
	EndTime   int
	Name      string
	Type      string
	Subject   string
	Classes   []string
	Teachers  []string
	Rooms     []string
	Text      string
}

// SchoolYear describes the provider's current school year. Start and
// End are packed YYYYMMDD.
type SchoolYear struct {
	Id    int
	Name  string
	Start int
	End   int
}

// ClassRef identifies a class offered by a school, for the access
// creation flow.
type ClassRef struct {
	Id       int
	Name     string
	Longname string
}

// Event is a single calendar event produced by the projection engine.
// Start and End are instants in UTC. Title, Description and Location
// are never empty. CalendarName is the display name of the access that
// produced the event, so a multi-access calendar can group by source.
type Event struct {
	Start        time.Time
	End          time.Time
	Title        string
	Description  string
	Location     string
	Confirmed    bool
	Busy         bool
	CalendarName string
}

// Session is an open connection to the upstream timetable provider.
// One session serves exactly one feed request; fetches for two accesses
// are never interleaved on one session.
type Session interface {
	FetchRangeForClass(start, end time.Time, classId int) ([]Lesson, errors.Error)
	FetchDayForClass(day time.Time, classId int) ([]Lesson, errors.Error)
	FetchOwnRange(start, end time.Time) ([]Lesson, errors.Error)
	FetchOwnDay(day time.Time) ([]Lesson, errors.Error)
	FetchHomework(start, end time.Time) (HomeworkBundle, errors.Error)
	FetchExams(start, end time.Time) ([]Exam, errors.Error)
	SchoolYear() (SchoolYear, errors.Error)
	Classes(yearId int) ([]ClassRef, errors.Error)
	Logout() errors.Error
}
