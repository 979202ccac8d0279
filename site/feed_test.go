package site

import (
	"strings"
	"testing"
	"time"

	"codeberg.org/kvo/std/errors"
)

// mockSession is a scripted provider session for engine tests.
type mockSession struct {
	lessons  []Lesson
	homework HomeworkBundle
	exams    []Exam
	year     SchoolYear
	failBulk bool
	failHw   bool
	failYear bool
}

var errRefused = errors.New("refused", nil)

func (m *mockSession) FetchRangeForClass(start, end time.Time, classId int) ([]Lesson, errors.Error) {
	if m.failBulk {
		return nil, errRefused
	}
	return m.lessons, nil
}

func (m *mockSession) FetchDayForClass(day time.Time, classId int) ([]Lesson, errors.Error) {
	var lessons []Lesson
	for _, l := range m.lessons {
		if l.Date == day.Year()*10000+int(day.Month())*100+day.Day() {
			lessons = append(lessons, l)
		}
	}
	return lessons, nil
}

func (m *mockSession) FetchOwnRange(start, end time.Time) ([]Lesson, errors.Error) {
	return m.FetchRangeForClass(start, end, 0)
}

func (m *mockSession) FetchOwnDay(day time.Time) ([]Lesson, errors.Error) {
	return m.FetchDayForClass(day, 0)
}

func (m *mockSession) FetchHomework(start, end time.Time) (HomeworkBundle, errors.Error) {
	if m.failHw {
		return HomeworkBundle{}, errRefused
	}
	return m.homework, nil
}

func (m *mockSession) FetchExams(start, end time.Time) ([]Exam, errors.Error) {
	return m.exams, nil
}

func (m *mockSession) SchoolYear() (SchoolYear, errors.Error) {
	if m.failYear {
		return SchoolYear{}, errRefused
	}
	return m.year, nil
}

func (m *mockSession) Classes(yearId int) ([]ClassRef, errors.Error) {
	return nil, nil
}

func (m *mockSession) Logout() errors.Error {
	return nil
}

func berlin(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Fatalf("cannot load timezone: %v", err)
	}
	return loc
}

func publicAccess(t *testing.T) Access {
	return Access{
		Id:       "a2a3aa3e-7a3c-4b08-9bb1-85e0ae6eb811",
		Name:     "Class 10b",
		Type:     Public,
		School:   "demo-school",
		Domain:   "neilo.webuntis.com",
		Timezone: berlin(t),
		ClassId:  42,
	}
}

func privateAccess(t *testing.T) Access {
	access := publicAccess(t)
	access.Name = "My timetable"
	access.Type = Private
	access.ClassId = 0
	access.Username = "student"
	access.Password = "hunter2"
	return access
}

func TestWindow(t *testing.T) {
	fixtures := []struct {
		now   time.Time
		start string
		end   string
	}{
		// Thursday
		{time.Date(2024, 3, 14, 15, 30, 0, 0, time.UTC), "2024-03-11", "2024-03-24"},
		// Monday, midnight
		{time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC), "2024-03-11", "2024-03-24"},
		// Sunday still belongs to the week that started the previous Monday
		{time.Date(2024, 3, 17, 23, 59, 0, 0, time.UTC), "2024-03-11", "2024-03-24"},
		// Year boundary
		{time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC), "2024-01-01", "2024-01-14"},
	}
	for _, fixture := range fixtures {
		start, end := Window(fixture.now)
		if start.Format("2006-01-02") != fixture.start || end.Format("2006-01-02") != fixture.end {
			t.Errorf(
				"Window(%v) = [%v, %v], want [%v, %v]",
				fixture.now, start.Format("2006-01-02"), end.Format("2006-01-02"),
				fixture.start, fixture.end,
			)
		}
	}
}

func TestWindowIdempotent(t *testing.T) {
	now := time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC)
	start1, end1 := Window(now)
	start2, end2 := Window(now)
	if !start1.Equal(start2) || !end1.Equal(end2) {
		t.Fail()
	}
}

func TestResilientFetchFallsBackPerDay(t *testing.T) {
	start := time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 13)

	bulk := func(start, end time.Time) ([]int, errors.Error) {
		return nil, errRefused
	}
	day := func(date time.Time) ([]int, errors.Error) {
		i := daysBetween(start, date)
		if i == 3 || i == 10 {
			return nil, errRefused
		}
		return []int{i}, nil
	}

	merged := fetchResilient(start, end, bulk, day)
	want := []int{0, 1, 2, 4, 5, 6, 7, 8, 9, 11, 12, 13}
	if len(merged) != len(want) {
		t.Fatalf("merged %d records, want %d", len(merged), len(want))
	}
	for i := range want {
		if merged[i] != want[i] {
			t.Errorf("merged[%d] = %d, want %d", i, merged[i], want[i])
		}
	}
}

func TestResilientFetchPrefersBulk(t *testing.T) {
	start := time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 13)

	bulk := func(start, end time.Time) ([]string, errors.Error) {
		return []string{"bulk"}, nil
	}
	day := func(date time.Time) ([]string, errors.Error) {
		t.Error("per-day fallback must not run when the bulk query succeeds")
		return nil, nil
	}

	merged := fetchResilient(start, end, bulk, day)
	if len(merged) != 1 || merged[0] != "bulk" {
		t.Fail()
	}
}

func TestLessonTitleFallbacks(t *testing.T) {
	now := time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC)
	session := &mockSession{lessons: []Lesson{
		{
			Date: 20240312, StartTime: 855, EndTime: 940,
			Subjects: []Ref{{Id: 1, Name: "MATH", Longname: "Mathematics"}},
			Classes:  []Ref{{Id: 7, Name: "10b"}},
			Rooms:    []Ref{{Id: 3, Name: "R12", Longname: "Science wing 12"}},
		},
		{
			Date: 20240312, StartTime: 950, EndTime: 1035,
			Text: "Project week",
		},
		{
			Date: 20240312, StartTime: 1100, EndTime: 1145,
		},
	}}

	events := Feed(session, publicAccess(t), now)
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}

	if events[0].Title != "MATH" {
		t.Errorf("title = %q, want first subject short name", events[0].Title)
	}
	if events[0].Description != "Mathematics - 10b" {
		t.Errorf("description = %q", events[0].Description)
	}
	if events[0].Location != "Science wing 12 (R12)" {
		t.Errorf("location = %q", events[0].Location)
	}

	if events[1].Title != "Project week" {
		t.Errorf("title = %q, want free-text label", events[1].Title)
	}

	if events[2].Title != "NO TITLE" {
		t.Errorf("title = %q, want NO TITLE", events[2].Title)
	}
	if events[2].Description != "NO DESCRIPTION" {
		t.Errorf("description = %q, want NO DESCRIPTION", events[2].Description)
	}
	if events[2].Location != "NO LOCATION" {
		t.Errorf("location = %q, want NO LOCATION", events[2].Location)
	}

	for i, event := range events {
		if !event.Start.Before(event.End) {
			t.Errorf("event %d does not start before it ends", i)
		}
		if event.CalendarName != "Class 10b" {
			t.Errorf("event %d calendar name = %q", i, event.CalendarName)
		}
	}
}

func TestLessonInstantsAreUtc(t *testing.T) {
	now := time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC)
	session := &mockSession{lessons: []Lesson{
		{Date: 20240314, StartTime: 855, EndTime: 940},
	}}

	events := Feed(session, publicAccess(t), now)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}

	// 08:55 in Berlin is 07:55 UTC in March before the DST switch.
	want := time.Date(2024, 3, 14, 7, 55, 0, 0, time.UTC)
	if !events[0].Start.Equal(want) {
		t.Errorf("start = %v, want %v", events[0].Start, want)
	}
	if events[0].Start.Location() != time.UTC {
		t.Errorf("start location = %v, want UTC", events[0].Start.Location())
	}
}

func TestCancelledLessonMapping(t *testing.T) {
	now := time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC)
	session := &mockSession{lessons: []Lesson{
		{Date: 20240313, StartTime: 800, EndTime: 845, Code: "cancelled"},
		{Date: 20240313, StartTime: 900, EndTime: 945, Code: "irregular"},
		{Date: 20240313, StartTime: 1000, EndTime: 1045},
	}}

	events := Feed(session, publicAccess(t), now)
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	if events[0].Confirmed || events[0].Busy {
		t.Error("cancelled lesson must be unconfirmed and free")
	}
	if !events[1].Confirmed || !events[1].Busy {
		t.Error("irregular lesson must be confirmed and busy")
	}
	if !events[2].Confirmed || !events[2].Busy {
		t.Error("plain lesson must be confirmed and busy")
	}
}

func TestHomeworkCorrelation(t *testing.T) {
	now := time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC)
	session := &mockSession{
		lessons: []Lesson{{
			Date: 20240312, StartTime: 855, EndTime: 940,
			Subjects: []Ref{{Id: 1, Name: "MATH", Longname: "Mathematics"}},
		}},
		homework: HomeworkBundle{
			Homeworks: []Homework{
				{Id: 1, LessonId: 100, Date: 20240312, DueDate: 20240319, Text: "Worksheet 4"},
				{Id: 2, LessonId: 100, Date: 20240305, DueDate: 20240312, Text: "Chapter 2"},
				{Id: 3, LessonId: 200, Date: 20240312, DueDate: 20240319, Text: "Essay"},
			},
			Subjects: map[int]string{
				100: "Mathematics (MATH)",
				200: "English (ENG)",
			},
		},
	}

	events := Feed(session, privateAccess(t), now)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}

	desc := events[0].Description
	if !strings.Contains(desc, "Worksheet 4 (Start)") {
		t.Errorf("description %q misses assignment annotation", desc)
	}
	if !strings.Contains(desc, "Chapter 2 (End)") {
		t.Errorf("description %q misses due annotation", desc)
	}
	if strings.Contains(desc, "Essay") {
		t.Errorf("description %q contains annotation for another subject", desc)
	}
	if !strings.Contains(events[0].Title, homeworkMark) {
		t.Errorf("title %q misses homework marker", events[0].Title)
	}
}

func TestHomeworkBothAnnotationsForOneRecord(t *testing.T) {
	now := time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC)
	session := &mockSession{
		lessons: []Lesson{{
			Date: 20240312, StartTime: 855, EndTime: 940,
			Subjects: []Ref{{Id: 1, Name: "MATH", Longname: "Mathematics"}},
		}},
		homework: HomeworkBundle{
			Homeworks: []Homework{
				{Id: 1, LessonId: 100, Date: 20240312, DueDate: 20240312, Text: "Quick quiz"},
			},
			Subjects: map[int]string{100: "Mathematics (MATH)"},
		},
	}

	events := Feed(session, privateAccess(t), now)
	desc := events[0].Description
	if !strings.Contains(desc, "Quick quiz (Start)") || !strings.Contains(desc, "Quick quiz (End)") {
		t.Errorf("description %q must carry both annotations", desc)
	}
}

func TestPublicAccessIgnoresHomeworkAndExams(t *testing.T) {
	now := time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC)
	session := &mockSession{
		lessons: []Lesson{{
			Date: 20240312, StartTime: 855, EndTime: 940,
			Subjects: []Ref{{Id: 1, Name: "MATH", Longname: "Mathematics"}},
		}},
		homework: HomeworkBundle{
			Homeworks: []Homework{{Id: 1, LessonId: 100, Date: 20240312, DueDate: 20240312, Text: "Sneaky"}},
			Subjects:  map[int]string{100: "Mathematics (MATH)"},
		},
		exams: []Exam{{Date: 20240401, StartTime: 900, EndTime: 1030, Name: "Finals", Type: "Exam"}},
		year:  SchoolYear{Id: 5, Start: 20230901, End: 20240731},
	}

	events := Feed(session, publicAccess(t), now)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1: public feeds carry lessons only", len(events))
	}
	if strings.Contains(events[0].Description, "Sneaky") {
		t.Error("public feed must not carry homework annotations")
	}
}

func TestPrivateAccessExams(t *testing.T) {
	now := time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC)
	session := &mockSession{
		lessons: []Lesson{{Date: 20240312, StartTime: 855, EndTime: 940}},
		exams: []Exam{{
			Date: 20240522, StartTime: 900, EndTime: 1030,
			Name: "Algebra", Type: "Klassenarbeit", Subject: "Mathematics",
			Classes: []string{"10a", "10b"}, Teachers: []string{"Meier"},
			Rooms: []string{"R12"}, Text: "Bring a calculator",
		}},
		year: SchoolYear{Id: 5, Start: 20230901, End: 20240731},
	}

	events := Feed(session, privateAccess(t), now)
	if len(events) != 2 {
		t.Fatalf("got %d events, want lesson then exam", len(events))
	}

	// Lessons' events precede exams' events.
	exam := events[1]
	if exam.Title != "Algebra (Klassenarbeit)" {
		t.Errorf("exam title = %q", exam.Title)
	}
	if exam.Description != "Algebra - Mathematics - 10a, 10b - Meier - Bring a calculator" {
		t.Errorf("exam description = %q", exam.Description)
	}
	if exam.Location != "R12" {
		t.Errorf("exam location = %q", exam.Location)
	}
	if !exam.Confirmed || !exam.Busy {
		t.Error("exams are always confirmed and busy")
	}
}

func TestHomeworkFailureDegradesToEmpty(t *testing.T) {
	now := time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC)
	session := &mockSession{
		lessons: []Lesson{{
			Date: 20240312, StartTime: 855, EndTime: 940,
			Subjects: []Ref{{Id: 1, Name: "MATH", Longname: "Mathematics"}},
		}},
		failHw:   true,
		failYear: true,
	}

	events := Feed(session, privateAccess(t), now)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if strings.Contains(events[0].Title, homeworkMark) {
		t.Error("no homework annotations expected after a homework fetch failure")
	}
}
