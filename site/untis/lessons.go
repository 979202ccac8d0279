package untis

import (
	"time"

	"codeberg.org/kvo/std/errors"

	"main/site"
)

// Element types understood by the provider's getTimetable call.
const (
	elementClass   = 1
	elementStudent = 5
)

type element struct {
	Id       int    `json:"id"`
	Name     string `json:"name"`
	Longname string `json:"longname"`
}

// lessonJson is the upstream shape of one timetable period.
type lessonJson struct {
	Id        int       `json:"id"`
	Date      int       `json:"date"`
	StartTime int       `json:"startTime"`
	EndTime   int       `json:"endTime"`
	Code      string    `json:"code"`
	Lstext    string    `json:"lstext"`
	Su        []element `json:"su"`
	Kl        []element `json:"kl"`
	Ro        []element `json:"ro"`
}

// packDate encodes a civil date as the provider's YYYYMMDD integer.
func packDate(t time.Time) int {
	return t.Year()*10000 + int(t.Month())*100 + t.Day()
}

func refs(elements []element) []site.Ref {
	if len(elements) == 0 {
		return nil
	}
	list := make([]site.Ref, 0, len(elements))
	for _, e := range elements {
		list = append(list, site.Ref{Id: e.Id, Name: e.Name, Longname: e.Longname})
	}
	return list
}

// timetable fetches the raw timetable of one element for [start, end]
// and converts it to the shared lesson shape. Order is as returned by
// the provider, which is day-ascending.
func (s *Session) timetable(start, end time.Time, id, kind int) ([]site.Lesson, errors.Error) {
	params := map[string]any{
		"options": map[string]any{
			"element":       map[string]any{"id": id, "type": kind},
			"startDate":     packDate(start),
			"endDate":       packDate(end),
			"showSubstText": true,
			"klasseFields":  []string{"id", "name", "longname"},
			"roomFields":    []string{"id", "name", "longname"},
			"subjectFields": []string{"id", "name", "longname"},
		},
	}

	var fetched []lessonJson
	err := s.rpc("getTimetable", params, &fetched)
	if err != nil {
		return nil, errors.New("cannot get timetable", err)
	}

	lessons := make([]site.Lesson, 0, len(fetched))
	for _, l := range fetched {
		lessons = append(lessons, site.Lesson{
			Id:        l.Id,
			Date:      l.Date,
			StartTime: l.StartTime,
			EndTime:   l.EndTime,
			Code:      l.Code,
			Subjects:  refs(l.Su),
			Classes:   refs(l.Kl),
			Rooms:     refs(l.Ro),
			Text:      l.Lstext,
		})
	}
	return lessons, nil
}

// FetchRangeForClass returns the lessons of the given class for the
// whole range in one bulk query.
func (s *Session) FetchRangeForClass(start, end time.Time, classId int) ([]site.Lesson, errors.Error) {
	return s.timetable(start, end, classId, elementClass)
}

// FetchDayForClass returns the lessons of the given class for a single
// day. Used by the per-day fallback of the resilient range fetch.
func (s *Session) FetchDayForClass(day time.Time, classId int) ([]site.Lesson, errors.Error) {
	return s.timetable(day, day, classId, elementClass)
}

// FetchOwnRange returns the lessons of the logged-in person for the
// whole range. Only meaningful on credentialed sessions.
func (s *Session) FetchOwnRange(start, end time.Time) ([]site.Lesson, errors.Error) {
	if s.anonymous {
		return nil, errors.New("own timetable requires a credentialed session", nil)
	}
	return s.timetable(start, end, s.personId, elementStudent)
}

// FetchOwnDay returns the lessons of the logged-in person for a single
// day.
func (s *Session) FetchOwnDay(day time.Time) ([]site.Lesson, errors.Error) {
	if s.anonymous {
		return nil, errors.New("own timetable requires a credentialed session", nil)
	}
	return s.timetable(day, day, s.personId, elementStudent)
}
