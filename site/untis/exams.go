package untis

import (
	"net/url"
	"strconv"
	"time"

	"codeberg.org/kvo/std/errors"

	"main/site"
)

type examJson struct {
	Data struct {
		Exams []struct {
			Id           int      `json:"id"`
			ExamDate     int      `json:"examDate"`
			StartTime    int      `json:"startTime"`
			EndTime      int      `json:"endTime"`
			Name         string   `json:"name"`
			ExamType     string   `json:"examType"`
			Subject      string   `json:"subject"`
			StudentClass []string `json:"studentClass"`
			Teachers     []string `json:"teachers"`
			Rooms        []string `json:"rooms"`
			Text         string   `json:"text"`
		} `json:"exams"`
	} `json:"data"`
}

// FetchExams returns the exams scheduled for the logged-in person
// within [start, end].
func (s *Session) FetchExams(start, end time.Time) ([]site.Exam, errors.Error) {
	query := url.Values{}
	query.Set("startDate", strconv.Itoa(packDate(start)))
	query.Set("endDate", strconv.Itoa(packDate(end)))

	var fetched examJson
	err := s.get("exams", query, &fetched)
	if err != nil {
		return nil, errors.New("cannot get exams", err)
	}

	exams := make([]site.Exam, 0, len(fetched.Data.Exams))
	for _, e := range fetched.Data.Exams {
		exams = append(exams, site.Exam{
			Id:        e.Id,
			Date:      e.ExamDate,
			StartTime: e.StartTime,
			EndTime:   e.EndTime,
			Name:      e.Name,
			Type:      e.ExamType,
			Subject:   e.Subject,
			Classes:   e.StudentClass,
			Teachers:  e.Teachers,
			Rooms:     e.Rooms,
			Text:      e.Text,
		})
	}
	return exams, nil
}
