package untis

import (
	"net/url"
	"strconv"
	"time"

	"codeberg.org/kvo/std/errors"

	"main/site"
)

// Upstream shape of the homework listing. The lessons list maps lesson
// ids to the subject labels the homework records refer to.
type homeworkJson struct {
	Data struct {
		Homeworks []struct {
			Id       int    `json:"id"`
			LessonId int    `json:"lessonId"`
			Date     int    `json:"date"`
			DueDate  int    `json:"dueDate"`
			Text     string `json:"text"`
		} `json:"homeworks"`
		Lessons []struct {
			Id      int    `json:"id"`
			Subject string `json:"subject"`
		} `json:"lessons"`
	} `json:"data"`
}

// FetchHomework returns homework assigned or due within [start, end],
// along with the subject labels of the lessons it belongs to.
func (s *Session) FetchHomework(start, end time.Time) (site.HomeworkBundle, errors.Error) {
	query := url.Values{}
	query.Set("startDate", strconv.Itoa(packDate(start)))
	query.Set("endDate", strconv.Itoa(packDate(end)))

	var fetched homeworkJson
	err := s.get("homeworks/lessons", query, &fetched)
	if err != nil {
		return site.HomeworkBundle{}, errors.New("cannot get homework", err)
	}

	bundle := site.HomeworkBundle{
		Subjects: make(map[int]string, len(fetched.Data.Lessons)),
	}
	for _, h := range fetched.Data.Homeworks {
		bundle.Homeworks = append(bundle.Homeworks, site.Homework{
			Id:       h.Id,
			LessonId: h.LessonId,
			Date:     h.Date,
			DueDate:  h.DueDate,
			Text:     h.Text,
		})
	}
	for _, l := range fetched.Data.Lessons {
		bundle.Subjects[l.Id] = l.Subject
	}
	return bundle, nil
}
