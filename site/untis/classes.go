package untis

import (
	"codeberg.org/kvo/std/errors"

	"main/site"
)

type schoolYearJson struct {
	Id        int    `json:"id"`
	Name      string `json:"name"`
	StartDate int    `json:"startDate"`
	EndDate   int    `json:"endDate"`
}

type classJson struct {
	Id       int    `json:"id"`
	Name     string `json:"name"`
	LongName string `json:"longName"`
}

// SchoolYear returns the provider's current school year.
func (s *Session) SchoolYear() (site.SchoolYear, errors.Error) {
	var fetched schoolYearJson
	err := s.rpc("getCurrentSchoolyear", map[string]any{}, &fetched)
	if err != nil {
		return site.SchoolYear{}, errors.New("cannot get current school year", err)
	}
	return site.SchoolYear{
		Id:    fetched.Id,
		Name:  fetched.Name,
		Start: fetched.StartDate,
		End:   fetched.EndDate,
	}, nil
}

// Classes lists the classes the school offers, for the access creation
// flow. A yearId of 0 means the provider's current school year.
func (s *Session) Classes(yearId int) ([]site.ClassRef, errors.Error) {
	params := map[string]any{}
	if yearId != 0 {
		params["schoolyearId"] = yearId
	}

	var fetched []classJson
	err := s.rpc("getKlassen", params, &fetched)
	if err != nil {
		return nil, errors.New("cannot get class list", err)
	}

	classes := make([]site.ClassRef, 0, len(fetched))
	for _, c := range fetched {
		classes = append(classes, site.ClassRef{
			Id:       c.Id,
			Name:     c.Name,
			Longname: c.LongName,
		})
	}
	return classes, nil
}
