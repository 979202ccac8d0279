package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"main/ics"
	"main/logger"
	"main/site"
	"main/site/untis"
)

// Defaults applied when an access is created without an explicit server
// or timezone.
const (
	defaultDomain   = "neilo.webuntis.com"
	defaultTimezone = "Europe/Berlin"
)

type apiError struct {
	Error string `json:"error"`
}

// accessJson is the API representation of an access. The upstream
// secret is never serialized.
type accessJson struct {
	Id       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	School   string `json:"school"`
	Domain   string `json:"domain"`
	Timezone string `json:"timezone"`
	ClassId  int    `json:"classId,omitempty"`
	Username string `json:"username,omitempty"`
}

func respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func accessResponse(access site.Access) accessJson {
	return accessJson{
		Id:       access.Id,
		Name:     access.Name,
		Type:     access.Type,
		School:   access.School,
		Domain:   access.Domain,
		Timezone: access.Timezone.String(),
		ClassId:  access.ClassId,
		Username: access.Username,
	}
}

// feedHandler serves GET /ics/{id}: one live projection of the access's
// timetable, encoded as an iCalendar document. A provider login failure
// or an encode failure yields a non-2xx response with no partial body.
func feedHandler(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.EscapedPath(), "/ics/")

	access, err := getAccess(id)
	if err == site.ErrNotFound {
		respond(w, 404, apiError{"no such calendar"})
		return
	} else if err != nil {
		logger.Error("cannot load access %s: %v", id, err)
		respond(w, 500, apiError{"internal server error"})
		return
	}

	session, err := untis.Open(access)
	if err == site.ErrAuthFailed {
		respond(w, 502, apiError{"upstream login failed"})
		return
	} else if err != nil {
		logger.Error("cannot open upstream session: %v", err)
		respond(w, 500, apiError{"internal server error"})
		return
	}
	defer func() {
		if err := session.Logout(); err != nil {
			logger.Debug("upstream logout failed: %v", err)
		}
	}()

	events := site.Feed(session, access, time.Now())

	body, err := ics.Encode(events)
	if err != nil {
		logger.Error("cannot encode feed for access %s: %v", id, err)
		respond(w, 500, apiError{"cannot encode calendar"})
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Write([]byte(body))
}

func registerHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		respond(w, 405, apiError{"method not allowed"})
		return
	}

	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil || req.Email == "" || req.Password == "" {
		respond(w, 400, apiError{"email and password are required"})
		return
	}

	if rerr := register(req.Email, req.Password); rerr != nil {
		logger.Debug("registration failed: %v", rerr)
		respond(w, 409, apiError{"cannot register this email"})
		return
	}
	respond(w, 201, map[string]string{"email": req.Email})
}

func loginHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		respond(w, 405, apiError{"method not allowed"})
		return
	}

	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		respond(w, 400, apiError{"email and password are required"})
		return
	}

	token, lerr := login(req.Email, req.Password)
	if lerr != nil {
		respond(w, 401, apiError{"invalid email or password"})
		return
	}

	w.Header().Set("Set-Cookie", "token="+token+"; Path=/; HttpOnly; SameSite=Strict")
	respond(w, 200, map[string]string{"email": req.Email})
}

func logoutHandler(w http.ResponseWriter, r *http.Request) {
	if err := logout(r.Header.Get("Cookie")); err != nil {
		respond(w, 401, apiError{"not logged in"})
		return
	}
	w.Header().Set("Set-Cookie", "token=; Path=/; Max-Age=0")
	respond(w, 200, map[string]string{})
}

func passwordHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		respond(w, 405, apiError{"method not allowed"})
		return
	}
	email, err := getCreds(r.Header.Get("Cookie"))
	if err != nil {
		respond(w, 401, apiError{"not logged in"})
		return
	}

	var req struct {
		OldPassword          string `json:"oldPassword"`
		NewPassword          string `json:"newPassword"`
		NewPasswordConfirmed string `json:"newPasswordConfirmed"`
	}
	derr := json.NewDecoder(r.Body).Decode(&req)
	if derr != nil || req.NewPassword == "" {
		respond(w, 400, apiError{"new password is required"})
		return
	}
	if req.NewPassword != req.NewPasswordConfirmed {
		respond(w, 400, apiError{"new passwords do not match"})
		return
	}

	if cerr := changePassword(email, req.OldPassword, req.NewPassword); cerr != nil {
		respond(w, 401, apiError{"old password is incorrect"})
		return
	}
	respond(w, 200, map[string]string{})
}

// accessesHandler serves GET /api/accesses (list own accesses) and
// POST /api/accesses (create one).
func accessesHandler(w http.ResponseWriter, r *http.Request) {
	email, err := getCreds(r.Header.Get("Cookie"))
	if err != nil {
		respond(w, 401, apiError{"not logged in"})
		return
	}

	switch r.Method {
	case "GET":
		accesses, lerr := listAccesses(email)
		if lerr != nil {
			logger.Error("cannot list accesses for %s: %v", email, lerr)
			respond(w, 500, apiError{"internal server error"})
			return
		}
		list := make([]accessJson, 0, len(accesses))
		for _, access := range accesses {
			list = append(list, accessResponse(access))
		}
		respond(w, 200, list)
	case "POST":
		createAccess(w, r, email)
	default:
		respond(w, 405, apiError{"method not allowed"})
	}
}

func createAccess(w http.ResponseWriter, r *http.Request, email string) {
	var req struct {
		Name     string `json:"name"`
		Type     string `json:"type"`
		School   string `json:"school"`
		Domain   string `json:"domain"`
		Timezone string `json:"timezone"`
		ClassId  int    `json:"classId"`
		Username string `json:"username"`
		Password string `json:"password"`
	}
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil || req.Name == "" || req.School == "" {
		respond(w, 400, apiError{"name and school are required"})
		return
	}
	if req.Type != site.Public && req.Type != site.Private {
		respond(w, 400, apiError{"type must be public or private"})
		return
	}
	if req.Type == site.Public && req.ClassId == 0 {
		respond(w, 400, apiError{"public accesses need a class"})
		return
	}
	if req.Type == site.Private && (req.Username == "" || req.Password == "") {
		respond(w, 400, apiError{"private accesses need upstream credentials"})
		return
	}
	if req.Domain == "" {
		req.Domain = defaultDomain
	}
	if req.Timezone == "" {
		req.Timezone = defaultTimezone
	}
	timezone, err := time.LoadLocation(req.Timezone)
	if err != nil {
		respond(w, 400, apiError{"unknown timezone"})
		return
	}

	access := site.Access{
		Id:       uuid.New().String(),
		Owner:    email,
		Name:     req.Name,
		Type:     req.Type,
		School:   req.School,
		Domain:   req.Domain,
		Timezone: timezone,
		ClassId:  req.ClassId,
		Username: req.Username,
		Password: req.Password,
	}
	if serr := saveAccess(access); serr != nil {
		logger.Error("cannot save access: %v", serr)
		respond(w, 500, apiError{"internal server error"})
		return
	}
	respond(w, 201, accessResponse(access))
}

// accessHandler serves GET and DELETE for /api/accesses/{id}.
func accessHandler(w http.ResponseWriter, r *http.Request) {
	email, err := getCreds(r.Header.Get("Cookie"))
	if err != nil {
		respond(w, 401, apiError{"not logged in"})
		return
	}

	id := strings.TrimPrefix(r.URL.EscapedPath(), "/api/accesses/")

	switch r.Method {
	case "GET":
		access, aerr := getAccess(id)
		if aerr != nil || access.Owner != email {
			respond(w, 404, apiError{"no such access"})
			return
		}
		respond(w, 200, accessResponse(access))
	case "DELETE":
		if derr := deleteAccess(email, id); derr != nil {
			respond(w, 404, apiError{"no such access"})
			return
		}
		respond(w, 200, map[string]string{})
	default:
		respond(w, 405, apiError{"method not allowed"})
	}
}

// classesHandler lists the classes a school offers, for the access
// creation flow. It uses a short-lived anonymous upstream session.
func classesHandler(w http.ResponseWriter, r *http.Request) {
	if _, err := getCreds(r.Header.Get("Cookie")); err != nil {
		respond(w, 401, apiError{"not logged in"})
		return
	}

	school := r.URL.Query().Get("school")
	domain := r.URL.Query().Get("domain")
	if school == "" {
		respond(w, 400, apiError{"school is required"})
		return
	}
	if domain == "" {
		domain = defaultDomain
	}

	session, err := untis.Open(site.Access{
		Type:   site.Public,
		School: school,
		Domain: domain,
	})
	if err != nil {
		respond(w, 502, apiError{"upstream login failed"})
		return
	}
	defer func() {
		if err := session.Logout(); err != nil {
			logger.Debug("upstream logout failed: %v", err)
		}
	}()

	year, err := session.SchoolYear()
	if err != nil {
		logger.Debug("cannot get current school year: %v", err)
		respond(w, 502, apiError{"cannot list classes"})
		return
	}
	classes, err := session.Classes(year.Id)
	if err != nil {
		logger.Debug("cannot get class list: %v", err)
		respond(w, 502, apiError{"cannot list classes"})
		return
	}

	type classRef struct {
		Id       int    `json:"id"`
		Name     string `json:"name"`
		Longname string `json:"longname,omitempty"`
	}
	list := make([]classRef, 0, len(classes))
	for _, class := range classes {
		list = append(list, classRef{Id: class.Id, Name: class.Name, Longname: class.Longname})
	}
	respond(w, 200, list)
}

// statsHandler reports the landing page counters.
func statsHandler(w http.ResponseWriter, r *http.Request) {
	ctx := context.Background()

	users, err := db.SCard(ctx, "users").Result()
	if err != nil {
		respond(w, 500, apiError{"internal server error"})
		return
	}
	accesses, err := db.SCard(ctx, "accesses").Result()
	if err != nil {
		respond(w, 500, apiError{"internal server error"})
		return
	}
	respond(w, 200, map[string]int64{"users": users, "accesses": accesses})
}
