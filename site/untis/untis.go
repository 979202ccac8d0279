package untis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"codeberg.org/kvo/std/errors"

	"main/logger"
	"main/site"
)

// Client string reported to the upstream JSON-RPC endpoint.
const rpcClient = "untis-to-calendar"

// Pseudo-user the provider accepts for anonymous class-feed sessions.
const anonymousUser = "#anonymous#"

// Session is one authenticated connection to a WebUntis server. A
// session serves exactly one feed request; there is no pooling or reuse
// across requests.
type Session struct {
	school     string
	domain     string
	client     *http.Client
	personId   int
	personType int
	anonymous  bool
}

type rpcRequest struct {
	Id      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	Version string `json:"jsonrpc"`
}

type rpcFault struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Id     string          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpcFault       `json:"error"`
}

type authResult struct {
	SessionId  string `json:"sessionId"`
	PersonType int    `json:"personType"`
	PersonId   int    `json:"personId"`
	KlasseId   int    `json:"klasseId"`
}

// rpc performs a single JSON-RPC call against the session's school
// server and decodes the result into out. The server's session cookies
// are carried by the client's cookie jar.
func (s *Session) rpc(method string, params any, out any) errors.Error {
	body, err := json.Marshal(rpcRequest{
		Id:      rpcClient,
		Method:  method,
		Params:  params,
		Version: "2.0",
	})
	if err != nil {
		return errors.New(
			"cannot marshal "+method+" request",
			errors.New(err.Error(), nil),
		)
	}

	link := fmt.Sprintf(
		"https://%s/WebUntis/jsonrpc.do?school=%s",
		s.domain, url.QueryEscape(s.school),
	)

	req, err := http.NewRequest("POST", link, bytes.NewReader(body))
	if err != nil {
		return errors.New(
			"cannot create "+method+" request",
			errors.New(err.Error(), nil),
		)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.New(
			"cannot execute "+method+" request",
			errors.New(err.Error(), nil),
		)
	}
	defer resp.Body.Close()

	var decoded rpcResponse
	err = json.NewDecoder(resp.Body).Decode(&decoded)
	if err != nil {
		return errors.New(
			"cannot decode "+method+" response",
			errors.New(err.Error(), nil),
		)
	}
	if decoded.Error != nil {
		return errors.New(
			fmt.Sprintf("%s failed: %s (code %d)", method, decoded.Error.Message, decoded.Error.Code),
			nil,
		)
	}
	if out != nil {
		err = json.Unmarshal(decoded.Result, out)
		if err != nil {
			return errors.New(
				"cannot unmarshal "+method+" result",
				errors.New(err.Error(), nil),
			)
		}
	}
	return nil
}

// get performs a GET request against the provider's REST API using the
// session cookies established at login, decoding the response into out.
func (s *Session) get(path string, query url.Values, out any) errors.Error {
	link := fmt.Sprintf("https://%s/WebUntis/api/%s?%s", s.domain, path, query.Encode())

	req, err := http.NewRequest("GET", link, nil)
	if err != nil {
		return errors.New(
			"cannot create "+path+" request",
			errors.New(err.Error(), nil),
		)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.New(
			"cannot execute "+path+" request",
			errors.New(err.Error(), nil),
		)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return errors.New(
			fmt.Sprintf("%s request returned status %d", path, resp.StatusCode),
			nil,
		)
	}

	err = json.NewDecoder(resp.Body).Decode(out)
	if err != nil {
		return errors.New(
			"cannot decode "+path+" response",
			errors.New(err.Error(), nil),
		)
	}
	return nil
}

// Open starts an upstream session for the given access: anonymous for
// public accesses, credentialed for private ones. An upstream login
// rejection yields site.ErrAuthFailed; it is reported, never retried.
func Open(access site.Access) (*Session, errors.Error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, errors.New(
			"cannot create cookie jar",
			errors.New(err.Error(), nil),
		)
	}

	s := &Session{
		school: access.School,
		domain: access.Domain,
		client: &http.Client{Jar: jar, Timeout: 30 * time.Second},
	}

	username, password := access.Username, access.Password
	if access.Type != site.Private {
		s.anonymous = true
		username, password = anonymousUser, ""
	}

	var result authResult
	rpcErr := s.rpc("authenticate", map[string]string{
		"user":     username,
		"password": password,
		"client":   rpcClient,
	}, &result)
	if rpcErr != nil {
		logger.Debug("upstream login rejected: %v", rpcErr)
		return nil, site.ErrAuthFailed
	}

	s.personId = result.PersonId
	s.personType = result.PersonType
	return s, nil
}

// Logout ends the upstream session. Best effort: by the time it runs
// the feed has already been produced, so callers log a failure and move
// on.
func (s *Session) Logout() errors.Error {
	return s.rpc("logout", map[string]string{}, nil)
}
