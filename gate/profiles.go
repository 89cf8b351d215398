package gate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

const pgrstObject = "application/vnd.pgrst.object+json"

// RESTError is a non-2xx response from the table API.
type RESTError struct {
	Status  int
	Code    string
	Message string
}

func (e *RESTError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("rest: %s (status %d, code %s)", e.Message, e.Status, e.Code)
	}
	return fmt.Sprintf("rest: %s (status %d)", e.Message, e.Status)
}

// StatusCode returns the HTTP status of the response.
func (e *RESTError) StatusCode() int {
	return e.Status
}

// RESTProfiles reads the profiles table through the hosted table API.
type RESTProfiles struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client
}

// NewRESTProfiles creates a profile source for the backend at baseURL.
// httpClient may be nil.
func NewRESTProfiles(baseURL, anonKey string, httpClient *http.Client) (*RESTProfiles, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("gate: invalid backend URL %q", baseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &RESTProfiles{
		baseURL:    strings.TrimRight(baseURL, "/"),
		anonKey:    anonKey,
		httpClient: httpClient,
	}, nil
}

// Profile fetches the single profile row for userID. Zero rows yield
// ErrProfileNotFound.
func (r *RESTProfiles) Profile(ctx context.Context, userID uuid.UUID, accessToken string) (*Profile, error) {
	q := url.Values{}
	q.Set("id", "eq."+userID.String())
	q.Set("select", "*")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/rest/v1/profiles?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	bearer := accessToken
	if bearer == "" {
		bearer = r.anonKey
	}
	req.Header.Set("apikey", r.anonKey)
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", pgrstObject)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		restErr := parseRESTError(resp.StatusCode, body)
		// PGRST116: object requested, zero rows returned.
		if restErr.Code == "PGRST116" {
			return nil, ErrProfileNotFound
		}
		return nil, restErr
	}

	var p Profile
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	return &p, nil
}

func parseRESTError(status int, body []byte) *RESTError {
	var payload struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details string `json:"details"`
	}
	restErr := &RESTError{Status: status}
	if err := json.Unmarshal(body, &payload); err == nil {
		restErr.Code = payload.Code
		restErr.Message = payload.Message
		if payload.Details != "" {
			restErr.Message = strings.TrimSpace(restErr.Message + ": " + payload.Details)
		}
	}
	if restErr.Message == "" {
		restErr.Message = http.StatusText(status)
	}
	return restErr
}
