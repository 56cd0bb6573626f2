package scan

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/facegate/internal/attendance"
)

// apiStatusError carries a non-2xx API response. It is never retried: the
// API saw the event and answered.
type apiStatusError struct {
	code int
	body string
}

func (e *apiStatusError) Error() string {
	return fmt.Sprintf("attendance api returned %d: %s", e.code, e.body)
}

// HTTPSubmitter records attendance by posting match events to the central
// API, keeping scanners free of direct write access to the ledger.
type HTTPSubmitter struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPSubmitter(baseURL, apiKey string) *HTTPSubmitter {
	return &HTTPSubmitter{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

type submitRequest struct {
	IdentityID uuid.UUID `json:"identity_id"`
	StationID  uuid.UUID `json:"station_id"`
	Timestamp  time.Time `json:"timestamp"`
}

// Submit posts one attendance event. Transport failures are retried once;
// a non-2xx response is returned as an error without retry since the API
// has already made a decision.
func (s *HTTPSubmitter) Submit(ctx context.Context, identityID, stationID uuid.UUID, ts time.Time) (attendance.Result, error) {
	body, err := json.Marshal(submitRequest{
		IdentityID: identityID,
		StationID:  stationID,
		Timestamp:  ts,
	})
	if err != nil {
		return attendance.Result{}, fmt.Errorf("marshal attendance event: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		res, err := s.post(ctx, body)
		if err == nil {
			return res, nil
		}
		var apiErr *apiStatusError
		if errors.As(err, &apiErr) {
			return attendance.Result{}, err
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return attendance.Result{}, ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
	return attendance.Result{}, lastErr
}

func (s *HTTPSubmitter) post(ctx context.Context, body []byte) (attendance.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.baseURL+"/v1/attendance/events", bytes.NewReader(body))
	if err != nil {
		return attendance.Result{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("X-API-Key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return attendance.Result{}, fmt.Errorf("post attendance event: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return attendance.Result{}, &apiStatusError{code: resp.StatusCode, body: string(payload)}
	}

	var res attendance.Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return attendance.Result{}, fmt.Errorf("decode attendance response: %w", err)
	}
	return res, nil
}
