package signaling

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"earinterp/internal/domain"
)

const (
	maxAnswerBytes    = 1 << 20
	maxErrorBodyBytes = 200
)

// HTTPSignaler posts the offer to the server's /offer endpoint and reads the answer.
type HTTPSignaler struct {
	client *http.Client
}

// NewHTTPSignaler uses client, or a client without timeouts when nil.
func NewHTTPSignaler(client *http.Client) *HTTPSignaler {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPSignaler{client: client}
}

// Exchange sends {sdp, target_lang} and returns the response body as answer SDP.
// The response content type is ignored.
func (s *HTTPSignaler) Exchange(ctx context.Context, endpointURL string, offer domain.Offer) (string, error) {
	endpoint, err := url.Parse(strings.TrimSpace(endpointURL))
	if err != nil || endpoint.Host == "" || (endpoint.Scheme != "http" && endpoint.Scheme != "https") {
		return "", fmt.Errorf("invalid server URL %q", endpointURL)
	}

	body, err := json.Marshal(offer)
	if err != nil {
		return "", fmt.Errorf("failed to encode offer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build offer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to reach server: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxAnswerBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read answer: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(payload))}
	}

	answer := string(payload)
	if strings.TrimSpace(answer) == "" {
		return "", errors.New("server returned an empty answer")
	}
	return answer, nil
}

// StatusError reports a non-2xx signaling response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("server rejected offer: HTTP %d", e.StatusCode)
	}
	body := e.Body
	if len(body) > maxErrorBodyBytes {
		cut := maxErrorBodyBytes
		for cut > 0 && !utf8.RuneStart(body[cut]) {
			cut--
		}
		body = body[:cut]
	}
	return fmt.Sprintf("server rejected offer: HTTP %d: %s", e.StatusCode, body)
}
