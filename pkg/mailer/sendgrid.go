package mailer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/budgetdesk-backend/pkg/config"
	"github.com/angelmondragon/budgetdesk-backend/pkg/logger"
)

const (
	defaultBaseURL    = "https://api.sendgrid.com"
	defaultTimeout    = 30 * time.Second
	defaultMaxRetries = 3
	maxRetryWait      = 10 * time.Second
	sendPath          = "/v3/mail/send"
)

// SendGrid posts to the v3 mail send API.
type SendGrid struct {
	apiKey     string
	baseURL    string
	from       Address
	http       *http.Client
	maxRetries int
	backoff    time.Duration
	logg       *logger.Logger
}

func NewSendGrid(cfg config.SendgridConfig, logg *logger.Logger) (*SendGrid, error) {
	if logg == nil {
		return nil, errors.New("logger required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("sendgrid api key required")
	}
	if strings.TrimSpace(cfg.DefaultFrom) == "" {
		return nil, errors.New("sendgrid from email required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	if retries == 0 {
		retries = defaultMaxRetries
	}
	return &SendGrid{
		apiKey:     strings.TrimSpace(cfg.APIKey),
		baseURL:    baseURL,
		from:       Address{Email: strings.TrimSpace(cfg.DefaultFrom), Name: strings.TrimSpace(cfg.FromName)},
		http:       &http.Client{Timeout: timeout},
		maxRetries: retries,
		backoff:    time.Second,
		logg:       logg,
	}, nil
}

type sendRequest struct {
	Personalizations []personalization `json:"personalizations"`
	From             Address           `json:"from"`
	Subject          string            `json:"subject"`
	Content          []content         `json:"content"`
	Attachments      []attachment      `json:"attachments,omitempty"`
}

type personalization struct {
	To []Address `json:"to"`
}

type content struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type attachment struct {
	Content     string `json:"content"`
	Type        string `json:"type,omitempty"`
	Filename    string `json:"filename"`
	Disposition string `json:"disposition,omitempty"`
}

// HTTPError carries a non-2xx SendGrid response.
type HTTPError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *HTTPError) Error() string {
	msg := strings.TrimSpace(e.Body)
	if len(msg) > 512 {
		msg = msg[:512] + "..."
	}
	return fmt.Sprintf("sendgrid http %d: %s", e.StatusCode, msg)
}

func (e *HTTPError) retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

func (s *SendGrid) Send(ctx context.Context, msg Message) error {
	wire, err := s.buildRequest(msg)
	if err != nil {
		return err
	}
	body, err := json.Marshal(wire)
	if err != nil {
		return err
	}

	wait := s.backoff
	for attempt := 0; ; attempt++ {
		err := s.post(ctx, body)
		if err == nil {
			return nil
		}
		var httpErr *HTTPError
		retryable := !errors.As(err, &httpErr) || httpErr.retryable()
		if !retryable || attempt >= s.maxRetries || ctx.Err() != nil {
			return err
		}

		sleepFor := wait
		if httpErr != nil && httpErr.RetryAfter > 0 {
			sleepFor = httpErr.RetryAfter
		}
		if sleepFor > maxRetryWait {
			sleepFor = maxRetryWait
		}
		logCtx := s.logg.WithFields(ctx, map[string]any{"attempt": attempt + 1, "sleep": sleepFor.String()})
		s.logg.WarnErr(logCtx, "sendgrid request retrying", err)

		timer := time.NewTimer(sleepFor)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		wait *= 2
	}
}

func (s *SendGrid) buildRequest(msg Message) (*sendRequest, error) {
	if len(msg.To) == 0 {
		return nil, errors.New("sendgrid: recipient required")
	}
	subject := strings.TrimSpace(msg.Subject)
	if subject == "" {
		return nil, errors.New("sendgrid: subject required")
	}
	var parts []content
	if text := strings.TrimSpace(msg.Text); text != "" {
		parts = append(parts, content{Type: "text/plain", Value: text})
	}
	if html := strings.TrimSpace(msg.HTML); html != "" {
		parts = append(parts, content{Type: "text/html", Value: html})
	}
	if len(parts) == 0 {
		return nil, errors.New("sendgrid: text or html content required")
	}

	atts := make([]attachment, 0, len(msg.Attachments))
	for _, a := range msg.Attachments {
		if strings.TrimSpace(a.Filename) == "" || len(a.Content) == 0 {
			return nil, fmt.Errorf("sendgrid: attachment %q missing name or content", a.Filename)
		}
		atts = append(atts, attachment{
			Content:     base64.StdEncoding.EncodeToString(a.Content),
			Type:        a.MIMEType,
			Filename:    a.Filename,
			Disposition: "attachment",
		})
	}

	return &sendRequest{
		Personalizations: []personalization{{To: msg.To}},
		From:             s.from,
		Subject:          subject,
		Content:          parts,
		Attachments:      atts,
	}, nil
}

func (s *SendGrid) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+sendPath, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		httpErr := &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			httpErr.RetryAfter = time.Duration(secs) * time.Second
		}
		return httpErr
	}
	return nil
}
