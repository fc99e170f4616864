// Package inference talks to the external curtain-position model: it
// asks for predictions, checks reachability and uploads training rows.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	predictTimeout  = 15 * time.Second
	pingTimeout     = 5 * time.Second
	trainingTimeout = 10 * time.Second

	maxResponseSize = 64 << 10
)

// Client calls the inference service rooted at a base URL.
type Client struct {
	base string
	http *http.Client
}

// NewClient creates a client. base is the service root, for example
// http://192.168.1.10:5001; a trailing slash is ignored.
func NewClient(base string) *Client {
	return &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{},
	}
}

type predictResponse struct {
	PredictedLabel *int `json:"predicted_label"`
}

// Predict posts f to /predict and returns the predicted label.
func (c *Client) Predict(ctx context.Context, f Features) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, predictTimeout)
	defer cancel()

	body, err := c.do(ctx, http.MethodPost, "/predict", f)
	if err != nil {
		return 0, err
	}
	var resp predictResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrBadResponse, err)
	}
	if resp.PredictedLabel == nil {
		return 0, ErrNoPrediction
	}
	return *resp.PredictedLabel, nil
}

// Ping checks that the service answers GET /ping with 200.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	_, err := c.do(ctx, http.MethodGet, "/ping", nil)
	return err
}

// AddTrainingData uploads one labelled sample.
func (c *Client) AddTrainingData(ctx context.Context, s TrainingSample) error {
	ctx, cancel := context.WithTimeout(ctx, trainingTimeout)
	defer cancel()

	_, err := c.do(ctx, http.MethodPost, "/add_training_data", s)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding %s request: %w", path, err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return nil, fmt.Errorf("building %s request: %w", path, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrUnreachable, path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned %d", ErrUnreachable, path, resp.StatusCode)
	}
	return body, nil
}
