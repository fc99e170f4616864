package device

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/homesense-core/internal/state"
)

const (
	tuyaTimeout     = 15 * time.Second
	tuyaTokenPath   = "/v1.0/token?grant_type=1"
	tuyaTokenMargin = 60 * time.Second
	maxResponseSize = 1 << 20
)

// TuyaConfig holds Tuya OpenAPI credentials.
type TuyaConfig struct {
	Endpoint    string
	AccessID    string
	AccessKey   string
	DeviceID    string
	ControlCode string
}

// TuyaCurtain drives the primary curtain through the Tuya cloud.
// The motor counts from the other end, so the commanded value is
// 100 - percent.
type TuyaCurtain struct {
	cfg    TuyaConfig
	client *http.Client
	sink   CurtainStateSink
	logger Logger
	now    func() time.Time

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewTuyaCurtain creates a client. Call Connect before use.
func NewTuyaCurtain(cfg TuyaConfig, sink CurtainStateSink) *TuyaCurtain {
	if cfg.ControlCode == "" {
		cfg.ControlCode = "percent_control"
	}
	if sink == nil {
		sink = noopSink{}
	}
	return &TuyaCurtain{
		cfg:    cfg,
		client: &http.Client{Timeout: tuyaTimeout},
		sink:   sink,
		logger: noopLogger{},
		now:    time.Now,
	}
}

// SetLogger sets the logger.
func (c *TuyaCurtain) SetLogger(logger Logger) {
	c.logger = logger
}

// tuyaResponse is the common Tuya OpenAPI envelope.
type tuyaResponse struct {
	Success bool            `json:"success"`
	Code    int             `json:"code"`
	Msg     string          `json:"msg"`
	Result  json.RawMessage `json:"result"`
}

type tuyaToken struct {
	AccessToken string `json:"access_token"`
	ExpireTime  int    `json:"expire_time"`
}

// Connect obtains an access token. A failure at startup is fatal.
func (c *TuyaCurtain) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshTokenLocked(ctx)
}

func (c *TuyaCurtain) refreshTokenLocked(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, tuyaTokenPath, nil, "")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAuth, err)
	}
	if !resp.Success {
		return fmt.Errorf("%w: code %d: %s", ErrAuth, resp.Code, resp.Msg)
	}

	var tok tuyaToken
	if err := json.Unmarshal(resp.Result, &tok); err != nil || tok.AccessToken == "" {
		return fmt.Errorf("%w: malformed token response", ErrAuth)
	}

	c.token = tok.AccessToken
	c.tokenExpiry = c.now().Add(time.Duration(tok.ExpireTime)*time.Second - tuyaTokenMargin)
	c.logger.Info("tuya token obtained", "expires_in", tok.ExpireTime)
	return nil
}

// accessToken returns a valid token, refreshing it when close to expiry.
func (c *TuyaCurtain) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == "" || !c.now().Before(c.tokenExpiry) {
		if err := c.refreshTokenLocked(ctx); err != nil {
			return "", err
		}
	}
	return c.token, nil
}

// SetPercent commands the curtain and records the outcome in the state sink:
// success stores percent, a rejection stores CmdFail, anything else stores
// Exception.
func (c *TuyaCurtain) SetPercent(ctx context.Context, percent int) error {
	if !validPercent(percent) {
		return fmt.Errorf("%w: %d", ErrInvalidPercent, percent)
	}
	value := 100 - percent

	err := c.sendCommand(ctx, value)
	switch {
	case err == nil:
		c.logger.Info("tuya curtain commanded", "percent", percent, "value", value)
		c.sink.SetCurtainPosition(percent)
	case errors.Is(err, ErrCommandRejected):
		c.logger.Warn("tuya curtain command rejected", "percent", percent, "error", err)
		c.sink.SetCurtainError(state.TagCmdFail)
	default:
		c.logger.Error("tuya curtain command failed", "percent", percent, "error", err)
		c.sink.SetCurtainError(state.TagException)
	}
	return err
}

func (c *TuyaCurtain) sendCommand(ctx context.Context, value int) error {
	token, err := c.accessToken(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}

	body, err := json.Marshal(map[string]any{
		"commands": []map[string]any{{"code": c.cfg.ControlCode, "value": value}},
	})
	if err != nil {
		return fmt.Errorf("%w: encoding command: %w", ErrTransport, err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/v1.0/devices/"+c.cfg.DeviceID+"/commands", body, token)
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("%w: code %d: %s", ErrCommandRejected, resp.Code, resp.Msg)
	}
	return nil
}

// do sends a signed request. token is empty for the token endpoint.
func (c *TuyaCurtain) do(ctx context.Context, method, path string, body []byte, token string) (*tuyaResponse, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.cfg.Endpoint, "/")+path, reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}

	t := strconv.FormatInt(c.now().UnixMilli(), 10)
	req.Header.Set("client_id", c.cfg.AccessID)
	req.Header.Set("t", t)
	req.Header.Set("sign_method", "HMAC-SHA256")
	req.Header.Set("sign", c.sign(method, path, body, token, t))
	if token != "" {
		req.Header.Set("access_token", token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	httpResp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("%w: status %d", ErrTransport, httpResp.StatusCode)
	}

	var out tuyaResponse
	if err := json.NewDecoder(io.LimitReader(httpResp.Body, maxResponseSize)).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %w", ErrTransport, err)
	}
	return &out, nil
}

// sign computes the Tuya OpenAPI request signature:
// HMAC-SHA256(secret, client_id + access_token + t + stringToSign), upper hex.
func (c *TuyaCurtain) sign(method, path string, body []byte, token, t string) string {
	bodyHash := sha256.Sum256(body)
	stringToSign := method + "\n" + hex.EncodeToString(bodyHash[:]) + "\n\n" + path

	mac := hmac.New(sha256.New, []byte(c.cfg.AccessKey))
	mac.Write([]byte(c.cfg.AccessID + token + t + stringToSign))
	return strings.ToUpper(hex.EncodeToString(mac.Sum(nil)))
}
