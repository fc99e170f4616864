package device

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	switchBotStatusTimeout  = 10 * time.Second
	switchBotCommandTimeout = 15 * time.Second
)

// SwitchBotConfig holds the gateway settings.
type SwitchBotConfig struct {
	BaseURL         string
	Token           string
	OwnerPassword   string
	HubDeviceID     string
	CurtainDeviceID string
}

// HubStatus is the SwitchBot hub's sensor reading. Nil fields were absent.
type HubStatus struct {
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
	LightLevel  *float64 `json:"lightLevel"`
}

// SwitchBot talks to the SwitchBot gateway: it reads the hub sensors and
// drives the secondary curtain.
type SwitchBot struct {
	cfg           SwitchBotConfig
	statusClient  *http.Client
	commandClient *http.Client
	logger        Logger

	wg sync.WaitGroup
}

// NewSwitchBot creates a gateway client.
func NewSwitchBot(cfg SwitchBotConfig) *SwitchBot {
	return &SwitchBot{
		cfg:           cfg,
		statusClient:  &http.Client{Timeout: switchBotStatusTimeout},
		commandClient: &http.Client{Timeout: switchBotCommandTimeout},
		logger:        noopLogger{},
	}
}

// SetLogger sets the logger.
func (s *SwitchBot) SetLogger(logger Logger) {
	s.logger = logger
}

type switchBotRequest struct {
	ITapToken     string            `json:"itapToken"`
	OwnerPassword string            `json:"ownerPassword"`
	DeviceID      string            `json:"deviceId"`
	Command       *switchBotCommand `json:"command,omitempty"`
}

type switchBotCommand struct {
	Command     string `json:"command"`
	Parameter   any    `json:"parameter"`
	CommandType string `json:"commandType"`
}

// HubStatus fetches the hub's temperature, humidity and light level.
func (s *SwitchBot) HubStatus(ctx context.Context) (HubStatus, error) {
	resp, err := s.post(ctx, s.statusClient, "/vendor/switchbot/devices/status", switchBotRequest{
		ITapToken:     s.cfg.Token,
		OwnerPassword: s.cfg.OwnerPassword,
		DeviceID:      s.cfg.HubDeviceID,
	})
	if err != nil {
		return HubStatus{}, err
	}
	defer resp.Body.Close()

	var status HubStatus
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&status); err != nil {
		return HubStatus{}, fmt.Errorf("%w: decoding hub status: %w", ErrTransport, err)
	}
	return status, nil
}

// Curtain returns the secondary curtain actuator.
func (s *SwitchBot) Curtain() CurtainActuator {
	return switchBotCurtain{s}
}

type switchBotCurtain struct{ s *SwitchBot }

// SetPercent sends setPosition in the background and returns immediately.
// The gateway gives no position feedback, so failures are only logged.
func (c switchBotCurtain) SetPercent(_ context.Context, percent int) error {
	if !validPercent(percent) {
		return fmt.Errorf("%w: %d", ErrInvalidPercent, percent)
	}
	s := c.s
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		// Detached from the caller so a finished scene does not cancel it.
		ctx, cancel := context.WithTimeout(context.Background(), switchBotCommandTimeout)
		defer cancel()

		resp, err := s.post(ctx, s.commandClient, "/vendor/switchbot/devices/commands", switchBotRequest{
			ITapToken:     s.cfg.Token,
			OwnerPassword: s.cfg.OwnerPassword,
			DeviceID:      s.cfg.CurtainDeviceID,
			Command: &switchBotCommand{
				Command:     "setPosition",
				Parameter:   percent,
				CommandType: "command",
			},
		})
		if err != nil {
			s.logger.Warn("switchbot curtain command failed", "percent", percent, "error", err)
			return
		}
		resp.Body.Close() //nolint:errcheck // body is not used
		s.logger.Info("switchbot curtain commanded", "percent", percent)
	}()
	return nil
}

// Wait blocks until background commands have finished.
func (s *SwitchBot) Wait() {
	s.wg.Wait()
}

func (s *SwitchBot) post(ctx context.Context, client *http.Client, path string, payload switchBotRequest) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding request: %w", ErrTransport, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(s.cfg.BaseURL, "/")+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	if resp.StatusCode/100 != 2 {
		resp.Body.Close() //nolint:errcheck // error path
		return nil, fmt.Errorf("%w: status %d", ErrTransport, resp.StatusCode)
	}
	return resp, nil
}
