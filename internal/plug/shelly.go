package plug

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	// shellyRequestTimeout is the per-request timeout for plug HTTP calls.
	shellyRequestTimeout = 5 * time.Second

	// shellyMaxResponseBytes limits response body size; device replies
	// are a few hundred bytes.
	shellyMaxResponseBytes = 64 << 10 // 64 KiB

	// shellyUserAgent identifies powerlive in request headers.
	shellyUserAgent = "powerlive/0.1.0"
)

// APIError represents a non-success HTTP response from a plug.
type APIError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *APIError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("plug API error: %s (body: %s)", e.Status, e.Body)
	}
	return fmt.Sprintf("plug API error: %s", e.Status)
}

// Unwrap reports API errors as a form of ErrUnreachable.
func (e *APIError) Unwrap() error { return ErrUnreachable }

// Gen1 drives first-generation Shelly plugs (Plug, Plug S) over the
// local HTTP API.
type Gen1 struct {
	addr       string
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewGen1 returns a driver for the Gen1 plug at addr (IP or host:port).
// If logger is nil, a no-op logger is used.
func NewGen1(addr string, logger *slog.Logger) *Gen1 {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Gen1{
		addr:       addr,
		httpClient: &http.Client{Timeout: shellyRequestTimeout},
		baseURL:    "http://" + addr,
		logger:     logger,
	}
}

// Name identifies the device in logs and the UI.
func (g *Gen1) Name() string { return "shelly1:" + g.addr }

type gen1Meter struct {
	Power float64 `json:"power"`
}

type gen1Relay struct {
	IsOn bool `json:"ison"`
}

// ReadPower fetches the instantaneous meter reading in watts.
func (g *Gen1) ReadPower(ctx context.Context) (float64, error) {
	var meter gen1Meter
	if err := g.get(ctx, "/meter/0", &meter); err != nil {
		return 0, err
	}
	return meter.Power, nil
}

// TurnOn re-enables the plug's status and power LEDs, then switches
// the relay on. LED settings failures are logged but not fatal.
func (g *Gen1) TurnOn(ctx context.Context) error {
	if err := g.get(ctx, "/settings?led_status_disable=false", nil); err != nil {
		g.logger.Warn("enabling status LED failed", "addr", g.addr, "error", err)
	}
	if err := g.get(ctx, "/settings?led_power_disable=false", nil); err != nil {
		g.logger.Warn("enabling power LED failed", "addr", g.addr, "error", err)
	}

	var relay gen1Relay
	if err := g.get(ctx, "/relay/0?turn=on", &relay); err != nil {
		return err
	}
	if !relay.IsOn {
		return fmt.Errorf("relay at %s did not switch on", g.addr)
	}
	return nil
}

// TurnOff switches the relay off.
func (g *Gen1) TurnOff(ctx context.Context) error {
	var relay gen1Relay
	if err := g.get(ctx, "/relay/0?turn=off", &relay); err != nil {
		return err
	}
	if relay.IsOn {
		return fmt.Errorf("relay at %s did not switch off", g.addr)
	}
	return nil
}

func (g *Gen1) get(ctx context.Context, path string, out any) error {
	return fetchJSON(ctx, g.httpClient, g.baseURL+path, out)
}

// Gen2 drives second-generation Shelly devices (Plus and Pro lines)
// over the local RPC API.
type Gen2 struct {
	addr       string
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewGen2 returns a driver for the Gen2 device at addr (IP or host:port).
// If logger is nil, a no-op logger is used.
func NewGen2(addr string, logger *slog.Logger) *Gen2 {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Gen2{
		addr:       addr,
		httpClient: &http.Client{Timeout: shellyRequestTimeout},
		baseURL:    "http://" + addr,
		logger:     logger,
	}
}

// Name identifies the device in logs and the UI.
func (g *Gen2) Name() string { return "shelly2:" + g.addr }

type gen2SwitchStatus struct {
	Output bool    `json:"output"`
	APower float64 `json:"apower"`
}

// ReadPower fetches the active power of switch 0 in watts.
func (g *Gen2) ReadPower(ctx context.Context) (float64, error) {
	var status gen2SwitchStatus
	if err := g.get(ctx, "/rpc/Switch.GetStatus?id=0", &status); err != nil {
		return 0, err
	}
	return status.APower, nil
}

// TurnOn switches switch 0 on.
func (g *Gen2) TurnOn(ctx context.Context) error {
	g.logger.Debug("switching relay", "addr", g.addr, "on", true)
	return g.get(ctx, "/rpc/Switch.Set?id=0&on=true", nil)
}

// TurnOff switches switch 0 off.
func (g *Gen2) TurnOff(ctx context.Context) error {
	g.logger.Debug("switching relay", "addr", g.addr, "on", false)
	return g.get(ctx, "/rpc/Switch.Set?id=0&on=false", nil)
}

func (g *Gen2) get(ctx context.Context, path string, out any) error {
	return fetchJSON(ctx, g.httpClient, g.baseURL+path, out)
}

// fetchJSON performs a GET against a plug endpoint and decodes the
// JSON response into out (skipped when out is nil). Transport errors
// wrap ErrUnreachable; non-200 statuses become an APIError.
func fetchJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("User-Agent", shellyUserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, shellyMaxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: reading response: %v", ErrUnreachable, err)
	}

	if resp.StatusCode != http.StatusOK {
		return &APIError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding response from %s: %w", url, err)
	}
	return nil
}
