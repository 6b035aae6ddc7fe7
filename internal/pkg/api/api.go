// Package api talks to the appliance's JSONP endpoints.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/andrewmarklloyd/rasp-water-panel/internal/pkg/applog"
	"github.com/andrewmarklloyd/rasp-water-panel/internal/pkg/config"
	"github.com/andrewmarklloyd/rasp-water-panel/internal/pkg/schedule"
	"github.com/andrewmarklloyd/rasp-water-panel/internal/pkg/sysinfo"
	"github.com/andrewmarklloyd/rasp-water-panel/internal/pkg/valve"
)

var ErrBadCallback = errors.New("response is not wrapped in the requested callback")

var (
	_ schedule.API = (*Client)(nil)
	_ valve.API    = (*Client)(nil)
	_ applog.API   = (*Client)(nil)
	_ sysinfo.API  = (*Client)(nil)
)

type Client struct {
	baseURL    string
	httpClient *http.Client
	seq        uint64
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = config.DefaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// URL returns the absolute address of an endpoint.
func (c *Client) URL(path string) string {
	return c.baseURL + "/" + path
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	if params == nil {
		params = url.Values{}
	}
	callback := fmt.Sprintf("rasp_water_cb_%d", atomic.AddUint64(&c.seq, 1))
	params.Set(config.JSONPCallbackKey, callback)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL(path)+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("building %s request: %w", path, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("requesting %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading %s response: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("requesting %s: unexpected status %d", path, resp.StatusCode)
	}

	payload, err := unwrapJSONP(body, callback)
	if err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("unmarshalling %s response: %w", path, err)
	}
	return nil
}

// unwrapJSONP strips callback( ... ) from body. Bare JSON is accepted as is.
func unwrapJSONP(body []byte, callback string) ([]byte, error) {
	b := bytes.TrimSpace(body)
	b = bytes.TrimPrefix(b, []byte("/**/"))
	b = bytes.TrimSpace(bytes.TrimSuffix(b, []byte(";")))
	if len(b) > 0 && (b[0] == '{' || b[0] == '[') {
		return b, nil
	}
	prefix := []byte(callback + "(")
	if !bytes.HasPrefix(b, prefix) || !bytes.HasSuffix(b, []byte(")")) {
		return nil, ErrBadCallback
	}
	return bytes.TrimSpace(b[len(prefix) : len(b)-1]), nil
}

// flexString decodes a JSON string or number into its text.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", b)
	}
	*f = flexString(n.String())
	return nil
}

func (f flexString) float() (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(string(f)), 64)
}

func (f flexString) int() (int, error) {
	v, err := f.float()
	if err != nil {
		return 0, err
	}
	return int(v), nil
}

func (c *Client) Schedule(ctx context.Context, set *schedule.State) (schedule.State, error) {
	params := url.Values{}
	if set != nil {
		b, err := json.Marshal(set)
		if err != nil {
			return schedule.State{}, fmt.Errorf("marshalling schedule: %w", err)
		}
		params.Set("set", string(b))
	}

	var slots []schedule.Slot
	if err := c.get(ctx, config.SchedulePath, params, &slots); err != nil {
		return schedule.State{}, err
	}
	if len(slots) != schedule.SlotCount {
		return schedule.State{}, fmt.Errorf("expected %d schedule entries, got %d", schedule.SlotCount, len(slots))
	}
	var s schedule.State
	copy(s[:], slots)
	return s, nil
}

type valveCtrlResponse struct {
	State  flexString `json:"state"`
	Period flexString `json:"period"`
}

func (c *Client) ValveCtrl(ctx context.Context, cmd *valve.Command) (valve.Ctrl, error) {
	params := url.Values{}
	if cmd != nil {
		set := "0"
		if cmd.On {
			set = "1"
		}
		params.Set("set", set)
		params.Set("period", strconv.Itoa(cmd.Period))
	}

	var res valveCtrlResponse
	if err := c.get(ctx, config.ValveCtrlPath, params, &res); err != nil {
		return valve.Ctrl{}, err
	}
	period := 0
	if res.Period != "" {
		p, err := res.Period.int()
		if err != nil {
			return valve.Ctrl{}, fmt.Errorf("parsing valve period %q: %w", res.Period, err)
		}
		period = p
	}
	return valve.Ctrl{IsOn: res.State == "1", Period: period}, nil
}

type valveFlowResponse struct {
	Flow flexString `json:"flow"`
}

func (c *Client) ValveFlow(ctx context.Context) (float64, error) {
	var res valveFlowResponse
	if err := c.get(ctx, config.ValveFlowPath, nil, &res); err != nil {
		return 0, err
	}
	flow, err := res.Flow.float()
	if err != nil {
		return 0, fmt.Errorf("parsing flow %q: %w", res.Flow, err)
	}
	return flow, nil
}

type logViewResponse struct {
	Data []applog.Entry `json:"data"`
}

func (c *Client) LogView(ctx context.Context) ([]applog.Entry, error) {
	var res logViewResponse
	if err := c.get(ctx, config.LogViewPath, nil, &res); err != nil {
		return nil, err
	}
	return res.Data, nil
}

type resultResponse struct {
	Result string `json:"result"`
}

func (c *Client) LogClear(ctx context.Context) error {
	var res resultResponse
	if err := c.get(ctx, config.LogClearPath, nil, &res); err != nil {
		return err
	}
	if res.Result != "" && res.Result != "success" {
		return fmt.Errorf("clearing log: result %q", res.Result)
	}
	return nil
}

type sysinfoResponse struct {
	sysinfo.Info
	LoadAverageCamel string `json:"loadAverage"`
}

func (c *Client) Sysinfo(ctx context.Context) (sysinfo.Info, error) {
	var res sysinfoResponse
	if err := c.get(ctx, config.SysinfoPath, nil, &res); err != nil {
		return sysinfo.Info{}, err
	}
	info := res.Info
	if info.LoadAverage == "" {
		info.LoadAverage = res.LoadAverageCamel
	}
	return info, nil
}
