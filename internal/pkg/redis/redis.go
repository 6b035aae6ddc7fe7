package redis

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/andrewmarklloyd/rasp-water-panel/internal/pkg/schedule"
	"github.com/andrewmarklloyd/rasp-water-panel/internal/pkg/valve"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	scheduleKey = "schedule/current"
	valveKey    = "valve/current"
)

// ErrNotFound is returned when nothing has been mirrored yet.
var ErrNotFound = errors.New("no mirrored value")

// Client mirrors the last known appliance state.
type Client struct {
	client redis.Client
	logger *zap.SugaredLogger
}

func NewRedisClient(redisURL string, tlsEnabled bool, logger *zap.SugaredLogger) (*Client, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	if tlsEnabled {
		options.TLSConfig = &tls.Config{
			InsecureSkipVerify: true,
		}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Client{client: *redis.NewClient(options), logger: logger}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) WriteSchedule(ctx context.Context, s schedule.State) error {
	return c.write(ctx, scheduleKey, s)
}

func (c *Client) ReadSchedule(ctx context.Context) (schedule.State, error) {
	var s schedule.State
	err := c.read(ctx, scheduleKey, &s)
	return s, err
}

func (c *Client) WriteValve(ctx context.Context, s valve.State) error {
	return c.write(ctx, valveKey, s)
}

func (c *Client) ReadValve(ctx context.Context) (valve.State, error) {
	var s valve.State
	err := c.read(ctx, valveKey, &s)
	return s, err
}

// ReportValve lets the mirror observe a valve controller.
func (c *Client) ReportValve(s valve.State) {
	if err := c.WriteValve(context.Background(), s); err != nil {
		c.logger.Errorf("mirroring valve state: %s", err)
	}
}

func (c *Client) write(ctx context.Context, key string, v interface{}) error {
	j, err := encode(v)
	if err != nil {
		return fmt.Errorf("marshalling %s: %w", key, err)
	}
	if err := c.client.Set(ctx, key, j, 0).Err(); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

func (c *Client) read(ctx context.Context, key string, v interface{}) error {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", key, err)
	}
	if err := decode(val, v); err != nil {
		return fmt.Errorf("unmarshalling %s: %w", key, err)
	}
	return nil
}

func encode(v interface{}) (string, error) {
	j, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(j), nil
}

func decode(val string, v interface{}) error {
	return json.Unmarshal([]byte(val), v)
}
