package clients

import (
	"github.com/andrewmarklloyd/rasp-water-panel/internal/pkg/api"
	"github.com/andrewmarklloyd/rasp-water-panel/internal/pkg/aws"
	"github.com/andrewmarklloyd/rasp-water-panel/internal/pkg/datadog"
	"github.com/andrewmarklloyd/rasp-water-panel/internal/pkg/metrics"
	"github.com/andrewmarklloyd/rasp-water-panel/internal/pkg/mqtt"
	"github.com/andrewmarklloyd/rasp-water-panel/internal/pkg/postgres"
	"github.com/andrewmarklloyd/rasp-water-panel/internal/pkg/redis"
)

// PanelClients holds the outside connections of one panel process. The
// optional ones are nil when not configured.
type PanelClients struct {
	Appliance *api.Client
	Metrics   *metrics.Metrics
	Redis     *redis.Client
	Postgres  *postgres.Client
	Mosquitto *mqtt.MqttClient
	AWS       *aws.Client
	Datadog   *datadog.Client
}

func (c PanelClients) Close() {
	if c.Redis != nil {
		c.Redis.Close()
	}
	if c.Postgres != nil {
		c.Postgres.Close()
	}
	if c.Mosquitto != nil {
		c.Mosquitto.Cleanup()
	}
}
