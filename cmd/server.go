package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/andrewmarklloyd/rasp-water-panel/internal/pkg/api"
	"github.com/andrewmarklloyd/rasp-water-panel/internal/pkg/aws"
	"github.com/andrewmarklloyd/rasp-water-panel/internal/pkg/applog"
	"github.com/andrewmarklloyd/rasp-water-panel/internal/pkg/clients"
	"github.com/andrewmarklloyd/rasp-water-panel/internal/pkg/clock"
	"github.com/andrewmarklloyd/rasp-water-panel/internal/pkg/config"
	"github.com/andrewmarklloyd/rasp-water-panel/internal/pkg/datadog"
	"github.com/andrewmarklloyd/rasp-water-panel/internal/pkg/event"
	"github.com/andrewmarklloyd/rasp-water-panel/internal/pkg/metrics"
	"github.com/andrewmarklloyd/rasp-water-panel/internal/pkg/mqtt"
	"github.com/andrewmarklloyd/rasp-water-panel/internal/pkg/notice"
	"github.com/andrewmarklloyd/rasp-water-panel/internal/pkg/postgres"
	"github.com/andrewmarklloyd/rasp-water-panel/internal/pkg/redis"
	"github.com/andrewmarklloyd/rasp-water-panel/internal/pkg/valve"
	mqttC "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

var (
	logger  *zap.SugaredLogger
	version = "unknown"
)

func runPanel() {
	l, _ := zap.NewProduction()
	logger = l.Sugar().Named("rasp_water_panel")
	defer logger.Sync()
	logger.Infof("Running panel version: %s", version)

	panelConfig := loadConfig()

	panelClients, err := createClients(panelConfig)
	if err != nil {
		logger.Fatalf("Error creating clients: %s", err)
	}
	defer panelClients.Close()

	deps := panelDeps{
		api:      panelClients.Appliance,
		eventURL: panelClients.Appliance.URL(config.EventPath),
		open:     event.NewHTTPOpener(&http.Client{}, logger.Named("event")),
		sched:    clock.NewReal(),
		console:  notice.NewConsole(os.Stdout),
		metrics:  panelClients.Metrics,
		logger:   logger,
	}
	if panelClients.Redis != nil {
		deps.mirror = panelClients.Redis
		deps.reporters = append(deps.reporters, panelClients.Redis)
	}
	if panelClients.Postgres != nil {
		deps.archive = panelClients.Postgres
	}
	if panelClients.Mosquitto != nil {
		deps.bridge = mqtt.NewBridge(*panelClients.Mosquitto, panelConfig.MQTTConfig.TopicPrefix, logger.Named("mqtt"))
		deps.reporters = append(deps.reporters, deps.bridge)
	}
	if panelClients.Datadog != nil {
		deps.datadog = datadog.NewReporter(panelClients.Datadog, panelConfig.AppName, logger.Named("datadog"))
	}

	p := newPanel(deps)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := p.start(ctx); err != nil {
		logger.Fatalf("Error starting panel: %s", err)
	}
	defer p.close()

	if panelClients.Postgres != nil && panelClients.AWS != nil {
		backups, err := scheduleBackups(ctx, panelConfig.S3Config, panelClients.Postgres, *panelClients.AWS)
		if err != nil {
			logger.Fatalf("Error scheduling backups: %s", err)
		}
		if backups != nil {
			defer backups.Stop()
		}
	}

	webServer := newWebServer(panelConfig.Port, p, logger.Named("web"))
	go func() {
		if err := webServer.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Error starting web server: %s", err)
		}
	}()
	logger.Infof("Serving panel on port %s for appliance %s", panelConfig.Port, panelConfig.APIURL)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("Shutting down")

	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	if err := webServer.httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutting down web server: %s", err)
	}
}

func createClients(panelConfig config.PanelConfig) (clients.PanelClients, error) {
	panelClients := clients.PanelClients{
		Appliance: api.NewClient(panelConfig.APIURL, panelConfig.RequestTimeout),
		Metrics:   metrics.New(),
	}
	if panelConfig.MockMode {
		logger.Info("Mock mode enabled, skipping redis, postgres, mqtt, s3 and datadog")
		return panelClients, nil
	}

	redisClient, err := newRedisClient(panelConfig)
	if err != nil {
		return clients.PanelClients{}, fmt.Errorf("creating redis client: %s", err)
	}
	panelClients.Redis = redisClient

	if panelConfig.PostgresURL != "" {
		postgresClient, err := postgres.NewPostgresClient(panelConfig.PostgresURL)
		if err != nil {
			return clients.PanelClients{}, fmt.Errorf("creating postgres client: %s", err)
		}
		panelClients.Postgres = postgresClient
	}

	if panelConfig.MQTTConfig.Enabled() {
		mosquittoClient := mqtt.NewMQTTClient(panelConfig.MQTTConfig, func(client mqttC.Client) {
			logger.Info("Connected to mosquitto server")
		}, func(client mqttC.Client, err error) {
			logger.Warnf("Connection to mosquitto server lost: %v", err)
		}, func(mqttC.Client, *mqttC.ClientOptions) {
			logger.Info("Panel client is reconnecting")
		})
		if err := mosquittoClient.Connect(); err != nil {
			return clients.PanelClients{}, fmt.Errorf("connecting to mosquitto server: %s", err)
		}
		panelClients.Mosquitto = &mosquittoClient
	}

	if panelConfig.S3Config.Enabled() {
		awsClient, err := aws.NewClient(panelConfig.S3Config, panelConfig.AppName)
		if err != nil {
			return clients.PanelClients{}, fmt.Errorf("creating AWS client: %s", err)
		}
		panelClients.AWS = &awsClient
	}

	if panelConfig.DatadogConfig.Enabled() {
		datadogClient := datadog.NewDatadogClient(panelConfig.DatadogConfig.APIKey, panelConfig.DatadogConfig.APPKey)
		panelClients.Datadog = &datadogClient
	}

	return panelClients, nil
}

// newRedisClient returns nil when no redis url is configured.
func newRedisClient(panelConfig config.PanelConfig) (*redis.Client, error) {
	switch {
	case panelConfig.RedisTLSURL != "":
		return redis.NewRedisClient(panelConfig.RedisTLSURL, true, logger.Named("redis"))
	case panelConfig.RedisURL != "":
		return redis.NewRedisClient(panelConfig.RedisURL, false, logger.Named("redis"))
	}
	return nil, nil
}

var (
	_ valve.Reporter = (*redis.Client)(nil)
	_ valve.Reporter = (*mqtt.Bridge)(nil)
	_ applog.Archive = (*postgres.Client)(nil)
	_ valve.Reporter = (*datadog.Reporter)(nil)
)
