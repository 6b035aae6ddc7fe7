package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/andrewmarklloyd/rasp-water-panel/internal/pkg/config"
	"github.com/andrewmarklloyd/rasp-water-panel/internal/pkg/valve"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gofrs/uuid"
	"go.uber.org/zap"
)

const (
	eventTopic      = "event"
	valveStateTopic = "valve/state"
)

type MqttClient struct {
	client mqtt.Client
}

func NewMQTTClient(cfg config.MQTTConfig, connectHandler func(client mqtt.Client), connectionLostHandler func(client mqtt.Client, err error), reconnectHandler func(mqtt.Client, *mqtt.ClientOptions)) MqttClient {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL)
	opts.SetUsername(cfg.User)
	opts.SetPassword(cfg.Password)
	opts.CleanSession = false
	u, _ := uuid.NewV4()
	opts.SetClientID(fmt.Sprintf("rasp-water-panel-%s", u.String()))
	opts.TLSConfig = &tls.Config{}
	opts.OnConnect = connectHandler
	opts.OnConnectionLost = connectionLostHandler
	opts.OnReconnecting = reconnectHandler
	opts.AutoReconnect = true

	return MqttClient{
		mqtt.NewClient(opts),
	}
}

func (c MqttClient) Connect() error {
	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	return nil
}

func (c MqttClient) Cleanup() {
	c.client.Disconnect(250)
}

func (c MqttClient) Publish(topic, message string) error {
	token := c.client.Publish(topic, 0, false, message)
	token.Wait()
	return token.Error()
}

// Publisher is the part of the broker connection the bridge needs.
type Publisher interface {
	Publish(topic, message string) error
}

// Bridge republishes appliance notifications and valve state changes.
type Bridge struct {
	pub    Publisher
	prefix string
	logger *zap.SugaredLogger

	mu   sync.Mutex
	last *valve.Ctrl
}

func NewBridge(pub Publisher, prefix string, logger *zap.SugaredLogger) *Bridge {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if prefix == "" {
		prefix = config.DefaultTopicPrefix
	}
	return &Bridge{pub: pub, prefix: prefix, logger: logger}
}

func (b *Bridge) topic(name string) string {
	return b.prefix + "/" + name
}

// PublishNotification forwards an appliance topic as the message body.
func (b *Bridge) PublishNotification(topic string) {
	if err := b.pub.Publish(b.topic(eventTopic), topic); err != nil {
		b.logger.Errorf("publishing notification %s: %s", topic, err)
	}
}

// ReportValve publishes the valve state whenever on/off or the period
// changes. Flow samples alone do not trigger a message.
func (b *Bridge) ReportValve(s valve.State) {
	ctrl := valve.Ctrl{IsOn: s.IsOn, Period: s.Period}
	b.mu.Lock()
	if b.last != nil && *b.last == ctrl {
		b.mu.Unlock()
		return
	}
	b.last = &ctrl
	b.mu.Unlock()

	state := "0"
	if s.IsOn {
		state = "1"
	}
	j, err := json.Marshal(config.ValveMessage{
		State:     state,
		Period:    s.Period,
		Flow:      s.Flow,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		b.logger.Errorf("marshalling valve state: %s", err)
		return
	}
	if err := b.pub.Publish(b.topic(valveStateTopic), string(j)); err != nil {
		b.logger.Errorf("publishing valve state: %s", err)
		b.mu.Lock()
		b.last = nil
		b.mu.Unlock()
	}
}
