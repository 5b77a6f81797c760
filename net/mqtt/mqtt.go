// Package mqtt wraps the paho client for the telemetry publisher and the
// vision subscriber.
package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const (
	defaultKeepAlive      = 60 * time.Second
	defaultPingTimeout    = 10 * time.Second
	defaultConnectTimeout = 5 * time.Second
)

type Options struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	KeepAlive      time.Duration
	PingTimeout    time.Duration
	ConnectTimeout time.Duration
}

type Handler func(topic string, payload []byte)

type subscription struct {
	qos     byte
	handler Handler
}

type Client struct {
	c   paho.Client
	log *zap.Logger

	mu   sync.Mutex
	subs map[string]subscription
}

var loggersOnce sync.Once

// bridgeLoggers routes paho's package-level loggers into log. paho keeps
// them in globals, so the first client wins.
func bridgeLoggers(log *zap.Logger) {
	loggersOnce.Do(func() {
		l := log.Named("paho")
		if w, err := zap.NewStdLogAt(l, zap.WarnLevel); err == nil {
			paho.WARN = w
		}
		if e, err := zap.NewStdLogAt(l, zap.ErrorLevel); err == nil {
			paho.ERROR = e
			paho.CRITICAL = e
		}
	})
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

func (c *Client) clientOptions(o Options) *paho.ClientOptions {
	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetKeepAlive(orDefault(o.KeepAlive, defaultKeepAlive)).
		SetPingTimeout(orDefault(o.PingTimeout, defaultPingTimeout)).
		SetConnectTimeout(orDefault(o.ConnectTimeout, defaultConnectTimeout)).
		SetAutoReconnect(true).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			c.log.Warn("MQTT connection lost", zap.String("broker", o.Broker), zap.Error(err))
		})
	if o.Username != "" {
		opts = opts.SetUsername(o.Username)
	}
	if o.Password != "" {
		opts = opts.SetPassword(o.Password)
	}
	return opts
}

func New(log *zap.Logger, o Options) *Client {
	bridgeLoggers(log)
	c := &Client{
		log:  log,
		subs: make(map[string]subscription),
	}
	c.c = paho.NewClient(c.clientOptions(o))
	return c
}

func wait(ctx context.Context, t paho.Token) error {
	select {
	case <-t.Done():
		return t.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) Connect(ctx context.Context) error {
	err := wait(ctx, c.c.Connect())
	if err != nil {
		return fmt.Errorf("connect failed: %w", err)
	}
	return nil
}

// onConnect restores subscriptions after a reconnect.
func (c *Client) onConnect(pc paho.Client) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for topic, s := range c.subs {
		pc.Subscribe(topic, s.qos, messageHandler(s.handler))
	}
}

func messageHandler(h Handler) paho.MessageHandler {
	return func(_ paho.Client, m paho.Message) {
		h(m.Topic(), m.Payload())
	}
}

func (c *Client) Publish(ctx context.Context, topic string, qos byte, payload []byte) error {
	err := wait(ctx, c.c.Publish(topic, qos, false /* retained */, payload))
	if err != nil {
		return fmt.Errorf("publish failed for topic '%s': %w", topic, err)
	}
	return nil
}

func (c *Client) Subscribe(ctx context.Context, topic string, qos byte, h Handler) error {
	c.mu.Lock()
	c.subs[topic] = subscription{qos: qos, handler: h}
	c.mu.Unlock()
	err := wait(ctx, c.c.Subscribe(topic, qos, messageHandler(h)))
	if err != nil {
		return fmt.Errorf("subscribe failed for topic '%s': %w", topic, err)
	}
	c.log.Info("subscribed", zap.String("topic", topic))
	return nil
}

func (c *Client) Disconnect() {
	c.c.Disconnect(250 /* ms */)
}
