package gwd

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	bridge "github.com/mcubridge/gatewayd"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/op/go-logging"
)

// InboundHandler receives one decoded inbound message: the topic with the
// configured prefix already stripped, the payload, and the response
// metadata the envelope carried (if the publisher wants a reply).
type InboundHandler func(topic string, payload []byte, meta ResponseMeta)

// inboundTopics is the fixed set of patterns subscribed under the prefix,
// per the documented topic surface.
var inboundTopics = []string{
	"d/+", "d/+/read", "d/+/mode",
	"a/+", "a/+/read",
	"console/in",
	"file/write/#", "file/read/#", "file/remove/#",
	"datastore/put/#", "datastore/get/#",
	"mailbox/write",
	"sh/run", "sh/poll/+", "sh/kill/+",
	"system/handshake", "system/version", "system/free_memory", "system/reset",
}

// MQTTTransport owns the broker connection, the bounded outbound queue, and
// the durable spool those publishes overflow into. Queue order is FIFO;
// a message that's been spooled and later restored after a reconnect
// re-enters the queue in original order, preserving enqueue order across
// the spool boundary.
type MQTTTransport struct {
	cfg     bridge.Config
	prefix  string
	state   *RuntimeState
	spool   *Spool
	log     *logging.Logger
	client  mqtt.Client
	onInbound InboundHandler

	queue *boundedQueue

	mu        sync.Mutex
	connected bool
}

// NewMQTTTransport constructs a transport bound to cfg; the spool is opened
// lazily by Run so a spool I/O failure degrades rather than prevents boot.
func NewMQTTTransport(cfg bridge.Config, state *RuntimeState, log *logging.Logger) *MQTTTransport {
	return &MQTTTransport{
		cfg:    cfg,
		prefix: collapseTopic(cfg.MQTTTopic),
		state:  state,
		log:    log,
		queue:  newBoundedQueue(cfg.MQTTQueueLimit, 1<<30),
	}
}

func collapseTopic(topic string) string {
	for strings.Contains(topic, "//") {
		topic = strings.ReplaceAll(topic, "//", "/")
	}
	return strings.Trim(topic, "/")
}

// OnInbound registers the handler invoked for every subscribed message,
// normally the router's Dispatch method.
func (t *MQTTTransport) OnInbound(h InboundHandler) { t.onInbound = h }

// Publish enqueues topic/payload (wrapped in the JSON envelope carrying meta
// and userProps) for the publisher loop. If the bounded queue is saturated,
// the entry is appended to the spool instead of blocking the caller.
func (t *MQTTTransport) Publish(topic string, payload []byte, meta ResponseMeta, userProps map[string]string) {
	full := t.prefix + "/" + strings.TrimPrefix(topic, "/")
	body, err := encodeEnvelope(payload, meta, userProps)
	if err != nil {
		t.log.Error("encoding envelope for", full, ":", err)
		return
	}

	id, _ := bridge.NewCorrelationToken()
	entry := SpoolEntry{ID: id, Topic: full, Payload: body, Meta: meta, Props: userProps}
	encoded, err := encodeSpoolEntry(entry)
	if err != nil {
		t.log.Error("encoding queue entry for", full, ":", err)
		return
	}

	if t.queue.Push(encoded) {
		return
	}

	if t.spool == nil {
		t.log.Warning("mqtt queue saturated and no spool open, dropping publish to", full)
		return
	}
	if _, err := t.spool.Append(entry); err != nil {
		t.state.SetSpoolDegraded(true, err.Error())
		t.log.Error("spool append failed, degrading:", err)
	}
}

// Run opens the spool, connects to the broker, subscribes the fixed topic
// set, and drains the outbound queue until ctx is cancelled. A publish
// failure requeues the entry to the front rather than dropping it, per the
// documented transient-failure behavior.
func (t *MQTTTransport) Run(ctx context.Context) error {
	spool, err := OpenSpool(t.cfg.MQTTSpoolDir, t.cfg.MQTTSpoolLimit, t.state, t.log)
	if err != nil {
		t.state.SetSpoolDegraded(true, err.Error())
		t.log.Warning("mqtt spool unavailable, continuing without persistence:", err)
	} else {
		t.spool = spool
		defer func() {
			if cerr := spool.Close(); cerr != nil {
				t.log.Warning("closing spool:", cerr)
			}
		}()
	}

	opts, err := t.clientOptions()
	if err != nil {
		return bridge.NewTransportError("building mqtt client options: %v", err)
	}
	t.client = mqtt.NewClient(opts)

	tok := t.client.Connect()
	if !tok.WaitTimeout(t.cfg.Timeouts().Reconnect) || tok.Error() != nil {
		return bridge.NewTransportError("connecting to mqtt broker: %v", tok.Error())
	}
	defer t.client.Disconnect(250)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		raw, ok := t.queue.Pop()
		if !ok {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(25 * time.Millisecond):
				continue
			}
		}

		entry, derr := decodeSpoolEntry(raw)
		if derr != nil {
			t.log.Warning("dropping corrupt queue entry:", derr)
			continue
		}

		pubTok := t.client.Publish(entry.Topic, 1, false, entry.Payload)
		if !pubTok.WaitTimeout(5*time.Second) || pubTok.Error() != nil {
			t.queue.PushFront(raw)
			if t.spool != nil {
				if _, serr := t.spool.Append(entry); serr != nil {
					t.state.SetSpoolDegraded(true, serr.Error())
				}
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(t.cfg.Timeouts().Reconnect):
			}
		}
	}
}

// clientOptions builds the paho options struct, wiring TLS (cert/key/CA,
// insecure-skip-verify) and credentials from Config, and the reconnect
// handler that redrains the spool into the queue in FIFO order.
func (t *MQTTTransport) clientOptions() (*mqtt.ClientOptions, error) {
	scheme := "tcp"
	opts := mqtt.NewClientOptions()

	if t.cfg.MQTTTLS {
		scheme = "ssl"
		tlsCfg := &tls.Config{InsecureSkipVerify: t.cfg.MQTTTLSInsecure}
		if t.cfg.MQTTCAFile != "" {
			pool := x509.NewCertPool()
			pem, err := os.ReadFile(t.cfg.MQTTCAFile)
			if err != nil {
				return nil, fmt.Errorf("reading mqtt_cafile: %w", err)
			}
			pool.AppendCertsFromPEM(pem)
			tlsCfg.RootCAs = pool
		}
		if t.cfg.MQTTCertFile != "" && t.cfg.MQTTKeyFile != "" {
			cert, err := tls.LoadX509KeyPair(t.cfg.MQTTCertFile, t.cfg.MQTTKeyFile)
			if err != nil {
				return nil, fmt.Errorf("loading mqtt client cert/key: %w", err)
			}
			tlsCfg.Certificates = []tls.Certificate{cert}
		}
		opts.SetTLSConfig(tlsCfg)
	}

	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, t.cfg.MQTTHost, t.cfg.MQTTPort))
	opts.SetClientID("gatewayd-" + mustCorrelationToken())
	if t.cfg.MQTTUser != "" {
		opts.SetUsername(t.cfg.MQTTUser)
		opts.SetPassword(t.cfg.MQTTPass)
	}
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(t.cfg.Timeouts().Reconnect)
	opts.SetOnConnectHandler(t.handleConnect)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		t.mu.Lock()
		t.connected = false
		t.mu.Unlock()
		t.log.Warning("mqtt connection lost:", err)
	})

	return opts, nil
}

// handleConnect subscribes the fixed topic set and, on every (re)connect,
// drains the spool back into the outbound queue in FIFO order so spooled
// messages preserve their original enqueue order once delivery resumes.
func (t *MQTTTransport) handleConnect(client mqtt.Client) {
	t.mu.Lock()
	t.connected = true
	t.mu.Unlock()

	for _, pattern := range inboundTopics {
		full := t.prefix + "/" + pattern
		client.Subscribe(full, 1, t.handleMessage)
	}

	if t.spool == nil {
		return
	}
	entries, err := t.spool.DrainAll()
	if err != nil {
		t.log.Error("draining spool after reconnect:", err)
		return
	}
	for _, entry := range entries {
		encoded, err := encodeSpoolEntry(entry)
		if err != nil {
			continue
		}
		if !t.queue.Push(encoded) {
			t.log.Warning("queue saturated while restoring spooled entry", entry.ID, "re-spooling")
			t.spool.Append(entry)
		}
	}
}

func (t *MQTTTransport) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	if t.onInbound == nil {
		return
	}
	topic := strings.TrimPrefix(msg.Topic(), t.prefix+"/")
	payload, meta, err := decodeEnvelope(msg.Payload())
	if err != nil {
		// Not every publisher speaks the envelope (e.g. a plain mosquitto_pub
		// test probe); fall back to treating the raw bytes as the payload.
		payload, meta = msg.Payload(), ResponseMeta{}
	}
	t.onInbound(topic, payload, meta)
}

// Depths reports the current spool row count and outbound queue length, for
// the metrics publisher to fold into MetricsSnapshot.
func (t *MQTTTransport) Depths() (spoolDepth, queueDepth int) {
	queueDepth = t.queue.Len()
	if t.spool != nil {
		spoolDepth = t.spool.Depth()
	}
	return spoolDepth, queueDepth
}

func mustCorrelationToken() string {
	tok, err := bridge.NewCorrelationToken()
	if err != nil {
		return "fallback"
	}
	return tok
}
