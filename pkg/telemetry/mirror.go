package telemetry

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

const (
	mirrorQueue   = 16
	publishWait   = 5 * time.Second
	disconnectMs  = 250
	connectWait   = 10 * time.Second
	clientIDStart = "plantcare-"
)

// Message is the JSON form of a packet published by Mirror.
type Message struct {
	Time         string    `json:"time"`
	Hours        uint8     `json:"hours"`
	Minutes      uint8     `json:"minutes"`
	Ambient      string    `json:"ambient"`
	Plant        string    `json:"plant"`
	TimesWatered uint8     `json:"times_watered"`
	Raw          Packet    `json:"raw"`
	SentAt       time.Time `json:"sent_at"`
}

// NewMessage converts a packet.
func NewMessage(p Packet, at time.Time) Message {
	a, pl := p.Ambient(), p.Plant()
	return Message{
		Time:         p.Time().String(),
		Hours:        p[OffsetHours],
		Minutes:      p[OffsetMinutes],
		Ambient:      fmt.Sprintf("%d.%d", a.Int, a.Dec),
		Plant:        fmt.Sprintf("%d.%d", pl.Int, pl.Dec),
		TimesWatered: p.TimesWatered(),
		Raw:          p,
		SentAt:       at,
	}
}

// publisher is the subset of mqtt.Client used by Mirror.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Mirror republishes transmitted packets to an MQTT topic. Publishing
// happens on its own goroutine; a full queue drops packets.
type Mirror struct {
	client publisher
	topic  string
	log    *slog.Logger
	queue  chan Message
	done   chan struct{}
	once   sync.Once
	closer func()
}

// DialMirror connects to broker and starts the mirror. An empty clientID
// generates one.
func DialMirror(broker, topic, clientID string, log *slog.Logger) (*Mirror, error) {
	if clientID == "" {
		clientID = clientIDStart + uuid.NewString()
	}

	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true)
	c := mqtt.NewClient(opts)

	token := c.Connect()
	if !token.WaitTimeout(connectWait) {
		return nil, fmt.Errorf("connect to %s: timed out", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", broker, err)
	}

	m := newMirror(c, topic, log)
	m.closer = func() { c.Disconnect(disconnectMs) }
	return m, nil
}

func newMirror(client publisher, topic string, log *slog.Logger) *Mirror {
	if log == nil {
		log = slog.Default()
	}
	m := &Mirror{
		client: client,
		topic:  topic,
		log:    log,
		queue:  make(chan Message, mirrorQueue),
		done:   make(chan struct{}),
	}
	go m.run()
	return m
}

// Publish queues p for publishing without blocking.
func (m *Mirror) Publish(p Packet) bool {
	select {
	case m.queue <- NewMessage(p, time.Now()):
		return true
	default:
		m.log.Warn("mqtt mirror queue full, dropping packet")
		return false
	}
}

// Close drains the queue and disconnects.
func (m *Mirror) Close() {
	m.once.Do(func() {
		close(m.queue)
		<-m.done
		if m.closer != nil {
			m.closer()
		}
	})
}

func (m *Mirror) run() {
	defer close(m.done)

	for msg := range m.queue {
		payload, err := json.Marshal(msg)
		if err != nil {
			m.log.Error("failed to marshal telemetry", "err", err)
			continue
		}

		token := m.client.Publish(m.topic, 0, false, payload)
		if !token.WaitTimeout(publishWait) {
			m.log.Warn("mqtt publish timed out", "topic", m.topic)
			continue
		}
		if err := token.Error(); err != nil {
			m.log.Warn("mqtt publish failed", "topic", m.topic, "err", err)
		}
	}
}
