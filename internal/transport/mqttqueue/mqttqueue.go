// Package mqttqueue implements collab.NotificationQueue for indirect mode:
// presentation notices arrive as messages on one or more MQTT mailbox
// topics rather than as direct HTTP POSTs.
package mqttqueue

import (
	"context"
	"errors"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/Will-Luck/sally-agent/internal/collab"
)

var (
	errConnectTimeout   = errors.New("mqttqueue: connect timed out")
	errSubscribeTimeout = errors.New("mqttqueue: subscribe timed out")
)

// Queue subscribes to a set of MQTT topics and buffers arriving messages
// as collab.Notice values for the Notice Intake sweep to drain.
type Queue struct {
	client mqtt.Client

	mu      sync.Mutex
	pending []collab.Notice
}

// New connects to broker, subscribes to topics at the given QoS, and
// returns a Queue ready to serve Next/Ack calls.
func New(broker string, topics []string, clientID string, qos int, username, password string) (*Queue, error) {
	q := byte(qos)
	if q > 2 {
		q = 0
	}
	if clientID == "" {
		clientID = "sally-agent"
	}

	opts := mqtt.NewClientOptions().
		SetClientID(clientID).
		AddBroker(broker).
		SetConnectTimeout(10 * time.Second).
		SetWriteTimeout(10 * time.Second)
	if username != "" {
		opts.SetUsername(username)
		opts.SetPassword(password)
	}

	queue := &Queue{}

	opts.SetDefaultPublishHandler(func(_ mqtt.Client, msg mqtt.Message) {
		queue.enqueue(msg.Topic(), msg.Payload())
	})

	client := mqtt.NewClient(opts)
	tok := client.Connect()
	if !tok.WaitTimeout(10 * time.Second) {
		return nil, errConnectTimeout
	}
	if tok.Error() != nil {
		return nil, tok.Error()
	}
	queue.client = client

	for _, topic := range topics {
		subTok := client.Subscribe(topic, q, func(_ mqtt.Client, msg mqtt.Message) {
			queue.enqueue(msg.Topic(), msg.Payload())
		})
		if !subTok.WaitTimeout(10 * time.Second) {
			client.Disconnect(250)
			return nil, errSubscribeTimeout
		}
		if subTok.Error() != nil {
			client.Disconnect(250)
			return nil, subTok.Error()
		}
	}

	return queue, nil
}

func (q *Queue) enqueue(topic string, payload []byte) {
	q.mu.Lock()
	defer q.mu.Unlock()
	body := make([]byte, len(payload))
	copy(body, payload)
	q.pending = append(q.pending, collab.Notice{
		ID:    uuid.NewString(),
		Route: topic,
		Body:  body,
	})
}

// Next implements collab.NotificationQueue.
func (q *Queue) Next(_ context.Context) (collab.Notice, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return collab.Notice{}, false, nil
	}
	n := q.pending[0]
	q.pending = q.pending[1:]
	return n, true, nil
}

// Ack implements collab.NotificationQueue. MQTT delivery at the configured
// QoS already guarantees the broker won't redeliver once acknowledged at
// the transport layer, so Ack here is a no-op — the notice was already
// removed from the pending slice by Next.
func (q *Queue) Ack(_ context.Context, _ string) error {
	return nil
}

// Close disconnects from the broker.
func (q *Queue) Close() {
	if q.client != nil {
		q.client.Disconnect(250)
	}
}

var _ collab.NotificationQueue = (*Queue)(nil)
