package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/codyseavey/tcg-sorter/backend/internal/metrics"
	"github.com/codyseavey/tcg-sorter/backend/internal/sorting"
)

// EventSortingComplete is the event type sent after a successful apply
const EventSortingComplete = "sorting_complete"

// subscriberBuffer is how many events a slow subscriber may lag before events
// are dropped for it
const subscriberBuffer = 16

// Event is one server-sent event
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// EventHub fans events out to live subscribers, such as SSE clients. Publishing
// never blocks; a subscriber whose buffer is full misses the event.
type EventHub struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan Event
}

func NewEventHub() *EventHub {
	return &EventHub{subs: make(map[int]chan Event)}
}

// Subscribe registers a subscriber. The returned cancel func unregisters it and
// closes the channel.
func (h *EventHub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	ch := make(chan Event, subscriberBuffer)
	h.subs[id] = ch
	metrics.EventSubscribers.Set(float64(len(h.subs)))

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs, id)
			close(ch)
			metrics.EventSubscribers.Set(float64(len(h.subs)))
		})
	}
}

// Publish delivers ev to every subscriber and returns how many received it
func (h *EventHub) Publish(ev Event) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	delivered := 0
	for _, ch := range h.subs {
		select {
		case ch <- ev:
			delivered++
		default:
		}
	}
	return delivered
}

// Subscribers returns the number of live subscribers
func (h *EventHub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *EventHub) SortingComplete(_ context.Context, ev sorting.CompletionEvent) error {
	h.Publish(Event{Type: EventSortingComplete, Data: ev})
	metrics.NotificationsTotal.WithLabelValues("sse", "ok").Inc()
	return nil
}

// AMQPNotifier publishes completion events to a topic exchange. The connection
// is opened on first use and reopened after it drops.
type AMQPNotifier struct {
	url        string
	exchange   string
	routingKey string

	mu   sync.Mutex
	conn *amqp.Connection
}

func NewAMQPNotifier(url, exchange, routingKey string) *AMQPNotifier {
	return &AMQPNotifier{url: url, exchange: exchange, routingKey: routingKey}
}

func (n *AMQPNotifier) connect() (*amqp.Connection, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.conn != nil && !n.conn.IsClosed() {
		return n.conn, nil
	}

	conn, err := amqp.Dial(n.url)
	if err != nil {
		return nil, fmt.Errorf("dialing amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	defer ch.Close()
	if err := ch.ExchangeDeclare(
		n.exchange, // name
		"topic",    // type
		true,       // durable
		false,      // auto-delete
		false,      // internal
		false,      // noWait
		nil,        // arguments
	); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declaring exchange %s: %w", n.exchange, err)
	}

	log.Printf("Notifier: connected to amqp exchange %s", n.exchange)
	n.conn = conn
	return conn, nil
}

func (n *AMQPNotifier) SortingComplete(ctx context.Context, ev sorting.CompletionEvent) error {
	err := n.publish(ctx, ev)
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.NotificationsTotal.WithLabelValues("amqp", result).Inc()
	return err
}

func (n *AMQPNotifier) publish(ctx context.Context, ev sorting.CompletionEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	conn, err := n.connect()
	if err != nil {
		return err
	}
	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	return ch.PublishWithContext(ctx,
		n.exchange,
		n.routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Type:         EventSortingComplete,
			Timestamp:    ev.CompletedAt,
			Body:         body,
		},
	)
}

// Close closes the connection if one is open
func (n *AMQPNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.conn == nil || n.conn.IsClosed() {
		return nil
	}
	return n.conn.Close()
}

// MultiNotifier sends each event to every notifier. All are attempted; the
// failures are joined.
type MultiNotifier []sorting.Notifier

func (m MultiNotifier) SortingComplete(ctx context.Context, ev sorting.CompletionEvent) error {
	var errs []error
	for _, n := range m {
		if err := n.SortingComplete(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
