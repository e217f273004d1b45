package mq

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	BarExchange = "bar_events"
	PrinterQ    = "bar.printer.q"
)

// Client carries a single channel over one connection; the hub publishes
// every committed bar event here for back-of-house consumers (receipt
// printer, analytics) that do not hold a live subscription.
type Client struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

func Dial(host string, port int, user, pass string) (*Client, error) {
	url := fmt.Sprintf("amqp://%s:%s@%s:%d/", user, pass, host, port)
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &Client{conn: conn, ch: ch}, nil
}

func (c *Client) Close() {
	if c == nil {
		return
	}
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

func (c *Client) DeclareAll() error {
	if c == nil || c.ch == nil {
		return fmt.Errorf("nil channel")
	}
	if err := c.ch.ExchangeDeclare(BarExchange, "topic", true, false, false, false, nil); err != nil {
		return err
	}
	if _, err := c.ch.QueueDeclare(PrinterQ, true, false, false, false, nil); err != nil {
		return err
	}
	// the printer only cares about orders entering and leaving the queue
	if err := c.ch.QueueBind(PrinterQ, "bar.barNewOrder", BarExchange, false, nil); err != nil {
		return err
	}
	return c.ch.QueueBind(PrinterQ, "bar.barOrderCompleted", BarExchange, false, nil)
}

// Publish fans a committed event out under routing key "bar.<event name>".
func (c *Client) Publish(ctx context.Context, event string, body []byte) error {
	return c.ch.PublishWithContext(ctx, BarExchange, "bar."+event, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		ContentType:  "application/json",
		Body:         body,
	})
}

func (c *Client) Consume(queue, consumer string, prefetch int) (<-chan amqp.Delivery, error) {
	if err := c.ch.Qos(prefetch, 0, false); err != nil {
		return nil, err
	}
	return c.ch.Consume(queue, consumer, false, false, false, false, nil)
}
