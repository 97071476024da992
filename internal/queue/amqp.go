package queue

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/streadway/amqp"
)

// AmqpQueue is the out-of-process Queue: jobs published here land on a
// durable RabbitMQ queue named after the topic, where cmd/worker (or a
// same-process Subscribe) consumes them. Payloads cross the wire as JSON, so
// handlers receive []byte rather than the original value.
type AmqpQueue struct {
	conn *amqp.Connection
	ch   *amqp.Channel

	mu       sync.Mutex
	declared map[string]bool
}

func DialAmqp(url string) (*AmqpQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &AmqpQueue{
		conn:     conn,
		ch:       ch,
		declared: make(map[string]bool),
	}, nil
}

func (q *AmqpQueue) declare(topic string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.declared[topic] {
		return nil
	}
	_, err := q.ch.QueueDeclare(
		topic,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return err
	}
	q.declared[topic] = true
	return nil
}

// Publish marshals the payload to JSON and publishes it persistently, so
// jobs survive a broker restart.
func (q *AmqpQueue) Publish(topic string, payload any) error {
	if err := q.declare(topic); err != nil {
		return err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return q.ch.Publish(
		"",    // default exchange
		topic, // routing key = queue name
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}

// Subscribe consumes the topic's queue with manual acks, handing the raw
// JSON body to the handler. A failing handler gets requeued up to 3 times
// via the x-retry-count header, then dropped.
func (q *AmqpQueue) Subscribe(topic string, handler func(payload any) error) error {
	if err := q.declare(topic); err != nil {
		return err
	}
	msgs, err := q.ch.Consume(
		topic,
		"",
		false, // autoAck = false for reliability
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return err
	}

	go func() {
		for d := range msgs {
			if err := handler(d.Body); err != nil {
				log.Println("⚠️ Handler failed for topic", topic, ":", err)
				var retryCount int
				if d.Headers["x-retry-count"] != nil {
					retryCount, _ = d.Headers["x-retry-count"].(int)
				}
				if retryCount < 3 {
					d.Nack(false, true) // requeue
					continue
				}
			}
			d.Ack(false)
		}
	}()
	return nil
}

func (q *AmqpQueue) Close() error {
	q.ch.Close()
	return q.conn.Close()
}

var _ Queue = (*AmqpQueue)(nil)
