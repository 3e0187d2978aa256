package notify

import (
	"encoding/json"
	"log"

	"github.com/streadway/amqp"

	"github.com/pressroom/approvals-backend/internal/queue"
)

// Job is one queued notification.
type Job struct {
	WorkflowID     string `json:"workflow_id"`
	RecipientEmail string `json:"recipient_email"`
	Kind           string `json:"kind"` // approval_requested, decision_recorded, changes_requested, reminder
	Message        string `json:"message"`
}

// Dispatcher delivers a message to a recipient. Delivery failures must
// never block a workflow state transition; callers log and move on.
type Dispatcher interface {
	Send(job Job) error
}

// LogDispatcher just prints; the fallback when no broker is configured.
type LogDispatcher struct{}

func (LogDispatcher) Send(job Job) error {
	log.Printf("📨 notify %s (%s): %s\n", job.RecipientEmail, job.Kind, job.Message)
	return nil
}

// QueueDispatcher hands jobs to the in-process queue.
type QueueDispatcher struct {
	Queue queue.Queue
}

func (d *QueueDispatcher) Send(job Job) error {
	return d.Queue.Publish(queue.TopicNotifications, job)
}

// AMQPDispatcher publishes jobs to the durable broker queue consumed by
// cmd/worker.
type AMQPDispatcher struct {
	Channel *amqp.Channel
	Queue   string
}

func NewAMQPDispatcher(url string) (*AMQPDispatcher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	q, err := ch.QueueDeclare(
		queue.TopicNotifications,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &AMQPDispatcher{Channel: ch, Queue: q.Name}, nil
}

func (d *AMQPDispatcher) Send(job Job) error {
	body, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return d.Channel.Publish(
		"",
		d.Queue,
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
}

// StartNotificationSubscriber drains the in-process queue through a
// dispatcher (usually the AMQP one, or the log fallback).
func StartNotificationSubscriber(q queue.Queue, sink Dispatcher) {
	go func() {
		err := q.Subscribe(queue.TopicNotifications, func(payload any) error {
			job, ok := payload.(Job)
			if !ok {
				log.Println("⚠️ invalid notification payload type")
				return nil
			}
			return sink.Send(job)
		})
		if err != nil {
			log.Println("⚠️ failed to start notification subscriber:", err)
		}
	}()
}
