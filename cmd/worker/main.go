// cmd/worker/main.go
//
// Consumes conversion and opt-out events from RabbitMQ and updates
// enrollment state. Order and appointment systems publish here; the
// engine only ever reads the resulting flags.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/joho/godotenv"
	"github.com/streadway/amqp"

	"github.com/optiportal/campaign-engine/internal/config"
	"github.com/optiportal/campaign-engine/internal/db"
	"github.com/optiportal/campaign-engine/internal/repository"
)

const (
	EventOrderCompleted    = "order.completed"
	EventAppointmentBooked = "appointment.booked"
	EventCustomerOptOut    = "customer.optout"
)

type Event struct {
	Type       string `json:"type"`
	CustomerID int    `json:"customer_id"`
}

// EnrollmentUpdater is the slice of the enrollment repository the
// worker needs.
type EnrollmentUpdater interface {
	MarkConverted(customerID int) (int64, error)
	MarkOptedOut(customerID int) (int64, error)
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, relying on OS environment variables")
	}

	ctx := context.Background()
	cfg, err := config.Load(ctx)
	if err != nil {
		log.Fatal(err)
	}

	database, err := db.Connect(ctx, &cfg.Database)
	if err != nil {
		log.Fatal("failed to connect to DB:", err)
	}
	defer database.Close()

	enrollmentRepo := &repository.EnrollmentRepository{DB: database}

	conn, err := amqp.Dial(cfg.AMQP.URL)
	if err != nil {
		log.Fatal("failed to connect to RabbitMQ:", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.Fatal("failed to open a channel:", err)
	}
	defer ch.Close()

	q, err := ch.QueueDeclare(
		cfg.AMQP.Queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		log.Fatal("failed to declare queue:", err)
	}

	msgs, err := ch.Consume(
		q.Name,
		"",
		false, // autoAck off for reliability
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		log.Fatal("failed to register consumer:", err)
	}

	forever := make(chan bool)

	go func() {
		for d := range msgs {
			if err := handleDelivery(d.Body, enrollmentRepo); err != nil {
				log.Println("failed to process event:", err)
				var retryCount int32
				if v, ok := d.Headers["x-retry-count"].(int32); ok {
					retryCount = v
				}
				if retryCount < 3 {
					d.Nack(false, true) // requeue
					continue
				}
			}
			d.Ack(false)
		}
	}()

	log.Println("worker running, waiting for events on", q.Name)
	<-forever
}

// handleDelivery maps one event to the enrollment update it implies.
// Malformed events are dropped, not retried.
func handleDelivery(body []byte, repo EnrollmentUpdater) error {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		log.Println("dropping malformed event:", err)
		return nil
	}
	if ev.CustomerID <= 0 {
		log.Println("dropping event with no customer id")
		return nil
	}

	switch ev.Type {
	case EventOrderCompleted, EventAppointmentBooked:
		n, err := repo.MarkConverted(ev.CustomerID)
		if err != nil {
			return fmt.Errorf("mark converted: %w", err)
		}
		log.Printf("customer %d converted, %d enrollments updated", ev.CustomerID, n)
	case EventCustomerOptOut:
		n, err := repo.MarkOptedOut(ev.CustomerID)
		if err != nil {
			return fmt.Errorf("mark opted out: %w", err)
		}
		log.Printf("customer %d opted out, %d enrollments updated", ev.CustomerID, n)
	default:
		log.Println("dropping event with unknown type:", ev.Type)
	}
	return nil
}
