// Worker consumes OTP delivery requests from Kafka and sends them over SMTP.
// Set KAFKA_BROKERS, DELIVERY_KAFKA_TOPIC, KAFKA_GROUP_ID and SMTP_HOST. Without SMTP_HOST messages are only logged.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"

	"orbit-account/backend/internal/config"
	"orbit-account/backend/internal/delivery"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	brokers := cfg.KafkaBrokersList()
	if len(brokers) == 0 {
		log.Fatal("worker: KAFKA_BROKERS is required")
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          cfg.DeliveryKafkaTopic,
		GroupID:        cfg.KafkaGroupID,
		MinBytes:       1,
		MaxBytes:       1e6,
		MaxWait:        1 * time.Second,
		CommitInterval: time.Second,
	})
	defer reader.Close()

	var sender delivery.Sender = delivery.LogSender{}
	if cfg.SMTPHost != "" {
		sender = delivery.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.MailFrom)
	} else {
		log.Println("worker: SMTP_HOST not set; messages are logged, not sent")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("worker: consuming from %s (group %s)", cfg.DeliveryKafkaTopic, cfg.KafkaGroupID)
	if err := delivery.Consume(ctx, reader, sender, nil); err != nil {
		log.Fatalf("worker: %v", err)
	}
	log.Println("worker: stopped")
}
