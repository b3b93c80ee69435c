package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	routingKeyLoanDisbursed   = "loan.disbursed"
	routingKeyPaymentReceived = "loan.payment_received"
	routingKeyLoanWrittenOff  = "loan.written_off"
	publisherAppID            = "lending-engine"
)

type Publisher interface {
	PublishLoanDisbursed(ctx context.Context, event LoanDisbursedEvent) error
	PublishPaymentReceived(ctx context.Context, event PaymentReceivedEvent) error
	PublishLoanWrittenOff(ctx context.Context, event LoanWrittenOffEvent) error
}

type RabbitMQPublisher struct {
	conn         *amqp.Connection
	exchangeName string
	logger       *slog.Logger
}

func NewRabbitMQPublisher(conn *amqp.Connection, exchangeName string, logger *slog.Logger) (Publisher, error) {
	if conn == nil {
		return nil, fmt.Errorf("RabbitMQ connection cannot be nil")
	}
	if exchangeName == "" {
		return nil, fmt.Errorf("RabbitMQ exchange name cannot be empty")
	}

	tempCh, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open temporary channel for exchange declaration: %w", err)
	}
	defer tempCh.Close()

	err = tempCh.ExchangeDeclare(
		exchangeName,
		amqp.ExchangeTopic,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to declare exchange '%s': %w", exchangeName, err)
	}
	logger.Info("Ensured RabbitMQ exchange exists", "exchange", exchangeName, "type", amqp.ExchangeTopic)

	return &RabbitMQPublisher{
		conn:         conn,
		exchangeName: exchangeName,
		logger:       logger.With("component", "RabbitMQPublisher", "exchange", exchangeName),
	}, nil
}

func (p *RabbitMQPublisher) publish(ctx context.Context, routingKey string, payload interface{}) error {
	logCtx := p.logger.With(slog.String("routingKey", routingKey))

	channel, err := p.conn.Channel()
	if err != nil {
		logCtx.ErrorContext(ctx, "Failed to open RabbitMQ channel", slog.Any("error", err))
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer channel.Close()

	body, err := json.Marshal(payload)
	if err != nil {
		logCtx.ErrorContext(ctx, "Failed to marshal event payload to JSON", slog.Any("error", err))
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = channel.PublishWithContext(
		ctx,
		p.exchangeName,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
			AppId:        publisherAppID,
		},
	)

	if err != nil {
		logCtx.ErrorContext(ctx, "Failed to publish message to RabbitMQ", slog.Any("error", err))
		return fmt.Errorf("failed to publish message: %w", err)
	}

	logCtx.InfoContext(ctx, "Successfully published message")
	return nil
}

func (p *RabbitMQPublisher) PublishLoanDisbursed(ctx context.Context, event LoanDisbursedEvent) error {
	return p.publish(ctx, routingKeyLoanDisbursed, event)
}

func (p *RabbitMQPublisher) PublishPaymentReceived(ctx context.Context, event PaymentReceivedEvent) error {
	return p.publish(ctx, routingKeyPaymentReceived, event)
}

func (p *RabbitMQPublisher) PublishLoanWrittenOff(ctx context.Context, event LoanWrittenOffEvent) error {
	return p.publish(ctx, routingKeyLoanWrittenOff, event)
}

// NoopPublisher is used when messaging is disabled in configuration.
type NoopPublisher struct{}

func (NoopPublisher) PublishLoanDisbursed(context.Context, LoanDisbursedEvent) error {
	return nil
}

func (NoopPublisher) PublishPaymentReceived(context.Context, PaymentReceivedEvent) error {
	return nil
}

func (NoopPublisher) PublishLoanWrittenOff(context.Context, LoanWrittenOffEvent) error {
	return nil
}
