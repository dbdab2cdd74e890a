package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"market/internal/domain/model"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

var (
	ErrQueueFull      = errors.New("event queue full")
	ErrProducerClosed = errors.New("producer closed")
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer はコミット済みの注文イベントを非同期で送る。
// Publish はブロックしない（キューが一杯なら ErrQueueFull）。
type Producer struct {
	w      messageWriter
	inbox  chan kafka.Message
	done   chan struct{}
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
}

func NewProducer(brokers []string, topic string, buf int, logger *slog.Logger) *Producer {
	return newProducer(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}, buf, logger)
}

func newProducer(w messageWriter, buf int, logger *slog.Logger) *Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Producer{
		w:      w,
		inbox:  make(chan kafka.Message, buf),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Start は送信ループを起動する。Close まで動く。
func (p *Producer) Start() {
	go func() {
		defer close(p.done)
		for m := range p.inbox {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := p.w.WriteMessages(ctx, m); err != nil {
				p.logger.Error("kafka write failed", slog.String("key", string(m.Key)), slog.Any("err", err))
			}
			cancel()
		}
		if err := p.w.Close(); err != nil {
			p.logger.Warn("kafka writer close failed", slog.Any("err", err))
		}
	}()
}

// Close は受付を止め、残りを送り切ってから戻る。
func (p *Producer) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.inbox)
	}
	p.mu.Unlock()
	<-p.done
}

func (p *Producer) PublishOrderCreated(ctx context.Context, o model.Order, remainingQuantity int64, listingStatus model.ListingStatus) error {
	return p.publish(EventOrderCreated, o.ID, OrderCreated{
		OrderID:           o.ID,
		ListingID:         o.ListingID,
		BuyerID:           o.BuyerID,
		SellerID:          o.SellerID,
		Quantity:          o.Quantity,
		TotalAmount:       o.TotalAmount,
		Status:            string(o.Status),
		RemainingQuantity: remainingQuantity,
		ListingStatus:     string(listingStatus),
	})
}

func (p *Producer) PublishOrderStatusChanged(ctx context.Context, o model.Order, from model.OrderStatus, actorUserID int64) error {
	return p.publish(EventOrderStatusChanged, o.ID, OrderStatusChanged{
		OrderID:     o.ID,
		ListingID:   o.ListingID,
		BuyerID:     o.BuyerID,
		SellerID:    o.SellerID,
		FromStatus:  string(from),
		ToStatus:    string(o.Status),
		ActorUserID: actorUserID,
	})
}

func (p *Producer) publish(eventType string, orderID int64, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	orderKey := strconv.FormatInt(orderID, 10)
	value, err := json.Marshal(Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producerName,
		CorrelationID: orderKey,
		Payload:       body,
	})
	if err != nil {
		return err
	}

	//同じ注文のイベントは同じパーティションへ
	msg := kafka.Message{
		Key:   []byte(orderKey),
		Value: value,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(eventType)},
		},
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrProducerClosed
	}
	select {
	case p.inbox <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}
