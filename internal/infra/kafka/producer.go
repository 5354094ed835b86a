package kafka

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// 1メッセージの書き込み上限。ブローカー停止中でもRunが止まれるように。
const defaultWriteTimeout = 10 * time.Second

// inboxが満杯
var ErrProducerBusy = errors.New("kafka producer inbox full")

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// 受け取ったメッセージをバックグラウンドで書き出す。
type Producer struct {
	w            messageWriter
	inbox        chan kafka.Message
	log          *slog.Logger
	writeTimeout time.Duration
}

func NewProducer(brokers []string, topic string, buf int, log *slog.Logger) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}
	return newProducer(w, buf, log)
}

func newProducer(w messageWriter, buf int, log *slog.Logger) *Producer {
	if buf <= 0 {
		buf = 256
	}
	if log == nil {
		log = slog.Default()
	}
	return &Producer{w: w, inbox: make(chan kafka.Message, buf), log: log, writeTimeout: defaultWriteTimeout}
}

// Run はctxが終わるまで書き出し、残りをflushしてWriterを閉じる。
func (p *Producer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return p.drain()
		case m := <-p.inbox:
			wctx, cancel := context.WithTimeout(context.Background(), p.writeTimeout)
			p.write(wctx, m)
			cancel()
		}
	}
}

func (p *Producer) drain() error {
	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case m := <-p.inbox:
			p.write(flushCtx, m)
		default:
			return p.w.Close()
		}
	}
}

func (p *Producer) write(ctx context.Context, m kafka.Message) {
	if err := p.w.WriteMessages(ctx, m); err != nil {
		p.log.Error("kafka write failed", "key", string(m.Key), "error", err)
	}
}

// Publish は待たずに積む。満杯なら ErrProducerBusy。
func (p *Producer) Publish(key, value []byte, headers ...kafka.Header) error {
	select {
	case p.inbox <- kafka.Message{Key: key, Value: value, Time: time.Now(), Headers: headers}:
		return nil
	default:
		return ErrProducerBusy
	}
}
