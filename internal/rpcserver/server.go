package rpcserver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Config controls the AMQP transport: the connection URL and the queue
// this broker instance listens on. There is one queue per broker
// deployment, not per pool; the pool is named inside each Request.
type Config struct {
	AMQPURL    string
	Queue      string
	WorkerPool WorkerPoolConfig
	RateLimit  RateLimiterConfig
}

// Server is the AMQP-bound JSON-RPC tool/resource transport. It owns the
// RabbitMQ connection and channel, the worker pool draining the device
// queue, and the rate limiter guarding it; every decoded Request is
// dispatched to a Registry.
type Server struct {
	cfg      Config
	registry *Registry
	logger   *zap.Logger

	conn    *amqp.Connection
	channel *amqp.Channel
	pool    *workerPool
	limiter *RateLimiter
}

// New builds a Server bound to registry. It does not dial RabbitMQ; Run
// does.
func New(cfg Config, registry *Registry, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.WorkerPool == (WorkerPoolConfig{}) {
		cfg.WorkerPool = DefaultWorkerPoolConfig()
	}
	if cfg.RateLimit == (RateLimiterConfig{}) {
		cfg.RateLimit = DefaultRateLimiterConfig()
	}
	return &Server{cfg: cfg, registry: registry, logger: logger.Named("rpcserver")}
}

// Run dials RabbitMQ, declares the device queue, and consumes requests
// until ctx is cancelled. It blocks; callers typically run it in its own
// goroutine and cancel ctx on shutdown.
func (s *Server) Run(ctx context.Context) error {
	var err error
	s.conn, err = amqp.Dial(s.cfg.AMQPURL)
	if err != nil {
		return fmt.Errorf("rpcserver: connect to RabbitMQ: %w", err)
	}
	defer s.conn.Close()

	s.channel, err = s.conn.Channel()
	if err != nil {
		return fmt.Errorf("rpcserver: open channel: %w", err)
	}
	defer s.channel.Close()

	if _, err := s.channel.QueueDeclare(s.cfg.Queue, false, false, false, false, nil); err != nil {
		return fmt.Errorf("rpcserver: declare queue %q: %w", s.cfg.Queue, err)
	}

	msgs, err := s.channel.Consume(s.cfg.Queue, "", true, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("rpcserver: consume queue %q: %w", s.cfg.Queue, err)
	}

	s.limiter = NewRateLimiter(s.cfg.RateLimit)
	defer s.limiter.Stop()

	s.pool = newWorkerPool(s.cfg.WorkerPool, s.processDelivery, s.logger)
	s.pool.start()
	defer s.pool.stop(10 * time.Second)

	s.logger.Info("listening", zap.String("queue", s.cfg.Queue))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("shutting down")
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("rpcserver: delivery channel closed")
			}
			if err := s.pool.submit(s.channel, msg); err != nil {
				s.logger.Warn("dropping message", zap.Error(err))
				s.publishError(msg.ReplyTo, msg.CorrelationId, "server overloaded, please retry")
			}
		}
	}
}

// processDelivery is the worker pool's per-message entry point: decode,
// rate-limit, dispatch, respond.
func (s *Server) processDelivery(ctx context.Context, channel *amqp.Channel, delivery amqp.Delivery) {
	var req Request
	if err := json.Unmarshal(delivery.Body, &req); err != nil {
		s.publish(channel, delivery.ReplyTo, delivery.CorrelationId, Response{Error: fmt.Sprintf("invalid request: %v", err)})
		return
	}

	// The reply queue identifies the caller; correlation IDs are unique
	// per request and would defeat the limiter.
	if !s.limiter.Allow(delivery.ReplyTo, requestCost(req)) {
		s.publish(channel, delivery.ReplyTo, delivery.CorrelationId, Response{ID: req.ID, Error: "rate limit exceeded, please slow down"})
		return
	}

	resp := s.registry.handle(ctx, req)
	s.publish(channel, delivery.ReplyTo, delivery.CorrelationId, resp)
}

func (s *Server) publish(channel *amqp.Channel, replyTo, correlationID string, resp Response) {
	body, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("failed to marshal response", zap.Error(err))
		return
	}
	if err := channel.PublishWithContext(context.Background(), "", replyTo, false, false, amqp.Publishing{
		ContentType:   "application/json",
		CorrelationId: correlationID,
		Body:          body,
	}); err != nil {
		s.logger.Error("failed to publish response", zap.Error(err))
	}
}

func (s *Server) publishError(replyTo, correlationID, message string) {
	s.publish(s.channel, replyTo, correlationID, Response{Error: message})
}
