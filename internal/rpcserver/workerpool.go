package rpcserver

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// deliveryTask is one inbound AMQP message queued for worker processing.
type deliveryTask struct {
	channel  *amqp.Channel
	delivery amqp.Delivery
	queuedAt time.Time
}

// WorkerPoolConfig controls concurrency and per-message timeout.
type WorkerPoolConfig struct {
	WorkerCount int
	QueueSize   int
	Timeout     time.Duration
}

// DefaultWorkerPoolConfig returns the broker's default concurrency policy.
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{WorkerCount: 10, QueueSize: 100, Timeout: 30 * time.Second}
}

// workerPool runs a bounded number of goroutines processing queued
// deliveries, so one slow or panicking handler never blocks the consume
// loop from pulling more messages off the AMQP channel.
type workerPool struct {
	cfg     WorkerPoolConfig
	process func(ctx context.Context, channel *amqp.Channel, delivery amqp.Delivery)
	logger  *zap.Logger

	queue   chan deliveryTask
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.RWMutex
	started bool
}

func newWorkerPool(cfg WorkerPoolConfig, process func(ctx context.Context, channel *amqp.Channel, delivery amqp.Delivery), logger *zap.Logger) *workerPool {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 10
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &workerPool{
		cfg:     cfg,
		process: process,
		logger:  logger,
		queue:   make(chan deliveryTask, cfg.QueueSize),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (wp *workerPool) start() {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	if wp.started {
		return
	}
	for i := 0; i < wp.cfg.WorkerCount; i++ {
		wp.wg.Add(1)
		go wp.run(i)
	}
	wp.started = true
}

func (wp *workerPool) stop(timeout time.Duration) error {
	wp.mu.Lock()
	if !wp.started {
		wp.mu.Unlock()
		return nil
	}
	wp.mu.Unlock()

	wp.cancel()
	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("rpcserver: worker pool shutdown timeout exceeded")
	}
}

// submit queues a task, rejecting it immediately if the queue is full
// rather than blocking the consume loop.
func (wp *workerPool) submit(channel *amqp.Channel, delivery amqp.Delivery) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	if !wp.started {
		return fmt.Errorf("rpcserver: worker pool not started")
	}

	select {
	case wp.queue <- deliveryTask{channel: channel, delivery: delivery, queuedAt: time.Now()}:
		return nil
	case <-wp.ctx.Done():
		return fmt.Errorf("rpcserver: worker pool is shutting down")
	default:
		return fmt.Errorf("rpcserver: worker pool queue is full")
	}
}

func (wp *workerPool) run(id int) {
	defer wp.wg.Done()
	for {
		select {
		case <-wp.ctx.Done():
			return
		case task := <-wp.queue:
			wp.runOne(id, task)
		}
	}
}

func (wp *workerPool) runOne(id int, task deliveryTask) {
	ctx, cancel := context.WithTimeout(wp.ctx, wp.cfg.Timeout)
	defer cancel()

	defer func() {
		if rec := recover(); rec != nil {
			wp.logger.Error("worker panic recovered", zap.Int("worker", id), zap.Any("panic", rec))
		}
	}()

	wp.process(ctx, task.channel, task.delivery)
}
