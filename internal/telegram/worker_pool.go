package telegram

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/clipbot/clipbot/internal/i18n"
	"github.com/clipbot/clipbot/internal/logger"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// handler is what the pool dispatches to; *Bot implements it
type handler interface {
	handleMessage(ctx context.Context, message *tgbotapi.Message) error
	handleCallbackQuery(ctx context.Context, callback *tgbotapi.CallbackQuery) error
	reportFailure(ctx context.Context, chatID int64, err error)
	queueDepth(queue string, depth int)
}

// WorkerPool processes messages and callbacks concurrently. Downloads run
// on message workers, so MaxConcurrentOps bounds parallel resolver calls.
type WorkerPool struct {
	handler             handler
	messageQueue        chan *tgbotapi.Message
	callbackQueue       chan *tgbotapi.CallbackQuery
	messageWorkerCount  int
	callbackWorkerCount int
	drainTimeout        time.Duration

	maxConcurrentOps int
	opSemaphore      chan struct{}

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	mu      sync.RWMutex
}

type WorkerPoolConfig struct {
	MessageWorkers    int
	CallbackWorkers   int
	MessageQueueSize  int
	CallbackQueueSize int
	MaxConcurrentOps  int           // in-flight downloads and assistant calls
	DrainTimeout      time.Duration // how long Stop waits before cancelling work
}

func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		MessageWorkers:    32,
		CallbackWorkers:   16,
		MessageQueueSize:  256,
		CallbackQueueSize: 128,
		MaxConcurrentOps:  16,
		DrainTimeout:      25 * time.Second,
	}
}

func NewWorkerPool(h handler, config WorkerPoolConfig) *WorkerPool {
	ctx, cancel := context.WithCancel(context.Background())
	if config.DrainTimeout <= 0 {
		config.DrainTimeout = 25 * time.Second
	}

	return &WorkerPool{
		handler:             h,
		messageQueue:        make(chan *tgbotapi.Message, config.MessageQueueSize),
		callbackQueue:       make(chan *tgbotapi.CallbackQuery, config.CallbackQueueSize),
		messageWorkerCount:  config.MessageWorkers,
		callbackWorkerCount: config.CallbackWorkers,
		drainTimeout:        config.DrainTimeout,
		maxConcurrentOps:    config.MaxConcurrentOps,
		opSemaphore:         make(chan struct{}, config.MaxConcurrentOps),
		ctx:                 ctx,
		cancel:              cancel,
	}
}

func (wp *WorkerPool) Start() error {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	if wp.started {
		return fmt.Errorf("worker pool already started")
	}

	logger.Info("Starting worker pool", map[string]interface{}{
		"message_workers":     wp.messageWorkerCount,
		"callback_workers":    wp.callbackWorkerCount,
		"max_concurrent_ops":  wp.maxConcurrentOps,
		"message_queue_size":  cap(wp.messageQueue),
		"callback_queue_size": cap(wp.callbackQueue),
	})

	for i := 0; i < wp.messageWorkerCount; i++ {
		wp.wg.Add(1)
		go wp.messageWorker(i)
	}
	for i := 0; i < wp.callbackWorkerCount; i++ {
		wp.wg.Add(1)
		go wp.callbackWorker(i)
	}

	wp.started = true
	logger.InfoMsg("Worker pool started successfully")
	return nil
}

// Stop lets queued work drain for DrainTimeout, then cancels whatever is
// still running. Cancelled downloads give their quota back.
func (wp *WorkerPool) Stop() error {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	if !wp.started {
		return fmt.Errorf("worker pool not started")
	}
	wp.started = false

	logger.InfoMsg("Stopping worker pool...")
	close(wp.messageQueue)
	close(wp.callbackQueue)

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		wp.cancel()
		logger.InfoMsg("Worker pool stopped gracefully")
		return nil
	case <-time.After(wp.drainTimeout):
	}

	logger.Warn("Worker pool drain timed out, cancelling in-flight work", map[string]interface{}{
		"active_operations": len(wp.opSemaphore),
	})
	wp.cancel()

	select {
	case <-done:
		return nil
	case <-time.After(5 * time.Second):
		return fmt.Errorf("worker pool shutdown timed out")
	}
}

func (wp *WorkerPool) SubmitMessage(message *tgbotapi.Message) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()

	if !wp.started {
		return fmt.Errorf("worker pool not started")
	}

	select {
	case wp.messageQueue <- message:
		wp.handler.queueDepth("messages", len(wp.messageQueue))
		return nil
	default:
		logger.Warn("Message queue full, dropping message", map[string]interface{}{
			"chat_id": message.Chat.ID,
		})
		return fmt.Errorf("message queue full")
	}
}

func (wp *WorkerPool) SubmitCallback(callback *tgbotapi.CallbackQuery) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()

	if !wp.started {
		return fmt.Errorf("worker pool not started")
	}

	select {
	case wp.callbackQueue <- callback:
		wp.handler.queueDepth("callbacks", len(wp.callbackQueue))
		return nil
	default:
		logger.Warn("Callback queue full, dropping callback", map[string]interface{}{
			"chat_id":     callbackChatID(callback),
			"callback_id": callback.ID,
		})
		return fmt.Errorf("callback queue full")
	}
}

func (wp *WorkerPool) messageWorker(workerID int) {
	defer wp.wg.Done()
	for message := range wp.messageQueue {
		wp.handler.queueDepth("messages", len(wp.messageQueue))
		wp.runMessage(message, workerID)
	}
}

func (wp *WorkerPool) callbackWorker(workerID int) {
	defer wp.wg.Done()
	for callback := range wp.callbackQueue {
		wp.handler.queueDepth("callbacks", len(wp.callbackQueue))
		wp.runCallback(callback, workerID)
	}
}

// acquire takes an operation slot, false once the pool is cancelled
func (wp *WorkerPool) acquire() bool {
	select {
	case wp.opSemaphore <- struct{}{}:
		return true
	case <-wp.ctx.Done():
		return false
	}
}

func (wp *WorkerPool) runMessage(message *tgbotapi.Message, workerID int) {
	if !wp.acquire() {
		return
	}
	defer func() { <-wp.opSemaphore }()

	chatID := int64(0)
	if message.Chat != nil {
		chatID = message.Chat.ID
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Message handler panic recovered", map[string]interface{}{
				"worker_id": workerID,
				"chat_id":   chatID,
				"panic":     r,
			})
		}
	}()

	start := time.Now()
	if err := wp.handler.handleMessage(wp.ctx, message); err != nil {
		logger.Error("Error processing message", map[string]interface{}{
			"worker_id": workerID,
			"chat_id":   chatID,
			"error":     err.Error(),
		})
		wp.handler.reportFailure(wp.ctx, chatID, err)
	}
	logger.Debug("Message processed", map[string]interface{}{
		"worker_id": workerID,
		"chat_id":   chatID,
		"duration":  time.Since(start).String(),
	})
}

func (wp *WorkerPool) runCallback(callback *tgbotapi.CallbackQuery, workerID int) {
	if !wp.acquire() {
		return
	}
	defer func() { <-wp.opSemaphore }()

	chatID := callbackChatID(callback)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Callback handler panic recovered", map[string]interface{}{
				"worker_id":   workerID,
				"callback_id": callback.ID,
				"panic":       r,
			})
		}
	}()

	if err := wp.handler.handleCallbackQuery(wp.ctx, callback); err != nil {
		logger.Error("Error processing callback", map[string]interface{}{
			"worker_id":     workerID,
			"chat_id":       chatID,
			"callback_data": callback.Data,
			"error":         err.Error(),
		})
		wp.handler.reportFailure(wp.ctx, chatID, err)
	}
}

// GetStats returns current worker pool statistics
func (wp *WorkerPool) GetStats() map[string]interface{} {
	wp.mu.RLock()
	defer wp.mu.RUnlock()

	return map[string]interface{}{
		"started":             wp.started,
		"message_queue_size":  len(wp.messageQueue),
		"callback_queue_size": len(wp.callbackQueue),
		"active_operations":   len(wp.opSemaphore),
		"max_concurrent_ops":  wp.maxConcurrentOps,
		"message_workers":     wp.messageWorkerCount,
		"callback_workers":    wp.callbackWorkerCount,
	}
}

// reportFailure tells the chat something went wrong, unless we are
// shutting down.
func (b *Bot) reportFailure(ctx context.Context, chatID int64, err error) {
	if chatID == 0 || ctx.Err() != nil {
		return
	}
	b.sendText(ctx, chatID, i18n.T(i18n.Fallback, "error_generic"), nil)
}

func (b *Bot) queueDepth(queue string, depth int) {
	b.metrics.SetQueueDepth(queue, depth)
}
