package telegram

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingHandler stands in for the bot
type recordingHandler struct {
	mu        sync.Mutex
	messages  []int64
	callbacks []string
	failures  []int64
	msgErr    error
	block     chan struct{}
	panicOn   string
	inFlight  int32
	maxFlight int32
}

func (h *recordingHandler) handleMessage(ctx context.Context, m *tgbotapi.Message) error {
	n := atomic.AddInt32(&h.inFlight, 1)
	defer atomic.AddInt32(&h.inFlight, -1)
	for {
		peak := atomic.LoadInt32(&h.maxFlight)
		if n <= peak || atomic.CompareAndSwapInt32(&h.maxFlight, peak, n) {
			break
		}
	}

	if m.Text == h.panicOn && h.panicOn != "" {
		panic("boom")
	}
	if h.block != nil {
		select {
		case <-h.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	h.mu.Lock()
	h.messages = append(h.messages, m.Chat.ID)
	h.mu.Unlock()
	return h.msgErr
}

func (h *recordingHandler) handleCallbackQuery(_ context.Context, cb *tgbotapi.CallbackQuery) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.callbacks = append(h.callbacks, cb.Data)
	return nil
}

func (h *recordingHandler) reportFailure(_ context.Context, chatID int64, _ error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures = append(h.failures, chatID)
}

func (h *recordingHandler) queueDepth(string, int) {}

func (h *recordingHandler) counts() (int, int, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.messages), len(h.callbacks), len(h.failures)
}

func smallPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		MessageWorkers:    4,
		CallbackWorkers:   2,
		MessageQueueSize:  10,
		CallbackQueueSize: 5,
		MaxConcurrentOps:  2,
		DrainTimeout:      2 * time.Second,
	}
}

func TestWorkerPoolCreation(t *testing.T) {
	cfg := DefaultWorkerPoolConfig()
	wp := NewWorkerPool(&recordingHandler{}, cfg)

	assert.Equal(t, cfg.MessageWorkers, wp.messageWorkerCount)
	assert.Equal(t, cfg.CallbackWorkers, wp.callbackWorkerCount)
	assert.Equal(t, cfg.MaxConcurrentOps, wp.maxConcurrentOps)
	assert.Equal(t, cfg.MessageQueueSize, cap(wp.messageQueue))
}

func TestWorkerPoolStartStop(t *testing.T) {
	wp := NewWorkerPool(&recordingHandler{}, smallPoolConfig())

	require.NoError(t, wp.Start())
	assert.True(t, wp.GetStats()["started"].(bool))
	assert.Error(t, wp.Start(), "second start fails")

	require.NoError(t, wp.Stop())
	assert.False(t, wp.GetStats()["started"].(bool))
	assert.Error(t, wp.Stop(), "second stop fails")
}

func TestWorkerPoolSubmitBeforeStart(t *testing.T) {
	wp := NewWorkerPool(&recordingHandler{}, smallPoolConfig())

	assert.Error(t, wp.SubmitMessage(textMessage(1, "hi")))
	assert.Error(t, wp.SubmitCallback(callbackQuery("cb", 1, "help")))
}

func TestWorkerPoolProcessesWork(t *testing.T) {
	h := &recordingHandler{}
	wp := NewWorkerPool(h, smallPoolConfig())
	require.NoError(t, wp.Start())

	for i := int64(1); i <= 5; i++ {
		require.NoError(t, wp.SubmitMessage(textMessage(i, "hi")))
	}
	require.NoError(t, wp.SubmitCallback(callbackQuery("cb", 1, "help")))

	// Stop drains the queues first
	require.NoError(t, wp.Stop())

	msgs, cbs, _ := h.counts()
	assert.Equal(t, 5, msgs)
	assert.Equal(t, 1, cbs)
	assert.LessOrEqual(t, atomic.LoadInt32(&h.maxFlight), int32(2), "MaxConcurrentOps bounds handlers")
}

func TestWorkerPoolReportsErrors(t *testing.T) {
	h := &recordingHandler{msgErr: errors.New("resolver exploded")}
	wp := NewWorkerPool(h, smallPoolConfig())
	require.NoError(t, wp.Start())

	require.NoError(t, wp.SubmitMessage(textMessage(7, "hi")))
	require.NoError(t, wp.Stop())

	_, _, failures := h.counts()
	assert.Equal(t, 1, failures)
}

func TestWorkerPoolRecoversFromPanic(t *testing.T) {
	h := &recordingHandler{panicOn: "explode"}
	cfg := smallPoolConfig()
	cfg.MessageWorkers = 1
	wp := NewWorkerPool(h, cfg)
	require.NoError(t, wp.Start())

	require.NoError(t, wp.SubmitMessage(textMessage(1, "explode")))
	require.NoError(t, wp.SubmitMessage(textMessage(2, "fine")))
	require.NoError(t, wp.Stop())

	msgs, _, _ := h.counts()
	assert.Equal(t, 1, msgs, "the worker survives the panic")
	assert.Equal(t, 0, len(wp.opSemaphore), "the slot is returned")
}

func TestWorkerPoolQueueFull(t *testing.T) {
	h := &recordingHandler{block: make(chan struct{})}
	cfg := smallPoolConfig()
	cfg.MessageWorkers = 1
	cfg.MessageQueueSize = 1
	cfg.MaxConcurrentOps = 1
	wp := NewWorkerPool(h, cfg)
	require.NoError(t, wp.Start())

	require.NoError(t, wp.SubmitMessage(textMessage(1, "a")))
	require.Eventually(t, func() bool { return atomic.LoadInt32(&h.inFlight) == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, wp.SubmitMessage(textMessage(2, "b")))
	assert.Error(t, wp.SubmitMessage(textMessage(3, "c")))

	close(h.block)
	require.NoError(t, wp.Stop())
}

func TestWorkerPoolCancelsAfterDrainTimeout(t *testing.T) {
	h := &recordingHandler{block: make(chan struct{})}
	cfg := smallPoolConfig()
	cfg.DrainTimeout = 50 * time.Millisecond
	wp := NewWorkerPool(h, cfg)
	require.NoError(t, wp.Start())

	require.NoError(t, wp.SubmitMessage(textMessage(1, "slow")))
	require.Eventually(t, func() bool { return atomic.LoadInt32(&h.inFlight) == 1 }, time.Second, 5*time.Millisecond)

	start := time.Now()
	require.NoError(t, wp.Stop())
	assert.Less(t, time.Since(start), 2*time.Second)

	msgs, _, failures := h.counts()
	assert.Equal(t, 0, msgs)
	assert.Equal(t, 1, failures, "the cancelled handler's error is reported")
}
