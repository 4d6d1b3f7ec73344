package server

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"gitlab.ozon.dev/pupkingeorgij/wmsexport/internal/metrics"
)

const publishTimeout = 5 * time.Second

// AuditManager batches audit entries and publishes them from a fixed pool of
// workers. Entries arriving after shutdown go straight to the log.
type AuditManager struct {
	workerCount int
	batchSize   int
	timeout     time.Duration
	sink        AuditSink
	logger      *zap.Logger

	inputChan  chan AuditLogEntry
	batchChan  chan []AuditLogEntry
	stopping   chan struct{}
	shutdownCh chan struct{}
	startOnce  sync.Once
	once       sync.Once
	started    atomic.Bool

	// closeMu orders sends into inputChan before the aggregator's final
	// drain: LogEntry sends under RLock, Shutdown closes shutdownCh under Lock.
	closeMu sync.RWMutex
	closed  bool

	wg           sync.WaitGroup
	pendingMu    sync.Mutex
	pendingCount int
}

func NewAuditManager(workerCount, batchSize int, timeout time.Duration, sink AuditSink, logger *zap.Logger) *AuditManager {
	if workerCount <= 0 {
		workerCount = 1
	}
	if batchSize <= 0 {
		batchSize = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditManager{
		workerCount: workerCount,
		batchSize:   batchSize,
		timeout:     timeout,
		sink:        sink,
		logger:      logger,
		inputChan:   make(chan AuditLogEntry, workerCount*batchSize*2),
		batchChan:   make(chan []AuditLogEntry, workerCount*2),
		stopping:    make(chan struct{}),
		shutdownCh:  make(chan struct{}),
	}
}

func (m *AuditManager) Start(ctx context.Context) {
	m.startOnce.Do(func() {
		m.started.Store(true)
		m.logger.Info("starting audit manager", zap.Int("workers", m.workerCount))
		m.wg.Add(1)
		go m.runAggregator()

		for i := 0; i < m.workerCount; i++ {
			m.wg.Add(1)
			go m.runWorker(i)
		}

		go m.monitorShutdown(ctx)
	})
}

func (m *AuditManager) Shutdown(ctx context.Context) {
	m.once.Do(func() {
		m.logger.Info("initiating audit manager shutdown")
		// Release senders blocked on a full buffer before taking the lock.
		close(m.stopping)
		m.closeMu.Lock()
		m.closed = true
		close(m.shutdownCh)
		m.closeMu.Unlock()

		if !m.started.Load() {
			m.drainUnstarted()
			return
		}

		done := make(chan struct{})
		go func() {
			m.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			m.logger.Info("audit manager shutdown completed")
		case <-ctx.Done():
			m.logger.Warn("audit manager shutdown interrupted", zap.Int("pending", m.Pending()))
		}
	})
}

func (m *AuditManager) monitorShutdown(ctx context.Context) {
	select {
	case <-ctx.Done():
		m.Shutdown(context.Background())
	case <-m.shutdownCh:
	}
}

// LogEntry queues the entry for publishing. Every entry is either handed to
// the sink or logged directly, never both and never neither.
func (m *AuditManager) LogEntry(ctx context.Context, entry AuditLogEntry) {
	m.closeMu.RLock()
	defer m.closeMu.RUnlock()

	if m.closed {
		m.emergencyLog(entry)
		return
	}

	m.updatePendingCount(1)

	select {
	case m.inputChan <- entry:
	case <-m.stopping:
		m.updatePendingCount(-1)
		m.emergencyLog(entry)
	case <-ctx.Done():
		m.updatePendingCount(-1)
		m.emergencyLog(entry)
	}
}

// drainUnstarted logs whatever was queued on a manager that never ran.
func (m *AuditManager) drainUnstarted() {
	for {
		select {
		case entry := <-m.inputChan:
			m.updatePendingCount(-1)
			m.emergencyLog(entry)
		default:
			return
		}
	}
}

// Pending is the number of accepted entries not yet handed to the sink.
func (m *AuditManager) Pending() int {
	m.pendingMu.Lock()
	defer m.pendingMu.Unlock()
	return m.pendingCount
}

func (m *AuditManager) runAggregator() {
	defer m.wg.Done()

	var (
		batch    []AuditLogEntry
		timer    *time.Timer
		timeoutC <-chan time.Time
	)

	stopTimer := func() {
		if timer != nil {
			timer.Stop()
		}
		timeoutC = nil
	}

	defer func() {
		stopTimer()
	drain:
		for {
			select {
			case entry := <-m.inputChan:
				batch = append(batch, entry)
			default:
				break drain
			}
		}
		if len(batch) > 0 {
			m.dispatchBatch(batch)
		}
		close(m.batchChan)
	}()

	for {
		select {
		case entry := <-m.inputChan:
			batch = append(batch, entry)
			if len(batch) >= m.batchSize {
				stopTimer()
				m.dispatchBatch(batch)
				batch = nil
			} else if len(batch) == 1 {
				timer = time.NewTimer(m.timeout)
				timeoutC = timer.C
			}

		case <-timeoutC:
			timeoutC = nil
			m.dispatchBatch(batch)
			batch = nil

		case <-m.shutdownCh:
			return
		}
	}
}

func (m *AuditManager) dispatchBatch(batch []AuditLogEntry) {
	batchCopy := make([]AuditLogEntry, len(batch))
	copy(batchCopy, batch)

	select {
	case m.batchChan <- batchCopy:
	default:
		m.publish(-1, batchCopy)
	}
}

func (m *AuditManager) runWorker(id int) {
	defer m.wg.Done()

	for batch := range m.batchChan {
		m.publish(id, batch)
	}
	m.logger.Debug("audit worker exiting", zap.Int("worker", id))
}

func (m *AuditManager) publish(workerID int, batch []AuditLogEntry) {
	defer m.updatePendingCount(-len(batch))

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := m.sink.Publish(ctx, batch); err != nil {
		metrics.AuditEntriesDroppedTotal.Add(float64(len(batch)))
		m.logger.Warn("publishing audit batch",
			zap.Int("worker", workerID),
			zap.Int("entries", len(batch)),
			zap.Error(err))
	}
}

func (m *AuditManager) emergencyLog(entry AuditLogEntry) {
	m.logger.Warn("audit entry logged directly", entry.fields()...)
}

func (m *AuditManager) updatePendingCount(delta int) {
	m.pendingMu.Lock()
	defer m.pendingMu.Unlock()
	m.pendingCount += delta
}
