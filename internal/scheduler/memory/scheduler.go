package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"telegram_loyalty_bot/internal/scheduler"
	"telegram_loyalty_bot/pkg/logger"
	"telegram_loyalty_bot/pkg/metrics"
)

type job struct {
	name     string
	interval time.Duration
	fn       scheduler.JobFunc
	trigger  chan struct{}
	runs     int
	lastErr  error
}

// MemoryScheduler выполняет периодические задачи в горутинах процесса
type MemoryScheduler struct {
	jobs     map[string]*job
	mu       sync.RWMutex
	logger   *logger.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	started  bool
	stopped  bool
	stopOnce sync.Once
}

// NewMemoryScheduler создает новый планировщик в памяти
func NewMemoryScheduler(log *logger.Logger) *MemoryScheduler {
	if log == nil {
		log = logger.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &MemoryScheduler{
		jobs:   make(map[string]*job),
		logger: log.Named("scheduler"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Register добавляет задачу. После Start регистрация запрещена.
func (s *MemoryScheduler) Register(name string, interval time.Duration, fn scheduler.JobFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return fmt.Errorf("scheduler is stopped")
	}
	if s.started {
		return fmt.Errorf("scheduler is already started")
	}
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %q already registered", name)
	}
	if fn == nil {
		return fmt.Errorf("job %q has no function", name)
	}

	s.jobs[name] = &job{
		name:     name,
		interval: interval,
		fn:       fn,
		trigger:  make(chan struct{}, 1),
	}
	return nil
}

// Trigger запускает задачу вне расписания
func (s *MemoryScheduler) Trigger(name string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.stopped {
		return fmt.Errorf("scheduler is stopped")
	}
	j, exists := s.jobs[name]
	if !exists {
		return fmt.Errorf("job %q not found", name)
	}

	select {
	case j.trigger <- struct{}{}:
	default:
	}
	return nil
}

// Start запускает по горутине на задачу; задача не пересекается сама с собой
func (s *MemoryScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return fmt.Errorf("scheduler is stopped")
	}
	if s.started {
		return nil
	}
	s.started = true

	for _, j := range s.jobs {
		s.wg.Add(1)
		go s.loop(ctx, j)
	}

	s.logger.Info("Scheduler started", logger.Int("jobs", len(s.jobs)))
	return nil
}

func (s *MemoryScheduler) loop(ctx context.Context, j *job) {
	defer s.wg.Done()

	var tick <-chan time.Time
	if j.interval > 0 {
		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.ctx.Done():
			return
		case <-tick:
			s.run(ctx, j)
		case <-j.trigger:
			s.run(ctx, j)
		}
	}
}

// run выполняет задачу, отменяя ее при остановке планировщика
func (s *MemoryScheduler) run(ctx context.Context, j *job) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	start := time.Now()
	err := s.safeCall(runCtx, j)

	s.mu.Lock()
	j.runs++
	j.lastErr = err
	s.mu.Unlock()

	if err != nil {
		metrics.RecordJobRun(j.name, "error")
		s.logger.Error("Job failed",
			logger.String("job", j.name),
			logger.Duration("duration", time.Since(start)),
			logger.Error(err),
		)
		return
	}

	metrics.RecordJobRun(j.name, "success")
	s.logger.Debug("Job finished",
		logger.String("job", j.name),
		logger.Duration("duration", time.Since(start)),
	)
}

func (s *MemoryScheduler) safeCall(ctx context.Context, j *job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return j.fn(ctx)
}

// Stop останавливает планировщик
func (s *MemoryScheduler) Stop() error {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()

		s.cancel()
		s.wg.Wait()
	})

	return nil
}

// LastRun возвращает число запусков задачи и ошибку последнего запуска
func (s *MemoryScheduler) LastRun(name string) (runs int, lastErr error, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, exists := s.jobs[name]
	if !exists {
		return 0, nil, false
	}
	return j.runs, j.lastErr, true
}

// GetActiveJobsCount возвращает количество зарегистрированных задач
func (s *MemoryScheduler) GetActiveJobsCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.jobs)
}

var _ scheduler.JobScheduler = (*MemoryScheduler)(nil)
