// Package shutdown останавливает ресурсы сервиса в порядке, обратном их созданию.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Step один шаг остановки
type Step struct {
	Name string
	Fn   func(context.Context) error
}

// Manager ждёт SIGINT/SIGTERM и выполняет шаги с конца.
// Каждый шаг получает собственный таймаут, упавший шаг не прерывает остальные.
type Manager struct {
	stepTimeout time.Duration
	logger      *zap.Logger

	mu    sync.Mutex
	steps []Step

	once sync.Once
	done chan struct{}
	err  error
}

// New создаёт Manager с таймаутом на шаг
func New(stepTimeout time.Duration, logger *zap.Logger) *Manager {
	return &Manager{
		stepTimeout: stepTimeout,
		logger:      logger,
		done:        make(chan struct{}),
	}
}

// Add регистрирует шаг. Регистрировать в порядке создания ресурсов.
func (m *Manager) Add(name string, fn func(context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, Step{Name: name, Fn: fn})
}

// Wait блокируется до сигнала или до вызова Shutdown из другого места (например, упал HTTP сервер)
func (m *Manager) Wait() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
		m.logger.Info("Shutdown signal received, stopping")
		return m.Shutdown()
	case <-m.done:
		return m.err
	}
}

// Shutdown выполняет шаги один раз. Повторные вызовы ждут первый и возвращают его результат.
func (m *Manager) Shutdown() error {
	m.once.Do(func() {
		m.err = m.runSteps()
		close(m.done)
	})
	return m.err
}

func (m *Manager) runSteps() error {
	m.mu.Lock()
	steps := append([]Step(nil), m.steps...)
	m.mu.Unlock()

	var errs []error
	for i := len(steps) - 1; i >= 0; i-- {
		step := steps[i]
		started := time.Now()

		ctx, cancel := context.WithTimeout(context.Background(), m.stepTimeout)
		err := step.Fn(ctx)
		cancel()

		fields := []zap.Field{zap.String("step", step.Name), zap.Duration("took", time.Since(started))}
		if err != nil {
			m.logger.Error("Shutdown step failed", append(fields, zap.Error(err))...)
			errs = append(errs, fmt.Errorf("%s: %w", step.Name, err))
			continue
		}
		m.logger.Info("Shutdown step done", fields...)
	}

	m.logger.Info("Graceful shutdown completed", zap.Int("failed_steps", len(errs)))
	return errors.Join(errs...)
}

// HTTPServer шаг остановки http.Server
func HTTPServer(srv interface {
	Shutdown(context.Context) error
}) func(context.Context) error {
	return srv.Shutdown
}

// Pool шаг закрытия pgxpool.Pool и подобных
func Pool(pool interface{ Close() }) func(context.Context) error {
	return func(context.Context) error {
		pool.Close()
		return nil
	}
}

// Closer шаг закрытия io.Closer (redis.Client, kafka.Writer)
func Closer(c io.Closer) func(context.Context) error {
	return func(context.Context) error {
		return c.Close()
	}
}
