package status

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultInterval — период агрегации по умолчанию.
const DefaultInterval = 5 * time.Second

// Task — периодическая задача планировщика.
type Task struct {
	Name string
	Spec string
	Run  func(ctx context.Context) error
}

// Every возвращает cron-выражение для фиксированного интервала.
func Every(d time.Duration) string {
	return "@every " + d.String()
}

// Schedule запускает задачи по расписанию и блокируется до отмены ctx.
//
// Перекрывающиеся запуски одной задачи пропускаются.
func Schedule(ctx context.Context, logger *slog.Logger, tasks ...Task) error {
	if logger == nil {
		logger = slog.Default()
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{logger})))

	for _, t := range tasks {
		_, err := c.AddFunc(t.Spec, func() {
			if err := t.Run(ctx); err != nil {
				logger.Error("scheduled task failed", "task", t.Name, "error", err)
			}
		})
		if err != nil {
			return fmt.Errorf("schedule %s (%q): %w", t.Name, t.Spec, err)
		}
		logger.Info("task scheduled", "task", t.Name, "spec", t.Spec)
	}

	c.Start()
	<-ctx.Done()

	<-c.Stop().Done()
	logger.Info("scheduler stopped")
	return nil
}

// TickTask оборачивает Aggregator.Tick в Task.
func (a *Aggregator) TickTask(interval time.Duration) Task {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return Task{
		Name: "aggregate",
		Spec: Every(interval),
		Run: func(ctx context.Context) error {
			_, err := a.Tick(ctx)
			return err
		},
	}
}

// cronLogger адаптирует slog к cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
