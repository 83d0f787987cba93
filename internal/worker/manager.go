package worker

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Manager запускает несколько пулов и останавливает их вместе.
type Manager struct {
	pools  []*Pool
	logger *slog.Logger
}

// NewManager создаёт Manager.
func NewManager(logger *slog.Logger, pools ...*Pool) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{pools: pools, logger: logger}
}

// Queues возвращает имена очередей всех пулов.
func (m *Manager) Queues() []string {
	queues := make([]string, 0, len(m.pools))
	for _, p := range m.pools {
		queues = append(queues, p.Queue())
	}
	return queues
}

// Run блокируется до отмены ctx и ждёт остановки всех пулов.
func (m *Manager) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, p := range m.pools {
		g.Go(func() error {
			return p.Run(ctx)
		})
	}

	m.logger.Info("worker pools started", "queues", m.Queues())
	err := g.Wait()
	m.logger.Info("worker pools stopped")
	return err
}
