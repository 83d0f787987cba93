package worker

import (
	"context"

	"github.com/shaiso/Swarm/internal/domain"
)

// JobRecorder сохраняет состояние jobs в персистентное хранилище.
// Реализуется repo.JobRepo.
type JobRecorder interface {
	Upsert(ctx context.Context, rec *domain.JobRecord) error
	Progress(ctx context.Context, jobID string, percent int, message string) error
}

// DeadLetterSink принимает jobs, которые больше не будут повторяться.
// Реализуется mq.Publisher.
type DeadLetterSink interface {
	DeadLetter(ctx context.Context, job *domain.Job, reason string, cause error) error
}

type nopRecorder struct{}

func (nopRecorder) Upsert(context.Context, *domain.JobRecord) error       { return nil }
func (nopRecorder) Progress(context.Context, string, int, string) error { return nil }
