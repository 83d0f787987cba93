// Package worker выполняет jobs из очередей брокера.
//
// # Обзор
//
// Для каждой очереди запускается свой Pool с собственной конкурентностью
// (trades, distributions, webhooks). Слот пула берёт job через Lease и
// проводит его через контракт выполнения:
//
//  1. Handler выбирается по типу job (Registry). Неизвестный тип — dead letter.
//  2. Ключ идемпотентности захватывается атомарно (idempotency.Store.Claim).
//     Уже выполненная операция завершает job с прежним результатом,
//     операция, выполняющаяся в другом слоте, завершает job без эффекта.
//  3. Handler.Execute. Успех — результат сохраняется под ключом, job удаляется.
//  4. Ошибка — захват снимается, дальше решает класс ошибки (internal/retry):
//     повторяемая ошибка ставит job заново с задержкой min(1s·2^attemptsMade, 60s)
//     (для 429 — min(5s·2^attemptsMade, 5m)); неповторяемая или исчерпавшая
//     MaxAttempts отправляется в dead letter (DeadLetterSink).
//
// Job, который не удалось опубликовать в DLQ, не теряется: он возвращается
// в брокер с максимальной задержкой и при следующей выдаче снова идёт в DLQ.
//
// # Использование
//
//	pool := worker.NewPool(worker.PoolConfig{
//	    Queue:       domain.QueueTrades,
//	    Concurrency: 3,
//	    Broker:      broker,
//	    Registry:    registry,
//	    Idempotency: store,
//	    DeadLetters: publisher,
//	    Recorder:    jobRepo,
//	    Logger:      logger,
//	})
//
//	mgr := worker.NewManager(logger, pool)
//	mgr.Run(ctx)
//
// Остановка кооперативная: отмена ctx прекращает Lease, выполняющиеся jobs
// доводятся до конца.
package worker
