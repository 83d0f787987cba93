// Package queue предоставляет брокер jobs с приоритетами и задержкой.
//
// Реализации:
//   - RedisBroker — production, sorted sets + Lua для атомарной выдачи
//   - MemoryBroker — тесты и однопроцессный режим
//
// Гарантии:
//   - меньший Priority выдаётся раньше, при равном — FIFO
//   - delayed job не выдаётся до RunAt
//   - доставка at-least-once: просроченный lease возвращает job в waiting
//   - Enqueue с существующим JobID не создаёт дубликат
package queue
