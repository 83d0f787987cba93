// Package telemetry настраивает структурированное логирование.
//
// Все бинарники используют единый slog-логгер: JSON в production,
// цветной текст (tint) при разработке. Метрики живут в internal/metrics.
package telemetry
