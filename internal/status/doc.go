// Package status периодически пересчитывает статистику активных runs
// и рассылает её подписчикам кампании.
//
// Структура:
//   - aggregator.go — Aggregator.Tick и чистая функция Summarize
//   - schedule.go   — запуск тиков по cron-расписанию (@every <interval>)
package status
