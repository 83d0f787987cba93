// Package api содержит HTTP API управления кампаниями.
//
// Структура:
//   - handler.go          — Handler с DI (интерфейсы сервисов и репозиториев)
//   - routes.go           — регистрация маршрутов
//   - middleware.go       — middleware (logging, recovery)
//   - response.go         — унифицированные JSON-ответы и обработка ошибок
//   - dto.go              — Data Transfer Objects (request/response)
//   - campaign_handler.go — команды start/pause/resume/stop и история runs
//   - run_handler.go      — runs, jobs и события
//   - dlq_handler.go      — просмотр и replay dead letters
//   - wallet_handler.go   — постановка распределения SOL
//
// CRUD кампаний и кошельков вне этого API; он управляет только исполнением.
package api
