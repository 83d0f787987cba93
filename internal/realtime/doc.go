// Package realtime доставляет события кампаний подписчикам по WebSocket.
//
// События приходят из RabbitMQ (exchange swarm.events) или напрямую
// через Hub.Broadcast, попадают в EventBuffer и рассылаются клиентам,
// подписанным на кампанию. EventBuffer хранит последние события для
// replay после переподключения. Буфер живёт в памяти процесса и не
// переживает рестарт: replay best-effort.
//
// Протокол (JSON-фреймы клиента):
//
//	{"op":"subscribe","campaignId":"..."}
//	{"op":"unsubscribe","campaignId":"..."}
//	{"op":"replay","campaignId":"...","since":"2026-01-02T15:04:05Z","limit":50}
package realtime
