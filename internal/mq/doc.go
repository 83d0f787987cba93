// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — соединение с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, DLQ и очередей событий
//   - publisher.go  — публикация dead letters и событий кампаний
//   - consumer.go   — потребление сообщений на отдельном канале
//   - dlq.go        — просмотр и выборка dead letters для replay
//
// Типы сообщений:
//   - job.dead        — job исчерпал попытки или упал с неповторяемой ошибкой
//   - campaign.event  — событие кампании для realtime-подписчиков
//
// Exchanges:
//   - swarm.dlq     — dead letters, по очереди на каждую очередь брокера
//   - swarm.events  — события кампаний (topic, campaign.<id>.<type>)
package mq
