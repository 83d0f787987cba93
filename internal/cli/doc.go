// Package cli реализует команды swarm: тонкий HTTP-клиент к Swarm API
// и cobra-команды поверх него.
//
// Пакет не импортирует внутренние пакеты сервиса: типы ответов
// повторяют JSON API, поэтому CLI можно собирать и обновлять отдельно.
//
// Группы команд:
//
//	campaign  start | pause | resume | stop | runs | events
//	run       show
//	job       show
//	wallet    distribute
//	dlq       list | replay
//
// Фабрики групп (NewCampaignCmd и т.д.) получают clientFn и outputFn.
// Client и Output создаются лениво, уже после разбора --api-url и --json.
//
// Данные печатаются в stdout (таблица, детали или JSON), сообщения
// о результате в stderr, так что вывод можно передавать дальше:
//
//	swarm dlq list trades --json | jq '.[].job_id'
package cli
