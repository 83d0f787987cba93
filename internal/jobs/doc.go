// Package jobs содержит обработчики jobs воркера: buy, sell, distribute
// и webhook.deliver.
//
// Обработчик связывает контракт выполнения (internal/worker) с сервисами:
// загружает кампанию, run и кошелёк, вызывает сервис, пишет Execution,
// публикует job-status событие, уведомляет webhooks и ставит follow-up.
//
// Цепочка торговли одного кошелька:
//
//	buy:<chain>:0 → sell:<chain>:0 → buy:<chain>:1 → sell:<chain>:1 → ...
//
// Follow-up ставится, только пока run в статусе RUNNING.
package jobs
