// Package coordinator переводит команды жизненного цикла кампании
// (start, pause, resume, stop) в содержимое очередей и статус run.
//
// Pause и stop удаляют из брокера ещё не выданные jobs кампании и только
// затем меняют статус нефинального run. Resume ставит по одному buy job
// на каждый активный кошелёк. Job, уже выполняющийся в момент pause,
// доходит до конца, но follow-up для остановленного run не ставит.
package coordinator
