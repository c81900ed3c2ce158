// Package concurrency — вспомогательная инфраструктура конкурентного исполнения.
// Deduplicator — потокобезопасный кэш «недавно видели», который подавляет повторную
// реакцию бота на одно и то же сообщение: updates.Manager после переподключения
// может повторно отдать уже обработанный апдейт, а ответ «verified»/«done» дважды не нужен.
package concurrency

import (
	"context"
	"sync"
	"time"

	"telegram-relay/internal/infra/logger"

	"go.uber.org/zap"
)

// messageKey — сигнатура события: чат и идентификатор сообщения в нём.
type messageKey struct {
	chatID int64
	msgID  int
}

// Deduplicator хранит сигнатуры недавно обработанных сообщений со сроком годности.
type Deduplicator struct {
	mu     sync.Mutex
	seen   map[messageKey]time.Time // key -> expireAt
	window time.Duration
	now    func() time.Time

	runMu  sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDeduplicator создаёт кэш с окном windowSec секунд. Ноль отключает подавление.
func NewDeduplicator(windowSec int) *Deduplicator {
	return &Deduplicator{
		seen:   make(map[messageKey]time.Time),
		window: time.Duration(windowSec) * time.Second,
		now:    time.Now,
	}
}

// Start поднимает фоновую очистку просроченных ключей. Повторные вызовы игнорируются.
func (d *Deduplicator) Start(ctx context.Context) {
	if ctx == nil {
		return
	}

	d.runMu.Lock()
	defer d.runMu.Unlock()

	if d.cancel != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.wg.Go(func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				d.Cleanup()
			}
		}
	})
}

// Stop завершает фоновую очистку и дожидается её окончания.
func (d *Deduplicator) Stop() {
	d.runMu.Lock()
	cancel := d.cancel
	d.cancel = nil
	d.runMu.Unlock()

	if cancel == nil {
		return
	}

	cancel()
	d.wg.Wait()
}

// Seen сообщает, обрабатывалось ли сообщение (chatID, msgID) в пределах окна.
// Если нет — регистрирует его и возвращает false.
func (d *Deduplicator) Seen(chatID int64, msgID int) bool {
	if d == nil || d.window <= 0 {
		return false
	}
	key := messageKey{chatID: chatID, msgID: msgID}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if exp, ok := d.seen[key]; ok && now.Before(exp) {
		logger.Debug("dedup: message already handled", zap.Int64("chat", chatID), zap.Int("msg", msgID))
		return true
	}
	d.seen[key] = now.Add(d.window)
	return false
}

// Cleanup удаляет записи с истёкшим сроком.
func (d *Deduplicator) Cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for k, exp := range d.seen {
		if !now.Before(exp) {
			delete(d.seen, k)
		}
	}
}

// Len — число живых записей (для тестов и диагностики).
func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
