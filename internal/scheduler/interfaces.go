package scheduler

import (
	"context"
	"time"
)

// JobFunc периодическая задача; ошибка логируется и считается в метриках
type JobFunc func(ctx context.Context) error

// JobScheduler определяет интерфейс планировщика периодических задач
type JobScheduler interface {
	// Register добавляет задачу с интервалом запуска; interval <= 0 означает
	// запуск только по Trigger
	Register(name string, interval time.Duration, fn JobFunc) error

	// Trigger запускает задачу вне расписания. Если запуск уже ожидает,
	// повторный вызов ничего не делает
	Trigger(name string) error

	// Start запускает планировщик
	Start(ctx context.Context) error

	// Stop останавливает планировщик и ждет завершения задач
	Stop() error
}
