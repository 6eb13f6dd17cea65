package queue

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	defaultBackoffBase = 1 * time.Second
	defaultBackoffCap  = 60 * time.Second
	defaultMaxAttempts = 5
)

// BackoffConfig описывает экспоненциальный backoff для ручных ретраев
// после сбоя: delay = min(base * 2^attempt, cap).
type BackoffConfig struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
}

// DefaultBackoffConfig — база 1s, потолок 60s, не больше 5 попыток.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		BaseDelay:   defaultBackoffBase,
		MaxDelay:    defaultBackoffCap,
		MaxAttempts: defaultMaxAttempts,
	}
}

// DelayFor возвращает задержку перед попыткой attempt (нумерация с нуля).
func (c BackoffConfig) DelayFor(attempt int) time.Duration {
	base := c.BaseDelay
	if base <= 0 {
		base = defaultBackoffBase
	}
	capDelay := c.MaxDelay
	if capDelay <= 0 {
		capDelay = defaultBackoffCap
	}

	if attempt < 0 {
		attempt = 0
	}
	// Сдвиг больше 30 гарантированно упирается в потолок; защищаемся от
	// переполнения.
	if attempt > 30 {
		return capDelay
	}
	delay := base << uint(attempt)
	if delay > capDelay || delay <= 0 {
		return capDelay
	}
	return delay
}

// Retry выполняет fn с экспоненциальными паузами, пока попытки не кончатся
// или ctx не отменят. Возвращается последняя ошибка.
func Retry(ctx context.Context, logger *log.Entry, name string, cfg BackoffConfig, fn func(ctx context.Context) error) error {
	if logger == nil {
		logger = log.WithField("component", "backoff")
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := cfg.DelayFor(attempt - 1)
			logger.WithFields(log.Fields{
				"operation": name,
				"attempt":   attempt,
				"delay":     delay,
			}).Warn("retrying after failure")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			if attempt > 0 {
				logger.WithFields(log.Fields{
					"operation": name,
					"attempt":   attempt + 1,
				}).Info("operation succeeded after retry")
			}
			return nil
		}
	}

	logger.WithFields(log.Fields{
		"operation":    name,
		"max_attempts": attempts,
		"error":        lastErr,
	}).Error("operation abandoned after all retry attempts")
	return lastErr
}
