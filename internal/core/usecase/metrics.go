package usecase

import (
	"log/slog"
	"time"

	"github.com/kirillkom/virtual-fitting/internal/core/ports"
)

type nopMetrics struct{}

func (nopMetrics) RecordCapture(string, string) {}
func (nopMetrics) RecordSubmission(string, string) {}
func (nopMetrics) AddUploadBytes(int) {}
func (nopMetrics) RecordPoll(string) {}
func (nopMetrics) ObserveNormalize(time.Duration, string) {}

func metricsOrNop(m ports.ClientMetrics) ports.ClientMetrics {
	if m == nil {
		return nopMetrics{}
	}
	return m
}

func loggerOrDefault(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
