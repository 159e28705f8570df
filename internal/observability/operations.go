package observability

import (
	"context"

	"github.com/MarkoPoloResearchLab/menuwallet/pkg/wallet"
	"go.uber.org/zap"
)

const statusOK = "ok"

// ZapOperationLogger writes wallet operation logs through zap.
type ZapOperationLogger struct {
	logger *zap.Logger
}

// NewZapOperationLogger returns a logger; a nil zap logger is replaced by a no-op one.
func NewZapOperationLogger(logger *zap.Logger) *ZapOperationLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapOperationLogger{logger: logger}
}

func (operationLogger *ZapOperationLogger) LogOperation(_ context.Context, entry wallet.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("status", entry.Status),
	}
	if !entry.UserID.IsZero() {
		fields = append(fields, zap.String("user_id", entry.UserID.String()))
	}
	if requestID := entry.RequestID.String(); requestID != "" {
		fields = append(fields, zap.String("request_id", requestID))
	}
	if entry.Amount != 0 {
		fields = append(fields, zap.Int64("amount_cents", entry.Amount.Int64()))
	}
	if entry.Reference != "" {
		fields = append(fields, zap.String("reference", entry.Reference))
	}
	if entry.Outcome != "" {
		fields = append(fields, zap.String("outcome", entry.Outcome))
	}
	switch {
	case entry.Error == nil:
		operationLogger.logger.Info("wallet operation", fields...)
	case wallet.IsBusinessError(entry.Error):
		operationLogger.logger.Warn("wallet operation rejected", append(fields, zap.Error(entry.Error))...)
	default:
		operationLogger.logger.Error("wallet operation failed", append(fields, zap.Error(entry.Error))...)
	}
}

// MetricsRecorder counts wallet operations in prometheus.
type MetricsRecorder struct{}

func (MetricsRecorder) LogOperation(_ context.Context, entry wallet.OperationLog) {
	var amount int64
	if entry.Status == statusOK {
		amount = entry.Amount.Int64()
	}
	RecordOperation(entry.Operation, entry.Status, amount)
	if entry.Operation == wallet.OperationEnsurePlan && entry.Status == statusOK {
		RecordPlanSync(entry.Outcome)
	}
}

type chainLogger []wallet.OperationLogger

// Chain fans one operation log out to every non-nil logger.
func Chain(loggers ...wallet.OperationLogger) wallet.OperationLogger {
	chained := make(chainLogger, 0, len(loggers))
	for _, logger := range loggers {
		if logger != nil {
			chained = append(chained, logger)
		}
	}
	return chained
}

func (loggers chainLogger) LogOperation(ctx context.Context, entry wallet.OperationLog) {
	for _, logger := range loggers {
		logger.LogOperation(ctx, entry)
	}
}
