// Package logging provides structured logging for ragd.
//
// Logger wraps Zap and adds:
//   - a Trace level (-2, below Debug)
//   - stdout output plus an optional OpenTelemetry log bridge
//   - correlation fields pulled from the context (trace, request, source, workflow)
//   - key and pattern based redaction at the encoder
//   - sampling below Error
//
// Usage:
//
//	logger, err := logging.NewLogger(logging.NewDefaultConfig(), nil)
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithSourceID(ctx, "handbook.pdf")
//	logger.Info(ctx, "chunks upserted", zap.Int("count", n))
//
// Temporal workers receive the same logger through NewTemporalLogger.
//
// Tests use NewTestLogger, which records every entry and offers
// AssertLogged, AssertField and AssertNoSecrets.
package logging
