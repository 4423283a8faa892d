// Package logging provides structured logging for coachd.
//
// It wraps Zap with:
//   - A Trace level below Debug
//   - Dual output (stdout and the OpenTelemetry log bridge)
//   - Context field injection (trace_id, user.id, request.id)
//   - Encoder-level secret redaction
//   - Level-aware sampling (errors are never sampled)
//
// Services take a plain *zap.Logger; build one with New and hand out
// Underlying(). Code that has a request context wraps its *zap.Logger
// with Wrap to log with the context's correlation fields:
//
//	cfg, err := logging.FromSettings("info", "json")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	logger, err := logging.New(cfg, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	log := logging.Wrap(logger.Underlying().Named("insights"))
//	ctx = logging.WithUserID(ctx, "u-42")
//	log.Info(ctx, "insights generated", zap.Int("count", 3))
//
// Tests use TestLogger to capture and assert on entries.
package logging
