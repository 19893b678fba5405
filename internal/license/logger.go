package license

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"

	"odoomaster/internal/infrastructure"
)

// maskKey keeps the first and last four characters of a license key
func maskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}

// hashForLog identifies a key in logs without revealing it
func hashForLog(key string) string {
	if key == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:8])
}

// partialKey is the user-visible key prefix shown by Info
func partialKey(key string) string {
	if key == "" {
		return ""
	}
	runes := []rune(key)
	if len(runes) > 20 {
		runes = runes[:20]
	}
	return string(runes) + "..."
}

func componentLogger(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(slog.String("component", "license"))
}

// logAction writes one license event and mirrors it as a span event.
// The trace id is added by the infrastructure handler.
func logAction(ctx context.Context, logger *slog.Logger, level slog.Level, action, msg string, attrs ...slog.Attr) {
	infrastructure.AddSpanEvent(ctx, "license."+action, map[string]string{"message": msg})

	if !logger.Enabled(ctx, level) {
		return
	}
	all := make([]slog.Attr, 0, len(attrs)+1)
	all = append(all, slog.String("action", action))
	all = append(all, attrs...)
	logger.LogAttrs(ctx, level, msg, all...)
}

func resultAttrs(r Result) []slog.Attr {
	attrs := []slog.Attr{
		slog.String("code", string(r.Code)),
		slog.String("format", string(r.Format)),
	}
	if r.LicenseID != "" {
		attrs = append(attrs, slog.String("license_id", r.LicenseID))
	}
	if r.Detail != "" {
		attrs = append(attrs, slog.String("detail", r.Detail))
	}
	if r.OK() {
		attrs = append(attrs, slog.Int("days_remaining", r.DaysRemaining))
	}
	return attrs
}
