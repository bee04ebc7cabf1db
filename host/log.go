package host

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/tetratelabs/wazero/api"

	"github.com/annex-dev/annex-host-sdk/abi"
)

// logMessage implements the log_message host function. It receives a packed
// uint64 (ptr+len) pointing to a JSON-encoded abi.LogMessage and re-emits it
// through the loader's slog logger.
func (l *Loader) logMessage(ctx context.Context, mod api.Module, stack []uint64) {
	ptr, length := abi.UnpackPtrLen(stack[0])

	payload, ok := mod.Memory().Read(ptr, length)
	if !ok {
		l.logger.ErrorContext(ctx, "host: failed to read log message from module memory")
		return
	}

	var msg abi.LogMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		l.logger.ErrorContext(ctx, "host: failed to unmarshal log message", "error", err)
		return
	}

	l.logger.LogAttrs(ctx, parseLogLevel(l.logger, msg.Level), msg.Message, convertLogAttrs(msg.Attrs)...)
}

// parseLogLevel converts a string level to slog.Level.
func parseLogLevel(logger *slog.Logger, levelStr string) slog.Level {
	level := slog.LevelInfo
	if err := level.UnmarshalText([]byte(levelStr)); err != nil {
		logger.Warn("host: unknown log level from plugin", "level", levelStr)
	}
	return level
}

// convertLogAttrs converts wire attributes to slog.Attr slice.
func convertLogAttrs(wireAttrs []abi.LogAttr) []slog.Attr {
	attrs := make([]slog.Attr, 0, len(wireAttrs))
	for _, attr := range wireAttrs {
		attrs = append(attrs, convertSingleAttr(attr))
	}
	return attrs
}

// convertSingleAttr converts a single wire attribute to slog.Attr.
func convertSingleAttr(attr abi.LogAttr) slog.Attr {
	switch attr.Type {
	case "string":
		return slog.String(attr.Key, attr.Value)
	case "int64":
		if v, err := strconv.ParseInt(attr.Value, 10, 64); err == nil {
			return slog.Int64(attr.Key, v)
		}
	case "bool":
		if v, err := strconv.ParseBool(attr.Value); err == nil {
			return slog.Bool(attr.Key, v)
		}
	case "float64":
		if v, err := strconv.ParseFloat(attr.Value, 64); err == nil {
			return slog.Float64(attr.Key, v)
		}
	case "error":
		return slog.Any(attr.Key, fmt.Errorf("%s", attr.Value))
	}
	// Fallback for unknown types or parse failures.
	return slog.Any(attr.Key, attr.Value)
}
