package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// ServiceName 写入每条日志的服务名
const ServiceName = "clusterhub-service"

// InitLogger 初始化全局日志记录器，JSON 格式输出到 stdout
func InitLogger(level string) {
	slog.SetDefault(New(os.Stdout, level))
}

// New 创建带服务名字段的 JSON 日志记录器
func New(w io.Writer, level string) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(level),
	})
	return slog.New(handler).With("service", ServiceName)
}

// ParseLevel 解析日志级别，无法识别时返回 Info
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
