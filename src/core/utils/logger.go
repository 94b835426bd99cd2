package utils

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// LogConfig 日志配置
type LogConfig struct {
	Level string
	Dir   string
	File  string
}

// Logger 统一日志组件，printf 风格，底层使用 slog
type Logger struct {
	sl     *slog.Logger
	closer io.Closer
}

// NewLogger 创建日志组件，同时输出到标准输出与日志文件
func NewLogger(cfg LogConfig) (*Logger, error) {
	writers := []io.Writer{os.Stdout}
	var closer io.Closer

	if cfg.Dir != "" && cfg.File != "" {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("创建日志目录失败: %w", err)
		}
		f, err := os.OpenFile(filepath.Join(cfg.Dir, cfg.File), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("打开日志文件失败: %w", err)
		}
		writers = append(writers, f)
		closer = f
	}

	return newLogger(io.MultiWriter(writers...), cfg.Level, closer), nil
}

// NewWriterLogger 输出到指定 writer，测试中使用
func NewWriterLogger(w io.Writer, level string) *Logger {
	return newLogger(w, level, nil)
}

// NopLogger 丢弃所有输出
func NopLogger() *Logger {
	return newLogger(io.Discard, "ERROR", nil)
}

func newLogger(w io.Writer, level string, closer io.Closer) *Logger {
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: parseLevel(level)})
	return &Logger{sl: slog.New(handler), closer: closer}
}

func parseLevel(level string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// With 返回携带固定字段的子日志组件
func (l *Logger) With(args ...any) *Logger {
	return &Logger{sl: l.sl.With(args...)}
}

func (l *Logger) log(level slog.Level, format string, args ...any) {
	if l == nil || !l.sl.Enabled(context.Background(), level) {
		return
	}
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	l.sl.Log(context.Background(), level, msg)
}

func (l *Logger) Debug(format string, args ...any) { l.log(slog.LevelDebug, format, args...) }

func (l *Logger) Info(format string, args ...any) { l.log(slog.LevelInfo, format, args...) }

func (l *Logger) Warn(format string, args ...any) { l.log(slog.LevelWarn, format, args...) }

func (l *Logger) Error(format string, args ...any) { l.log(slog.LevelError, format, args...) }

// Close 关闭日志文件
func (l *Logger) Close() error {
	if l == nil || l.closer == nil {
		return nil
	}
	return l.closer.Close()
}
