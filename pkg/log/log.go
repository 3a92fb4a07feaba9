// Package log 是服务与 ragctl 共用的 zap 日志门面。
// 调用方只接触包级函数；日志行以 [Component] 开头，请求相关的行带 request_id。
package log

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogFileName 是 outputPath 目录下的日志文件名。
const LogFileName = "faq-rag.log"

// Init 之前为 no-op。
var sugar = zap.NewNop().Sugar()

// Init 按配置替换包级 logger。配置无法构建时退回到写 stdout 的 JSON logger，并把原因记一条 warn。
func Init(level, format, outputPath string) {
	cfg, err := newConfig(level, format, outputPath)
	var logger *zap.Logger
	if err == nil {
		logger, err = cfg.Build()
	}
	if err != nil {
		fallback, _ := newConfig("info", "json", "")
		logger = zap.Must(fallback.Build())
		logger.Sugar().Warnf("[Log] 日志配置无效，使用默认配置: %v", err)
	}
	sugar = logger.Sugar()
}

// newConfig 把 LOG_LEVEL / log.format / log.output_path 翻译成 zap.Config。
// 未知级别按 info 处理；format 为 console 时输出带颜色的文本，否则为 JSON。
func newConfig(level, format, outputPath string) (zap.Config, error) {
	lvl := zap.NewAtomicLevelAt(zap.InfoLevel)
	if err := lvl.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(level)))); err != nil {
		lvl.SetLevel(zap.InfoLevel)
	}

	var cfg zap.Config
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Encoding = "json"
		cfg.EncoderConfig.TimeKey = "time"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	cfg.Level = lvl
	cfg.OutputPaths = []string{"stdout"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	if outputPath != "" {
		if err := os.MkdirAll(outputPath, 0o755); err != nil {
			return cfg, fmt.Errorf("failed to create log dir: %w", err)
		}
		cfg.OutputPaths = append(cfg.OutputPaths, filepath.Join(outputPath, LogFileName))
	}
	return cfg, nil
}

func Debugf(template string, args ...interface{}) { sugar.Debugf(template, args...) }

func Info(msg string) { sugar.Info(msg) }
func Infof(template string, args ...interface{}) { sugar.Infof(template, args...) }
func Infow(msg string, keysAndValues ...interface{}) { sugar.Infow(msg, keysAndValues...) }

func Warnf(template string, args ...interface{}) { sugar.Warnf(template, args...) }
func Warnw(msg string, keysAndValues ...interface{}) { sugar.Warnw(msg, keysAndValues...) }

// Error 把 err 作为 error 字段附在消息后。
func Error(msg string, err error) { sugar.Errorw(msg, "error", err) }
func Errorf(template string, args ...interface{}) { sugar.Errorf(template, args...) }
func Errorw(msg string, keysAndValues ...interface{}) { sugar.Errorw(msg, keysAndValues...) }

// Fatal 记录后以状态码 1 退出。
func Fatal(msg string, err error) { sugar.Fatalw(msg, "error", err) }
func Fatalf(template string, args ...interface{}) { sugar.Fatalf(template, args...) }

// Sync 刷新缓冲，写 stdout 时的 sync 错误忽略。
func Sync() { _ = sugar.Sync() }
