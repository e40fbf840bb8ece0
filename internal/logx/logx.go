// Package logx 按配置构造 zap 日志器
//
// 中端各组件只接收 *zap.Logger，不关心输出格式；bailout 诊断统一带
// graph、node、code 三个字段。
package logx

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tangzhangming/novaopt/internal/config"
	"github.com/tangzhangming/novaopt/internal/errors"
)

// New 按日志配置构造日志器
func New(c config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(strings.ToLower(c.Level))
	if err != nil {
		return nil, fmt.Errorf("failed to parse log level: %w", err)
	}
	var zc zap.Config
	if c.Development {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
		zc.Sampling = nil
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.DisableStacktrace = true
	log, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return log, nil
}

// Bailout 把 bailout 写入日志，err 不是 bailout 时按普通错误记录
func Bailout(log *zap.Logger, err error) {
	b, ok := errors.AsBailout(err)
	if !ok {
		log.Error("compilation failed", zap.Error(err))
		return
	}
	fields := []zap.Field{
		zap.String("code", b.Code),
		zap.String("graph", b.Graph),
	}
	if b.Node != errors.NoNode {
		fields = append(fields, zap.Int("node", b.Node))
	}
	if details := errors.Details(err); len(details) > 0 {
		fields = append(fields, zap.Strings("details", details))
	}
	fields = append(fields, zap.Error(err))
	msg := "graph not optimized"
	if b.Level() == errors.LevelWarning {
		log.Warn(msg, fields...)
		return
	}
	log.Error(msg, fields...)
}
