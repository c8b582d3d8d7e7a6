package audit

import (
	"go.uber.org/zap"

	"github.com/aihub/finance-rag/internal/logger"
)

// Auditor 审计日志记录器，面向合规与监控
type Auditor struct {
	log *zap.Logger
}

// NewAuditor 创建审计记录器
func NewAuditor() *Auditor {
	return &Auditor{log: logger.Named("audit")}
}

// LogQuery 记录用户问答事件
func (a *Auditor) LogQuery(principalID, query string, responseLength, resultCount int) {
	a.log.Info("query",
		zap.String("event_type", "query"),
		zap.String("user_id", principalID),
		zap.String("query", query),
		zap.Int("response_length", responseLength),
		zap.Int("result_count", resultCount),
	)
}

// LogAccess 记录资源访问事件
func (a *Auditor) LogAccess(principalID, resourceID, action string, success bool, reason string) {
	fields := []zap.Field{
		zap.String("event_type", "access"),
		zap.String("user_id", principalID),
		zap.String("resource_id", resourceID),
		zap.String("action", action),
		zap.Bool("success", success),
	}
	if reason != "" {
		fields = append(fields, zap.String("reason", reason))
	}
	a.log.Info("access", fields...)
}

// LogError 记录应用错误事件
func (a *Auditor) LogError(errorType, message string, err error) {
	fields := []zap.Field{
		zap.String("event_type", "error"),
		zap.String("error_type", errorType),
		zap.String("error_message", message),
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	a.log.Error("error", fields...)
}

// LogSystemEvent 记录系统级事件
func (a *Auditor) LogSystemEvent(eventType, description string) {
	a.log.Info("system",
		zap.String("event_type", eventType),
		zap.String("description", description),
	)
}
