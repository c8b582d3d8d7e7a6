package errors

import (
	"errors"
	"fmt"
)

// ErrorCode 错误码类型
type ErrorCode string

// 预定义错误码
const (
	// 外部服务错误
	ErrCodeEmbeddingUnavailable ErrorCode = "EMBEDDING_UNAVAILABLE"
	ErrCodeIndexUnavailable     ErrorCode = "INDEX_UNAVAILABLE"
	ErrCodeGenerationFailed     ErrorCode = "GENERATION_FAILED"

	// 业务逻辑错误
	ErrCodeDocumentNotFound ErrorCode = "DOCUMENT_NOT_FOUND"
	ErrCodeInvalidDocument  ErrorCode = "INVALID_DOCUMENT"
	ErrCodeAccessDenied     ErrorCode = "ACCESS_DENIED"

	// 通用错误
	ErrCodeInvalidInput   ErrorCode = "INVALID_INPUT"
	ErrCodeInternalServer ErrorCode = "INTERNAL_SERVER_ERROR"
)

// ErrorType 错误类型
type ErrorType int

const (
	ErrorTypeSystem ErrorType = iota
	ErrorTypeBusiness
	ErrorTypeValidation
	ErrorTypeExternal
)

// AppError 应用错误结构体
type AppError struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Type    ErrorType   `json:"type"`
	Details interface{} `json:"details,omitempty"`
	Cause   error       `json:"-"`
}

// Error 实现error接口
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap 返回底层错误
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is 按错误码匹配，支持errors.Is
func (e *AppError) Is(target error) bool {
	var appErr *AppError
	if errors.As(target, &appErr) {
		return e.Code == appErr.Code
	}
	return false
}

// WithDetails 添加错误详情
func (e *AppError) WithDetails(details interface{}) *AppError {
	e.Details = details
	return e
}

// WithCause 添加错误原因
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// 错误构造函数

// NewExternalError 创建外部服务错误
func NewExternalError(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Type:    ErrorTypeExternal,
	}
}

// NewBusinessError 创建业务错误
func NewBusinessError(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Type:    ErrorTypeBusiness,
	}
}

// NewValidationError 创建验证错误
func NewValidationError(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Type:    ErrorTypeValidation,
	}
}

// NewSystemError 创建系统错误
func NewSystemError(message string) *AppError {
	return &AppError{
		Code:    ErrCodeInternalServer,
		Message: message,
		Type:    ErrorTypeSystem,
	}
}

// 常用错误实例，供errors.Is匹配

// ErrEmbeddingUnavailable 嵌入服务不可用（请求路径内不重试，批量上插可由调用方整批重试）
var ErrEmbeddingUnavailable = NewExternalError(ErrCodeEmbeddingUnavailable, "embedding service unavailable")

// ErrIndexUnavailable 向量索引不可用（查询必须失败关闭，绝不跳过ACL过滤）
var ErrIndexUnavailable = NewExternalError(ErrCodeIndexUnavailable, "vector index unavailable")

// ErrGenerationFailed 生成服务调用失败
var ErrGenerationFailed = NewExternalError(ErrCodeGenerationFailed, "answer generation failed")

// ErrDocumentNotFound 文档不存在
var ErrDocumentNotFound = NewBusinessError(ErrCodeDocumentNotFound, "document not found")

// ErrInvalidDocument 文档内容无效（解析后没有任何有效分块）
var ErrInvalidDocument = NewBusinessError(ErrCodeInvalidDocument, "document produced no valid chunks")

// ErrAccessDenied 访问被拒绝
var ErrAccessDenied = NewBusinessError(ErrCodeAccessDenied, "access denied")

// EmbeddingUnavailable 包装底层错误为嵌入服务不可用
func EmbeddingUnavailable(cause error) *AppError {
	return NewExternalError(ErrCodeEmbeddingUnavailable, "embedding service unavailable").WithCause(cause)
}

// IndexUnavailable 包装底层错误为索引不可用
func IndexUnavailable(cause error) *AppError {
	return NewExternalError(ErrCodeIndexUnavailable, "vector index unavailable").WithCause(cause)
}

// GenerationFailed 包装底层错误为生成失败
func GenerationFailed(cause error) *AppError {
	return NewExternalError(ErrCodeGenerationFailed, "answer generation failed").WithCause(cause)
}

// DocumentNotFound 指定文档ID的文档不存在
func DocumentNotFound(documentID string) *AppError {
	return NewBusinessError(ErrCodeDocumentNotFound, "document not found").WithDetails(documentID)
}
