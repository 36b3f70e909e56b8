package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode 工作流错误码（机器可读，每类操作失败对应一个错误码）
type ErrorCode string

const (
	CodeCreateError      ErrorCode = "CREATE_ERROR"
	CodeReadError        ErrorCode = "READ_ERROR"
	CodeUpdateError      ErrorCode = "UPDATE_ERROR"
	CodeDeleteError      ErrorCode = "DELETE_ERROR"
	CodeEscalateError    ErrorCode = "ESCALATE_ERROR"
	CodeAssignRoleError  ErrorCode = "ASSIGN_ROLE_ERROR"
	CodeRespondRoleError ErrorCode = "RESPOND_ROLE_ERROR"
	CodeLinkError        ErrorCode = "LINK_ERROR"
	CodeQueryError       ErrorCode = "QUERY_ERROR"
	CodePermissionDenied ErrorCode = "PERMISSION_DENIED"
	CodeVersionConflict  ErrorCode = "VERSION_CONFLICT"
)

// WorkflowError 工作流错误
// 服务层对外不抛异常，所有失败以该类型返回，由调用方决定重试/展示
type WorkflowError struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

func (e *WorkflowError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewWorkflowError 创建工作流错误
func NewWorkflowError(code ErrorCode, message string) *WorkflowError {
	return &WorkflowError{
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// WorkflowErrorf 创建带格式化消息的工作流错误
func WorkflowErrorf(code ErrorCode, format string, args ...any) *WorkflowError {
	return NewWorkflowError(code, fmt.Sprintf(format, args...))
}

// AsWorkflowError 提取错误链中的 WorkflowError（没有则返回 nil）
func AsWorkflowError(err error) *WorkflowError {
	var we *WorkflowError
	if errors.As(err, &we) {
		return we
	}
	return nil
}
