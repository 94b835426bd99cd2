// Package errs 定义 QA 服务的错误分类
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrTooManyConversations 显式会话 ID 超过单批上限
	ErrTooManyConversations = errors.New("conversation_ids exceeds batch limit")
	// ErrNoConversations 查询后没有可评估的会话
	ErrNoConversations = errors.New("no conversations found to evaluate")
	// ErrPersistence 批量持久化失败，本批次没有任何条目落库
	ErrPersistence = errors.New("evaluation batch persistence failed")
	// ErrInvalidEvaluation 评估记录不满足落库约束
	ErrInvalidEvaluation = errors.New("invalid evaluation")
)

// InputError 请求输入错误，不做任何部分处理
type InputError struct {
	Message string
	Err     error
}

func (e *InputError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *InputError) Unwrap() error { return e.Err }

func NewInput(message string, err error) *InputError {
	return &InputError{Message: message, Err: err}
}

// NotFound 资源不存在
type NotFound struct {
	Resource string
	Key      string
	Err      error
}

func (e *NotFound) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	return fmt.Sprintf("%s %s not found", e.Resource, e.Key)
}

func (e *NotFound) Unwrap() error { return e.Err }

func NewNotFound(resource, key string) *NotFound {
	return &NotFound{Resource: resource, Key: key}
}

func IsInput(err error) bool {
	var ie *InputError
	return errors.As(err, &ie)
}

func IsNotFound(err error) bool {
	var nf *NotFound
	return errors.As(err, &nf)
}

// StatusCode 错误到 HTTP 状态码的映射
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case IsInput(err), errors.Is(err, ErrInvalidEvaluation):
		return http.StatusBadRequest
	case IsNotFound(err), errors.Is(err, ErrNoConversations):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
