// Package apperr 定义服务对外暴露的错误分类。
// 每个失败都归入一个Kind，路由层据此映射到HTTP状态码或GraphQL扩展字段。
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	Unknown Kind = iota
	NotFound
	Forbidden
	Conflict
	AlreadyVoted
	AuthInvalid
	AuthExpired
	Unavailable
	InvalidInput
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "NOT_FOUND"
	case Forbidden:
		return "FORBIDDEN"
	case Conflict:
		return "CONFLICT"
	case AlreadyVoted:
		return "ALREADY_VOTED"
	case AuthInvalid:
		return "AUTH_INVALID"
	case AuthExpired:
		return "AUTH_EXPIRED"
	case Unavailable:
		return "UNAVAILABLE"
	case InvalidInput:
		return "INVALID_INPUT"
	default:
		return "UNKNOWN"
	}
}

// Error 带分类的错误。Msg会返回给调用方，Err只用于服务端日志。
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Extensions 供graphql-go在错误响应中附带错误分类
func (e *Error) Extensions() map[string]interface{} {
	return map[string]interface{}{"code": e.Kind.String()}
}

// Retryable 只有存储/网络故障允许重试
func (e *Error) Retryable() bool {
	return e.Kind == Unavailable
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf 返回错误链上第一个 *Error 的分类，非 *Error 视为 Unavailable
func KindOf(err error) Kind {
	if err == nil {
		return Unknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unavailable
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// PublicMessage 返回可以安全展示给调用方的消息
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Msg
	}
	return "服务暂不可用"
}
