// bailout.go - 带码的 bailout 错误
//
// Bailout 记录出错的图和节点；外层用 cockroachdb/errors 包装，
// 保留调用栈和附加说明，调用方通过 As/CodeOf 取回错误码。

package errors

import (
	"fmt"

	crdb "github.com/cockroachdb/errors"
)

// NoNode 错误与具体节点无关
const NoNode = -1

// Bailout 放弃当前编译单元的错误
type Bailout struct {
	Code    string // 错误码 (B0001)
	Graph   string // 图名
	Node    int    // 出错节点，NoNode 表示整个图
	Message string
	cause   error
}

// Error 实现 error 接口
func (b *Bailout) Error() string {
	msg := b.Message
	if msg == "" {
		if info, ok := GetBailoutInfo(b.Code); ok {
			msg = info.Message
		}
	}
	prefix := b.Code
	if b.Graph != "" {
		prefix += " " + b.Graph
	}
	if b.Node != NoNode {
		prefix += fmt.Sprintf(" n%d", b.Node)
	}
	if b.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, msg, b.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, msg)
}

// Unwrap 返回底层原因
func (b *Bailout) Unwrap() error { return b.cause }

// Level 错误级别，未知错误码按错误处理
func (b *Bailout) Level() Level {
	if info, ok := GetBailoutInfo(b.Code); ok {
		return info.Level
	}
	return LevelError
}

// NewBailout 创建 bailout 错误
func NewBailout(code, graph string, node int, format string, args ...interface{}) error {
	return crdb.WithStackDepth(&Bailout{
		Code:    code,
		Graph:   graph,
		Node:    node,
		Message: fmt.Sprintf(format, args...),
	}, 1)
}

// WrapBailout 把底层错误包装为 bailout；err 已经是 bailout 时原样返回
func WrapBailout(err error, code, graph string, node int) error {
	if err == nil {
		return nil
	}
	if _, ok := AsBailout(err); ok {
		return err
	}
	return crdb.WithStackDepth(&Bailout{Code: code, Graph: graph, Node: node, cause: err}, 1)
}

// AsBailout 在错误链中查找 bailout
func AsBailout(err error) (*Bailout, bool) {
	var b *Bailout
	if crdb.As(err, &b) {
		return b, true
	}
	return nil, false
}

// CodeOf 返回错误链中的 bailout 错误码，没有时返回空串
func CodeOf(err error) string {
	if b, ok := AsBailout(err); ok {
		return b.Code
	}
	return ""
}

// IsCode 错误链中是否有指定错误码的 bailout
func IsCode(err error, code string) bool {
	return CodeOf(err) == code
}

// ============================================================================
// 常用包装
// ============================================================================

// New 创建带调用栈的错误
func New(msg string) error { return crdb.NewWithDepth(1, msg) }

// Newf 创建带调用栈的格式化错误
func Newf(format string, args ...interface{}) error {
	return crdb.NewWithDepthf(1, format, args...)
}

// Wrapf 为错误附加上下文
func Wrapf(err error, format string, args ...interface{}) error {
	return crdb.WrapWithDepthf(1, err, format, args...)
}

// WithDetailf 附加面向开发者的说明，不出现在 Error() 中
func WithDetailf(err error, format string, args ...interface{}) error {
	return crdb.WithDetailf(err, format, args...)
}

// Details 返回错误链中的全部附加说明
func Details(err error) []string { return crdb.GetAllDetails(err) }

// Is 同 errors.Is
func Is(err, target error) bool { return crdb.Is(err, target) }

// As 同 errors.As
func As(err error, target interface{}) bool { return crdb.As(err, target) }
