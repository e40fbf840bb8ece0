// Package errors 提供编译单元的错误处理系统
//
// 中端只有两类失败：
//   - 格矛盾：用空 stamp 表示，是一等值而不是错误
//   - bailout：内部不变量被破坏，放弃当前编译单元，回退到未优化代码
//
// 本包定义 bailout 错误码、带码错误和诊断报告器。
package errors

// ============================================================================
// 错误级别
// ============================================================================

// Level 错误级别
type Level int

const (
	LevelError   Level = iota // 错误
	LevelWarning              // 警告
	LevelNote                 // 提示
)

func (l Level) String() string {
	switch l {
	case LevelError:
		return "error"
	case LevelWarning:
		return "warning"
	case LevelNote:
		return "note"
	default:
		return "unknown"
	}
}

// ============================================================================
// bailout 错误码 (B 开头)
// ============================================================================

// bailout 错误码常量
const (
	B0001 = "B0001" // 图无法调度
	B0002 = "B0002" // 规范化没有收敛
	B0003 = "B0003" // 阶段顺序错误
	B0004 = "B0004" // 图描述格式错误
	B0005 = "B0005" // 编译被取消
	B0006 = "B0006" // 改写过程中内部不变量被破坏
)

// ErrorInfo 错误码信息
type ErrorInfo struct {
	Code     string // 错误码
	Level    Level  // 默认级别
	Message  string // 简短描述
	Category string // 错误分类
}

// bailoutErrors bailout 错误码信息表
var bailoutErrors = map[string]ErrorInfo{
	B0001: {B0001, LevelError, "graph is not schedulable", "schedule"},
	B0002: {B0002, LevelError, "canonicalization did not converge", "canon"},
	B0003: {B0003, LevelError, "optimization stage applied out of order", "state"},
	B0004: {B0004, LevelError, "malformed graph description", "input"},
	B0005: {B0005, LevelWarning, "compilation cancelled", "driver"},
	B0006: {B0006, LevelError, "internal invariant violated during rewrite", "canon"},
}

// GetBailoutInfo 获取 bailout 错误信息
func GetBailoutInfo(code string) (ErrorInfo, bool) {
	info, ok := bailoutErrors[code]
	return info, ok
}

// IsBailoutCode 检查是否为 bailout 错误码
func IsBailoutCode(code string) bool {
	_, ok := bailoutErrors[code]
	return ok
}
