package errors

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// ============================================================================
// 诊断报告器
// ============================================================================

// Reporter 收集并输出 bailout 诊断，可被多个编译单元并发使用
type Reporter struct {
	mu       sync.Mutex
	out      io.Writer
	errors   []*Bailout
	warnings []*Bailout
	others   []error
}

// NewReporter 创建报告器，out 为 nil 时只收集不输出
func NewReporter(out io.Writer) *Reporter {
	return &Reporter{out: out}
}

// Report 记录一个错误；非 bailout 错误单独保存
func (r *Reporter) Report(err error) {
	if err == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := AsBailout(err)
	if !ok {
		r.others = append(r.others, err)
		if r.out != nil {
			fmt.Fprintf(r.out, "%s %v\n", color.RedString("error:"), err)
		}
		return
	}
	if b.Level() == LevelError {
		r.errors = append(r.errors, b)
	} else {
		r.warnings = append(r.warnings, b)
	}
	if r.out != nil {
		fmt.Fprint(r.out, FormatBailout(b, Details(err)))
	}
}

// HasErrors 是否有错误级别的诊断
func (r *Reporter) HasErrors() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errors) > 0 || len(r.others) > 0
}

// ErrorCount 错误数量
func (r *Reporter) ErrorCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errors) + len(r.others)
}

// WarningCount 警告数量
func (r *Reporter) WarningCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.warnings)
}

// Bailouts 返回收集到的全部 bailout，错误在前
func (r *Reporter) Bailouts() []*Bailout {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Bailout, 0, len(r.errors)+len(r.warnings))
	out = append(out, r.errors...)
	return append(out, r.warnings...)
}

// Summary 一行汇总
func (r *Reporter) Summary() string {
	errs, warns := r.ErrorCount(), r.WarningCount()
	if errs == 0 && warns == 0 {
		return color.GreenString("all units optimized")
	}
	var parts []string
	if errs > 0 {
		parts = append(parts, color.RedString("%d not optimized", errs))
	}
	if warns > 0 {
		parts = append(parts, color.YellowString("%d cancelled", warns))
	}
	return strings.Join(parts, ", ")
}

// ============================================================================
// 格式化
// ============================================================================

// FormatBailout 格式化单个 bailout：
//
//	error[B0001]: graph is not schedulable
//	  --> loop n12
//	  = node n12 has no path to a root
func FormatBailout(b *Bailout, details []string) string {
	var sb strings.Builder

	head := color.New(color.FgRed, color.Bold)
	if b.Level() == LevelWarning {
		head = color.New(color.FgYellow, color.Bold)
	}
	title := b.Code
	if info, ok := GetBailoutInfo(b.Code); ok {
		title = info.Message
	}
	sb.WriteString(head.Sprintf("%s[%s]", b.Level(), b.Code))
	sb.WriteString(": " + title + "\n")

	where := b.Graph
	if b.Node != NoNode {
		where += fmt.Sprintf(" n%d", b.Node)
	}
	if where != "" {
		sb.WriteString(color.CyanString("  --> ") + where + "\n")
	}
	if b.Message != "" {
		sb.WriteString(color.CyanString("  = ") + b.Message + "\n")
	}
	if b.cause != nil {
		sb.WriteString(color.CyanString("  = ") + "caused by: " + b.cause.Error() + "\n")
	}
	for _, d := range details {
		sb.WriteString(color.CyanString("  = ") + "note: " + d + "\n")
	}
	return sb.String()
}
