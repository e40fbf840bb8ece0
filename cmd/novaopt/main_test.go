package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

const fivePhi = "../../internal/compile/testdata/fivephi.yaml"

// execute 运行命令行，返回标准输出
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &errOut
	app.ExitErrHandler = func(*cli.Context, error) {}
	err := app.Run(append([]string{"novaopt", "--no-color"}, args...))
	return out.String(), err
}

// TestTiers 列出三个档位及其阶段
func TestTiers(t *testing.T) {
	out, err := execute(t, "tiers")
	require.NoError(t, err)
	assert.Contains(t, out, "economy")
	assert.Contains(t, out, "community")
	assert.Contains(t, out, "stamp-inference -> canonicalization -> loop-phi-reduction -> final-canonicalization -> schedule-verification")
}

// TestStampCommand 格的运算与运算表
func TestStampCommand(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"meet", []string{"meet", "i32 [0, 10]", "i32 [20, 30]"}, "i32 [0, 30]"},
		{"join", []string{"join", "i32 [0, 10]", "i32 [5, 20]"}, "i32 [5, 10]"},
		{"join empty", []string{"join", "i32 [0, 1]", "i32 [5, 6]"}, "i32 empty"},
		{"fold binary", []string{"fold", "add", "i32 [0, 10]", "i32 [1, 1]"}, "i32 [1, 11]"},
		{"fold convert", []string{"fold", "--to", "64", "sext", "i8 [-1, 5]"}, "i64 [-1, 5]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, append([]string{"stamp"}, tt.args...)...)
			require.NoError(t, err)
			assert.Contains(t, out, tt.want)
		})
	}
}

// TestStampCommandErrors 参数错误都返回错误而不是 panic
func TestStampCommandErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"incompatible", []string{"meet", "i32", "f64"}, "not compatible"},
		{"arity", []string{"join", "i32"}, "needs two stamps"},
		{"bad stamp", []string{"meet", "i32 [1", "i32"}, "failed to parse stamp"},
		{"unknown op", []string{"fold", "pow", "i32", "i32"}, "unknown operator"},
		{"fold arity", []string{"fold", "neg", "i32", "i32"}, "takes 1 input stamps"},
		{"missing width", []string{"fold", "zext", "i8"}, "needs --to"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, append([]string{"stamp"}, tt.args...)...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

// TestRun 优化描述文件并写出结果
func TestRun(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, "run", "--tier", "community", "--log-level", "error", "--out", dir, fivePhi)
	require.NoError(t, err)
	assert.Contains(t, out, "fivephi")
	assert.Contains(t, out, "all units optimized")

	data, err := os.ReadFile(filepath.Join(dir, "fivephi.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "name: fivephi")
}

// TestRunErrors 缺少文件或配置错误时命令失败
func TestRunErrors(t *testing.T) {
	_, err := execute(t, "run")
	assert.Error(t, err)

	_, err = execute(t, "run", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = execute(t, "run", "--tier", "gold", fivePhi)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "compile.tier")
}

// TestVersion 输出版本号
func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "novaopt "+Version)
	assert.Contains(t, out, "features:")
}
