package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tangzhangming/novaopt/internal/graph"
)

// TestDefaultConfig 默认配置可以通过校验
func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()
	require.NoError(t, c.Validate())
	tier, err := c.Tier()
	require.NoError(t, err)
	assert.Equal(t, graph.TierEnterprise, tier)
}

// TestParsePartial 未出现的字段保留默认值
func TestParsePartial(t *testing.T) {
	c, err := Parse([]byte(`
[compile]
tier = "Economy"
workers = 3
`))
	require.NoError(t, err)
	tier, err := c.Tier()
	require.NoError(t, err)
	assert.Equal(t, graph.TierEconomy, tier)
	assert.Equal(t, 3, c.Compile.Workers)
	assert.Equal(t, 4, c.Compile.MaxRounds)
	assert.Equal(t, "info", c.Log.Level)
}

// TestParseErrors 格式错误和越界取值
func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"syntax", "[compile\n", "failed to parse"},
		{"tier", "[compile]\ntier = \"gold\"\n", "compile.tier"},
		{"rounds", "[compile]\nmax_rounds = 0\n", "compile.max_rounds"},
		{"workers", "[compile]\nworkers = -1\n", "compile.workers"},
		{"cache", "[compile]\nfold_cache_size = -2\n", "compile.fold_cache_size"},
		{"level", "[log]\nlevel = \"loud\"\n", "log.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.input))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

// TestSaveAndLoad 保存后重新加载得到相同的配置
func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)
	c := DefaultConfig()
	c.Compile.Tier = "community"
	c.Compile.MaxIterations = 500
	c.Log.Development = true
	require.NoError(t, c.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# 档位")

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, c, loaded)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorContains(t, err, "failed to read config file")
}
