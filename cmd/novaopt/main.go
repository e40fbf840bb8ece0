package main

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
	"go.uber.org/automaxprocs/maxprocs"
	"golang.org/x/sys/cpu"

	"github.com/tangzhangming/novaopt/internal/graph"
)

const (
	Version = "0.1.0"
)

var (
	configFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "TOML configuration file",
	}
	tierFlag = &cli.StringFlag{
		Name:  "tier",
		Usage: "optimization tier: economy, community or enterprise (overrides the config file)",
	}
	logLevelFlag = &cli.StringFlag{
		Name:  "log-level",
		Usage: "log level: debug, info, warn or error (overrides the config file)",
	}
	noColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "disable colored output",
	}
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", color.RedString("error:"), err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "novaopt",
		Usage:   "stamp-driven canonicalization for sea-of-nodes graphs",
		Version: Version,
		Flags:   []cli.Flag{noColorFlag},
		Before: func(c *cli.Context) error {
			if c.Bool(noColorFlag.Name) {
				color.NoColor = true
			}
			// 容器内按 CPU 配额设置 GOMAXPROCS，决定并行编译的协程数
			_, err := maxprocs.Set()
			return err
		},
		Commands: []*cli.Command{
			runCommand,
			stampCommand,
			tiersCommand,
			versionCommand,
		},
	}
}

// ============================================================================
// version / tiers
// ============================================================================

var versionCommand = &cli.Command{
	Name:  "version",
	Usage: "Print version and target features",
	Action: func(c *cli.Context) error {
		w := c.App.Writer
		fmt.Fprintf(w, "novaopt %s\n", Version)
		fmt.Fprintf(w, "  go:       %s\n", runtime.Version())
		fmt.Fprintf(w, "  target:   %s/%s\n", runtime.GOOS, runtime.GOARCH)
		fmt.Fprintf(w, "  features: %s\n", strings.Join(targetFeatures(), " "))
		return nil
	},
}

// targetFeatures 与中端相关的目标特性：compress/expand 可以用 BMI2 的
// PEXT/PDEP 实现，位计数用 POPCNT
func targetFeatures() []string {
	var out []string
	add := func(name string, ok bool) {
		if ok {
			out = append(out, name)
		}
	}
	switch runtime.GOARCH {
	case "amd64", "386":
		add("bmi1", cpu.X86.HasBMI1)
		add("bmi2", cpu.X86.HasBMI2)
		add("popcnt", cpu.X86.HasPOPCNT)
		add("avx2", cpu.X86.HasAVX2)
	case "arm64":
		add("asimd", cpu.ARM64.HasASIMD)
		add("atomics", cpu.ARM64.HasATOMICS)
		add("sve", cpu.ARM64.HasSVE)
	}
	if len(out) == 0 {
		out = append(out, "none")
	}
	return out
}

var tiersCommand = &cli.Command{
	Name:  "tiers",
	Usage: "List optimization tiers and their mandatory stages",
	Action: func(c *cli.Context) error {
		for _, t := range graph.Tiers() {
			stages := t.MandatoryStages()
			names := make([]string, len(stages))
			for i, s := range stages {
				names[i] = s.String()
			}
			fmt.Fprintf(c.App.Writer, "%s %s\n", color.CyanString("%-12s", t), strings.Join(names, " -> "))
		}
		return nil
	},
}
