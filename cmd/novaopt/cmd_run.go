package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/tangzhangming/novaopt/internal/compile"
	"github.com/tangzhangming/novaopt/internal/config"
	"github.com/tangzhangming/novaopt/internal/errors"
	"github.com/tangzhangming/novaopt/internal/graph"
	"github.com/tangzhangming/novaopt/internal/logx"
)

var (
	dumpFlag = &cli.BoolFlag{
		Name:  "dump",
		Usage: "print the node table of every optimized graph",
	}
	outFlag = &cli.StringFlag{
		Name:  "out",
		Usage: "write optimized graph descriptions into this directory",
	}
	strictFlag = &cli.BoolFlag{
		Name:  "strict",
		Usage: "exit with status 1 when a graph is not optimized",
	}
)

var runCommand = &cli.Command{
	Name:      "run",
	Usage:     "Optimize graph descriptions",
	ArgsUsage: "<graph.yaml>...",
	Flags:     []cli.Flag{configFlag, tierFlag, logLevelFlag, dumpFlag, outFlag, strictFlag},
	Action:    runGraphs,
}

func runGraphs(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("no graph files given")
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	log, err := logx.New(cfg.Log)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	graphs, err := loadGraphs(c.Context, c.Args().Slice())
	if err != nil {
		return err
	}
	d, err := compile.NewDriver(cfg, log)
	if err != nil {
		return err
	}
	results := d.CompileAll(c.Context, graphs)

	w := c.App.Writer
	printResults(w, results)
	rep := errors.NewReporter(c.App.ErrWriter)
	for _, res := range results {
		rep.Report(res.Err)
		if res.Optimized() && c.Bool(dumpFlag.Name) {
			fmt.Fprintln(w)
			graph.Dump(w, res.Graph)
		}
	}
	if dir := c.String(outFlag.Name); dir != "" {
		if err := writeGraphs(dir, results); err != nil {
			return err
		}
	}
	fmt.Fprintln(w, rep.Summary())

	if c.Bool(strictFlag.Name) && rep.HasErrors() {
		return cli.Exit("", 1)
	}
	return nil
}

// loadConfig 依次使用 --config、当前目录下的 novaopt.toml、默认配置，
// 命令行参数覆盖文件中的值
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg := config.DefaultConfig()
	path := c.String(configFlag.Name)
	if path == "" {
		if _, err := os.Stat(config.ConfigFileName); err == nil {
			path = config.ConfigFileName
		}
	}
	if path != "" {
		var err error
		if cfg, err = config.LoadConfig(path); err != nil {
			return nil, err
		}
	}
	if t := c.String(tierFlag.Name); t != "" {
		cfg.Compile.Tier = t
	}
	if l := c.String(logLevelFlag.Name); l != "" {
		cfg.Log.Level = l
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadGraphs 并发读取描述文件，任何一个失败都返回错误
func loadGraphs(ctx context.Context, paths []string) ([]*graph.Graph, error) {
	graphs := make([]*graph.Graph, len(paths))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(runtime.GOMAXPROCS(0))
	for i, path := range paths {
		i, path := i, path
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			g, err := graph.LoadFile(path)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			graphs[i] = g
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return graphs, nil
}

func printResults(w io.Writer, results []*compile.Result) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Graph", "Status", "Nodes", "Rewrites", "Phis", "Stages", "Fingerprint", "Time"})
	table.SetAutoWrapText(false)
	for _, res := range results {
		status := "optimized"
		fp := hex.EncodeToString(res.Fingerprint[:6])
		if !res.Optimized() {
			status = "not optimized"
			if b, ok := errors.AsBailout(res.Err); ok {
				status += " (" + b.Code + ")"
			}
			fp = "-"
		}
		table.Append([]string{
			res.Graph.Name(),
			status,
			fmt.Sprintf("%d -> %d", res.NodesBefore, res.NodesAfter),
			strconv.Itoa(res.Report.Canon.Rewrites),
			strconv.Itoa(res.Report.Reduce.PhisRemoved),
			fmt.Sprintf("%d/%d", len(res.Graph.State().AppliedStages()), len(res.Tier.MandatoryStages())),
			fp,
			res.Duration.Round(time.Microsecond).String(),
		})
	}
	table.Render()
}

// writeGraphs 把优化后的图写成描述文件，文件名取图名
func writeGraphs(dir string, results []*compile.Result) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	for _, res := range results {
		if !res.Optimized() {
			continue
		}
		data, err := graph.Marshal(res.Graph)
		if err != nil {
			return err
		}
		path := filepath.Join(dir, res.Graph.Name()+".yaml")
		if err := os.WriteFile(path, data, 0644); err != nil {
			return fmt.Errorf("failed to write graph file: %w", err)
		}
	}
	return nil
}
