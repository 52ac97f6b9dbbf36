package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/John-Robertt/gavdener/internal/app/run"
	"github.com/John-Robertt/gavdener/internal/config"
	"github.com/John-Robertt/gavdener/internal/infra/fsx"
	"github.com/John-Robertt/gavdener/internal/logx"
	"github.com/John-Robertt/gavdener/internal/provider/sites"
)

// lockName 是目标根目录下的运行锁文件。
const lockName = ".gavdener.lock"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// exitError 让 RunE 指定退出码；err 为 nil 时不再额外打印。
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// execute 返回进程退出码：0 成功；1 运行失败；2 参数/用法错误。
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCommand(stdout, stderr)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil && !errors.Is(ee.err, context.Canceled) {
			fmt.Fprintln(stderr, ee.err)
		}
		return ee.code
	}
	fmt.Fprintf(stderr, "参数错误：%v\n\n", err)
	fmt.Fprint(stderr, root.UsageString())
	return 2
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "gavdener",
		Short:         "按番号识别本地影片并整理到 演员/番号 目录",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.AddCommand(newRunCommand(stdout, stderr))
	return root
}

func newRunCommand(stdout, stderr io.Writer) *cobra.Command {
	var cli config.CLIArgs

	cmd := &cobra.Command{
		Use:   "run [media_dir]",
		Short: "扫描媒体目录，查询元数据并整理文件",
		Long: `扫描媒体目录下的视频文件，按文件名提取番号，依次查询配置的站点，
然后把文件移动到 <target>/<演员>/<番号>/ 下并写入 info 标记。

未指定 --config 时读取当前目录下的 gavdener.yaml（可选）。命令行参数优先于配置文件。
stdout 不是终端时，只输出一个 JSON 格式的运行报告。`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				cli.MediaDir = args[0]
			}
			cli.DebugSet = cmd.Flags().Changed("debug")
			cli.LinkActorsSet = cmd.Flags().Changed("link-actors")
			return runOnce(cmd.Context(), cli, stdout, stderr)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&cli.ConfigPath, "config", "c", "", "配置文件路径")
	f.StringVarP(&cli.TargetDir, "target", "t", "", "整理后的目标根目录")
	f.BoolVar(&cli.Debug, "debug", false, "只写标记、不移动文件（支持 --debug=false 覆盖配置）")
	f.BoolVar(&cli.LinkActors, "link-actors", false, "为第二位及之后的演员建立硬链接目录")
	f.StringArrayVar(&cli.Sites, "site", nil, "查询的站点，可重复，按顺序尝试（javbus|javdb）")
	return cmd
}

func runOnce(ctx context.Context, cli config.CLIArgs, stdout, stderr io.Writer) error {
	cwd, err := os.Getwd()
	if err != nil {
		return &exitError{code: 1, err: fmt.Errorf("读取当前目录失败：%w", err)}
	}

	cfg, err := config.Load(cwd, cli)
	if err != nil {
		code := 1
		if config.Code(err) == config.ErrCodeMissingPath {
			code = 2
		}
		return &exitError{code: code, err: err}
	}

	logger, closer, err := logx.New(logx.Options{Level: cfg.LogLevel, File: cfg.LogFile, Stderr: stderr})
	if err != nil {
		return &exitError{code: 1, err: fmt.Errorf("打开日志失败：%w", err)}
	}
	defer closer.Close()

	unlock, err := acquireLock(cfg.TargetDir)
	if err != nil {
		return &exitError{code: 1, err: err}
	}
	defer unlock()

	providers, err := run.Providers(cfg, sites.Registry(), logger)
	if err != nil {
		return &exitError{code: 1, err: fmt.Errorf("初始化站点失败：%w", err)}
	}

	var obs run.Observer
	if isTerminal(stderr) {
		obs = newProgressUI(stderr)
	}

	rr, runErr := run.Execute(ctx, cfg, providers, logger, obs)
	if err := emitReport(stdout, rr, isTerminal(stdout)); err != nil {
		return &exitError{code: 1, err: fmt.Errorf("输出报告失败：%w", err)}
	}
	logx.Log(logger, fmt.Sprintf("完成：placed=%d skipped=%d unresolved=%d failed=%d",
		rr.Summary.Placed, rr.Summary.Skipped, rr.Summary.Unresolved, rr.Summary.Failed), "info")

	if runErr != nil {
		return &exitError{code: 1, err: runErr}
	}
	if rr.Summary.Failed > 0 {
		return &exitError{code: 1}
	}
	return nil
}

// acquireLock 在目标根目录上加建议锁，避免两个进程同时改同一棵目录树。
func acquireLock(dir string) (func(), error) {
	if err := fsx.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("创建目标目录失败：%w", err)
	}
	path := filepath.Join(dir, lockName)
	lk := flock.New(path)
	ok, err := lk.TryLock()
	if err != nil {
		return nil, fmt.Errorf("获取运行锁失败：%s：%w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("另一个 gavdener 正在整理 %s（锁文件 %s）", dir, path)
	}
	return func() { _ = lk.Unlock() }, nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
