package app

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rushteam/compkit/log"
)

// Execute 解析参数并执行命令
func (a *App) Execute(ctx context.Context, args []string) error {
	root := a.createRootCommand()
	root.SetArgs(args)
	if a.out != nil {
		root.SetOut(a.out)
	}
	return root.ExecuteContext(ctx)
}

func (a *App) createRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:     "compkit",
		Short:   "Comparable property ranking and explanation",
		Version: a.version,
		Long: `compkit builds pairwise training data from appraisal orders, trains a
comparable ranking model, evaluates it and explains its top-K recommendations.`,
		PersistentPreRunE: a.setupCommand,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}
	root.PersistentFlags().String("config", "", "config file (default ./compkit.yaml)")
	root.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	root.SetVersionTemplate("compkit {{.Version}}\n")

	root.AddCommand(
		a.newDatasetCommand(),
		a.newTrainCommand(),
		a.newEvaluateCommand(),
		a.newExplainCommand(),
		a.newRunCommand(),
		a.newRankCommand(),
		a.newFeedbackCommand(),
	)
	return root
}

// setupCommand 在参数解析后执行：按 --config 重新加载配置，再应用 --log-level。
func (a *App) setupCommand(cmd *cobra.Command, _ []string) error {
	if path := mustGetString(cmd, "config"); path != "" {
		cfg, err := LoadConfig(path)
		if err != nil {
			return err
		}
		a.config = cfg
	}
	if level := mustGetString(cmd, "log-level"); level != "" {
		a.config.LogLevel = level
	}
	log.SetLevel(a.config.LogLevel)
	if a.config.ConfigFile != "" {
		a.logger.Debugf("app: using config %s", a.config.ConfigFile)
	}
	return a.config.Validate()
}

// ContextWithSignals 返回收到 SIGINT/SIGTERM 时取消的 ctx
func ContextWithSignals(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

// ExitOnError 打印错误并以状态码 1 退出
func ExitOnError(err error) {
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// mustGetString 只用于本包定义的参数
func mustGetString(cmd *cobra.Command, name string) string {
	val, err := cmd.Flags().GetString(name)
	if err != nil {
		panic("programming error: failed to get flag " + name + ": " + err.Error())
	}
	return val
}
