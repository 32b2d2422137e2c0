package app

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rushteam/compkit/core"
	"github.com/rushteam/compkit/dataset"
	"github.com/rushteam/compkit/evaluate"
	"github.com/rushteam/compkit/explain"
	"github.com/rushteam/compkit/model"
	"github.com/rushteam/compkit/runner"
)

// cutoffK 取 --k：未指定时用配置默认值，显式指定的值必须为正。
func cutoffK(cmd *cobra.Command, k, def int, module string) (int, error) {
	if !cmd.Flags().Changed("k") {
		return def, nil
	}
	if k <= 0 {
		return 0, core.NewInvalidArgumentError(module, fmt.Sprintf("--k must be positive, got %d", k))
	}
	return k, nil
}

func loadOrders(path string) ([]*core.Order, error) {
	if path == "" {
		return nil, core.NewInvalidArgumentError(core.ModuleDataset, "--orders is required")
	}
	if path == "-" {
		return dataset.LoadOrders(os.Stdin)
	}
	return dataset.LoadOrdersFile(path)
}

// openOutput 返回写入 path 的 writer；path 为空或 "-" 时写到命令输出。
func openOutput(cmd *cobra.Command, path string) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}

func (a *App) newDatasetCommand() *cobra.Command {
	var ordersPath, out string
	cmd := &cobra.Command{
		Use:   "dataset",
		Short: "Build the pairwise training table and export it as CSV",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			orders, err := loadOrders(ordersPath)
			if err != nil {
				return err
			}
			r, err := a.Runner(ctx)
			if err != nil {
				return err
			}
			_, table, err := r.BuildTable(ctx, orders, nil)
			if err != nil {
				return err
			}
			w, closeFn, err := openOutput(cmd, out)
			if err != nil {
				return err
			}
			if err := dataset.WriteCSV(w, table); err != nil {
				_ = closeFn()
				return err
			}
			return closeFn()
		},
	}
	cmd.Flags().StringVar(&ordersPath, "orders", "", "orders JSON file (- for stdin)")
	cmd.Flags().StringVar(&out, "out", "", "CSV output file (default stdout)")
	return cmd
}

type trainOutput struct {
	Model       string           `json:"model"`
	Kind        string           `json:"kind"`
	TrainOrders int              `json:"train_orders"`
	TestOrders  int              `json:"test_orders"`
	Report      *evaluate.Report `json:"report,omitempty"`
}

func (a *App) newTrainCommand() *cobra.Command {
	var ordersPath, out, kind string
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a ranking model on the train split and evaluate it on the test split",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if kind != "" {
				a.config.Model.Kind = kind
			}
			orders, err := loadOrders(ordersPath)
			if err != nil {
				return err
			}
			r, err := a.Runner(ctx)
			if err != nil {
				return err
			}
			_, table, err := r.BuildTable(ctx, orders, nil)
			if err != nil {
				return err
			}
			train, test, err := dataset.Split(table, a.config.Split)
			if err != nil {
				return err
			}
			m, err := r.Train(ctx, train, nil)
			if err != nil {
				return err
			}
			res := trainOutput{Model: out, Kind: m.Name(), TrainOrders: len(train.Groups), TestOrders: len(test.Groups)}
			if len(test.Groups) > 0 {
				res.Report, err = evaluate.EvaluateTable(m, test, a.config.Evaluate.K, evaluate.WithLogger(a.logger))
				if err != nil {
					return err
				}
			}
			if err := model.SaveFile(out, m); err != nil {
				return err
			}
			a.logger.Infof("train: saved %s model to %s", m.Name(), out)
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&ordersPath, "orders", "", "orders JSON file (- for stdin)")
	cmd.Flags().StringVar(&out, "out", "model.json", "model artifact output path")
	cmd.Flags().StringVar(&kind, "kind", "", "model kind: gbrank, linear (overrides model.kind)")
	return cmd
}

func (a *App) newEvaluateCommand() *cobra.Command {
	var ordersPath, modelPath string
	var k int
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Compute Precision@K and NDCG@K of a saved model on labelled orders",
		RunE: func(cmd *cobra.Command, _ []string) error {
			k, err := cutoffK(cmd, k, a.config.Evaluate.K, core.ModuleEvaluate)
			if err != nil {
				return err
			}
			m, err := model.LoadFile(modelPath)
			if err != nil {
				return err
			}
			orders, err := loadOrders(ordersPath)
			if err != nil {
				return err
			}
			table, err := dataset.Build(orders, dataset.WithLogger(a.logger))
			if err != nil {
				return err
			}
			report, err := evaluate.EvaluateTable(m, table, k, evaluate.WithLogger(a.logger))
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), report)
		},
	}
	cmd.Flags().StringVar(&ordersPath, "orders", "", "orders JSON file (- for stdin)")
	cmd.Flags().StringVar(&modelPath, "model", "model.json", "model artifact path")
	cmd.Flags().IntVar(&k, "k", 0, "cutoff K (default evaluate.k)")
	return cmd
}

type explainOutput struct {
	RunID             string                `json:"runId"`
	Orders            []*runner.OrderResult `json:"orders"`
	NarrativeFailures int                   `json:"narrative_failures"`
}

// explainRunner 在共享依赖之外追加叙述服务与 JSONL 记录输出
func (a *App) explainRunner(cmd *cobra.Command, recordsPath string) (*runner.Runner, func() error, error) {
	ctx := cmd.Context()
	var extra []runner.Option
	n, err := a.Narrator(ctx)
	if err != nil {
		return nil, nil, err
	}
	if n != nil {
		extra = append(extra, runner.WithNarrator(n))
	}
	closeFn := func() error { return nil }
	if recordsPath != "" {
		sink, err := explain.NewJSONLSink(recordsPath)
		if err != nil {
			return nil, nil, err
		}
		extra = append(extra, runner.WithSink(sink))
		closeFn = sink.Close
	}
	r, err := a.Runner(ctx, extra...)
	if err != nil {
		_ = closeFn()
		return nil, nil, err
	}
	return r, closeFn, nil
}

func (a *App) newExplainCommand() *cobra.Command {
	var ordersPath, modelPath, recordsPath string
	var k int
	cmd := &cobra.Command{
		Use:   "explain",
		Short: "Rank candidates with a saved model and explain the top-K of every order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			k, err := cutoffK(cmd, k, a.config.Explain.K, core.ModuleExplain)
			if err != nil {
				return err
			}
			a.config.Explain.K = k
			m, err := model.LoadFile(modelPath)
			if err != nil {
				return err
			}
			orders, err := loadOrders(ordersPath)
			if err != nil {
				return err
			}
			orders, err = dataset.NewBuilder(dataset.WithLogger(a.logger)).Merge(orders)
			if err != nil {
				return err
			}
			r, closeFn, err := a.explainRunner(cmd, recordsPath)
			if err != nil {
				return err
			}
			runID := runner.NewRunID()
			results, failures, err := r.ExplainOrders(cmd.Context(), runID, m, orders)
			if cerr := closeFn(); err == nil {
				err = cerr
			}
			if err != nil {
				return err
			}
			a.logger.Infof("explain: run %s explained %d orders, %d narrative failures", runID, len(results), failures)
			return writeJSON(cmd.OutOrStdout(), explainOutput{RunID: runID, Orders: results, NarrativeFailures: failures})
		},
	}
	cmd.Flags().StringVar(&ordersPath, "orders", "", "orders JSON file (- for stdin)")
	cmd.Flags().StringVar(&modelPath, "model", "model.json", "model artifact path")
	cmd.Flags().StringVar(&recordsPath, "records", "", "also write explanation records as JSON lines")
	cmd.Flags().IntVar(&k, "k", 0, "number of candidates to explain per order (default explain.k)")
	return cmd
}

type runOutput struct {
	RunID              string                `json:"runId"`
	TrainOrders        int                   `json:"train_orders"`
	TestOrders         int                   `json:"test_orders"`
	Report             *evaluate.Report      `json:"report,omitempty"`
	ExplainedPrecision float64               `json:"explained_precision"`
	NarrativeFailures  int                   `json:"narrative_failures"`
	Orders             []*runner.OrderResult `json:"orders"`
}

func (a *App) newRunCommand() *cobra.Command {
	var ordersPath, modelOut, recordsPath string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Build, split, train, evaluate and explain in one batch run",
		RunE: func(cmd *cobra.Command, _ []string) error {
			orders, err := loadOrders(ordersPath)
			if err != nil {
				return err
			}
			r, closeFn, err := a.explainRunner(cmd, recordsPath)
			if err != nil {
				return err
			}
			res, err := r.Run(cmd.Context(), orders)
			if cerr := closeFn(); err == nil {
				err = cerr
			}
			if err != nil {
				return err
			}
			if modelOut != "" {
				if err := model.SaveFile(modelOut, res.Model); err != nil {
					return err
				}
			}
			return writeJSON(cmd.OutOrStdout(), runOutput{
				RunID:              res.RunID,
				TrainOrders:        len(res.Train.Groups),
				TestOrders:         len(res.Test.Groups),
				Report:             res.Report,
				ExplainedPrecision: res.ExplainedPrecision,
				NarrativeFailures:  res.NarrativeFailures,
				Orders:             res.Orders,
			})
		},
	}
	cmd.Flags().StringVar(&ordersPath, "orders", "", "orders JSON file (- for stdin)")
	cmd.Flags().StringVar(&modelOut, "model-out", "", "save the trained model artifact")
	cmd.Flags().StringVar(&recordsPath, "records", "", "also write explanation records as JSON lines")
	return cmd
}

type rankedCandidate struct {
	ID     string                  `json:"id"`
	Score  float64                 `json:"score"`
	Record *core.ExplanationRecord `json:"record,omitempty"`
}

type rankedOrder struct {
	OrderID    string              `json:"orderId"`
	Candidates []rankedCandidate   `json:"candidates"`
	Estimate   *core.ValueEstimate `json:"estimate,omitempty"`
}

func (a *App) newRankCommand() *cobra.Command {
	var ordersPath, pipelinePath string
	var k int
	cmd := &cobra.Command{
		Use:   "rank",
		Short: "Run the configured node chain over every order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if pipelinePath != "" {
				a.config.Pipeline.Config = pipelinePath
			}
			p, err := a.Pipeline()
			if err != nil {
				return err
			}
			if p == nil {
				return core.NewInvalidArgumentError(core.ModuleExplain, "rank requires --pipeline or pipeline.config")
			}
			orders, err := loadOrders(ordersPath)
			if err != nil {
				return err
			}
			orders, err = dataset.NewBuilder(dataset.WithLogger(a.logger)).Merge(orders)
			if err != nil {
				return err
			}
			k, err := cutoffK(cmd, k, a.config.Explain.K, core.ModuleExplain)
			if err != nil {
				return err
			}

			runID := runner.NewRunID()
			out := make([]rankedOrder, 0, len(orders))
			for _, order := range orders {
				octx := core.NewOrderContext(runID, order, k)
				items, err := p.Run(ctx, octx, core.ItemsFromOrder(order))
				if err != nil {
					return fmt.Errorf("order %s: %w", order.ID, err)
				}
				ro := rankedOrder{OrderID: order.ID, Candidates: make([]rankedCandidate, 0, len(items))}
				var records []*core.ExplanationRecord
				for _, it := range items {
					rc := rankedCandidate{ID: it.ID, Score: it.Score}
					if rec, ok := it.Meta[explain.MetaRecord].(*core.ExplanationRecord); ok {
						rc.Record = rec
						records = append(records, rec)
					}
					ro.Candidates = append(ro.Candidates, rc)
				}
				ro.Estimate = explain.Estimate(order.ID, records)
				out = append(out, ro)
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringVar(&ordersPath, "orders", "", "orders JSON file (- for stdin)")
	cmd.Flags().StringVar(&pipelinePath, "pipeline", "", "node chain config (overrides pipeline.config)")
	cmd.Flags().IntVar(&k, "k", 0, "top-K passed to the chain (default explain.k)")
	return cmd
}
