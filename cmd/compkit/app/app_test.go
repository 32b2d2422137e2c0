package app

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/compkit/core"
	"github.com/rushteam/compkit/feedback"
	"github.com/rushteam/compkit/model"
	"github.com/rushteam/compkit/store"
)

func property(id string, gla float64) *core.Property {
	return &core.Property{
		ID:            id,
		EffectiveAge:  core.Float(20),
		SubjectAge:    core.Float(25),
		GLA:           core.Float(gla),
		LotSize:       core.Float(5000),
		RoomCount:     core.Float(8),
		Bedrooms:      core.Float(4),
		FullBaths:     core.Float(2),
		HalfBaths:     core.Float(1),
		PropertyType:  "Detached",
		EffectiveDate: core.NewDate(2025, time.April, 1),
		SalePrice:     core.Float(400000 + gla),
	}
}

func writeOrders(t *testing.T, dir string, n int) string {
	t.Helper()
	orders := make([]*core.Order, 0, n)
	for i := range n {
		id := fmt.Sprintf("o%02d", i)
		base := 1500 + float64(i)*10
		orders = append(orders, &core.Order{
			ID:      id,
			Subject: *property(id+"-s", base),
			Comps:   []string{id + "-c1", id + "-c2"},
			Candidates: []*core.Property{
				property(id+"-d1", base+300),
				property(id+"-c1", base-20),
				property(id+"-d2", base-600),
				property(id+"-c2", base+40),
			},
		})
	}
	data, err := json.Marshal(orders)
	require.NoError(t, err)
	path := filepath.Join(dir, "orders.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func newTestApp(t *testing.T, out *bytes.Buffer) *App {
	t.Helper()
	t.Chdir(t.TempDir())
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	cfg.Train.Rounds = 20
	cfg.Split.TestFraction = 0.25

	kv := store.NewMemoryStore()
	t.Cleanup(func() { _ = kv.Close() })
	a, err := New("test", WithConfig(cfg), WithStore(kv), WithOutput(out))
	require.NoError(t, err)
	return a
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, core.DefaultTrainConfig(), cfg.Train)
	assert.Equal(t, core.DefaultSplitConfig(), cfg.Split)
	assert.Equal(t, core.DefaultNarrativeConfig(), cfg.Narrative)
	assert.Equal(t, model.KindGBRank, cfg.Model.Kind)
	assert.Equal(t, 3, cfg.Evaluate.K)
	assert.Equal(t, 3, cfg.Explain.K)
	assert.Equal(t, "test", cfg.Explain.Scope)
	assert.Equal(t, store.DriverMemory, cfg.Store.Driver)
	assert.Empty(t, cfg.ConfigFile)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
model:
  kind: linear
train:
  rounds: 50
explain:
  k: 5
  scope: all
store:
  driver: redis
  redis_addr: redis:6379
  record_ttl: 1h
`), 0o644))
	t.Setenv("COMPKIT_TRAIN_ROUNDS", "7")
	t.Setenv("COMPKIT_NARRATIVE_TIMEOUT", "2s")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, path, cfg.ConfigFile)
	assert.Equal(t, model.KindLinear, cfg.Model.Kind)
	assert.Equal(t, 7, cfg.Train.Rounds)
	assert.Equal(t, 0.1, cfg.Train.LearningRate)
	assert.Equal(t, 2*time.Second, cfg.Narrative.Timeout)
	assert.Equal(t, "sk-test", cfg.Credentials.OpenAIKey)
	assert.Equal(t, "redis:6379", cfg.Store.RedisAddr)

	rc := cfg.RunnerConfig()
	assert.Equal(t, 5, rc.ExplainK)
	assert.Equal(t, "all", rc.ExplainScope)
	assert.Equal(t, 3600, rc.RecordTTL)
}

func TestLoadConfig_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("COMPKIT_EXPLAIN_K", "")
	require.NoError(t, os.Unsetenv("COMPKIT_EXPLAIN_K"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("COMPKIT_EXPLAIN_K=4\n"), 0o644))

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Explain.K)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := LoadConfig("does-not-exist.yaml")
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	t.Chdir(t.TempDir())
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"evaluate k", func(c *Config) { c.Evaluate.K = 0 }},
		{"explain k", func(c *Config) { c.Explain.K = -1 }},
		{"explain scope", func(c *Config) { c.Explain.Scope = "train" }},
		{"learning rate", func(c *Config) { c.Train.LearningRate = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadConfig("")
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.True(t, core.IsInvalidArgument(cfg.Validate()))
		})
	}
}

func TestExecute_TrainExplainFeedback(t *testing.T) {
	ctx := context.Background()
	var out bytes.Buffer
	a := newTestApp(t, &out)
	dir := t.TempDir()
	ordersPath := writeOrders(t, dir, 4)
	modelPath := filepath.Join(dir, "model.json")
	recordsPath := filepath.Join(dir, "records.jsonl")

	require.NoError(t, a.Execute(ctx, []string{"train", "--orders", ordersPath, "--out", modelPath, "--kind", "linear"}))
	var trained trainOutput
	require.NoError(t, json.Unmarshal(out.Bytes(), &trained))
	assert.Equal(t, model.KindLinear, trained.Kind)
	assert.Equal(t, 3, trained.TrainOrders)
	assert.Equal(t, 1, trained.TestOrders)
	require.NotNil(t, trained.Report)
	assert.FileExists(t, modelPath)

	out.Reset()
	require.NoError(t, a.Execute(ctx, []string{"explain", "--model", modelPath, "--orders", ordersPath, "--k", "2", "--records", recordsPath}))
	var explained explainOutput
	require.NoError(t, json.Unmarshal(out.Bytes(), &explained))
	require.Len(t, explained.Orders, 4)
	assert.NotEmpty(t, explained.RunID)
	for _, o := range explained.Orders {
		require.Len(t, o.Records, 2)
		assert.Equal(t, core.NarrativeSkipped, o.Records[0].NarrativeStatus)
		assert.NotNil(t, o.Estimate)
	}
	assert.Equal(t, 8, countLines(t, recordsPath))

	out.Reset()
	require.NoError(t, a.Execute(ctx, []string{"feedback", "record", "--order", "o00", "--candidate", "o00-c1", "--disagree", "--reviewer", "kim"}))
	require.NoError(t, a.Execute(ctx, []string{"feedback", "list"}))
	var entries []feedback.Entry
	require.NoError(t, json.Unmarshal(out.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Agree)
	assert.Equal(t, "kim", entries[0].Reviewer)

	out.Reset()
	require.NoError(t, a.Execute(ctx, []string{"explain", "--model", modelPath, "--orders", ordersPath, "--k", "3"}))
	explained = explainOutput{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &explained))
	for _, rec := range explained.Orders[0].Records {
		assert.NotEqual(t, "o00-c1", rec.CandidateID)
	}

	out.Reset()
	require.NoError(t, a.Execute(ctx, []string{"feedback", "reset"}))
	require.NoError(t, a.Execute(ctx, []string{"feedback", "list"}))
	entries = nil
	require.NoError(t, json.Unmarshal(out.Bytes(), &entries))
	assert.Empty(t, entries)
}

func TestExecute_DatasetAndEvaluate(t *testing.T) {
	ctx := context.Background()
	var out bytes.Buffer
	a := newTestApp(t, &out)
	dir := t.TempDir()
	ordersPath := writeOrders(t, dir, 3)
	csvPath := filepath.Join(dir, "table.csv")

	require.NoError(t, a.Execute(ctx, []string{"dataset", "--orders", ordersPath, "--out", csvPath}))
	// 表头 + 3 个订单 × 4 个候选
	assert.Equal(t, 13, countLines(t, csvPath))

	modelPath := filepath.Join(dir, "model.json")
	require.NoError(t, a.Execute(ctx, []string{"train", "--orders", ordersPath, "--out", modelPath}))

	out.Reset()
	require.NoError(t, a.Execute(ctx, []string{"evaluate", "--model", modelPath, "--orders", ordersPath, "--k", "2"}))
	var report struct {
		K      int `json:"k"`
		Groups []struct {
			OrderID string `json:"orderId"`
		} `json:"groups"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.Equal(t, 2, report.K)
	assert.Len(t, report.Groups, 3)
}

func TestExecute_Rank(t *testing.T) {
	ctx := context.Background()
	var out bytes.Buffer
	a := newTestApp(t, &out)
	dir := t.TempDir()
	ordersPath := writeOrders(t, dir, 2)

	modelPath := filepath.Join(dir, "model.json")
	m := model.NewLinearModel(core.FeatureSchema(), 0,
		map[string]float64{core.FeatureAbsGLADiff: -0.01}, map[string]float64{})
	require.NoError(t, model.SaveFile(modelPath, m))

	pipelinePath := filepath.Join(dir, "pipeline.yaml")
	require.NoError(t, os.WriteFile(pipelinePath, []byte(fmt.Sprintf(`
pipeline:
  name: comps
  nodes:
    - type: feature.diff
    - type: rank.model
      config:
        model_path: %q
    - type: rerank.topk
    - type: explain.attribution
      config:
        model_path: %q
`, modelPath, modelPath)), 0o644))

	require.NoError(t, a.Execute(ctx, []string{"rank", "--orders", ordersPath, "--pipeline", pipelinePath, "--k", "2"}))
	var ranked []rankedOrder
	require.NoError(t, json.Unmarshal(out.Bytes(), &ranked))
	require.Len(t, ranked, 2)
	for _, o := range ranked {
		require.Len(t, o.Candidates, 2)
		assert.Equal(t, o.OrderID+"-c1", o.Candidates[0].ID)
		assert.Equal(t, o.OrderID+"-c2", o.Candidates[1].ID)
		require.NotNil(t, o.Candidates[0].Record)
		assert.Equal(t, 1, o.Candidates[0].Record.Rank)
		require.NotNil(t, o.Estimate)
		assert.Equal(t, 2, o.Estimate.Count)
	}
}

func TestExecute_Errors(t *testing.T) {
	ctx := context.Background()
	var out bytes.Buffer
	a := newTestApp(t, &out)

	err := a.Execute(ctx, []string{"feedback", "record", "--order", "o1", "--candidate", "c1"})
	assert.True(t, core.IsInvalidArgument(err))

	err = a.Execute(ctx, []string{"feedback", "record", "--order", "o1", "--candidate", "c1", "--agree", "--disagree"})
	assert.True(t, core.IsInvalidArgument(err))

	err = a.Execute(ctx, []string{"train"})
	assert.True(t, core.IsInvalidArgument(err))

	err = a.Execute(ctx, []string{"rank", "--orders", "orders.json"})
	assert.True(t, core.IsInvalidArgument(err))

	err = a.Execute(ctx, []string{"explain", "--model", "missing.json", "--orders", "orders.json"})
	assert.Error(t, err)

	for _, args := range [][]string{
		{"evaluate", "--model", "missing.json", "--orders", "orders.json", "--k", "-1"},
		{"explain", "--model", "missing.json", "--orders", "orders.json", "--k", "0"},
	} {
		err = a.Execute(ctx, args)
		assert.True(t, core.IsInvalidArgument(err), args[0])
		assert.ErrorContains(t, err, "--k must be positive", args[0])
	}
}

func countLines(t *testing.T, path string) int {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	n := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 1024*1024), 1024*1024)
	for sc.Scan() {
		n++
	}
	require.NoError(t, sc.Err())
	return n
}
