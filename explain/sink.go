package explain

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rushteam/compkit/core"
)

// KeyPrefix 是解释记录在 KV Store 中的 key 前缀
const KeyPrefix = "compkit:explain"

// RecordKey 返回 compkit:explain:<runID>:<orderID>
func RecordKey(runID, orderID string) string {
	return KeyPrefix + ":" + runID + ":" + orderID
}

// Sink 持久化一个订单的解释记录。实现必须支持并发调用。
type Sink interface {
	Write(ctx context.Context, runID, orderID string, records []*core.ExplanationRecord) error
	Close() error
}

// jsonLine 是 JSONL 文件中的一行
type jsonLine struct {
	RunID string `json:"run_id"`
	*core.ExplanationRecord
}

// JSONLSink 把记录逐行写入文件（每条记录一行 JSON）。
type JSONLSink struct {
	mu sync.Mutex
	f  *os.File
	w  *bufio.Writer
}

// NewJSONLSink 创建（截断）输出文件
func NewJSONLSink(path string) (*JSONLSink, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output dir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create output: %w", err)
	}
	return &JSONLSink{f: f, w: bufio.NewWriter(f)}, nil
}

func (s *JSONLSink) Write(_ context.Context, runID, _ string, records []*core.ExplanationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	enc := json.NewEncoder(s.w)
	for _, r := range records {
		if err := enc.Encode(jsonLine{RunID: runID, ExplanationRecord: r}); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
	}
	return nil
}

func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.w.Flush(); err != nil {
		_ = s.f.Close()
		return err
	}
	return s.f.Close()
}

// StoreSink 把每个订单的记录作为 JSON 数组写入 KV Store。
type StoreSink struct {
	Store core.Store
	// TTL 秒；0 表示不过期
	TTL int
}

func (s *StoreSink) Write(ctx context.Context, runID, orderID string, records []*core.ExplanationRecord) error {
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("marshal records: %w", err)
	}
	return s.Store.Set(ctx, RecordKey(runID, orderID), data, s.TTL)
}

// Close 不关闭底层 Store，Store 的生命周期由创建者管理。
func (s *StoreSink) Close() error { return nil }

// LoadRecords 读取某次运行中某个订单的记录
func LoadRecords(ctx context.Context, store core.Store, runID, orderID string) ([]*core.ExplanationRecord, error) {
	data, err := store.Get(ctx, RecordKey(runID, orderID))
	if err != nil {
		return nil, err
	}
	var records []*core.ExplanationRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	return records, nil
}

// MultiSink 依次写入多个 Sink
type MultiSink []Sink

func (m MultiSink) Write(ctx context.Context, runID, orderID string, records []*core.ExplanationRecord) error {
	for _, s := range m {
		if err := s.Write(ctx, runID, orderID, records); err != nil {
			return err
		}
	}
	return nil
}

func (m MultiSink) Close() error {
	var first error
	for _, s := range m {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
