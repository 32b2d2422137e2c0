package dataset

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rushteam/compkit/core"
)

// ordersDocument 是订单文件的对象形式：{"orders": [...]}
type ordersDocument struct {
	Orders []*core.Order `json:"orders"`
}

// LoadOrders 读取订单 JSON，支持顶层数组或 {"orders": [...]} 两种形式。
func LoadOrders(r io.Reader) ([]*core.Order, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}
	if data[0] == '[' {
		var orders []*core.Order
		if err := json.Unmarshal(data, &orders); err != nil {
			return nil, fmt.Errorf("dataset: decode orders: %w", err)
		}
		return orders, nil
	}
	var doc ordersDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("dataset: decode orders: %w", err)
	}
	return doc.Orders, nil
}

// LoadOrdersFile 从文件读取订单
func LoadOrdersFile(path string) ([]*core.Order, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadOrders(f)
}
