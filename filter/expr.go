package filter

import (
	"context"

	"github.com/rushteam/compkit/core"
	"github.com/rushteam/compkit/pkg/dsl"
)

// ExprFilter 用 CEL 表达式描述候选的准入条件：表达式为 false 的候选被过滤。
// 例如 `features.abs_gla_diff <= 800.0` 剔除面积差过大的候选。
type ExprFilter struct {
	program *dsl.Program
}

// NewExprFilter 编译准入表达式
func NewExprFilter(expr string) (*ExprFilter, error) {
	p, err := dsl.Compile(expr)
	if err != nil {
		return nil, err
	}
	return &ExprFilter{program: p}, nil
}

func (f *ExprFilter) Name() string {
	return "filter.expr"
}

func (f *ExprFilter) ShouldFilter(_ context.Context, octx *core.OrderContext, item *core.Item) (bool, error) {
	keep, err := f.program.Eval(octx, item)
	if err != nil {
		return false, err
	}
	return !keep, nil
}
