package dsl

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/rushteam/compkit/core"
)

var (
	// celEnv 是全局的 CEL 环境，线程安全，可复用
	celEnv     *cel.Env
	celEnvErr  error
	celEnvOnce sync.Once
)

// initCELEnv 初始化 CEL 环境，定义变量
func initCELEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("candidate", cel.DynType),
		cel.Variable("subject", cel.DynType),
		cel.Variable("features", cel.MapType(cel.StringType, cel.DoubleType)),
		cel.Variable("score", cel.DoubleType),
		cel.Variable("label", cel.DynType),
		cel.Variable("params", cel.DynType),
	)
}

// getCELEnv 获取或创建 CEL 环境
func getCELEnv() (*cel.Env, error) {
	celEnvOnce.Do(func() {
		celEnv, celEnvErr = initCELEnv()
	})
	return celEnv, celEnvErr
}

// Program 是编译后的候选表达式，使用 CEL (Common Expression Language) 实现。
// 编译一次，可被多个 goroutine 并发求值。
//
// 可用变量：
//   - candidate / subject：房产字段（id, property_type, gla, lot_size_sf, bedrooms, full_baths,
//     half_baths, room_count, effective_age, sale_price）；缺失字段不存在，用 has() 判断
//   - features：差值特征，键为特征列名（如 features.abs_gla_diff）
//   - score：当前分数（排序前为 0）
//   - label：候选标签值（label.feature 等）
//   - params：订单级参数
//
// 示例：
//   - `features.abs_gla_diff <= 800.0`
//   - `features.same_property_type == 1.0 || features.sold_recently == 1.0`
//   - `has(candidate.sale_price) && candidate.sale_price > 0.0`
type Program struct {
	expr string
	prg  cel.Program
}

// Compile 编译表达式；表达式必须返回 bool。
func Compile(expr string) (*Program, error) {
	env, err := getCELEnv()
	if err != nil {
		return nil, fmt.Errorf("dsl: env: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("dsl: compile %q: %w", expr, issues.Err())
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("dsl: expression %q must return bool, got %s", expr, out)
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("dsl: program %q: %w", expr, err)
	}
	return &Program{expr: expr, prg: prg}, nil
}

// String 返回原始表达式
func (p *Program) String() string { return p.expr }

// Eval 对单个候选求值
func (p *Program) Eval(octx *core.OrderContext, item *core.Item) (bool, error) {
	out, _, err := p.prg.Eval(buildInput(octx, item))
	if err != nil {
		// 访问不存在的 key 会报错，表达式应先用 has() 判断
		return false, fmt.Errorf("dsl: eval %q: %w", p.expr, err)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("dsl: expression %q must return bool, got %T", p.expr, out.Value())
	}
	return result, nil
}

// buildInput 构建 CEL 表达式的输入数据
func buildInput(octx *core.OrderContext, item *core.Item) map[string]any {
	labels := make(map[string]any, len(item.Labels))
	for k, v := range item.Labels {
		labels[k] = v.Value
	}
	features := item.Features
	if features == nil {
		features = map[string]float64{}
	}
	input := map[string]any{
		"candidate": propertyMap(item.Property),
		"subject":   map[string]any{},
		"features":  features,
		"score":     item.Score,
		"label":     labels,
		"params":    map[string]any{},
	}
	if octx != nil {
		if octx.Order != nil {
			input["subject"] = propertyMap(&octx.Order.Subject)
		}
		if octx.Params != nil {
			input["params"] = octx.Params
		}
	}
	return input
}

func propertyMap(p *core.Property) map[string]any {
	m := map[string]any{}
	if p == nil {
		return m
	}
	m["id"] = p.ID
	m["property_type"] = p.PropertyType
	put := func(key string, v *float64) {
		if v != nil {
			m[key] = *v
		}
	}
	put("gla", p.GLA)
	put("lot_size_sf", p.LotSize)
	put("bedrooms", p.Bedrooms)
	put("full_baths", p.FullBaths)
	put("half_baths", p.HalfBaths)
	put("room_count", p.RoomCount)
	put("effective_age", p.EffectiveAge)
	put("sale_price", p.SalePrice)
	return m
}
