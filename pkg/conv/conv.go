// Package conv 读取节点配置（YAML/JSON 解析得到的 map[string]any）时使用的类型转换工具。
package conv

import (
	"fmt"
	"strings"
)

// ToFloat64 将数值类型转为 float64；YAML 解析常得到 int，JSON 解析得到 float64。
func ToFloat64(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case int32:
		return float64(val), true
	case uint64:
		return float64(val), true
	default:
		return 0, false
	}
}

// ToString 仅接受 string
func ToString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

// ConvertSlice 将 []T 按 convert 转为 []U，convert 返回 false 的元素被跳过。
func ConvertSlice[T, U any](s []T, convert func(T) (U, bool)) []U {
	if s == nil {
		return nil
	}
	out := make([]U, 0, len(s))
	for _, v := range s {
		if u, ok := convert(v); ok {
			out = append(out, u)
		}
	}
	return out
}

// SliceAnyToString 将 []any 或 []string 转为 []string。
// 字符串去掉首尾空白后保留（空串跳过）；数字格式化为整数文本，便于写 candidate_ids: [1001, 1002]。
func SliceAnyToString(v any) []string {
	switch raw := v.(type) {
	case []string:
		return ConvertSlice(raw, nonEmpty)
	case []any:
		return ConvertSlice(raw, func(e any) (string, bool) {
			if s, ok := e.(string); ok {
				return nonEmpty(s)
			}
			if f, ok := ToFloat64(e); ok {
				return fmt.Sprintf("%.0f", f), true
			}
			return "", false
		})
	}
	return nil
}

func nonEmpty(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return s, s != ""
}

// ConfigGet 按 key 取 T，取不到或类型不符时返回 defaultVal。
func ConfigGet[T any](m map[string]any, key string, defaultVal T) T {
	v, ok := m[key]
	if !ok {
		return defaultVal
	}
	t, ok := v.(T)
	if !ok {
		return defaultVal
	}
	return t
}

// ConfigGetInt64 取整数配置，兼容 int 与 float64 两种解析结果。
func ConfigGetInt64(m map[string]any, key string, defaultVal int64) int64 {
	f, ok := ToFloat64(m[key])
	if !ok {
		return defaultVal
	}
	return int64(f)
}

// ConfigGetStringMap 取 map[string]string 配置（如类型别名表），非字符串的值被跳过。
func ConfigGetStringMap(m map[string]any, key string) map[string]string {
	raw, ok := m[key].(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := ToString(v); ok {
			out[k] = s
		}
	}
	return out
}
