package feature

import (
	"sort"
	"strings"
	"unicode"

	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/rushteam/compkit/core"
)

// DefaultCanonicalTypes 是固定的规范房产类型表。
var DefaultCanonicalTypes = []string{
	"Townhouse",
	"Detached",
	"Condominium",
	"Semi-Detached",
	"High Rise Apartment",
	"Low Rise Apartment",
	"Duplex",
	"Triplex",
	"Fourplex",
}

// DefaultTypeAliases 是已知写法到规范类型的直接映射，优先于模糊匹配。
// 值为 core.PropertyTypeUnknown 表示该写法明确不属于任何住宅类型。
var DefaultTypeAliases = map[string]string{
	"rural resid":             "Detached",
	"rural residential":       "Detached",
	"single family":           "Detached",
	"single family residence": "Detached",
	"mobiletrailer":           "Detached",
	"mobile home":             "Detached",
	"mobile":                  "Detached",
	"farm":                    "Detached",
	"overunder":               "Duplex",
	"over under":              "Duplex",
	"duplex":                  "Duplex",
	"triplex":                 "Triplex",
	"4 plex":                  "Fourplex",
	"condo apt":               "Condominium",
	"condo apartment":         "Condominium",
	"condo/apt unit":          "Condominium",
	"common element condo":    "Condominium",
	"row unit":                "Townhouse",
	"row unit 2 storey":       "Townhouse",
	"row unit 3 storey":       "Townhouse",
	"stacked":                 "Townhouse",
	"link":                    "Semi-Detached",
	"vacant land":             core.PropertyTypeUnknown,
	"residential land":        core.PropertyTypeUnknown,
	"residential":             core.PropertyTypeUnknown,
	"locker":                  core.PropertyTypeUnknown,
	"other":                   core.PropertyTypeUnknown,
}

// DefaultSimilarityThreshold 是接受模糊匹配的最低相似度（0-100）。
const DefaultSimilarityThreshold = 80

// partialMinLen 以下的输入只做整串比较，避免 "de" 这类碎片命中任意类型。
const partialMinLen = 4

// Canonicalizer 把自由文本类型映射到固定类型表。
//
// 规则（按顺序）：
//  1. 文本归一化：NFKC、大小写折叠、去逗号、连字符/斜杠/下划线转空格、合并空白
//  2. 命中别名表或与某个规范类型完全相同，直接返回
//  3. 与类型表逐个计算 partial-ratio 相似度，最高分 >= 阈值则返回，否则 Unknown
//
// partial-ratio 同分时比较整串 ratio（"semi detached" 同时包含 "detached"），
// 仍同分取字典序最小的类型。构造后只读，可被多个 goroutine 共享。
type Canonicalizer struct {
	types      []string // 字典序
	normalized []string // 与 types 对齐
	aliases    map[string]string
	threshold  int
}

// CanonicalizerOption 配置选项
type CanonicalizerOption func(*Canonicalizer)

// WithCanonicalTypes 替换类型表
func WithCanonicalTypes(types []string) CanonicalizerOption {
	return func(c *Canonicalizer) {
		c.types = append([]string(nil), types...)
	}
}

// WithTypeAliases 替换别名表
func WithTypeAliases(aliases map[string]string) CanonicalizerOption {
	return func(c *Canonicalizer) {
		c.aliases = aliases
	}
}

// WithSimilarityThreshold 设置接受阈值
func WithSimilarityThreshold(threshold int) CanonicalizerOption {
	return func(c *Canonicalizer) {
		c.threshold = threshold
	}
}

// NewCanonicalizer 创建类型规范化器
func NewCanonicalizer(opts ...CanonicalizerOption) *Canonicalizer {
	c := &Canonicalizer{
		types:     append([]string(nil), DefaultCanonicalTypes...),
		aliases:   DefaultTypeAliases,
		threshold: DefaultSimilarityThreshold,
	}
	for _, opt := range opts {
		opt(c)
	}
	sort.Strings(c.types)
	c.normalized = make([]string, len(c.types))
	for i, t := range c.types {
		c.normalized[i] = normalizeType(t)
	}
	aliases := make(map[string]string, len(c.aliases))
	for k, v := range c.aliases {
		aliases[normalizeType(k)] = v
	}
	c.aliases = aliases
	return c
}

// Canonicalize 返回规范类型或 core.PropertyTypeUnknown
func (c *Canonicalizer) Canonicalize(raw string) string {
	canonical, _ := c.Match(raw)
	return canonical
}

// Match 返回规范类型及其相似度。别名命中的分数记为 100。
func (c *Canonicalizer) Match(raw string) (string, int) {
	val := normalizeType(raw)
	if val == "" {
		return core.PropertyTypeUnknown, 0
	}
	if mapped, ok := c.aliases[val]; ok {
		if mapped == "" {
			return core.PropertyTypeUnknown, 100
		}
		return mapped, 100
	}

	for i, candidate := range c.normalized {
		if val == candidate {
			return c.types[i], 100
		}
	}

	best, bestScore, bestFull := core.PropertyTypeUnknown, -1, -1
	for i, candidate := range c.normalized {
		score, full := similarity(val, candidate)
		if score > bestScore || (score == bestScore && full > bestFull) {
			best, bestScore, bestFull = c.types[i], score, full
		}
	}
	if bestScore < c.threshold {
		return core.PropertyTypeUnknown, bestScore
	}
	return best, bestScore
}

// similarity 返回 (partial-ratio, ratio)，均在 [0,100]。
// 较短串不足 partialMinLen 个字符时 partial-ratio 退化为整串 ratio。
func similarity(a, b string) (int, int) {
	if a == "" || b == "" {
		return 0, 0
	}
	full := fuzzy.Ratio(a, b)
	if min(len([]rune(a)), len([]rune(b))) < partialMinLen {
		return full, full
	}
	return fuzzy.PartialRatio(a, b), full
}

var folder = cases.Fold()

func normalizeType(s string) string {
	s = folder.String(norm.NFKC.String(s))
	s = strings.Map(func(r rune) rune {
		switch {
		case r == ',':
			return -1
		case r == '-' || r == '/' || r == '_':
			return ' '
		case unicode.IsSpace(r):
			return ' '
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}
