package dataset

import (
	"math"
	"math/rand/v2"
	"sort"

	"github.com/rushteam/compkit/core"
)

// Split 按订单切分 train/test：一个订单的所有行要么全部进入训练集，要么全部进入测试集。
//
// 订单 id 排序后用 seed 洗牌，前 round(n*fraction) 个进入测试集（n >= 2 且 fraction > 0 时至少 1 个，
// 且训练集至少保留 1 个订单）。两侧保持原表中的分组顺序。
func Split(t *Table, cfg core.SplitConfig) (train, test *Table, err error) {
	if cfg.TestFraction < 0 || cfg.TestFraction >= 1 || math.IsNaN(cfg.TestFraction) {
		return nil, nil, core.NewInvalidArgumentError(core.ModuleDataset, "test_fraction must be in [0, 1)")
	}

	ids := make([]string, len(t.Groups))
	for i, g := range t.Groups {
		ids[i] = g.OrderID
	}
	sort.Strings(ids)
	rng := rand.New(rand.NewPCG(uint64(cfg.Seed), uint64(cfg.Seed)^0x5851f42d4c957f2d))
	rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })

	n := len(ids)
	nTest := int(math.Round(float64(n) * cfg.TestFraction))
	if n >= 2 {
		if cfg.TestFraction > 0 && nTest == 0 {
			nTest = 1
		}
		if nTest >= n {
			nTest = n - 1
		}
	} else {
		nTest = 0
	}
	testSet := make(map[string]struct{}, nTest)
	for _, id := range ids[:nTest] {
		testSet[id] = struct{}{}
	}

	train, test = &Table{}, &Table{}
	start := 0
	for _, g := range t.Groups {
		dst := train
		if _, ok := testSet[g.OrderID]; ok {
			dst = test
		}
		dst.Groups = append(dst.Groups, g)
		dst.Rows = append(dst.Rows, t.Rows[start:start+g.Size]...)
		start += g.Size
	}
	return train, test, nil
}
