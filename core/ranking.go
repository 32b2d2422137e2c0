package core

import "sort"

// RankedBefore 定义组内排名顺序：分数降序，同分按候选 id 升序。
func RankedBefore(scoreA float64, idA string, scoreB float64, idB string) bool {
	if scoreA != scoreB {
		return scoreA > scoreB
	}
	return idA < idB
}

// RankIndices 返回按 RankedBefore 排序后的下标
func RankIndices(scores []float64, ids []string) []int {
	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ia, ib := idx[a], idx[b]
		return RankedBefore(scores[ia], ids[ia], scores[ib], ids[ib])
	})
	return idx
}

// SortItems 按 RankedBefore 原地排序；nil 排在最后。
func SortItems(items []*Item) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i] == nil {
			return false
		}
		if items[j] == nil {
			return true
		}
		return RankedBefore(items[i].Score, items[i].ID, items[j].Score, items[j].ID)
	})
}
