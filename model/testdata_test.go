package model

import (
	"math"

	"github.com/rushteam/compkit/core"
)

// trainingRow 构造只关心 GLA / 卧室差值的训练行
func trainingRow(orderID, candidateID string, isComp int, glaDiff, bedroomsDiff float64) core.TrainingRow {
	return core.TrainingRow{
		FeatureVector: core.FeatureVector{
			OrderID:         orderID,
			CandidateID:     candidateID,
			GLADiff:         glaDiff,
			AbsGLADiff:      math.Abs(glaDiff),
			BedroomsDiff:    bedroomsDiff,
			AbsBedroomsDiff: math.Abs(bedroomsDiff),
		},
		IsComp: isComp,
	}
}

// separableTable 两个订单，分数区间不同，组内 comp 的 |gla_diff| 总是更小
func separableTable() ([]core.TrainingRow, []int) {
	rows := []core.TrainingRow{
		trainingRow("A", "a1", 1, 10, 0),
		trainingRow("A", "a2", 1, -20, 1),
		trainingRow("A", "a3", 0, 300, 1),
		trainingRow("A", "a4", 0, -400, 2),
		trainingRow("B", "b1", 1, 500, 0),
		trainingRow("B", "b2", 1, -600, 0),
		trainingRow("B", "b3", 0, 900, -2),
		trainingRow("B", "b4", 0, 1000, 3),
	}
	return rows, []int{4, 4}
}

func testConfig() core.TrainConfig {
	cfg := core.DefaultTrainConfig()
	cfg.Rounds = 30
	cfg.LearningRate = 0.3
	cfg.MaxDepth = 4
	return cfg
}
