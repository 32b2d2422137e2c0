package core

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// 特征列名。顺序即模型输入顺序，也是训练表的列顺序；调整顺序等于更换 schema。
const (
	FeatureBathScoreDiff       = "bath_score_diff"
	FeatureFullBathsDiff       = "full_baths_diff"
	FeatureHalfBathsDiff       = "half_baths_diff"
	FeatureRoomCountDiff       = "room_count_diff"
	FeatureBedroomsDiff        = "bedrooms_diff"
	FeatureEffectiveAgeDiff    = "effective_age_diff"
	FeatureSubjectAgeDiff      = "subject_age_diff"
	FeatureLotSizeDiff         = "lot_size_sf_diff"
	FeatureGLADiff             = "gla_diff"
	FeatureAbsBathScoreDiff    = "abs_bath_score_diff"
	FeatureAbsFullBathsDiff    = "abs_full_baths_diff"
	FeatureAbsHalfBathsDiff    = "abs_half_baths_diff"
	FeatureAbsRoomCountDiff    = "abs_room_count_diff"
	FeatureAbsBedroomsDiff     = "abs_bedrooms_diff"
	FeatureAbsEffectiveAgeDiff = "abs_effective_age_diff"
	FeatureAbsSubjectAgeDiff   = "abs_subject_age_diff"
	FeatureAbsLotSizeDiff      = "abs_lot_size_sf_diff"
	FeatureAbsGLADiff          = "abs_gla_diff"
	FeatureSamePropertyType    = "same_property_type"
	FeatureSoldRecently        = "sold_recently"
)

var featureNames = []string{
	FeatureBathScoreDiff,
	FeatureFullBathsDiff,
	FeatureHalfBathsDiff,
	FeatureRoomCountDiff,
	FeatureBedroomsDiff,
	FeatureEffectiveAgeDiff,
	FeatureSubjectAgeDiff,
	FeatureLotSizeDiff,
	FeatureGLADiff,
	FeatureAbsBathScoreDiff,
	FeatureAbsFullBathsDiff,
	FeatureAbsHalfBathsDiff,
	FeatureAbsRoomCountDiff,
	FeatureAbsBedroomsDiff,
	FeatureAbsEffectiveAgeDiff,
	FeatureAbsSubjectAgeDiff,
	FeatureAbsLotSizeDiff,
	FeatureAbsGLADiff,
	FeatureSamePropertyType,
	FeatureSoldRecently,
}

// Schema 描述模型期望的有序特征列表。
type Schema struct {
	Version  string   `json:"version"`
	Features []string `json:"features"`
}

// NewSchema 由有序列名计算 schema；版本号是列名序列的 sha256 前缀。
func NewSchema(features []string) Schema {
	sum := sha256.Sum256([]byte(strings.Join(features, ",")))
	names := make([]string, len(features))
	copy(names, features)
	return Schema{Version: "fv1-" + hex.EncodeToString(sum[:6]), Features: names}
}

// Equal 比较版本与列顺序
func (s Schema) Equal(other Schema) bool {
	if s.Version != other.Version || len(s.Features) != len(other.Features) {
		return false
	}
	for i := range s.Features {
		if s.Features[i] != other.Features[i] {
			return false
		}
	}
	return true
}

var featureSchema = NewSchema(featureNames)

// FeatureNames 返回有序特征列名（副本）。
func FeatureNames() []string {
	out := make([]string, len(featureNames))
	copy(out, featureNames)
	return out
}

// FeatureSchema 返回当前编译进来的特征 schema。
func FeatureSchema() Schema { return featureSchema }

// FeatureVector 是 (order, candidate) 对的差值特征。
// 不变量：每个 Abs* 等于对应有符号差值的绝对值；两个标志位取值 {0,1}。
type FeatureVector struct {
	OrderID     string `json:"orderId"`
	CandidateID string `json:"candidateId"`

	BathScoreDiff    float64 `json:"bath_score_diff"`
	FullBathsDiff    float64 `json:"full_baths_diff"`
	HalfBathsDiff    float64 `json:"half_baths_diff"`
	RoomCountDiff    float64 `json:"room_count_diff"`
	BedroomsDiff     float64 `json:"bedrooms_diff"`
	EffectiveAgeDiff float64 `json:"effective_age_diff"`
	SubjectAgeDiff   float64 `json:"subject_age_diff"`
	LotSizeDiff      float64 `json:"lot_size_sf_diff"`
	GLADiff          float64 `json:"gla_diff"`

	AbsBathScoreDiff    float64 `json:"abs_bath_score_diff"`
	AbsFullBathsDiff    float64 `json:"abs_full_baths_diff"`
	AbsHalfBathsDiff    float64 `json:"abs_half_baths_diff"`
	AbsRoomCountDiff    float64 `json:"abs_room_count_diff"`
	AbsBedroomsDiff     float64 `json:"abs_bedrooms_diff"`
	AbsEffectiveAgeDiff float64 `json:"abs_effective_age_diff"`
	AbsSubjectAgeDiff   float64 `json:"abs_subject_age_diff"`
	AbsLotSizeDiff      float64 `json:"abs_lot_size_sf_diff"`
	AbsGLADiff          float64 `json:"abs_gla_diff"`

	SamePropertyType float64 `json:"same_property_type"`
	SoldRecently     float64 `json:"sold_recently"`
}

// Values 按 FeatureNames 顺序返回特征值。
func (fv *FeatureVector) Values() []float64 {
	return []float64{
		fv.BathScoreDiff,
		fv.FullBathsDiff,
		fv.HalfBathsDiff,
		fv.RoomCountDiff,
		fv.BedroomsDiff,
		fv.EffectiveAgeDiff,
		fv.SubjectAgeDiff,
		fv.LotSizeDiff,
		fv.GLADiff,
		fv.AbsBathScoreDiff,
		fv.AbsFullBathsDiff,
		fv.AbsHalfBathsDiff,
		fv.AbsRoomCountDiff,
		fv.AbsBedroomsDiff,
		fv.AbsEffectiveAgeDiff,
		fv.AbsSubjectAgeDiff,
		fv.AbsLotSizeDiff,
		fv.AbsGLADiff,
		fv.SamePropertyType,
		fv.SoldRecently,
	}
}

// Map 返回 name -> value，用于 Item.Features 与表达式过滤。
func (fv *FeatureVector) Map() map[string]float64 {
	values := fv.Values()
	out := make(map[string]float64, len(values))
	for i, name := range featureNames {
		out[name] = values[i]
	}
	return out
}

// FeatureVectorFromValues 按 FeatureNames 顺序还原特征向量（读取训练表时使用）。
func FeatureVectorFromValues(orderID, candidateID string, values []float64) (*FeatureVector, error) {
	if len(values) != len(featureNames) {
		return nil, NewInvalidArgumentError(ModuleDataset, "feature value count does not match schema")
	}
	return &FeatureVector{
		OrderID:             orderID,
		CandidateID:         candidateID,
		BathScoreDiff:       values[0],
		FullBathsDiff:       values[1],
		HalfBathsDiff:       values[2],
		RoomCountDiff:       values[3],
		BedroomsDiff:        values[4],
		EffectiveAgeDiff:    values[5],
		SubjectAgeDiff:      values[6],
		LotSizeDiff:         values[7],
		GLADiff:             values[8],
		AbsBathScoreDiff:    values[9],
		AbsFullBathsDiff:    values[10],
		AbsHalfBathsDiff:    values[11],
		AbsRoomCountDiff:    values[12],
		AbsBedroomsDiff:     values[13],
		AbsEffectiveAgeDiff: values[14],
		AbsSubjectAgeDiff:   values[15],
		AbsLotSizeDiff:      values[16],
		AbsGLADiff:          values[17],
		SamePropertyType:    values[18],
		SoldRecently:        values[19],
	}, nil
}
