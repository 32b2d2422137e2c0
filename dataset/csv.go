package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"

	"github.com/rushteam/compkit/core"
)

// 训练表的非特征列
const (
	ColumnOrderID     = "orderId"
	ColumnCandidateID = "candidateId"
	ColumnIsComp      = "is_comp"
)

// Header 返回训练表列：orderId, candidateId, 按 schema 顺序的特征列, is_comp
func Header() []string {
	h := []string{ColumnOrderID, ColumnCandidateID}
	h = append(h, core.FeatureNames()...)
	return append(h, ColumnIsComp)
}

// WriteCSV 以表格形式导出训练表，每个 (order, candidate) 一行
func WriteCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header()); err != nil {
		return err
	}
	record := make([]string, 0, len(Header()))
	for i := range t.Rows {
		r := &t.Rows[i]
		record = record[:0]
		record = append(record, r.OrderID, r.CandidateID)
		for _, v := range r.Values() {
			record = append(record, strconv.FormatFloat(v, 'g', -1, 64))
		}
		record = append(record, strconv.Itoa(r.IsComp))
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV 读取 WriteCSV 导出的训练表并还原分组。
// 列必须与当前 schema 完全一致；同一订单的行必须连续。
func ReadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("dataset: read header: %w", err)
	}
	want := Header()
	if !slices.Equal(header, want) {
		got := header
		if len(got) >= 3 {
			got = got[2 : len(got)-1]
		}
		return nil, core.NewSchemaMismatchError(core.FeatureSchema().Version, core.NewSchema(got).Version).
			WithDetail("reason", "training table columns differ from feature schema")
	}

	t := &Table{}
	seen := make(map[string]struct{})
	nf := len(want) - 3
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("dataset: line %d: %w", line, err)
		}
		orderID, candidateID := rec[0], rec[1]
		values := make([]float64, nf)
		for f := 0; f < nf; f++ {
			v, err := strconv.ParseFloat(rec[2+f], 64)
			if err != nil {
				return nil, core.NewDataIntegrityError(orderID, candidateID, want[2+f]).
					WithDetail("line", strconv.Itoa(line))
			}
			values[f] = v
		}
		label, err := strconv.Atoi(rec[len(rec)-1])
		if err != nil || (label != 0 && label != 1) {
			return nil, core.NewDataIntegrityError(orderID, candidateID, ColumnIsComp).
				WithDetail("line", strconv.Itoa(line))
		}
		fv, err := core.FeatureVectorFromValues(orderID, candidateID, values)
		if err != nil {
			return nil, err
		}

		n := len(t.Groups)
		if n == 0 || t.Groups[n-1].OrderID != orderID {
			if _, dup := seen[orderID]; dup {
				return nil, core.NewInvalidArgumentError(core.ModuleDataset,
					fmt.Sprintf("line %d: rows of order %s are not contiguous", line, orderID))
			}
			seen[orderID] = struct{}{}
			t.Groups = append(t.Groups, core.Group{OrderID: orderID})
			n++
		}
		g := &t.Groups[n-1]
		g.Size++
		g.Positives += label
		t.Rows = append(t.Rows, core.TrainingRow{FeatureVector: *fv, IsComp: label})
	}
	for i := range t.Groups {
		g := &t.Groups[i]
		g.Contributing = g.Size >= 2 && g.Positives > 0 && g.Positives < g.Size
	}
	return t, nil
}
