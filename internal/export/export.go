// Package export renders the visit collection as downloadable text and stores
// the artifacts in a blob store.
package export

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"kolcrm/internal/derive"
	"kolcrm/pkg/domain"
)

// BOM is the UTF-8 byte-order mark written ahead of CSV content so that
// spreadsheet tools detect the encoding.
const BOM = "\ufeff"

// CSVHeader lists the visit export columns in order.
var CSVHeader = []string{"日期", "专家姓名", "医院", "科室", "观念层级", "产品", "疾病领域", "沟通内容", "疗效信息", "安全性信息", "竞品信息"}

// TagSeparator joins product and disease-area tags within one cell.
const TagSeparator = "、"

// WriteVisitsCSV writes one row per visit in chronological order. Every cell
// is quoted. Visits whose expert is gone are attributed to
// domain.DeletedExpertName.
func WriteVisitsCSV(w io.Writer, s derive.Snapshot) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(BOM); err != nil {
		return err
	}
	if err := writeRow(bw, CSVHeader); err != nil {
		return err
	}
	experts := s.ExpertIndex()
	for _, v := range derive.SortVisits(s.Visits) {
		e, ok := experts[v.ExpertID]
		if !ok {
			e = domain.Expert{Name: domain.DeletedExpertName}
		}
		row := []string{
			string(v.Date),
			e.Name,
			e.Hospital,
			e.Department,
			v.Level.Code(),
			strings.Join(v.Products, TagSeparator),
			strings.Join(v.DiseaseAreas, TagSeparator),
			v.Content,
			v.EfficacyInfo,
			v.SafetyInfo,
			v.CompetitorInfo,
		}
		if err := writeRow(bw, row); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// writeRow quotes every cell unconditionally and doubles embedded quotes.
func writeRow(w *bufio.Writer, cells []string) error {
	for i, cell := range cells {
		if i > 0 {
			if err := w.WriteByte(','); err != nil {
				return err
			}
		}
		if _, err := w.WriteString(`"` + strings.ReplaceAll(cell, `"`, `""`) + `"`); err != nil {
			return err
		}
	}
	return w.WriteByte('\n')
}

// WriteIntelText writes one line per visit carrying the given intelligence
// note, formatted "date - name (department): text", in chronological order.
func WriteIntelText(w io.Writer, s derive.Snapshot, field domain.IntelField) error {
	if _, err := domain.ParseIntelField(string(field)); err != nil {
		return err
	}
	experts := s.ExpertIndex()
	var lines []string
	for _, v := range derive.SortVisits(s.Visits) {
		text := v.Intel(field)
		if text == "" {
			continue
		}
		e, ok := experts[v.ExpertID]
		if !ok {
			e = domain.Expert{Name: domain.DeletedExpertName, Department: domain.UnknownDepartment}
		}
		lines = append(lines, fmt.Sprintf("%s - %s (%s): %s", v.Date, e.Name, e.Department, text))
	}
	_, err := io.WriteString(w, strings.Join(lines, "\n"))
	return err
}

// VisitsFilename is the suggested download name of the CSV export.
func VisitsFilename(today domain.Date) string {
	return fmt.Sprintf("kolcrm_visits_%s.csv", today)
}

// IntelFilename is the suggested download name of an intelligence export.
func IntelFilename(field domain.IntelField) string {
	return fmt.Sprintf("%s_intel.txt", field)
}
