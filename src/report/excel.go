package report

import (
	"fmt"
	"io"

	"FlightScheduleOptimizer/src/processor"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/xuri/excelize/v2"
)

const (
	DataSheet  = "Sheet1"
	ChartSheet = "Charts"
)

// chartBlock 图表数据在 Charts 工作表上占用的两列
type chartBlock struct {
	title     string
	labelCol  string
	valueCol  string
	valueName string
	anchor    string
	kind      excelize.ChartType
	points    []processor.Point
}

// WriteWorkbook 导出规范航班表, 并在 Charts 工作表上生成三张原生图表
func WriteWorkbook(w io.Writer, df dataframe.DataFrame, charts processor.Charts) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := writeTable(f, df); err != nil {
		return err
	}

	if _, err := f.NewSheet(ChartSheet); err != nil {
		return fmt.Errorf("create chart sheet: %w", err)
	}
	blocks := []chartBlock{
		{"Top 5 Delayed Flights", "A", "B", "delay", "J1", excelize.Col, charts.TopDelayed},
		{"Flights Distribution by Hour", "D", "E", "flights", "J17", excelize.Line, charts.FlightsByHour},
		{"Average Delay by Airline", "G", "H", "avg_delay", "J33", excelize.Bar, charts.DelayByAirline},
	}
	for _, b := range blocks {
		if err := writeChart(f, b); err != nil {
			return err
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeTable(f *excelize.File, df dataframe.DataFrame) error {
	names := df.Names()
	for c, name := range names {
		cell, _ := excelize.CoordinatesToCellName(c+1, 1)
		if err := f.SetCellValue(DataSheet, cell, name); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}

	for c, name := range names {
		col := df.Col(name)
		var floats []float64
		if col.Type() == series.Float || col.Type() == series.Int {
			floats = col.Float()
		}
		for r := 0; r < df.Nrow(); r++ {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			var v interface{} = col.Elem(r).String()
			if floats != nil {
				v = floats[r]
			}
			if err := f.SetCellValue(DataSheet, cell, v); err != nil {
				return fmt.Errorf("write %s: %w", cell, err)
			}
		}
	}
	return nil
}

func writeChart(f *excelize.File, b chartBlock) error {
	set := func(cell string, v interface{}) error {
		return f.SetCellValue(ChartSheet, cell, v)
	}
	if err := set(b.labelCol+"1", b.title); err != nil {
		return err
	}
	if err := set(b.valueCol+"1", b.valueName); err != nil {
		return err
	}
	if len(b.points) == 0 {
		return set(b.labelCol+"2", "No data available.")
	}

	for i, p := range b.points {
		row := i + 2
		if err := set(fmt.Sprintf("%s%d", b.labelCol, row), p.Label); err != nil {
			return err
		}
		if err := set(fmt.Sprintf("%s%d", b.valueCol, row), p.Value); err != nil {
			return err
		}
	}

	last := len(b.points) + 1
	err := f.AddChart(ChartSheet, b.anchor, &excelize.Chart{
		Type: b.kind,
		Series: []excelize.ChartSeries{{
			Name:       fmt.Sprintf("%s!$%s$1", ChartSheet, b.valueCol),
			Categories: fmt.Sprintf("%s!$%s$2:$%s$%d", ChartSheet, b.labelCol, b.labelCol, last),
			Values:     fmt.Sprintf("%s!$%s$2:$%s$%d", ChartSheet, b.valueCol, b.valueCol, last),
		}},
		Title: []excelize.RichTextRun{{Text: b.title}},
	})
	if err != nil {
		return fmt.Errorf("add chart %q: %w", b.title, err)
	}
	return nil
}
