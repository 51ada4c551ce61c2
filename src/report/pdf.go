package report

import (
	"fmt"
	"io"
	"strconv"

	"FlightScheduleOptimizer/src/processor"

	"github.com/jung-kurt/gofpdf"
)

// 横版A4上并排三个图表面板
var (
	PanelWidth   = 88.0
	PanelHeight  = 120.0
	PanelOffsetX = 10.0
	PanelGap     = 6.5
	PanelOffsetY = 30.0

	BarColor  = []int{0x1F, 0x77, 0xB4}
	LineColor = []int{0xFF, 0x7F, 0x0E}
)

type panel struct {
	title  string
	points []processor.Point
	line   bool
}

// WriteChartsPDF 把看板上的三张图渲染成一页PDF
func WriteChartsPDF(w io.Writer, title string, charts processor.Charts) error {
	pdf := gofpdf.New("L", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.MoveTo(PanelOffsetX, 10)
	pdf.Cell(200, 10, tr(title))

	panels := []panel{
		{"Top 5 Delayed Flights", charts.TopDelayed, false},
		{"Flights Distribution by Hour", charts.FlightsByHour, true},
		{"Average Delay by Airline", charts.DelayByAirline, false},
	}
	for i, p := range panels {
		x := PanelOffsetX + float64(i)*(PanelWidth+PanelGap)
		drawPanel(pdf, tr, x, PanelOffsetY, p)
	}

	if err := pdf.Error(); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	return pdf.Output(w)
}

func drawPanel(pdf *gofpdf.Fpdf, tr func(string) string, x, y float64, p panel) {
	pdf.SetFont("Helvetica", "B", 11)
	pdf.MoveTo(x, y-8)
	pdf.Cell(PanelWidth, 6, p.title)

	// 坐标框
	pdf.SetDrawColor(0x00, 0x00, 0x00)
	pdf.SetLineWidth(0.3)
	pdf.Line(x, y, x, y+PanelHeight)
	pdf.Line(x, y+PanelHeight, x+PanelWidth, y+PanelHeight)

	pdf.SetFont("Helvetica", "", 7)
	if len(p.points) == 0 {
		pdf.MoveTo(x+4, y+PanelHeight/2)
		pdf.Cell(PanelWidth-8, 5, "No data available.")
		return
	}

	maxVal := 0.0
	for _, pt := range p.points {
		if pt.Value > maxVal {
			maxVal = pt.Value
		}
	}
	if maxVal <= 0 {
		maxVal = 1
	}
	pdf.Text(x+1, y+3, formatValue(maxVal))

	slot := PanelWidth / float64(len(p.points))
	valueToY := func(v float64) float64 {
		if v < 0 {
			v = 0
		}
		return y + PanelHeight - (v/maxVal)*(PanelHeight-6)
	}

	var prevX, prevY float64
	for i, pt := range p.points {
		cx := x + slot*float64(i) + slot/2
		top := valueToY(pt.Value)

		if p.line {
			pdf.SetDrawColor(LineColor[0], LineColor[1], LineColor[2])
			pdf.SetLineWidth(0.6)
			if i > 0 {
				pdf.Line(prevX, prevY, cx, top)
			}
			pdf.SetFillColor(LineColor[0], LineColor[1], LineColor[2])
			pdf.Circle(cx, top, 0.8, "F")
			prevX, prevY = cx, top
		} else {
			pdf.SetFillColor(BarColor[0], BarColor[1], BarColor[2])
			pdf.Rect(cx-slot*0.35, top, slot*0.7, y+PanelHeight-top, "F")
		}

		pdf.Text(cx-pdf.GetStringWidth(formatValue(pt.Value))/2, top-1, formatValue(pt.Value))
		label := tr(truncate(pt.Label, 14))
		pdf.Text(cx-pdf.GetStringWidth(label)/2, y+PanelHeight+4, label)
	}
}

func formatValue(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', 1, 64)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "."
}
