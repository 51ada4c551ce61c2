// reader.go
package file

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/tealeg/xlsx"
)

// ErrNoSheets 工作簿里没有任何工作表
var ErrNoSheets = errors.New("workbook has no sheets")

// Sheet 一个工作表的原始内容, 第一行作为表头
type Sheet struct {
	Name   string
	Header []string
	Rows   [][]string
}

// ReadWorkbook 读取工作簿里的全部工作表
func ReadWorkbook(filePath string) ([]Sheet, error) {
	if _, err := os.Stat(filePath); err != nil {
		return nil, fmt.Errorf("stat workbook %s: %w", filePath, err)
	}
	xlFile, err := xlsx.OpenFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("xlsx open file %s: %w", filePath, err)
	}
	return convertWorkbook(xlFile)
}

// ReadWorkbookBinary 从内存读取工作簿(邮件附件)
func ReadWorkbookBinary(data []byte) ([]Sheet, error) {
	xlFile, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, fmt.Errorf("xlsx open binary: %w", err)
	}
	return convertWorkbook(xlFile)
}

func convertWorkbook(xlFile *xlsx.File) ([]Sheet, error) {
	if len(xlFile.Sheets) == 0 {
		return nil, ErrNoSheets
	}

	sheets := make([]Sheet, 0, len(xlFile.Sheets))
	for _, s := range xlFile.Sheets {
		sheets = append(sheets, convertSheet(s))
	}
	return sheets, nil
}

// convertSheet 将xlsx.Sheet转换为 Sheet
// 单元格取原始值, 日期单元格保留Excel序列号, 由时间解析统一处理
func convertSheet(sheet *xlsx.Sheet) Sheet {
	out := Sheet{Name: sheet.Name}
	if len(sheet.Rows) == 0 {
		return out
	}

	for i, cell := range sheet.Rows[0].Cells {
		name := ""
		if cell != nil {
			name = strings.TrimSpace(cell.Value)
		}
		if name == "" {
			name = fmt.Sprintf("unnamed_%d", i)
		}
		out.Header = append(out.Header, name)
	}

	// 填充数据(从第二行开始), 按表头宽度补齐或截断
	for _, row := range sheet.Rows[1:] {
		if row == nil {
			continue
		}
		values := make([]string, len(out.Header))
		empty := true
		for i, cell := range row.Cells {
			if i >= len(values) || cell == nil {
				continue
			}
			values[i] = cell.Value
			if strings.TrimSpace(cell.Value) != "" {
				empty = false
			}
		}
		if empty {
			continue
		}
		out.Rows = append(out.Rows, values)
	}
	return out
}

// Column 返回指定表头所在的列, 不存在返回 nil
func (s Sheet) Column(name string) []string {
	for i, h := range s.Header {
		if h != name {
			continue
		}
		col := make([]string, len(s.Rows))
		for r, row := range s.Rows {
			col[r] = row[i]
		}
		return col
	}
	return nil
}
