package utils

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/go-gota/gota/dataframe"
)

// TimeLayout 表中时间列统一的字符串格式
const TimeLayout = "2006-01-02 15:04:05"

// 支持的时间格式, 月、日、时允许不补零
var timeFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-1-2T15:04:05",
	"2006-1-2T15:04",
	"2006-1-2 15:04:05",
	"2006-1-2 15:04",
	"2006-1-2 3:04 PM",
	"2006-1-2",
	"2006/1/2 15:04:05",
	"2006/1/2 15:04",
	"2006/1/2",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"1/2/2006 3:04:05 PM",
	"1/2/2006 3:04 PM",
	"1/2/2006",
	"1-2-2006 15:04:05",
	"1-2-2006 15:04",
	"1-2-2006",
	"Jan 2, 2006 15:04:05",
	"Jan 2, 2006 15:04",
	"Jan 2, 2006 3:04 PM",
	"Jan 2, 2006",
	"January 2, 2006 15:04:05",
	"January 2, 2006 15:04",
	"January 2, 2006",
	"2-Jan-2006 15:04:05",
	"2-Jan-2006 15:04",
	"2-Jan-2006",
	"2 Jan 2006 15:04:05",
	"2 Jan 2006 15:04",
	"2 Jan 2006",
}

// Excel 1900日期系统的零点(已包含1900年闰年错误的偏移)
var excelEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// MaxExcelSerial Excel 能表示的最后一天 9999-12-31
const MaxExcelSerial = 2958465

func Contains[T comparable](slice []T, item T) bool {
	for _, v := range slice {
		if v == item {
			return true
		}
	}
	return false
}

// HasColumn 判断DataFrame是否有某列
func HasColumn(df dataframe.DataFrame, name string) bool {
	for _, n := range df.Names() {
		if n == name {
			return true
		}
	}
	return false
}

// NormalizeColumnName 去空格、小写、空格替换为下划线
func NormalizeColumnName(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}

// IsMissing 空串或常见的缺失值标记
func IsMissing(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "nan", "nat", "null", "none", "<nil>":
		return true
	}
	return false
}

// ParseFloat 解析数字, 失败返回 false
func ParseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// ParseTime 尝试多种时间格式, 纯数字只在Excel日期范围内按序列日期处理
// yyyymmdd 整数、Unix时间戳等超出范围的数字视为无法解析
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if IsMissing(s) || s == "0" {
		return time.Time{}, false
	}

	for _, format := range timeFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t, true
		}
	}

	if v, ok := ParseFloat(s); ok && v > 0 && v <= MaxExcelSerial {
		return ExcelSerialToTime(v), true
	}
	return time.Time{}, false
}

// ExcelSerialToTime Excel序列日期转time.Time, 精确到秒
func ExcelSerialToTime(serial float64) time.Time {
	days := math.Floor(serial)
	seconds := math.Round((serial - days) * 86400)
	return excelEpoch.AddDate(0, 0, int(days)).Add(time.Duration(seconds) * time.Second)
}

// Naive 保留墙上时间, 去掉时区并截断到秒
func Naive(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
}

// FormatTime 按 TimeLayout 输出
func FormatTime(t time.Time) string {
	return t.Format(TimeLayout)
}
