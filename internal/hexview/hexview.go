// Package hexview 十六进制视图格式化
package hexview

import (
	"fmt"
	"strings"
)

const (
	// MaxBytes 视图最多展示的字节数
	MaxBytes = 4096
	// BytesPerRow 每行字节数
	BytesPerRow = 16
)

// Row 一行十六进制视图
type Row struct {
	Offset string `json:"offset"`
	Hex    string `json:"hex"`
	ASCII  string `json:"ascii"`
}

// Rows 仅格式化前 MaxBytes 字节，每行 16 字节
func Rows(buf []byte) []Row {
	if len(buf) > MaxBytes {
		buf = buf[:MaxBytes]
	}

	rows := make([]Row, 0, (len(buf)+BytesPerRow-1)/BytesPerRow)
	for off := 0; off < len(buf); off += BytesPerRow {
		end := off + BytesPerRow
		if end > len(buf) {
			end = len(buf)
		}
		rows = append(rows, formatRow(off, buf[off:end]))
	}
	return rows
}

func formatRow(offset int, chunk []byte) Row {
	groups := make([]string, BytesPerRow)
	var ascii strings.Builder

	for i := 0; i < BytesPerRow; i++ {
		if i >= len(chunk) {
			groups[i] = "  "
			continue
		}
		b := chunk[i]
		groups[i] = fmt.Sprintf("%02X", b)
		if b >= 32 && b <= 126 {
			ascii.WriteByte(b)
		} else {
			ascii.WriteByte('.')
		}
	}

	return Row{
		Offset: fmt.Sprintf("%08X", offset),
		Hex:    strings.Join(groups, " "),
		ASCII:  ascii.String(),
	}
}

// Format 渲染为文本，每行 "OFFSET  HEX  |ASCII|"
func Format(buf []byte) string {
	var sb strings.Builder
	for _, row := range Rows(buf) {
		fmt.Fprintf(&sb, "%s  %s  |%s|\n", row.Offset, row.Hex, row.ASCII)
	}
	return sb.String()
}
