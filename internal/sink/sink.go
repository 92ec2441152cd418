// Package sink 把完整记录追加写入 CSV 文件。
//
// 文件格式：UTF-8、逗号分隔、双引号最小化引用、每条记录一行（\n）、无表头；
// 列顺序固定为 title, release_date, rating, synopsis。
package sink

import (
	"bytes"
	"encoding/csv"
	"errors"
	"strings"

	"github.com/John-Robertt/moviemeter/internal/domain"
	"github.com/John-Robertt/moviemeter/internal/infra/fsx"
)

const DefaultPath = "movies.csv"

// Appender 追加一条记录。实现不要求并发安全：只由 Drain 的单个 goroutine 调用。
type Appender interface {
	Append(rec domain.Record) error
}

// CSVFile 以 open-append-close 的方式写入一个 CSV 文件。
type CSVFile struct {
	Path string
}

var _ Appender = CSVFile{}

func New(path string) CSVFile {
	path = strings.TrimSpace(path)
	if path == "" {
		path = DefaultPath
	}
	return CSVFile{Path: path}
}

func (f CSVFile) Append(rec domain.Record) error {
	b, err := Encode(rec)
	if err != nil {
		return err
	}
	return fsx.AppendFile(f.Path, b)
}

// Encode 把一条记录编码为完整的一行 CSV（含行尾换行）。
func Encode(rec domain.Record) ([]byte, error) {
	row := rec.Row()
	if len(row) != len(domain.Columns) {
		return nil, errors.New("记录列数不符合输出约定")
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(row); err != nil {
		return nil, err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Drain 是输出文件的唯一写入者：顺序消费 in 直到其关闭。
//
// 每条记录写完（成功或失败）都会调用 done；单条失败不影响后续记录。
// 返回成功写入的条数。
func Drain(in <-chan domain.Record, a Appender, done func(rec domain.Record, err error)) int {
	written := 0
	for rec := range in {
		err := a.Append(rec)
		if err == nil {
			written++
		}
		if done != nil {
			done(rec, err)
		}
	}
	return written
}
