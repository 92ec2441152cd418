package domain

// Field 是一个可缺失的文本字段。
// 缺失是正常结果（OK=false），不是错误。
type Field struct {
	Value string
	OK    bool
}

// Present 构造一个已解析的字段；空串视为缺失。
func Present(s string) Field {
	if s == "" {
		return Field{}
	}
	return Field{Value: s, OK: true}
}

// Absent 表示字段未解析到。
func Absent() Field { return Field{} }

// 固定列顺序：title, release_date, rating, synopsis。
const (
	FieldTitle       = "title"
	FieldReleaseDate = "release_date"
	FieldRating      = "rating"
	FieldSynopsis    = "synopsis"
)

// Columns 是输出文件的固定列顺序（无表头，仅作约定）。
var Columns = []string{FieldTitle, FieldReleaseDate, FieldRating, FieldSynopsis}

// Extraction 是对一个详情页的抽取结果；四个字段各自独立，可能部分缺失。
type Extraction struct {
	Title       Field
	ReleaseDate Field
	Rating      Field
	Synopsis    Field
}

// Set 按列名写入字段；未知列名忽略。
func (e *Extraction) Set(name string, f Field) {
	switch name {
	case FieldTitle:
		e.Title = f
	case FieldReleaseDate:
		e.ReleaseDate = f
	case FieldRating:
		e.Rating = f
	case FieldSynopsis:
		e.Synopsis = f
	}
}

// Get 按列名读取字段。
func (e Extraction) Get(name string) Field {
	switch name {
	case FieldTitle:
		return e.Title
	case FieldReleaseDate:
		return e.ReleaseDate
	case FieldRating:
		return e.Rating
	case FieldSynopsis:
		return e.Synopsis
	default:
		return Field{}
	}
}

// Resolved 返回已解析（非空）的字段数。
func (e Extraction) Resolved() int {
	n := 0
	for _, c := range Columns {
		if f := e.Get(c); f.OK && f.Value != "" {
			n++
		}
	}
	return n
}

// Record 只在四个字段全部解析时返回 ok=true；否则整条丢弃（不会产生短行）。
func (e Extraction) Record() (Record, bool) {
	if e.Resolved() != len(Columns) {
		return Record{}, false
	}
	return Record{
		Title:       e.Title.Value,
		ReleaseDate: e.ReleaseDate.Value,
		Rating:      e.Rating.Value,
		Synopsis:    e.Synopsis.Value,
	}, true
}

// Record 是输出的最小单位：四个字段都是原样文本（不解析日期/数字）。
type Record struct {
	Title       string
	ReleaseDate string
	Rating      string
	Synopsis    string
}

// Row 按固定列顺序返回一行。
func (r Record) Row() []string {
	return []string{r.Title, r.ReleaseDate, r.Rating, r.Synopsis}
}
