// Package extract 把“字段 → 选择器策略”的规则表作用到一份 HTML 上。
//
// 约束：
// - 每条规则都可能失败，失败即字段缺失（返回 domain.Absent），绝不 panic/返回 error
// - 纯函数：相同字节输入 => 相同输出；不缓存、不共享文档树
package extract

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/John-Robertt/moviemeter/internal/domain"
)

// Parse 把字节解析为可导航的文档树。
// 空输入或解析失败返回 ok=false（上层视为“所有字段缺失”）。
func Parse(b []byte) (*goquery.Document, bool) {
	if len(bytes.TrimSpace(b)) == 0 {
		return nil, false
	}
	root, err := html.Parse(bytes.NewReader(b))
	if err != nil || root == nil {
		return nil, false
	}
	return goquery.NewDocumentFromNode(root), true
}

// Strategy 在文档内定位一个字段。
type Strategy interface {
	Resolve(doc *goquery.Document) domain.Field
}

// Rule 把一个输出列绑定到一种定位策略。
type Rule struct {
	Field    string
	Strategy Strategy
}

// Rules 是抽取规则表；站点结构变化时只需要改表，不需要改流程。
type Rules []Rule

// Apply 逐条执行规则；每条规则相互独立。
func (rs Rules) Apply(doc *goquery.Document) domain.Extraction {
	var out domain.Extraction
	if doc == nil {
		return out
	}
	for _, r := range rs {
		if r.Strategy == nil {
			continue
		}
		out.Set(r.Field, r.Strategy.Resolve(doc))
	}
	return out
}

// Extract = Parse + Apply。
func (rs Rules) Extract(b []byte) domain.Extraction {
	doc, ok := Parse(b)
	if !ok {
		return domain.Extraction{}
	}
	return rs.Apply(doc)
}

// Global 在整份文档中取第一个匹配节点的文本。
type Global struct {
	Match cascadia.Selector
	Trim  bool
}

func (g Global) Resolve(doc *goquery.Document) domain.Field {
	if doc == nil || g.Match == nil {
		return domain.Absent()
	}
	s := doc.FindMatcher(g.Match).First()
	if s.Length() == 0 {
		return domain.Absent()
	}
	return textField(s, g.Trim)
}

// Anchored 先定位锚点，再按位置取锚点的直接子节点作为目标块，最后在目标块内查找。
//
// 任一步找不到都返回缺失：锚点不存在、直接子节点数量不足、目标块内无匹配。
// 不尝试任何替代路径。
type Anchored struct {
	Anchor     cascadia.Selector
	ChildTag   string // 直接子节点的标签名（非递归）
	ChildIndex int

	Inner cascadia.Selector
	// Then 非空时在 Inner 的第一个匹配内继续查找（例如 h1 内的 span）。
	Then cascadia.Selector
	Trim bool
}

func (a Anchored) Resolve(doc *goquery.Document) domain.Field {
	block, ok := a.Block(doc)
	if !ok || a.Inner == nil {
		return domain.Absent()
	}
	s := block.FindMatcher(a.Inner).First()
	if s.Length() == 0 {
		return domain.Absent()
	}
	if a.Then != nil {
		s = s.FindMatcher(a.Then).First()
		if s.Length() == 0 {
			return domain.Absent()
		}
	}
	return textField(s, a.Trim)
}

// Block 返回目标块；ok=false 表示锚点缺失或直接子节点不足。
func (a Anchored) Block(doc *goquery.Document) (*goquery.Selection, bool) {
	if doc == nil || a.Anchor == nil || a.ChildIndex < 0 {
		return nil, false
	}
	anchor := doc.FindMatcher(a.Anchor).First()
	if anchor.Length() == 0 {
		return nil, false
	}
	children := anchor.Children()
	if a.ChildTag != "" {
		children = children.FilterFunction(func(_ int, s *goquery.Selection) bool {
			return goquery.NodeName(s) == a.ChildTag
		})
	}
	if children.Length() <= a.ChildIndex {
		return nil, false
	}
	return children.Eq(a.ChildIndex), true
}

func textField(s *goquery.Selection, trim bool) domain.Field {
	t := s.Text()
	if trim {
		t = strings.TrimSpace(t)
	}
	return domain.Present(t)
}
