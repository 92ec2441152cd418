package imdb

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"

	"github.com/John-Robertt/moviemeter/internal/domain"
	"github.com/John-Robertt/moviemeter/internal/extract"
	providerx "github.com/John-Robertt/moviemeter/internal/provider"
)

const (
	DefaultOrigin   = "https://imdb.com"
	DefaultIndexURL = "https://www.imdb.com/chart/moviemeter/?ref_=nv_mv_mpm"
)

// 站点结构选择器集中在这里；IMDb 改版时只需要改这一张表。
var (
	selPageSection = cascadia.MustCompile("section.ipc-page-section")
	selHeading     = cascadia.MustCompile("h1")
	selSpan        = cascadia.MustCompile("span")
	selReleaseLink = cascadia.MustCompile(`a[href*="releaseinfo"]`)
	selRating      = cascadia.MustCompile(`div[data-testid="hero-rating-bar__aggregate-rating__score"]`)
	selPlot        = cascadia.MustCompile(`span[data-testid="plot-xs_to_m"]`)

	selChartColumn = cascadia.MustCompile(`div[data-testid="chart-layout-main-column"]`)
	selList        = cascadia.MustCompile("ul")
	selLink        = cascadia.MustCompile("a[href]")
)

// DetailRules 是详情页的抽取规则表。
//
// title/release_date 依赖锚点 section 的第二个直接 div 子节点（位置选择，结构脆弱）；
// rating/synopsis 在整份文档中独立查找，不依赖锚点。
var DetailRules = extract.Rules{
	{Field: domain.FieldTitle, Strategy: extract.Anchored{
		Anchor: selPageSection, ChildTag: "div", ChildIndex: 1,
		Inner: selHeading, Then: selSpan,
	}},
	{Field: domain.FieldReleaseDate, Strategy: extract.Anchored{
		Anchor: selPageSection, ChildTag: "div", ChildIndex: 1,
		Inner: selReleaseLink, Trim: true,
	}},
	{Field: domain.FieldRating, Strategy: extract.Global{Match: selRating}},
	{Field: domain.FieldSynopsis, Strategy: extract.Global{Match: selPlot, Trim: true}},
}

// Provider 实现 IMDb 热度榜（MOVIEmeter）的榜单与详情页解析。
//
// 约束：
// - 不做网络请求；抓取由上层统一控制
// - ParseIndex/ParseDetail 必须是纯函数
type Provider struct {
	// Origin 用于把榜单中的相对链接拼成绝对地址；为空时使用 https://imdb.com。
	Origin string
	// Index 覆盖默认榜单地址（可选）。
	Index string
}

var _ providerx.Provider = Provider{}

func (Provider) Name() string { return "imdb" }

func (p Provider) IndexURL() string {
	if u := strings.TrimSpace(p.Index); u != "" {
		return u
	}
	return DefaultIndexURL
}

func (p Provider) origin() string {
	u := strings.TrimSpace(p.Origin)
	if u == "" {
		return DefaultOrigin
	}
	return strings.TrimRight(u, "/")
}

// ParseIndex 解析榜单页：容器 div → 第一个 ul → 直接 li 子节点 → 第一个链接。
// 不去重；没有链接的 li 跳过。
func (p Provider) ParseIndex(html []byte) ([]domain.ItemRef, error) {
	doc, ok := extract.Parse(html)
	if !ok {
		return nil, fmt.Errorf("%w：html 为空", providerx.ErrIndexLayout)
	}
	column := doc.FindMatcher(selChartColumn).First()
	if column.Length() == 0 {
		return nil, fmt.Errorf("%w：未找到 chart-layout-main-column", providerx.ErrIndexLayout)
	}
	list := column.FindMatcher(selList).First()
	if list.Length() == 0 {
		return nil, fmt.Errorf("%w：未找到条目列表 ul", providerx.ErrIndexLayout)
	}

	base := p.origin()
	var refs []domain.ItemRef
	list.ChildrenFiltered("li").Each(func(_ int, li *goquery.Selection) {
		href, ok := li.FindMatcher(selLink).First().Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}
		refs = append(refs, domain.ItemRef(resolveURL(base, href)))
	})
	return refs, nil
}

// ParseDetail 按 DetailRules 抽取四个字段；缺失字段不报错。
func (Provider) ParseDetail(html []byte) domain.Extraction {
	return DetailRules.Extract(html)
}

func resolveURL(base, href string) string {
	href = strings.TrimSpace(href)
	if strings.HasPrefix(href, "//") {
		return "https:" + href
	}
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	if strings.HasPrefix(href, "/") {
		return base + href
	}
	bu, err := url.Parse(base + "/")
	if err != nil {
		return base + "/" + href
	}
	ru, err := url.Parse(href)
	if err != nil {
		return base + "/" + href
	}
	return bu.ResolveReference(ru).String()
}
