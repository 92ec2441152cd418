package provider

import (
	"errors"

	"github.com/John-Robertt/moviemeter/internal/domain"
)

// Provider 把“站点结构”限制在 provider 包内部；核心流程只依赖统一接口与稳定的 domain 类型。
//
// 约束：
// - 不做网络请求（抓取由 httpx.Fetcher 统一实现）
// - ParseIndex/ParseDetail 必须是纯函数：相同输入 => 相同输出
// - ParseDetail 不返回 error：字段缺失体现在 domain.Extraction 中
type Provider interface {
	Name() string
	// IndexURL 是榜单页地址（单次抓取，失败即整次运行失败）。
	IndexURL() string
	ParseIndex(html []byte) ([]domain.ItemRef, error)
	ParseDetail(html []byte) domain.Extraction
}

// ErrIndexLayout 表示榜单页中找不到条目列表（结构变化或返回了非榜单页）。
var ErrIndexLayout = errors.New("榜单页结构不符合预期")
