package domain

// ItemRef 是从榜单页解析出的一条详情页地址（绝对 URL）。
//
// 约束：不去重；榜单中出现两次就会抓取两次。
type ItemRef string
