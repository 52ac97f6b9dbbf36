// Package sites 汇总内置站点，构造默认的 provider 注册表。
package sites

import (
	"github.com/John-Robertt/gavdener/internal/provider"
	"github.com/John-Robertt/gavdener/internal/provider/javbus"
	"github.com/John-Robertt/gavdener/internal/provider/javdb"
)

// Fallback 是未知站点名回退到的站点。
const Fallback = javbus.Name

// Registry 返回注册了全部内置站点的注册表。
func Registry() *provider.Registry {
	r := provider.NewRegistry(Fallback)
	// 内置名称固定且不重复，Register 不会失败。
	_ = r.Register(javbus.Name, javbus.New)
	_ = r.Register(javdb.Name, javdb.New)
	return r
}
