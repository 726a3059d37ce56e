// Package locale holds the operator-facing message catalog.
//
// Messages are keyed by their English text; the Simplified Chinese
// translations match the strings of the LuCI uninstall page.
package locale

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var supported = []language.Tag{
	language.English,
	language.SimplifiedChinese,
}

var matcher = language.NewMatcher(supported)

var simplifiedChinese = map[string]string{
	"Uninstall Packages":                             "卸载软件包",
	"Remove package %s?":                             "确定卸载包 %s ？",
	"Configuration files will also be removed.":      "同时删除配置文件。",
	"Packages depending on it will also be removed.": "同时卸载依赖它的软件包。",
	"Removing %s…":                                   "正在卸载 %s…",
	"Package %s removed":                             "%s 卸载成功",
	"Removal failed":                                 "卸载失败",
	"Request failed: %v":                             "请求失败: %v",
	"Failed to load package list: %v":                "加载软件包列表失败: %v",
	"No packages match the filter.":                  "没有匹配的软件包。",
	"No packages installed.":                         "没有已安装的软件包。",
	"Filter package names…":                          "筛选包名…",
	"Remove configuration files":                     "删除配置文件",
	"Remove dependent packages":                      "同时卸载依赖",
	"Select a package to uninstall":                  "选择要卸载的已安装软件包",
	"Quit":                                           "退出",
	"new":                                            "新",
	"Removal cancelled.":                             "已取消卸载。",
	"Select installed packages to uninstall.":        "选择要卸载的已安装软件包。可选地同时删除其配置文件。",
	"%d packages":                                    "%d 个软件包",
	"Installed: %s":                                  "已安装：%s",
	"Removed: %s":                                    "已卸载：%s",
	"Yes":                                            "是",
	"No":                                             "否",
}

func init() {
	for key, msg := range simplifiedChinese {
		_ = message.SetString(language.SimplifiedChinese, key, msg)
	}
}

// Tag resolves a locale string such as "zh-cn" or "en_US" to a supported
// language. Unknown or empty locales resolve to English.
func Tag(locale string) language.Tag {
	tag, err := language.Parse(normalize(locale))
	if err != nil {
		return language.English
	}
	_, idx, conf := matcher.Match(tag)
	if conf == language.No {
		return language.English
	}
	return supported[idx]
}

// Printer returns a message printer for the given locale.
func Printer(locale string) *message.Printer {
	return message.NewPrinter(Tag(locale))
}

func normalize(locale string) string {
	b := []byte(locale)
	for i, c := range b {
		if c == '_' {
			b[i] = '-'
		}
	}
	return string(b)
}
