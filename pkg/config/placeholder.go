package config

import (
	"fmt"
	"sort"
	"strings"
)

// ReplacePlaceholder 替换单个占位符字符串
// value形如${name}时从vars中取值，返回替换后的字符串和是否成功替换
func ReplacePlaceholder(value string, vars map[string]string) (string, bool) {
	name, ok := placeholderName(value)
	if !ok {
		return value, false
	}
	actual, exists := vars[name]
	if !exists {
		return value, false
	}
	return actual, true
}

// placeholderName 提取占位符名称（去除${和}）
func placeholderName(value string) (string, bool) {
	if !strings.HasPrefix(value, "${") || !strings.HasSuffix(value, "}") {
		return "", false
	}
	name := strings.TrimSuffix(strings.TrimPrefix(value, "${"), "}")
	return name, name != ""
}

// ExpandParams 用清单变量替换任务参数中的占位符，返回新的参数表
// 存在未定义的占位符时返回错误，错误中按名称排序列出
func ExpandParams(params, vars map[string]string) (map[string]string, error) {
	if len(params) == 0 {
		return params, nil
	}
	out := make(map[string]string, len(params))
	var unresolved []string
	for key, value := range params {
		replaced, ok := ReplacePlaceholder(value, vars)
		if !ok {
			if name, isPlaceholder := placeholderName(value); isPlaceholder {
				unresolved = append(unresolved, name)
			}
		}
		out[key] = replaced
	}
	if len(unresolved) > 0 {
		sort.Strings(unresolved)
		return nil, fmt.Errorf("以下占位符未找到对应的变量: %v", unresolved)
	}
	return out, nil
}
