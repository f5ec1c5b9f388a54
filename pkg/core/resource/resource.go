// Package resource 描述任务共享的数据槽以及读写访问声明
package resource

import (
	"fmt"
	"strings"
)

// ID 资源标识（对外导出）
type ID string

// AccessMode 访问模式（对外导出）
type AccessMode int

const (
	// Read 共享读，多个读可以并发
	Read AccessMode = iota
	// Write 独占写，与同一资源上的任何其他访问互斥
	Write
)

// String 返回访问模式名称
func (m AccessMode) String() string {
	switch m {
	case Read:
		return "read"
	case Write:
		return "write"
	default:
		return fmt.Sprintf("AccessMode(%d)", int(m))
	}
}

// ParseAccessMode 解析访问模式字符串（对外导出）
func ParseAccessMode(s string) (AccessMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "read", "r":
		return Read, nil
	case "write", "w":
		return Write, nil
	default:
		return Read, fmt.Errorf("未知的访问模式: %s", s)
	}
}

// Access 单个资源访问声明（对外导出）
type Access struct {
	Resource ID
	Mode     AccessMode
}

// ReadOf 构造读声明
func ReadOf(id ID) Access { return Access{Resource: id, Mode: Read} }

// WriteOf 构造写声明
func WriteOf(id ID) Access { return Access{Resource: id, Mode: Write} }

func (a Access) String() string {
	return fmt.Sprintf("%s(%s)", a.Mode, a.Resource)
}

// Conflicts 判断两个访问是否冲突：同一资源且至少一方为写
func Conflicts(a, b Access) bool {
	return a.Resource == b.Resource && (a.Mode == Write || b.Mode == Write)
}

// FirstConflict 返回两组访问声明之间第一个冲突的资源（按a的声明顺序）
func FirstConflict(a, b []Access) (ID, bool) {
	for _, x := range a {
		for _, y := range b {
			if Conflicts(x, y) {
				return x.Resource, true
			}
		}
	}
	return "", false
}

// Normalize 合并重复声明（同一资源只保留一条，写优先），保持首次出现的顺序
func Normalize(accesses []Access) []Access {
	if len(accesses) == 0 {
		return nil
	}
	pos := make(map[ID]int, len(accesses))
	out := make([]Access, 0, len(accesses))
	for _, a := range accesses {
		if i, ok := pos[a.Resource]; ok {
			if a.Mode == Write {
				out[i].Mode = Write
			}
			continue
		}
		pos[a.Resource] = len(out)
		out = append(out, a)
	}
	return out
}

// Declares 判断声明列表是否允许以mode访问id
// 声明写时同时允许读
func Declares(accesses []Access, id ID, mode AccessMode) bool {
	for _, a := range accesses {
		if a.Resource != id {
			continue
		}
		if mode == Read || a.Mode == Write {
			return true
		}
	}
	return false
}
