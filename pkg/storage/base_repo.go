package storage

import "errors"

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("记录不存在")

// BaseRepository 通用存储接口（对外导出）
// 所有Repository都嵌入此接口，统一资源释放方式
type BaseRepository interface {
	// Close 关闭底层连接
	Close() error
}

// Dialect SQL方言接口（对外导出）
// 屏蔽sqlite/postgres/mysql之间的DDL与UPSERT差异
type Dialect interface {
	// Name 方言名称，同时作为sqlx驱动名
	Name() string
	// DriverName database/sql注册的驱动名
	DriverName() string
	// UpsertSQL 生成命名参数形式的UPSERT语句
	UpsertSQL(tableName string, columns []string, conflictColumn string, updateColumns []string) string
	// CreateTableSQL 把通用DDL转换为方言DDL
	CreateTableSQL(schema string) string
	// ConfigureDB 连接建立后执行的配置语句
	ConfigureDB() []string
}
