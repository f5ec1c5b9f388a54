package sqlite

import (
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/LENAX/frame-scheduler/pkg/storage"
)

// NewTraceRepoFromDSN 通过DSN创建SQLite执行轨迹Repository（对外导出）
func NewTraceRepoFromDSN(dsn string) (*storage.SQLTraceRepo, error) {
	db, err := storage.OpenDB(NewSQLiteDialect(), dsn)
	if err != nil {
		return nil, err
	}
	// 内存库每个连接互相独立，只能保留一个连接
	if strings.Contains(dsn, ":memory:") {
		db.SetMaxOpenConns(1)
	}
	repo, err := storage.NewSQLTraceRepo(db, NewSQLiteDialect())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create sqlite repository failed: %w", err)
	}
	return repo, nil
}
