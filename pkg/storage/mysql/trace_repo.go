package mysql

import (
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"

	"github.com/LENAX/frame-scheduler/pkg/storage"
)

// NewTraceRepoFromDSN 通过DSN创建MySQL执行轨迹Repository（对外导出）
// dsn格式: user:password@tcp(host:port)/dbname?parseTime=true
func NewTraceRepoFromDSN(dsn string) (*storage.SQLTraceRepo, error) {
	// 确保DSN包含parseTime=true
	if !strings.Contains(dsn, "parseTime=true") {
		if strings.Contains(dsn, "?") {
			dsn += "&parseTime=true"
		} else {
			dsn += "?parseTime=true"
		}
	}
	db, err := storage.OpenDB(NewMySQLDialect(), dsn)
	if err != nil {
		return nil, err
	}
	repo, err := storage.NewSQLTraceRepo(db, NewMySQLDialect())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create mysql repository failed: %w", err)
	}
	return repo, nil
}
