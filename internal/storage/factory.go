package storage

import (
	"fmt"
	"strings"
	"time"

	"github.com/LENAX/frame-scheduler/pkg/storage"
	"github.com/LENAX/frame-scheduler/pkg/storage/mysql"
	"github.com/LENAX/frame-scheduler/pkg/storage/postgres"
	pkgsqlite "github.com/LENAX/frame-scheduler/pkg/storage/sqlite"
)

// PoolOptions 连接池配置（内部使用）
type PoolOptions struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewTraceRepository 创建执行轨迹Repository（内部方法）
// dbType: 数据库类型（sqlite/mysql/postgres）
// dsn: 数据库连接字符串
func NewTraceRepository(dbType, dsn string, pool PoolOptions) (storage.TraceRepository, error) {
	var (
		repo *storage.SQLTraceRepo
		err  error
	)
	switch dbType {
	case "sqlite", "sqlite3":
		repo, err = pkgsqlite.NewTraceRepoFromDSN(dsn)
		if err != nil {
			return nil, err
		}
		// 内存库已固定单连接
		if !strings.Contains(dsn, ":memory:") {
			applyPool(repo, pool)
		}
		return repo, nil
	case "mysql":
		repo, err = mysql.NewTraceRepoFromDSN(dsn)
	case "postgres", "postgresql":
		repo, err = postgres.NewTraceRepoFromDSN(dsn)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", dbType)
	}
	if err != nil {
		return nil, err
	}
	applyPool(repo, pool)
	return repo, nil
}

func applyPool(repo *storage.SQLTraceRepo, pool PoolOptions) {
	db := repo.GetDB()
	if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}
}
