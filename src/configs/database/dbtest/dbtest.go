// Package dbtest 为测试提供迁移完毕的内存 sqlite 数据库
package dbtest

import (
	"fmt"
	"sync/atomic"

	"qa-compass-server/src/configs"
	"qa-compass-server/src/configs/database"
	"qa-compass-server/src/models"

	"gorm.io/gorm"
)

var seq atomic.Int64

// New 每次调用返回独立的内存库，已创建写库与旧系统表
func New() (*gorm.DB, error) {
	dsn := fmt.Sprintf("file:qa_test_%d?mode=memory&cache=shared&_foreign_keys=on", seq.Add(1))
	db, err := database.Open(configs.DBConfig{Dialect: "sqlite", DSN: dsn, MaxOpenConns: 1})
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db, append(models.WriteModels(), models.LegacyModels()...)...); err != nil {
		return nil, err
	}
	return db, nil
}
