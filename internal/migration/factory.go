package migration

import (
	"fmt"

	appconfig "github.com/BaSui01/nexus/config"
)

// NewMigratorFromConfig 从应用配置创建迁移器
func NewMigratorFromConfig(cfg *appconfig.Config) (*DefaultMigrator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	return NewMigratorFromDatabaseConfig(cfg.Database)
}

// NewMigratorFromDatabaseConfig 从数据库配置创建迁移器
func NewMigratorFromDatabaseConfig(dbCfg appconfig.DatabaseConfig) (*DefaultMigrator, error) {
	dbType, err := ParseDatabaseType(dbCfg.Driver)
	if err != nil {
		return nil, fmt.Errorf("invalid database type: %w", err)
	}

	return NewMigrator(&Config{
		DatabaseType: dbType,
		DatabaseURL:  DatabaseURLFromConfig(dbType, dbCfg),
		TableName:    "schema_migrations",
	})
}

// DatabaseURLFromConfig 由数据库配置拼接迁移使用的连接串
func DatabaseURLFromConfig(dbType DatabaseType, dbCfg appconfig.DatabaseConfig) string {
	switch dbType {
	case DatabaseTypePostgres:
		return BuildDatabaseURL(dbType, dbCfg.Host, dbCfg.Port, dbCfg.Name, dbCfg.User, dbCfg.Password, dbCfg.SSLMode)
	case DatabaseTypeMySQL:
		return BuildDatabaseURL(dbType, dbCfg.Host, dbCfg.Port, dbCfg.Name, dbCfg.User, dbCfg.Password, "")
	default:
		// sqlite 下 Name 为文件路径
		return BuildDatabaseURL(dbType, "", 0, dbCfg.Name, "", "", "")
	}
}
