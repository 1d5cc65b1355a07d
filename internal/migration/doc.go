// Copyright (c) Nexus Authors.
// Licensed under the MIT License.

/*
包 migration 管理 search_cache 表的 Schema 迁移，支持 PostgreSQL、
MySQL 与 SQLite，基于 golang-migrate 实现。

# 概述

各方言的 SQL 迁移文件通过 embed.FS 内嵌在二进制中。生产环境使用
`nexus migrate up` 建表；开发环境也可以由缓存层在启动时 AutoMigrate。

# 核心类型

  - Migrator / DefaultMigrator：Up、Down、DownAll、Force、Version、
    Status、Info。
  - CLI：面向终端的格式化输出。
  - NewMigratorFromConfig / NewMigratorWithDB：从应用配置或已有连接创建。
*/
package migration
