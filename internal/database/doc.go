// Copyright (c) Nexus Authors.
// Licensed under the MIT License.

/*
包 database 负责打开搜索缓存所用的关系型数据库，并管理连接池。

# 概述

Open 按配置选择 GORM 方言（sqlite、postgres、mysql）建立连接；
PoolManager 设置连接池参数，后台定时探活并把 sql.DBStats
交给统计回调（通常是 metrics.Collector.RecordDBStats）。

# 核心类型

  - PoolManager：持有 GORM DB 与底层 sql.DB，提供 Ping、Stats、Close。
  - PoolConfig：最大连接数、空闲连接数、生命周期与探活间隔。
*/
package database
