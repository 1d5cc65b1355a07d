// Package cache 提供 Web 搜索结果的持久化缓存存储。
//
// 每条 Entry 以规范化查询的摘要（query_hash）为唯一键，写入采用
// upsert（后写者胜）。存储层只负责读写，是否过期由调用方按 ExpiresAt
// 判断；过期行不会被主动清理，直到同一键被覆盖写入（Redis 可配置保留时长）。
//
// 可用后端：SQLStore（gorm，sqlite/postgres/mysql）、RedisStore、
// MongoStore、MemoryStore。
package cache
