// Package config 提供 Nexus 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → NEXUS_* 环境变量 的顺序叠加，
// 并兼容 OPENAI_API_KEY / TAVILY_API_KEY 通用变量。
// RequireCredentials 在启动期报告缺失的外部服务凭证。
package config
