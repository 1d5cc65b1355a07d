// Package telemetry 封装 OpenTelemetry SDK 初始化，为 Nexus 提供
// TracerProvider 与 MeterProvider，并提供基于 OTel metric 的管线观察者。
// 遥测关闭时保持全局 noop 实现，不连接任何外部服务。
package telemetry
