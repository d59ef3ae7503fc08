// Package telemetry 封装 OpenTelemetry SDK 初始化逻辑，
// 为加载器提供 tracer 与基于 meter 的指标 sink。
// 当遥测功能禁用时，使用 noop 实现，不连接任何外部服务。
package telemetry
