// Package config 提供 patloader 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量 的顺序合并，
// 环境变量通过结构体 env 标签反射映射（前缀默认 PATLOADER）。
// Reloader 轮询配置文件，变更且校验通过后通知回调。
package config
