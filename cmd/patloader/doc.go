// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 patloader 程序入口。

# 概述

cmd/patloader 是模型产物加载器的可执行入口，提供管理 HTTP 服务、
一次性加载、合成测试权重、发布产物到远程存储、健康检查和版本查询等子命令。
程序支持 YAML 配置文件加载、结构化日志（zap）、Prometheus 指标采集、
OpenTelemetry 追踪以及配置文件热重载。

# 核心类型

  - Server: 管理服务器，负责加载器栈、HTTP 与 Metrics 双端口及优雅关闭
  - Middleware: HTTP 中间件函数签名 func(http.Handler) http.Handler
  - loaderStack: 远程存储、版本历史数据库与 Loader 的组合

# 主要能力

  - 子命令：serve、load、synth、publish、version、health
  - 中间件链：Recovery、RequestID、SecurityHeaders、OTelTracing、
    MetricsMiddleware、RequestLogger、RateLimiter（基于 IP）
  - 产物热替换：HotSwapWatcher 轮询产物目录并重新加载最新版本
  - 配置重载：config.Reloader 监听配置文件，日志级别即时生效
  - 预加载：启动后在后台加载 artifacts.preload 中的规格
  - Metrics 服务器：独立端口暴露 /metrics（Prometheus）
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
