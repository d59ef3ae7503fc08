// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集，覆盖 HTTP 请求与制品加载两个维度。

# 概述

Collector 使用 promauto 自动注册指标，所有指标按 namespace 隔离。
Collector 实现 artifact.MetricsSink，可直接作为 Loader 的 sink。

# 主要能力

  - HTTP 指标：请求总数、请求耗时、请求/响应体大小，
    按 method/path/status 分组，状态码归类为 2xx/3xx/4xx/5xx。
  - 加载指标：按 size/source/status/code 计数与耗时，以及最近一次加载进度。
  - 缓存指标：命中与未命中计数、条目数、估算内存。
  - 下载与校验：远程下载次数/耗时/字节数，校验和与前向校验计数。
  - 版本指标：current_version_info（每个 size 仅保留一个序列）、回退与热切换计数。
*/
package metrics
