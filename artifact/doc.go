// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 artifact 提供带版本的模型产物加载与缓存能力。

# 概述

Loader 是对外门面：给定 (规格, 版本) 请求，依次完成缓存查询、本地版本解析、
远程拉取、摘要计算、权重加载、结构自检、缓存写入与当前版本登记，
失败时可回退到上一版本。所有失败都以 LoadError 返回，携带错误码、规格、
版本与失败阶段。

# 核心类型

  - Size / ArtifactConfig：封闭的规格枚举及编译期配置表
  - TTLCache：惰性过期的泛型内存缓存
  - Resolver：本地文件命名约定与自然序版本选择（v10 > v2）
  - Fetcher / ObjectStore：远程下载与原子落盘
  - Verifier：sha256 / blake3 摘要、可选固定摘要比对、前向自检
  - Runtime / Model：权重解析与前向计算契约
  - MetricsSink / ProgressHub：即发即忘的观测事件与进度广播
  - HotSwapWatcher：目录轮询，检测新版本并使 latest 缓存失效

# 并发模型

缓存与当前版本表由互斥锁保护，只在加载成功后更新。相同 (规格, 版本, 强制)
的并发请求默认通过 singleflight 共享一次流水线执行。远程拉取是唯一阻塞在外部
I/O 上的步骤，取消在每个进度检查点生效。
*/
package artifact
