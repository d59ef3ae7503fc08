// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package objectstore 提供 artifact.ObjectStore 的具体实现。

# 后端

  - FileStore: 本地目录，键映射为相对路径
  - HTTPStore: GET {base}/{key}，404 视为对象不存在
  - RedisStore: 字符串键 {prefix}{key}

# 包装

Decompressing 按帧魔数识别 zstd 与 LZ4 负载并解压；WithTimeout 为
每次下载设置超时。New 根据 config.Config 组合上述实现。
*/
package objectstore
