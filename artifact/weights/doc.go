// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package weights 提供 artifact.Runtime 的默认实现。

权重文件采用 safetensors 布局：8 字节小端头长度，JSON 头部
（张量名 -> dtype/shape/data_offsets，可选 __metadata__），随后是
小端原始数据。仅支持 F32。

PatchEmbedRuntime 按 ArtifactConfig 严格校验张量集合并构建 patch 嵌入
模型，用于加载后的前向自检。Synthesize 生成随机但结构合法的权重文件，
供命令行工具与测试使用。
*/
package weights
