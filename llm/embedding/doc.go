/*
包 embedding 提供查询向量化接口与 OpenAI 实现，供知识库检索在相似度
搜索前将查询文本转换为向量。

# 核心类型

  - Provider：Embed / EmbedQuery / Name
  - OpenAIProvider：调用 /v1/embeddings，默认模型 text-embedding-3-small
  - BaseProvider：共享的 HTTP 请求与错误映射（llm.MapHTTPError）
*/
package embedding
