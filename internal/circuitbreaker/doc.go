/*
Package circuitbreaker 为外部检索服务提供熔断保护。

连续失败达到 Threshold 后进入 Open，ResetTimeout 内的调用直接返回
[ErrOpen]，由检索器按既有降级路径处理（空结果）。之后进入 HalfOpen，
放行 HalfOpenMaxCalls 个试探调用：成功则 Closed，失败则重新 Open。

调用方取消与 4xx 客户端错误（429 除外）不计入失败，见 [IsFailure]。
*/
package circuitbreaker
