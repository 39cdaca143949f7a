// Package movierec 是一个基于用户-物品评分的电影推荐引擎。
//
// 设计要点：
// - 两种推荐策略：cluster（k-means 同簇用户评分求和）与 neighbor（余弦相似度加权平均）
// - Pipeline-first: 每个策略都是 Node 链（recall → filter → rerank.sort → rerank.topn），可通过配置插入过滤
// - 评分数据是不可变快照，训练结果原子发布，推荐请求可并发执行
//
// 包结构：
//
//	store       评分快照、KV 存储（内存 / Redis）
//	similarity  共同物品上的余弦相似度
//	cluster     k-means 聚类
//	recall      cluster / neighbor 推荐源与 fanout
//	filter      seen / blacklist / user_block / expr 过滤
//	rerank      排序与截断
//	service     推荐服务（缓存、指标、超时）
//	server      HTTP 接口
//	dataset     MovieLens 100K 加载
package movierec
