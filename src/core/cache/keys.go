package cache

import "net/url"

// 缓存键前缀与通配符
const (
	EvaluationsPattern     = "evaluations:*"
	EvaluationsListPattern = "evaluations:list:*"
	BotsPattern            = "bots:*"
	BotsListPattern        = "bots:list:*"
)

// EvaluationsListKey 参数按键名排序编码
func EvaluationsListKey(params url.Values) string {
	return "evaluations:list:" + params.Encode()
}

func EvaluationDetailKey(conversationID string) string {
	return "evaluations:detail:" + conversationID
}

func BotsListKey(params url.Values) string {
	return "bots:list:" + params.Encode()
}
