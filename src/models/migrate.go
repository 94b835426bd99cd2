package models

// WriteModels 写库中由本服务管理的表
func WriteModels() []any {
	return []any{&Bot{}, &BotVersion{}, &Evaluation{}}
}

// LegacyModels 旧系统只读表，仅用于本地 sqlite 与测试建表
func LegacyModels() []any {
	return []any{&Conversation{}, &LegacyBot{}}
}
