package providers

// Provider 所有外部能力提供者的公共生命周期
type Provider interface {
	Initialize() error
	Cleanup() error
}
