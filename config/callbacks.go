package config

// ConfigCallback allows packages to react to the global configuration once
// it is built, without importing the package that builds it. The logger uses
// this to reconfigure itself after BuildConfig.
type ConfigCallback[T any] struct {
	callbacks []func(T)
}

func (cc *ConfigCallback[T]) AddCallback(f func(T)) {
	cc.callbacks = append(cc.callbacks, f)
}

func (cc *ConfigCallback[T]) Call(val T) {
	for _, f := range cc.callbacks {
		f(val)
	}
}
