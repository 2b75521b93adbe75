package memory

import "github.com/gobeaver/storekit"

func init() {
	storekit.RegisterDriver("memory", func(cfg *storekit.Config) (storekit.Accessor, error) {
		return New(Config{MaxSize: cfg.MemoryMaxSize}), nil
	})
}
