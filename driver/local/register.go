package local

import "github.com/gobeaver/storekit"

func init() {
	storekit.RegisterDriver("local", func(cfg *storekit.Config) (storekit.Accessor, error) {
		return New(cfg.LocalBasePath)
	})
}
