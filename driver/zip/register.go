package zip

import "github.com/gobeaver/storekit"

func init() {
	storekit.RegisterDriver("zip", func(cfg *storekit.Config) (storekit.Accessor, error) {
		if cfg.ReadOnly {
			return Open(cfg.ZipPath)
		}
		return OpenOrCreate(cfg.ZipPath)
	})
}
