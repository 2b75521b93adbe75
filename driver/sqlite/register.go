package sqlite

import "github.com/gobeaver/storekit"

func init() {
	storekit.RegisterDriver("sqlite", func(cfg *storekit.Config) (storekit.Accessor, error) {
		if cfg.SQLitePath == "" {
			return nil, storekit.NewError(storekit.KindConfigInvalid, "SQLite path is required")
		}
		return Open(cfg.SQLitePath)
	})
}
