package sftp

import (
	"os"

	"github.com/gobeaver/storekit"
)

func init() {
	storekit.RegisterDriver("sftp", func(cfg *storekit.Config) (storekit.Accessor, error) {
		if cfg.SFTPHost == "" {
			return nil, storekit.NewError(storekit.KindConfigInvalid, "SFTP host is required")
		}

		sftpConfig := Config{
			Host:     cfg.SFTPHost,
			Port:     cfg.SFTPPort,
			Username: cfg.SFTPUsername,
			Password: cfg.SFTPPassword,
			BasePath: cfg.SFTPBasePath,
		}

		// Load private key if specified
		if cfg.SFTPPrivateKey != "" {
			keyData, err := os.ReadFile(cfg.SFTPPrivateKey)
			if err != nil {
				return nil, storekit.NewError(storekit.KindConfigInvalid, "failed to read private key").
					WithContext("path", cfg.SFTPPrivateKey).
					WithSource(err)
			}
			sftpConfig.PrivateKey = keyData
		}

		return New(sftpConfig)
	})
}
