package gcs

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/gobeaver/storekit"
)

func init() {
	storekit.RegisterDriver("gcs", func(cfg *storekit.Config) (storekit.Accessor, error) {
		ctx := context.Background()

		// Without a credentials file the client uses GOOGLE_APPLICATION_CREDENTIALS
		// or the default credentials of the environment
		var clientOpts []option.ClientOption
		if cfg.GCSCredentialsFile != "" {
			clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.GCSCredentialsFile))
		}
		if cfg.GCSProjectID != "" {
			clientOpts = append(clientOpts, option.WithQuotaProject(cfg.GCSProjectID))
		}

		client, err := storage.NewClient(ctx, clientOpts...)
		if err != nil {
			return nil, storekit.NewError(storekit.KindConfigInvalid, fmt.Sprintf("failed to create GCS client: %v", err)).
				WithSource(err)
		}

		var options []AdapterOption
		if cfg.GCSPrefix != "" {
			options = append(options, WithPrefix(cfg.GCSPrefix))
		}

		return New(client, cfg.GCSBucket, options...), nil
	})
}
