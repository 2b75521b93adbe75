package azure

import (
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"github.com/gobeaver/storekit"
)

func init() {
	storekit.RegisterDriver("azure", func(cfg *storekit.Config) (storekit.Accessor, error) {
		client, err := newClient(cfg.AzureAccountName, cfg.AzureAccountKey, cfg.AzureEndpoint)
		if err != nil {
			return nil, err
		}

		var options []AdapterOption
		if cfg.AzurePrefix != "" {
			options = append(options, WithPrefix(cfg.AzurePrefix))
		}

		return New(client, cfg.AzureContainerName, cfg.AzureAccountName, cfg.AzureAccountKey, options...), nil
	})
}

// newClient builds a shared key client. endpoint overrides the public
// service URL, for Azurite or sovereign clouds.
func newClient(accountName, accountKey, endpoint string) (*azblob.Client, error) {
	if accountName == "" || accountKey == "" {
		return nil, storekit.NewError(storekit.KindConfigInvalid, "azure account name and key are required")
	}

	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", accountName)
	if endpoint != "" {
		serviceURL = endpoint
	}

	cred, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, storekit.NewError(storekit.KindConfigInvalid, "failed to create azure credential").WithSource(err)
	}

	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	if err != nil {
		return nil, storekit.NewError(storekit.KindConfigInvalid, "failed to create azure client").WithSource(err)
	}
	return client, nil
}
