package consul

import (
	"github.com/hashicorp/consul/api"

	"github.com/gobeaver/storekit"
)

func init() {
	storekit.RegisterDriver("consul", func(cfg *storekit.Config) (storekit.Accessor, error) {
		clientConfig := api.DefaultConfig()
		if cfg.ConsulAddress != "" {
			clientConfig.Address = cfg.ConsulAddress
		}
		if cfg.ConsulToken != "" {
			clientConfig.Token = cfg.ConsulToken
		}

		client, err := api.NewClient(clientConfig)
		if err != nil {
			return nil, storekit.NewError(storekit.KindConfigInvalid, "failed to create Consul client").
				WithContext("address", clientConfig.Address).
				WithSource(err)
		}

		return New(client.KV(), WithPrefix(cfg.ConsulPrefix)), nil
	})
}
