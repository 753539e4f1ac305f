package main

import (
	"go.temporal.io/sdk/client"
)

// dialTemporal connects a raw Temporal client for the lifetime of one CLI
// invocation. Subcommands talk to the client directly (not through
// engine.Engine) since starting/signaling/querying an existing workflow by
// ID needs no workflow/activity registration.
func dialTemporal(cfg *cliConfig) (client.Client, error) {
	return client.Dial(client.Options{
		HostPort:  cfg.temporalHostPort,
		Namespace: cfg.temporalNamespace,
	})
}
