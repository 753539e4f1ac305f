package main

import (
	"os"

	"go.temporal.io/sdk/client"
)

var cmdStdout = os.Stdout

func clientStartOptions(cfg *cliConfig, workflowID string) client.StartWorkflowOptions {
	return client.StartWorkflowOptions{
		ID:        workflowID,
		TaskQueue: cfg.taskQueue,
	}
}
