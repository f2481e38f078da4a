package utils

import (
	"context"
	"time"

	"github.com/apiaryhq/swarm-vault-go/model"
)

func RpcTimeout(config *model.Config) time.Duration {
	if config.Chain.RpcTimeoutSeconds > 0 {
		return time.Duration(config.Chain.RpcTimeoutSeconds) * time.Second
	}

	return DefaultRpcTimeoutSeconds * time.Second
}

// GetContextWithTimeout bounds one RPC round trip. Run-level cancellation
// comes from the parent.
func GetContextWithTimeout(parent context.Context, config *model.Config) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, RpcTimeout(config))
}

func ConfirmationTimeout(config *model.Config) time.Duration {
	if config.Chain.ConfirmationTimeoutSeconds > 0 {
		return time.Duration(config.Chain.ConfirmationTimeoutSeconds) * time.Second
	}

	return DefaultConfirmationTimeoutSeconds * time.Second
}
