package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/apiaryhq/swarm-vault-go/agent"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func agentCommand(log *zap.Logger) *cli.Command {
	return &cli.Command{
		Name:  "agent",
		Usage: "run scheduled balance checks and reclaim sweeps",
		Action: func(c *cli.Context) error {
			swarmAgent, err := agent.NewSwarmAgent(c.String("config"), log)
			if err != nil {
				log.Error("Could not initialize swarm agent", zap.Error(err))
				return err
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			if err := swarmAgent.Setup(ctx); err != nil {
				log.Error("Could not set up swarm agent", zap.Error(err))
				return err
			}

			if err := swarmAgent.Run(ctx); err != nil {
				log.Error("Could not start swarm agent", zap.Error(err))
				return err
			}

			stopChan := make(chan os.Signal, 1)
			signal.Notify(stopChan, syscall.SIGINT, syscall.SIGTERM)
			<-stopChan

			log.Info("Shutting down swarm agent")
			cancel()
			swarmAgent.Stop()
			return nil
		},
	}
}
