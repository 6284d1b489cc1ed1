package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"oracle-router/oracle"
	"oracle-router/oracle/provider"
	"oracle-router/oracle/routing"
	"oracle-router/oracle/types"
)

type routeResult struct {
	Question    string                      `json:"question"`
	Routing     types.RoutingResponse       `json:"routing"`
	Aggregation *types.AggregatedOracleData `json:"aggregation,omitempty"`
}

func getRouteCmd() *cobra.Command {
	routeCmd := &cobra.Command{
		Use:   "route [question]...",
		Short: "Route questions offline and print the decisions as JSON",
		Long: `Routes each question through the capability table without touching any
live oracle network. With --aggregate, price questions are additionally
fanned out across mock adapters, exercising the full consensus path offline.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("no questions provided")
			}

			aggregate, err := cmd.Flags().GetBool("aggregate")
			if err != nil {
				return err
			}

			// decisions go to stdout, so logs stay on stderr
			logger := zerolog.New(zerolog.ConsoleWriter{
				Out:        os.Stderr,
				TimeFormat: time.StampMilli,
			}).Level(zerolog.WarnLevel).With().Timestamp().Logger()

			ctx := cmd.Context()
			svc := mockService(ctx, logger)

			results := make([]routeResult, 0, len(args))
			for _, question := range args {
				result := routeResult{
					Question: question,
					Routing:  svc.RouteQuestion(ctx, types.RoutingRequest{Question: question}),
				}

				if aggregate && result.Routing.CanResolve &&
					result.Routing.DataType == types.CategoryPrice &&
					len(result.Routing.RequiredFeeds) > 0 {
					data, err := svc.GetPrice(ctx, result.Routing.RequiredFeeds[0])
					if err != nil {
						logger.Warn().Err(err).Str("question", question).Msg("offline aggregation failed")
					} else {
						result.Aggregation = &data
					}
				}

				results = append(results, result)
			}

			bz, err := json.MarshalIndent(results, "", "  ")
			if err != nil {
				return err
			}

			fmt.Println(string(bz))
			return nil
		},
	}

	routeCmd.Flags().Bool("aggregate", false, "Fan out across mock adapters and include the consensus")

	return routeCmd
}

// mockService builds a fully offline service backed by mock adapters.
func mockService(ctx context.Context, logger zerolog.Logger) *oracle.Service {
	registry := provider.NewRegistry(logger)
	for _, name := range types.Providers {
		registry.Register(provider.NewMockAdapter(ctx, logger, name, nil))
	}

	return oracle.New(
		logger,
		oracle.ServiceConfig{},
		registry,
		routing.NewEngine(logger),
		nil,
		nil,
		nil,
		nil,
	)
}
