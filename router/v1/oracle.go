package v1

import (
	"context"
	"time"

	"oracle-router/oracle/history"
	"oracle-router/oracle/provider"
	"oracle-router/oracle/types"
)

// Oracle defines the Oracle interface contract that the v1 router depends on.
type Oracle interface {
	RouteQuestion(ctx context.Context, req types.RoutingRequest) types.RoutingResponse
	GetPrice(ctx context.Context, asset string, providers ...types.Provider) (types.AggregatedOracleData, error)
	Resolve(ctx context.Context, question string, options []string, oracleData map[string]any) (types.PredictionMarketResolution, error)
	Health() map[types.Provider]types.HealthStatus
	LastHealthSyncTimestamp() time.Time
	Registry() *provider.Registry
	Journal() *history.RequestHistory
}
