package provider

import (
	"context"

	"oracle-router/oracle/transport"
	"oracle-router/oracle/types"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var (
	_ Adapter = (*PythAdapter)(nil)

	pythDefaultEndpoints = Endpoint{
		Name: types.ProviderPyth,
		Rest: "https://hermes.pyth.network",
	}

	pythCategories = []types.DataCategory{
		types.CategoryPrice,
		types.CategoryStocks,
		types.CategoryForex,
		types.CategoryCommodities,
	}

	// Pyth price feed ids on mainnet
	// https://pyth.network/developers/price-feed-ids
	pythPriceFeedIDs = map[string]string{
		"BTC/USD":    "0xe62df6c8b4a85fe1a67db44dc12de5db330f7ac66b72dc658afedf0f4a415b43",
		"ETH/USD":    "0xff61491a931112ddf1bd8147cd1b641375f79f5825126d665480874634fd0ace",
		"SOL/USD":    "0xef0d8b6fda2ceba41da15d4095d1da392a0d2f8ed0c6c7bc0f4cfac8c280b56d",
		"AVAX/USD":   "0x93da3352f9f1d105fdfe4971cfa80e9dd777bfc5d0f683ebb6e1294b92137bb7",
		"MATIC/USD":  "0x5de33a9112c2b700b8d30b8a3402c103578ccfa2765696471cc672bd5cf6ac52",
		"LINK/USD":   "0x8ac0c70fff57e9aefdf5edf44b51d62c2d433653cbb2cf5cc06bb115af04d221",
		"ARB/USD":    "0x3fa4252848f9f0a1480be62745a4629d9eb1322aebab8a791e344b3b9c1adcf5",
		"OP/USD":     "0x385f64d993f7b77d8182ed5003d97c60aa3361f3cecfe711544d2d59165e9bdf",
		"APT/USD":    "0x03ae4db29ed4ae33d323568895aa00337e658e348b37509f5372ae51f0af00d5",
		"EUR/USD":    "0xa995d00bb36a63cef7fd2c287dc105fc8f3d93779f062f09551b0af3e81ec30b",
		"GBP/USD":    "0x84c2dde9633d93d1bcad84e7dc41c9d56578b7ec52fabedc1f335d673df0a7c1",
		"AUD/USD":    "0x67a6f93030420c1c9e3fe37c1ab6b77966af82f995944a9fefce357a22854a80",
		"GOLD/USD":   "0x765d2ba906dbc32ca17cc11f5310a89e9ee1f6420508c63861f2f8ba4ee34bb2",
		"SILVER/USD": "0xf2fb02c32b055c805e7238d628e5e9dadef274376114eb1f012337cabe93871e",
		"TSLA/USD":   "0x16dad506d7db8da01c87581c87ca897a012a153557d4d578c3b9c9e1bc0632f1",
		"AAPL/USD":   "0x49f6b65cb1de6b10eaf75e7c03ca029c306d0357e91b5311b175084a5ad55688",
		"NFLX/USD":   "0x8376cfd7ca8bcdf372ced05307b24dced1f15b1afafdeff715664598f15a3dd2",
	}
)

type (
	// PythAdapter queries the Pyth price service (Hermes)
	// https://docs.pyth.network/price-feeds/fetch-price-updates
	PythAdapter struct {
		adapter
	}

	PythPriceFeed struct {
		ID    string    `json:"id"`
		Price PythPrice `json:"price"`
		EMA   PythPrice `json:"ema_price"`
	}

	PythPrice struct {
		Price       string `json:"price"`
		Conf        string `json:"conf"`
		Exponent    int32  `json:"expo"`
		PublishTime int64  `json:"publish_time"`
	}
)

func NewPythAdapter(
	_ context.Context,
	logger zerolog.Logger,
	endpoints Endpoint,
	session *transport.Session,
	cache transport.Cache,
) (*PythAdapter, error) {
	if endpoints.Rest == "" {
		endpoints.Rest = pythDefaultEndpoints.Rest
	}

	p := &PythAdapter{}
	p.Init(
		types.ProviderPyth,
		endpoints,
		logger,
		session,
		cache,
		pythCategories,
		p.fetchPriceFeed,
		p.probePriceService,
	)
	return p, nil
}

func (p *PythAdapter) fetchPriceFeed(ctx context.Context, req types.OracleRequest) (types.OracleResponse, error) {
	pair := pairFromQuery(req.Query)
	feedID, ok := pythFeedID(pair)
	if !ok {
		return types.OracleResponse{}, types.Errorf(
			types.KindUnsupported,
			"unsupported trading pair: %s", pair.Join("/"),
		)
	}

	var feeds []PythPriceFeed
	if err := p.session.GetJSON(ctx, p.restURL("/api/latest_price_feeds?ids[]="+feedID), &feeds); err != nil {
		return types.OracleResponse{}, err
	}
	if len(feeds) == 0 {
		return types.OracleResponse{}, types.Errorf(
			types.KindProvider,
			"no price data available for %s", pair.Join("/"),
		)
	}

	feed := feeds[0]
	price, err := strToDec(feed.Price.Price)
	if err != nil {
		return types.OracleResponse{}, err
	}
	conf, err := strToDec(feed.Price.Conf)
	if err != nil {
		return types.OracleResponse{}, err
	}

	price = price.Shift(feed.Price.Exponent)
	conf = conf.Shift(feed.Price.Exponent)

	return types.OracleResponse{
		Data: map[string]any{
			"price":               price,
			"pair":                pair.Join("/"),
			"confidence_interval": conf,
			"publish_time":        feed.Price.PublishTime,
			"feed_id":             feedID,
			"expo":                feed.Price.Exponent,
		},
		Confidence: pythConfidence(price, conf),
		CostUSD:    decimal.Zero,
		Metadata: map[string]any{
			"network":     "mainnet",
			"data_source": "pyth-hermes",
		},
	}, nil
}

func (p *PythAdapter) probePriceService(ctx context.Context) error {
	feedID := pythPriceFeedIDs["BTC/USD"]

	var feeds []PythPriceFeed
	return p.session.GetJSON(ctx, p.restURL("/api/latest_price_feeds?ids[]="+feedID), &feeds)
}

func pythFeedID(pair types.AssetPair) (string, bool) {
	id, ok := pythPriceFeedIDs[pair.Join("/")]
	return id, ok
}

// pythConfidence derives the aggregation confidence from Pyth's published
// confidence interval: 1 - conf/price, zero for a non-positive price.
func pythConfidence(price, conf decimal.Decimal) float64 {
	if price.Sign() <= 0 {
		return 0
	}
	ratio, _ := conf.Div(price).Float64()
	return clampConfidence(1 - ratio)
}
