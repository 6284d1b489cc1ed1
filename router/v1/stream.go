package v1

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"oracle-router/oracle/types"
)

const (
	// streamWriteWait is the deadline for writing a single frame.
	streamWriteWait = 10 * time.Second

	// streamPongWait is how long a client may stay silent before the
	// connection is torn down. Pings go out at a fraction of it.
	streamPongWait   = 60 * time.Second
	streamPingPeriod = streamPongWait * 9 / 10

	streamDefaultInterval = 5 * time.Second
	streamMinInterval     = time.Second

	streamMaxAssets     = 16
	streamReadLimit     = 4096
	streamWriteBufSize  = 4096
	streamReadBufSize   = 1024
	streamMessageBuffer = 4
)

type (
	// streamRequest is the client subscription frame. Sending a new frame
	// replaces the previous subscription.
	streamRequest struct {
		Subscribe []string `json:"subscribe"`
		Providers []string `json:"providers,omitempty"`
		Interval  string   `json:"interval,omitempty"`
	}

	// streamUpdate is one pushed frame: an aggregated answer for a
	// subscribed asset, or an error the client should see.
	streamUpdate struct {
		Asset string                      `json:"asset,omitempty"`
		Data  *types.AggregatedOracleData `json:"data,omitempty"`
		Error *types.Error                `json:"error,omitempty"`
	}

	// streamInbound carries reader results to the single writing
	// goroutine, which owns all data frames on the connection.
	streamInbound struct {
		sub *streamRequest
		err *types.Error
	}
)

func (r *Router) streamHandler() http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  streamReadBufSize,
		WriteBufferSize: streamWriteBufSize,
		CheckOrigin:     r.checkStreamOrigin,
	}

	return func(w http.ResponseWriter, req *http.Request) {
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			// Upgrade already wrote the handshake failure.
			r.logger.Debug().Err(err).Msg("websocket upgrade failed")
			return
		}
		defer conn.Close()

		streamClientsGauge.Inc()
		defer streamClientsGauge.Dec()

		r.serveStream(req.Context(), conn)
	}
}

// checkStreamOrigin mirrors the CORS origin policy on the websocket
// handshake, which the cors middleware does not cover.
func (r *Router) checkStreamOrigin(req *http.Request) bool {
	origin := req.Header.Get("Origin")
	if origin == "" || len(r.cfg.Server.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range r.cfg.Server.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

func (r *Router) serveStream(ctx context.Context, conn *websocket.Conn) {
	logger := r.logger.With().Str("remote", conn.RemoteAddr().String()).Logger()
	logger.Debug().Msg("price stream client connected")
	defer logger.Debug().Msg("price stream client disconnected")

	conn.SetReadLimit(streamReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})

	handlerDone := make(chan struct{})
	defer close(handlerDone)

	inbound := make(chan streamInbound, streamMessageBuffer)
	go readStreamRequests(conn, inbound, handlerDone)

	var (
		assets    []string
		providers []types.Provider
		interval  = streamDefaultInterval
	)

	pushTicker := time.NewTicker(interval)
	defer pushTicker.Stop()
	pingTicker := time.NewTicker(streamPingPeriod)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-inbound:
			if !ok {
				return
			}
			if msg.err != nil {
				if !r.writeStreamUpdate(conn, streamUpdate{Error: msg.err}) {
					return
				}
				continue
			}

			newAssets, newProviders, newInterval, subErr := parseStreamRequest(*msg.sub)
			if subErr != nil {
				if !r.writeStreamUpdate(conn, streamUpdate{Error: subErr}) {
					return
				}
				continue
			}
			assets, providers = newAssets, newProviders
			if newInterval != interval {
				interval = newInterval
				pushTicker.Reset(interval)
			}

		case <-pushTicker.C:
			if !r.pushPrices(ctx, conn, assets, providers, interval) {
				return
			}

		case <-pingTicker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// pushPrices aggregates and writes one frame per subscribed asset. A push
// cycle is bounded by the interval so a slow provider cannot stack cycles.
func (r *Router) pushPrices(
	ctx context.Context,
	conn *websocket.Conn,
	assets []string,
	providers []types.Provider,
	interval time.Duration,
) bool {
	if len(assets) == 0 {
		return true
	}

	pushCtx, cancel := context.WithTimeout(ctx, interval)
	defer cancel()

	for _, asset := range assets {
		update := streamUpdate{Asset: asset}

		data, err := r.oracle.GetPrice(pushCtx, asset, providers...)
		if err != nil {
			update.Error = types.AsError(err)
		} else {
			update.Data = &data
		}

		if !r.writeStreamUpdate(conn, update) {
			return false
		}
		streamUpdatesTotal.Inc()
	}
	return true
}

func (r *Router) writeStreamUpdate(conn *websocket.Conn, update streamUpdate) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	if err := conn.WriteJSON(update); err != nil {
		r.logger.Debug().Err(err).Msg("failed to write price stream frame")
		return false
	}
	return true
}

// readStreamRequests relays subscription frames to the writer. Malformed
// JSON is reported back and kept non-fatal; any other read failure ends the
// stream.
func readStreamRequests(conn *websocket.Conn, inbound chan<- streamInbound, done <-chan struct{}) {
	defer close(inbound)

	for {
		var sub streamRequest
		err := conn.ReadJSON(&sub)

		var msg streamInbound
		switch err.(type) {
		case nil:
			msg = streamInbound{sub: &sub}
		case *json.SyntaxError, *json.UnmarshalTypeError:
			msg = streamInbound{err: types.NewError(
				types.KindValidation, "subscription frame must be a JSON object")}
		default:
			return
		}

		select {
		case inbound <- msg:
		case <-done:
			return
		}
	}
}

func parseStreamRequest(sub streamRequest) ([]string, []types.Provider, time.Duration, *types.Error) {
	if len(sub.Subscribe) > streamMaxAssets {
		return nil, nil, 0, types.Errorf(
			types.KindValidation, "at most %d assets per subscription", streamMaxAssets)
	}

	assets := make([]string, 0, len(sub.Subscribe))
	for _, asset := range sub.Subscribe {
		asset = strings.TrimSpace(asset)
		if asset == "" {
			continue
		}
		assets = append(assets, asset)
	}

	providers := make([]types.Provider, 0, len(sub.Providers))
	for _, name := range sub.Providers {
		p, ok := types.ParseProvider(name)
		if !ok {
			return nil, nil, 0, types.Errorf(types.KindValidation, "unknown provider: %s", name)
		}
		providers = append(providers, p)
	}

	interval := streamDefaultInterval
	if sub.Interval != "" {
		parsed, err := time.ParseDuration(sub.Interval)
		if err != nil {
			return nil, nil, 0, types.Errorf(
				types.KindValidation, "invalid interval: %s", sub.Interval)
		}
		if parsed < streamMinInterval {
			parsed = streamMinInterval
		}
		interval = parsed
	}

	return assets, providers, interval, nil
}
