package history

import (
	"database/sql"
	"time"

	"oracle-router/oracle/types"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// statusOK marks an outcome row for a request the adapter answered.
const statusOK = "ok"

type (
	// Outcome is one journaled adapter request result. Status is "ok" or the
	// error kind that failed the request.
	Outcome struct {
		Provider  types.Provider
		Category  types.DataCategory
		Status    string
		LatencyMs int64
		Retries   int64
		Cached    bool
		Time      time.Time
	}

	// ProviderStats aggregates a provider's journaled outcomes over a
	// window.
	ProviderStats struct {
		Requests     int64
		Succeeded    int64
		CacheHits    int64
		AvgLatencyMs float64
	}

	// RequestHistory journals per-adapter request outcomes in sqlite. It
	// stores outcome rows only, never the data a provider returned.
	RequestHistory struct {
		db     *sql.DB
		insert *sql.Stmt
		query  *sql.Stmt
		stats  *sql.Stmt
		logger zerolog.Logger
	}
)

func NewRequestHistory(path string, logger zerolog.Logger) (*RequestHistory, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		logger.Error().Err(err).Str("path", path).Msg("failed to open sqlite db")
		return nil, err
	}
	h := &RequestHistory{
		db:     db,
		logger: logger.With().Str("module", "history").Logger(),
	}
	return h, h.Init()
}

func (h *RequestHistory) Init() error {
	_, err := h.db.Exec(`CREATE TABLE IF NOT EXISTS oracle_request_outcomes(
        provider TEXT NOT NULL,
        category TEXT NOT NULL,
        status TEXT NOT NULL,
        latency_ms INT NOT NULL,
        retries INT NOT NULL,
        cached INT NOT NULL,
        time INT NOT NULL
    )`)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to create db table")
		return err
	}
	_, err = h.db.Exec(`CREATE INDEX IF NOT EXISTS oracle_request_outcomes_by_provider
        ON oracle_request_outcomes(provider, time)`)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to create db index")
		return err
	}

	insert, err := h.db.Prepare(`INSERT INTO oracle_request_outcomes(
        provider, category, status, latency_ms, retries, cached, time)
        VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to prepare sql insert statement")
		return err
	}
	query, err := h.db.Prepare(`SELECT category, status, latency_ms, retries, cached, time
        FROM oracle_request_outcomes
        WHERE provider = ? AND time BETWEEN ? AND ?
        ORDER BY time DESC`)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to prepare sql query statement")
		return err
	}
	stats, err := h.db.Prepare(`SELECT
        COUNT(*),
        COALESCE(SUM(status = 'ok'), 0),
        COALESCE(SUM(cached), 0),
        COALESCE(AVG(latency_ms), 0)
        FROM oracle_request_outcomes
        WHERE provider = ? AND time >= ?`)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to prepare sql stats statement")
		return err
	}

	h.insert = insert
	h.query = query
	h.stats = stats
	return nil
}

// NewOutcome builds the journal row for one adapter response. The row is
// stamped with the journaling time, not the data timestamp, so cache hits do
// not appear to have happened in the past.
func NewOutcome(category types.DataCategory, resp types.OracleResponse) Outcome {
	out := Outcome{
		Provider:  resp.Provider,
		Category:  category,
		Status:    statusOK,
		LatencyMs: resp.LatencyMs,
		Time:      time.Now(),
	}
	if resp.Failed() {
		out.Status = string(resp.Error.Kind)
	}
	if resp.Metadata != nil {
		if cached, ok := resp.Metadata["cached"].(bool); ok {
			out.Cached = cached
		}
		switch retries := resp.Metadata["retries"].(type) {
		case int:
			out.Retries = int64(retries)
		case int64:
			out.Retries = retries
		case float64:
			out.Retries = int64(retries)
		}
	}
	return out
}

// Succeeded reports whether the outcome row records an answered request.
func (o Outcome) Succeeded() bool {
	return o.Status == statusOK
}

func (h *RequestHistory) AddOutcome(o Outcome) error {
	cached := 0
	if o.Cached {
		cached = 1
	}
	_, err := h.insert.Exec(
		o.Provider.String(),
		o.Category.String(),
		o.Status,
		o.LatencyMs,
		o.Retries,
		cached,
		o.Time.UnixMilli(),
	)
	if err != nil {
		h.logger.Error().Err(err).
			Str("provider", o.Provider.String()).
			Str("status", o.Status).
			Msg("failed to store request outcome")
	}
	return err
}

// GetOutcomes returns a provider's journaled outcomes inside the window,
// newest first.
func (h *RequestHistory) GetOutcomes(
	provider types.Provider,
	start time.Time,
	end time.Time,
) ([]Outcome, error) {
	rows, err := h.query.Query(provider.String(), start.UnixMilli(), end.UnixMilli())
	if err != nil {
		h.logger.Error().Err(err).Str("provider", provider.String()).Msg("failed to query stored outcomes")
		return nil, err
	}
	defer rows.Close()

	outcomes := []Outcome{}
	for rows.Next() {
		var (
			category  string
			status    string
			latencyMs int64
			retries   int64
			cached    int
			epochMs   int64
		)
		if err := rows.Scan(&category, &status, &latencyMs, &retries, &cached, &epochMs); err != nil {
			h.logger.Error().Err(err).Str("provider", provider.String()).Msg("failed to parse outcome query results")
			return nil, err
		}
		outcomes = append(outcomes, Outcome{
			Provider:  provider,
			Category:  types.DataCategory(category),
			Status:    status,
			LatencyMs: latencyMs,
			Retries:   retries,
			Cached:    cached != 0,
			Time:      time.UnixMilli(epochMs),
		})
	}
	if err := rows.Err(); err != nil {
		h.logger.Error().Err(err).Str("provider", provider.String()).Msg("failed to read all stored outcomes")
		return nil, err
	}
	return outcomes, nil
}

// Stats aggregates a provider's outcomes journaled since the given time.
func (h *RequestHistory) Stats(provider types.Provider, since time.Time) (ProviderStats, error) {
	var stats ProviderStats
	err := h.stats.QueryRow(provider.String(), since.UnixMilli()).Scan(
		&stats.Requests,
		&stats.Succeeded,
		&stats.CacheHits,
		&stats.AvgLatencyMs,
	)
	if err != nil {
		h.logger.Error().Err(err).Str("provider", provider.String()).Msg("failed to aggregate stored outcomes")
		return ProviderStats{}, err
	}
	return stats, nil
}

// UptimePct reports the share of journaled requests the provider answered
// since the given time, as a percentage. A provider with no journaled
// requests reports 100.
func (h *RequestHistory) UptimePct(provider types.Provider, since time.Time) (float64, error) {
	stats, err := h.Stats(provider, since)
	if err != nil {
		return 0, err
	}
	if stats.Requests == 0 {
		return 100, nil
	}
	return 100 * float64(stats.Succeeded) / float64(stats.Requests), nil
}

func (h *RequestHistory) Close() error {
	if h.insert != nil {
		h.insert.Close()
	}
	if h.query != nil {
		h.query.Close()
	}
	if h.stats != nil {
		h.stats.Close()
	}
	return h.db.Close()
}
