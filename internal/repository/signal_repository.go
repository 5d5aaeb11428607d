package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vokmon/trade-signal/internal/domain"
)

const (
	defaultSignalLimit = 50
	maxSignalLimit     = 500
)

const signalSchema = `
CREATE TABLE IF NOT EXISTS signals (
    id               UUID PRIMARY KEY,
    channel          TEXT NOT NULL,
    instrument_id    BIGINT NOT NULL,
    instrument_name  TEXT NOT NULL,
    display_name     TEXT NOT NULL DEFAULT '',
    image_url        TEXT NOT NULL DEFAULT '',
    signal           TEXT NOT NULL,
    previous_signal  TEXT NOT NULL DEFAULT '',
    action           TEXT NOT NULL,
    zone             TEXT NOT NULL,
    timeframe        TEXT NOT NULL,
    is_otc           BOOLEAN NOT NULL DEFAULT FALSE,
    message          TEXT NOT NULL,
    details          JSONB NOT NULL DEFAULT '{}'::jsonb,
    created_at       TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_signals_channel_created ON signals (channel, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_signals_created ON signals (created_at);
`

type SignalRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewSignalRepository(pool PgxPool, tracer trace.Tracer) *SignalRepository {
	return &SignalRepository{pool: pool, tracer: tracer}
}

func (r *SignalRepository) RunMigrations(ctx context.Context) error {
	_, span := r.tracer.Start(ctx, "signal-repo.run-migrations")
	defer span.End()

	if _, err := r.pool.Exec(ctx, signalSchema); err != nil {
		return fmt.Errorf("create signals schema: %w", err)
	}
	return nil
}

func (r *SignalRepository) InsertSignals(ctx context.Context, signals []domain.TradeSignal) error {
	if len(signals) == 0 {
		return nil
	}

	_, span := r.tracer.Start(ctx, "signal-repo.insert-signals")
	defer span.End()
	span.SetAttributes(attribute.Int("signals", len(signals)))

	batch := &pgx.Batch{}
	for _, s := range signals {
		details, err := json.Marshal(s.Details)
		if err != nil {
			return fmt.Errorf("encode signal details: %w", err)
		}
		batch.Queue(
			`INSERT INTO signals (id, channel, instrument_id, instrument_name, display_name, image_url,
			                      signal, previous_signal, action, zone, timeframe, is_otc, message, details, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
			 ON CONFLICT (id) DO NOTHING`,
			s.ID,
			s.Channel,
			s.Data.InstrumentID,
			s.Data.InstrumentName,
			s.Data.DisplayName,
			s.Data.ImageURL,
			string(s.Signal),
			string(s.PreviousSignal),
			s.Data.Action,
			s.Data.Zone,
			s.Data.Timeframe,
			s.Data.IsOTC,
			s.Message,
			details,
			s.Created.UTC(),
		)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range signals {
		if _, err := br.Exec(); err != nil {
			span.RecordError(err)
			return err
		}
	}
	return nil
}

func (r *SignalRepository) ListSignals(ctx context.Context, filter domain.SignalFilter) ([]domain.TradeSignal, error) {
	_, span := r.tracer.Start(ctx, "signal-repo.list-signals")
	defer span.End()

	args := make([]any, 0, 3)
	var sb strings.Builder
	sb.WriteString(`SELECT id, channel, instrument_id, instrument_name, display_name, image_url,
	       signal, previous_signal, action, zone, timeframe, is_otc, message, details, created_at
		FROM signals
		WHERE 1=1`)

	if filter.Channel != "" {
		args = append(args, filter.Channel)
		sb.WriteString(fmt.Sprintf(" AND channel = $%d", len(args)))
	}
	if filter.InstrumentID > 0 {
		args = append(args, filter.InstrumentID)
		sb.WriteString(fmt.Sprintf(" AND instrument_id = $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultSignalLimit
	}
	if limit > maxSignalLimit {
		limit = maxSignalLimit
	}
	args = append(args, limit)
	sb.WriteString(fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args)))

	rows, err := r.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	signals := make([]domain.TradeSignal, 0, limit)
	for rows.Next() {
		var s domain.TradeSignal
		var signal, previous string
		var details []byte
		var created time.Time

		if err := rows.Scan(
			&s.ID,
			&s.Channel,
			&s.Data.InstrumentID,
			&s.Data.InstrumentName,
			&s.Data.DisplayName,
			&s.Data.ImageURL,
			&signal,
			&previous,
			&s.Data.Action,
			&s.Data.Zone,
			&s.Data.Timeframe,
			&s.Data.IsOTC,
			&s.Message,
			&details,
			&created,
		); err != nil {
			return nil, err
		}
		s.Signal = domain.SignalType(signal)
		s.PreviousSignal = domain.SignalType(previous)
		s.Created = created.UTC()
		if len(details) > 0 {
			if err := json.Unmarshal(details, &s.Details); err != nil {
				return nil, fmt.Errorf("decode signal details: %w", err)
			}
		}
		signals = append(signals, s)
	}

	return signals, rows.Err()
}

// PurgeSignals deletes signals created before olderThan and returns the
// number of rows removed.
func (r *SignalRepository) PurgeSignals(ctx context.Context, olderThan time.Time) (int64, error) {
	_, span := r.tracer.Start(ctx, "signal-repo.purge-signals")
	defer span.End()

	tag, err := r.pool.Exec(ctx, `DELETE FROM signals WHERE created_at < $1`, olderThan.UTC())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
