package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/creatorloop/clipscript-bot/internal/model"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresChannelRepository stores channels in Postgres. Firings live in a
// separate table keyed by (slot_id, fired_on); the unique constraint is
// the store's native conditional-write primitive, so two overlapping
// ticks can never both record the same occurrence.
type PostgresChannelRepository struct {
	db *sql.DB
}

func NewPostgresChannelRepository(connStr string) (*PostgresChannelRepository, error) {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, err
	}
	r := &PostgresChannelRepository{db: db}
	if err := r.init(); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

func (r *PostgresChannelRepository) init() error {
	_, err := r.db.Exec(`
        CREATE TABLE IF NOT EXISTS channels (
            id TEXT PRIMARY KEY,
            owner_id BIGINT,
            name TEXT,
            platform TEXT,
            tone TEXT,
            language TEXT,
            topic TEXT,
            automation_enabled BOOLEAN,
            dispatch_enabled BOOLEAN,
            active_window INTEGER,
            timezone TEXT,
            slots JSONB
        )`)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(`
        CREATE TABLE IF NOT EXISTS slot_firings (
            channel_id TEXT NOT NULL,
            slot_id TEXT NOT NULL,
            fired_on DATE NOT NULL,
            fired_at TIMESTAMPTZ NOT NULL,
            PRIMARY KEY (slot_id, fired_on)
        )`)
	return err
}

const channelColumns = `id, owner_id, name, platform, tone, language, topic, automation_enabled, dispatch_enabled, active_window, timezone, slots`

func scanChannel(row interface{ Scan(...any) error }) (*model.Channel, error) {
	var ch model.Channel
	var slots []byte
	err := row.Scan(&ch.ID, &ch.OwnerID, &ch.Name, &ch.Platform, &ch.Tone, &ch.Language, &ch.Topic,
		&ch.AutomationEnabled, &ch.DispatchEnabled, &ch.ActiveWindowMinutes, &ch.Timezone, &slots)
	if err != nil {
		return nil, err
	}
	if len(slots) > 0 {
		if err := json.Unmarshal(slots, &ch.Slots); err != nil {
			return nil, fmt.Errorf("decode slots for channel %s: %w", ch.ID, err)
		}
	}
	ch.Normalize()
	return &ch, nil
}

func (r *PostgresChannelRepository) Get(ctx context.Context, id string) (*model.Channel, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+channelColumns+` FROM channels WHERE id=$1`, id)
	ch, err := scanChannel(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := r.attachFirings(ctx, []*model.Channel{ch}); err != nil {
		return nil, err
	}
	return ch, nil
}

func (r *PostgresChannelRepository) GetByOwner(ctx context.Context, ownerID int64) ([]*model.Channel, error) {
	return r.list(ctx, `SELECT `+channelColumns+` FROM channels WHERE owner_id=$1 ORDER BY id`, ownerID)
}

func (r *PostgresChannelRepository) Save(ctx context.Context, ch *model.Channel) error {
	ch.Normalize()
	slots, err := json.Marshal(ch.Slots)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
        INSERT INTO channels (`+channelColumns+`)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
        ON CONFLICT (id) DO UPDATE SET
            owner_id=EXCLUDED.owner_id,
            name=EXCLUDED.name,
            platform=EXCLUDED.platform,
            tone=EXCLUDED.tone,
            language=EXCLUDED.language,
            topic=EXCLUDED.topic,
            automation_enabled=EXCLUDED.automation_enabled,
            dispatch_enabled=EXCLUDED.dispatch_enabled,
            active_window=EXCLUDED.active_window,
            timezone=EXCLUDED.timezone,
            slots=EXCLUDED.slots
    `, ch.ID, ch.OwnerID, ch.Name, ch.Platform, ch.Tone, ch.Language, ch.Topic,
		ch.AutomationEnabled, ch.DispatchEnabled, ch.ActiveWindowMinutes, ch.Timezone, string(slots))
	return err
}

func (r *PostgresChannelRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM slot_firings WHERE channel_id=$1`, id); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `DELETE FROM channels WHERE id=$1`, id)
	return err
}

func (r *PostgresChannelRepository) List(ctx context.Context) ([]*model.Channel, error) {
	return r.list(ctx, `SELECT `+channelColumns+` FROM channels ORDER BY id`)
}

func (r *PostgresChannelRepository) ListAutomationEnabled(ctx context.Context) ([]*model.Channel, error) {
	return r.list(ctx, `SELECT `+channelColumns+` FROM channels WHERE automation_enabled ORDER BY id`)
}

func (r *PostgresChannelRepository) list(ctx context.Context, query string, args ...any) ([]*model.Channel, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []*model.Channel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.attachFirings(ctx, result); err != nil {
		return nil, err
	}
	return result, nil
}

// attachFirings fills each slot's LastFiredAt from the most recent
// recorded firing.
func (r *PostgresChannelRepository) attachFirings(ctx context.Context, channels []*model.Channel) error {
	if len(channels) == 0 {
		return nil
	}
	rows, err := r.db.QueryContext(ctx, `SELECT slot_id, MAX(fired_at) FROM slot_firings GROUP BY slot_id`)
	if err != nil {
		return err
	}
	defer rows.Close()
	latest := map[string]time.Time{}
	for rows.Next() {
		var slotID string
		var firedAt time.Time
		if err := rows.Scan(&slotID, &firedAt); err != nil {
			return err
		}
		latest[slotID] = firedAt
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for _, ch := range channels {
		for i := range ch.Slots {
			if t, ok := latest[ch.Slots[i].ID]; ok {
				tt := t
				ch.Slots[i].LastFiredAt = &tt
			}
		}
	}
	return nil
}

// UpdateSlotLastFired inserts the occurrence record; the primary key on
// (slot_id, fired_on) rejects a second write for the same date, which is
// reported as ErrAlreadyFired.
func (r *PostgresChannelRepository) UpdateSlotLastFired(ctx context.Context, channelID, slotID string, firedAt time.Time) error {
	var tz string
	err := r.db.QueryRowContext(ctx, `SELECT timezone FROM channels WHERE id=$1`, channelID).Scan(&tz)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	loc := (&model.Channel{Timezone: tz}).Location()
	firedOn := firedAt.In(loc).Format("2006-01-02")
	res, err := r.db.ExecContext(ctx, `
        INSERT INTO slot_firings (channel_id, slot_id, fired_on, fired_at)
        VALUES ($1,$2,$3,$4)
        ON CONFLICT (slot_id, fired_on) DO NOTHING
    `, channelID, slotID, firedOn, firedAt)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAlreadyFired
	}
	return nil
}
