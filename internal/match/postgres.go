package match

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/peterkuimelis/duelserver/internal/outbox"
	"github.com/sirupsen/logrus"
)

//go:embed schema.sql
var schema string

const (
	pgSerializationFailure = "40001"
	pgUniqueViolation      = "23505"
	maxTxAttempts          = 5
)

// PostgresRepository runs every transaction at SERIALIZABLE isolation and
// retries serialization failures.
type PostgresRepository struct {
	pool *pgxpool.Pool
	log  logrus.FieldLogger
}

func NewPostgresRepository(ctx context.Context, dsn string, logger logrus.FieldLogger) (*PostgresRepository, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresRepository{pool: pool, log: logger}, nil
}

// Migrate creates the tables if they do not exist.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Close() {
	r.pool.Close()
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func (r *PostgresRepository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.Serializable}, func(tx pgx.Tx) error {
			return fn(ctx, &pgTx{tx: tx})
		})
		if pgCode(err) != pgSerializationFailure {
			return err
		}
		r.log.WithField("attempt", attempt).Debug("serialization failure, retrying")
	}
	return err
}

func (r *PostgresRepository) History(ctx context.Context, lobbyID string) ([]MatchHistory, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, lobby_id, game_id, mode, winner_id, loser_id, reason, final_turn_number,
		       winner_rating_before, winner_rating_after, loser_rating_before, loser_rating_after,
		       winner_xp, loser_xp, wager_payout, ended_at
		FROM match_history
		WHERE $1 = '' OR lobby_id = $1
		ORDER BY ended_at`, lobbyID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (MatchHistory, error) {
		var h MatchHistory
		err := row.Scan(&h.ID, &h.LobbyID, &h.GameID, &h.Mode, &h.WinnerID, &h.LoserID, &h.Reason, &h.FinalTurnNumber,
			&h.WinnerRatingBefore, &h.WinnerRatingAfter, &h.LoserRatingBefore, &h.LoserRatingAfter,
			&h.WinnerXP, &h.LoserXP, &h.WagerPayout, &h.EndedAt)
		return h, err
	})
}

func (r *PostgresRepository) Ledger(ctx context.Context, userID string) ([]LedgerEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, delta, balance, transaction_type, description, metadata, created_at
		FROM currency_ledger WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (LedgerEntry, error) {
		var e LedgerEntry
		err := row.Scan(&e.ID, &e.UserID, &e.Delta, &e.Balance, &e.TransactionType, &e.Description, &e.Metadata, &e.CreatedAt)
		return e, err
	})
}

func (r *PostgresRepository) CompletedGames(ctx context.Context) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, `SELECT completed_games FROM platform_stats WHERE id = 1`).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return n, err
}

func (r *PostgresRepository) Claim(ctx context.Context, now time.Time, limit int) ([]outbox.Task, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE outbox_tasks SET claimed_until = $3
		WHERE id IN (
			SELECT id FROM outbox_tasks
			WHERE completed_at IS NULL AND failed_at IS NULL
			  AND next_attempt_at <= $1
			  AND (claimed_until IS NULL OR claimed_until <= $1)
			ORDER BY created_at, id
			LIMIT $2
			FOR UPDATE SKIP LOCKED)
		RETURNING id, kind, lobby_id, payload, attempts, last_error, next_attempt_at, created_at`,
		now, limit, now.Add(claimTTL))
	if err != nil {
		return nil, fmt.Errorf("claim outbox tasks: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (outbox.Task, error) {
		var (
			t       outbox.Task
			payload []byte
		)
		err := row.Scan(&t.ID, &t.Kind, &t.LobbyID, &payload, &t.Attempts, &t.LastError, &t.NextAttemptAt, &t.CreatedAt)
		t.Payload = payload
		return t, err
	})
}

func (r *PostgresRepository) Complete(ctx context.Context, taskID string) error {
	_, err := r.pool.Exec(ctx, `UPDATE outbox_tasks SET completed_at = now(), claimed_until = NULL WHERE id = $1`, taskID)
	return err
}

func (r *PostgresRepository) Retry(ctx context.Context, taskID string, next time.Time, cause string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE outbox_tasks
		SET attempts = attempts + 1, next_attempt_at = $2, last_error = $3, claimed_until = NULL
		WHERE id = $1`, taskID, next, cause)
	return err
}

func (r *PostgresRepository) Fail(ctx context.Context, taskID string, cause string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE outbox_tasks
		SET attempts = attempts + 1, last_error = $2, failed_at = now(), claimed_until = NULL
		WHERE id = $1`, taskID, cause)
	return err
}

type pgTx struct {
	tx pgx.Tx
}

const lobbyColumns = `id, host_id, opponent_id, mode, status, game_id, stage_id, wager_amount, wager_paid,
	crypto_wager, winner_id, end_reason, final_turn_number, created_at, ended_at`

func (t *pgTx) Lobby(ctx context.Context, id string) (*Lobby, error) {
	var l Lobby
	err := t.tx.QueryRow(ctx, `SELECT `+lobbyColumns+` FROM lobbies WHERE id = $1 FOR UPDATE`, id).Scan(
		&l.ID, &l.HostID, &l.OpponentID, &l.Mode, &l.Status, &l.GameID, &l.StageID, &l.WagerAmount, &l.WagerPaid,
		&l.CryptoWager, &l.WinnerID, &l.EndReason, &l.FinalTurnNumber, &l.CreatedAt, &l.EndedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrLobbyNotFound
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (t *pgTx) CreateLobby(ctx context.Context, l *Lobby) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO lobbies (`+lobbyColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		l.ID, l.HostID, l.OpponentID, l.Mode, l.Status, l.GameID, l.StageID, l.WagerAmount, l.WagerPaid,
		l.CryptoWager, l.WinnerID, l.EndReason, l.FinalTurnNumber, l.CreatedAt, l.EndedAt)
	if pgCode(err) == pgUniqueViolation {
		return ErrLobbyExists
	}
	return err
}

func (t *pgTx) SaveLobby(ctx context.Context, l *Lobby) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE lobbies SET host_id = $2, opponent_id = $3, mode = $4, status = $5, game_id = $6,
		       stage_id = $7, wager_amount = $8, wager_paid = $9, crypto_wager = $10, winner_id = $11,
		       end_reason = $12, final_turn_number = $13, created_at = $14, ended_at = $15
		WHERE id = $1`,
		l.ID, l.HostID, l.OpponentID, l.Mode, l.Status, l.GameID, l.StageID, l.WagerAmount, l.WagerPaid,
		l.CryptoWager, l.WinnerID, l.EndReason, l.FinalTurnNumber, l.CreatedAt, l.EndedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrLobbyNotFound
	}
	return nil
}

func (t *pgTx) Player(ctx context.Context, id string) (*Player, error) {
	var p Player
	err := t.tx.QueryRow(ctx, `
		SELECT id, username, rating, casual_rating, xp, wins, losses, presence, is_agent, gold
		FROM players WHERE id = $1 FOR UPDATE`, id).Scan(
		&p.ID, &p.Username, &p.Rating, &p.CasualRating, &p.XP, &p.Wins, &p.Losses, &p.Presence, &p.IsAgent, &p.Gold)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPlayerNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (t *pgTx) SavePlayer(ctx context.Context, p *Player) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO players (id, username, rating, casual_rating, xp, wins, losses, presence, is_agent, gold)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			username = EXCLUDED.username, rating = EXCLUDED.rating, casual_rating = EXCLUDED.casual_rating,
			xp = EXCLUDED.xp, wins = EXCLUDED.wins, losses = EXCLUDED.losses, presence = EXCLUDED.presence,
			is_agent = EXCLUDED.is_agent`,
		p.ID, p.Username, p.Rating, p.CasualRating, p.XP, p.Wins, p.Losses, p.Presence, p.IsAgent, p.Gold)
	return err
}

func (t *pgTx) AgentByUser(ctx context.Context, userID string) (*Agent, error) {
	var a Agent
	err := t.tx.QueryRow(ctx, `SELECT id, user_id, wins, losses, streaming FROM agents WHERE user_id = $1 FOR UPDATE`, userID).
		Scan(&a.ID, &a.UserID, &a.Wins, &a.Losses, &a.Streaming)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (t *pgTx) SaveAgent(ctx context.Context, a *Agent) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO agents (id, user_id, wins, losses, streaming) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET wins = EXCLUDED.wins, losses = EXCLUDED.losses, streaming = EXCLUDED.streaming`,
		a.ID, a.UserID, a.Wins, a.Losses, a.Streaming)
	return err
}

func (t *pgTx) AppendHistory(ctx context.Context, h MatchHistory) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO match_history (id, lobby_id, game_id, mode, winner_id, loser_id, reason, final_turn_number,
			winner_rating_before, winner_rating_after, loser_rating_before, loser_rating_after,
			winner_xp, loser_xp, wager_payout, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO NOTHING`,
		h.ID, h.LobbyID, h.GameID, h.Mode, h.WinnerID, h.LoserID, h.Reason, h.FinalTurnNumber,
		h.WinnerRatingBefore, h.WinnerRatingAfter, h.LoserRatingBefore, h.LoserRatingAfter,
		h.WinnerXP, h.LoserXP, h.WagerPayout, h.EndedAt)
	return err
}

func (t *pgTx) IncrementCompletedGames(ctx context.Context) (int64, error) {
	var n int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO platform_stats (id, completed_games) VALUES (1, 1)
		ON CONFLICT (id) DO UPDATE SET completed_games = platform_stats.completed_games + 1
		RETURNING completed_games`).Scan(&n)
	return n, err
}

func (t *pgTx) AppendLedger(ctx context.Context, e LedgerEntry) (int64, error) {
	var balance int64
	err := t.tx.QueryRow(ctx, `UPDATE players SET gold = gold + $2 WHERE id = $1 RETURNING gold`, e.UserID, e.Delta).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrPlayerNotFound
	}
	if err != nil {
		return 0, err
	}
	_, err = t.tx.Exec(ctx, `
		INSERT INTO currency_ledger (id, user_id, delta, balance, transaction_type, description, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.UserID, e.Delta, balance, e.TransactionType, e.Description, e.Metadata, e.CreatedAt)
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func (t *pgTx) Enqueue(ctx context.Context, tasks ...outbox.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, task := range tasks {
		batch.Queue(`
			INSERT INTO outbox_tasks (id, kind, lobby_id, payload, attempts, next_attempt_at, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO NOTHING`,
			task.ID, task.Kind, task.LobbyID, []byte(task.Payload), task.Attempts, task.NextAttemptAt, task.CreatedAt)
	}
	return t.tx.SendBatch(ctx, batch).Close()
}
