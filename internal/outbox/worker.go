package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"

	"github.com/paul-bouzian/saycal/internal/notify"
)

// Operation names stored in outbox.op
const (
	OpPaymentFailedEmail = "email.payment_failed"
)

const (
	selectReadyRowsSQL = `
SELECT id, op, payload, attempt_count
FROM outbox
WHERE status = 'pending' AND next_attempt_at <= now()
ORDER BY id ASC
FOR UPDATE SKIP LOCKED
LIMIT $1`

	markDoneSQL = `UPDATE outbox SET status='done', last_error=NULL WHERE id=$1`

	markFailedSQL = `
UPDATE outbox
SET attempt_count = attempt_count + 1,
    status = $2,
    last_error = $3,
    next_attempt_at = now() + make_interval(secs => $4)
WHERE id=$1`

	insertSQL = `INSERT INTO outbox (op, payload) VALUES ($1, $2)`
)

// Config controls batch size, polling cadence and retry policy.
type Config struct {
	BatchSize   int           // number of rows to lease per cycle
	Interval    time.Duration // poll interval
	MaxAttempts int           // rows are parked as 'dead' after this many failures
}

// Worker delivers queued notifications.
type Worker struct {
	db     *sql.DB
	log    zerolog.Logger
	sender notify.Sender
	cfg    Config
}

func NewWorker(db *sql.DB, sender notify.Sender, cfg Config, log zerolog.Logger) *Worker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	return &Worker{db: db, log: log, sender: sender, cfg: cfg}
}

// Run starts the polling loop until ctx is canceled.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info().Int("batch", w.cfg.BatchSize).Dur("interval", w.cfg.Interval).Msg("outbox worker starting")
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("outbox worker stopping")
			return ctx.Err()
		case <-ticker.C:
			if err := w.ProcessOnce(ctx); err != nil {
				w.log.Error().Err(err).Msg("outbox process")
			}
		}
	}
}

type job struct {
	id       int64
	op       string
	attempts int
	payload  json.RawMessage
}

// errPoison marks a job that can never succeed; it is parked as dead at once.
var errPoison = errors.New("outbox: unprocessable job")

type paymentFailedPayload struct {
	To string `json:"to"`
}

// ProcessOnce leases one batch and handles it inside a single transaction.
func (w *Worker) ProcessOnce(ctx context.Context) error {
	tx, err := w.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	jobs, err := w.leaseBatch(ctx, tx, w.cfg.BatchSize)
	if err != nil {
		return err
	}
	for _, j := range jobs {
		err := w.handle(ctx, j)
		if err == nil {
			if _, e := tx.ExecContext(ctx, markDoneSQL, j.id); e != nil {
				w.log.Error().Err(e).Int64("id", j.id).Msg("markDone error")
			}
			continue
		}
		if errors.Is(err, errPoison) {
			j.attempts = w.cfg.MaxAttempts
		}
		w.log.Warn().Err(err).Int64("id", j.id).Str("op", j.op).Int("attempt", j.attempts+1).Msg("outbox job failed")
		if e := w.markFailed(ctx, tx, j, err); e != nil {
			w.log.Error().Err(e).Int64("id", j.id).Msg("markFailed error")
		}
	}
	return tx.Commit()
}

func (w *Worker) leaseBatch(ctx context.Context, tx *sql.Tx, batchSize int) ([]job, error) {
	rows, err := tx.QueryContext(ctx, selectReadyRowsSQL, batchSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []job
	for rows.Next() {
		var j job
		if err := rows.Scan(&j.id, &j.op, &j.payload, &j.attempts); err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (w *Worker) handle(ctx context.Context, j job) error {
	switch j.op {
	case OpPaymentFailedEmail:
		var p paymentFailedPayload
		if err := json.Unmarshal(j.payload, &p); err != nil || p.To == "" {
			return fmt.Errorf("%w: %s payload without recipient", errPoison, j.op)
		}
		msg, err := notify.PaymentFailedMessage(p.To)
		if err != nil {
			return err
		}
		return w.sender.Send(ctx, msg)
	default:
		return fmt.Errorf("%w: unknown op %q", errPoison, j.op)
	}
}

func (w *Worker) markFailed(ctx context.Context, tx *sql.Tx, j job, cause error) error {
	status := "pending"
	if j.attempts+1 >= w.cfg.MaxAttempts {
		status = "dead"
	}
	_, err := tx.ExecContext(ctx, markFailedSQL, j.id, status, cause.Error(), retryDelay(j.attempts).Seconds())
	return err
}

// retryDelay is the wait before attempt n+1: 2s doubling, capped at 5 minutes.
func retryDelay(attempts int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Second
	b.Multiplier = 2
	b.MaxInterval = 5 * time.Minute
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	d := b.NextBackOff()
	for i := 0; i < attempts; i++ {
		d = b.NextBackOff()
	}
	return d
}

// Enqueuer queues notifications for the worker. It satisfies billing.Notifier.
type Enqueuer struct {
	db *sql.DB
}

func NewEnqueuer(db *sql.DB) *Enqueuer { return &Enqueuer{db: db} }

func (e *Enqueuer) PaymentFailed(ctx context.Context, email string) error {
	payload, err := json.Marshal(paymentFailedPayload{To: email})
	if err != nil {
		return err
	}
	if _, err := e.db.ExecContext(ctx, insertSQL, OpPaymentFailedEmail, payload); err != nil {
		return fmt.Errorf("enqueue %s: %w", OpPaymentFailedEmail, err)
	}
	return nil
}
