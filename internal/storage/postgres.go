// README: Unit of work over a pgx pool; stores are rebound to the open pgx.Tx.
package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"carpool/internal/infra"
	"carpool/internal/modules/booking"
	"carpool/internal/modules/ledger"
	"carpool/internal/modules/trip"
)

type pgRepos struct {
	trips    *trip.Store
	bookings *booking.Store
	ledgers  *ledger.Store
}

func newPGRepos(db infra.DBTX) pgRepos {
	return pgRepos{
		trips:    trip.NewStore(db),
		bookings: booking.NewStore(db),
		ledgers:  ledger.NewStore(db),
	}
}

func (r pgRepos) Trips() TripRepository { return r.trips }

func (r pgRepos) Bookings() BookingRepository { return r.bookings }

func (r pgRepos) Ledgers() SeatLedgerRepository { return r.ledgers }

// Postgres is the production UnitOfWork.
type Postgres struct {
	pgRepos
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pgRepos: newPGRepos(pool), pool: pool}
}

// Begin opens a READ COMMITTED transaction. Correctness relies on row locks
// taken by the guarded UPDATEs, not on the isolation level.
func (p *Postgres) Begin(ctx context.Context) (Tx, error) {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, err
	}
	return &pgTx{pgRepos: newPGRepos(tx), tx: tx}, nil
}

type pgTx struct {
	pgRepos
	tx pgx.Tx
}

func (t *pgTx) Commit(ctx context.Context) error {
	return translateClosed(t.tx.Commit(ctx))
}

func (t *pgTx) Rollback(ctx context.Context) error {
	return translateClosed(t.tx.Rollback(ctx))
}

func translateClosed(err error) error {
	if errors.Is(err, pgx.ErrTxClosed) {
		return ErrTxClosed
	}
	return err
}
