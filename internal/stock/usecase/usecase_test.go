package usecase_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fekuna/omnipos-offline-sync/internal/apperror"
	"github.com/fekuna/omnipos-offline-sync/internal/database/sqlite"
	"github.com/fekuna/omnipos-offline-sync/internal/database/sqlite/sqlitetest"
	"github.com/fekuna/omnipos-offline-sync/internal/events"
	"github.com/fekuna/omnipos-offline-sync/internal/lock"
	"github.com/fekuna/omnipos-offline-sync/internal/logger"
	"github.com/fekuna/omnipos-offline-sync/internal/model"
	"github.com/fekuna/omnipos-offline-sync/internal/remote"
	"github.com/fekuna/omnipos-offline-sync/internal/stock"
	"github.com/fekuna/omnipos-offline-sync/internal/stock/dto"
	"github.com/fekuna/omnipos-offline-sync/internal/stock/repository"
	"github.com/fekuna/omnipos-offline-sync/internal/stock/usecase"
	"github.com/fekuna/omnipos-offline-sync/internal/syncqueue"
	queuerepo "github.com/fekuna/omnipos-offline-sync/internal/syncqueue/repository"
	queueuc "github.com/fekuna/omnipos-offline-sync/internal/syncqueue/usecase"
	"github.com/jmoiron/sqlx"
)

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) ofType(typ string) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, e := range r.events {
		if e.EventType() == typ {
			out = append(out, e)
		}
	}
	return out
}

// faultyRepo fails the movement insert after the quantity update went through.
type faultyRepo struct {
	stock.Repository
	failInsert bool
}

func (f *faultyRepo) InsertMovement(ctx context.Context, m *model.StockMovement) error {
	if f.failInsert {
		return apperror.Storage("test.InsertMovement", errors.New("disk I/O error"))
	}
	return f.Repository.InsertMovement(ctx, m)
}

type env struct {
	db     *sqlx.DB
	uc     stock.UseCase
	repo   *faultyRepo
	queue  syncqueue.UseCase
	oracle *remote.Static
	events *recorder
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := sqlitetest.New(t)
	log := logger.NewNop()
	rec := &recorder{}
	oracle := remote.NewStatic(true)
	queue := queueuc.NewSyncQueueUseCase(queuerepo.NewSQLiteRepository(db), rec, log)
	repo := &faultyRepo{Repository: repository.NewSQLiteRepository(db)}

	uc := usecase.NewStockUseCase(
		repo,
		sqlite.NewTxManager(db),
		lock.NewLocalLocker(),
		queue,
		syncqueue.NewGate(oracle, false),
		rec,
		log,
	)
	return &env{db: db, uc: uc, repo: repo, queue: queue, oracle: oracle, events: rec}
}

func (e *env) seedProduct(t *testing.T, code string, quantity, minQuantity int64) int64 {
	t.Helper()
	now := time.Now().UTC()
	res, err := e.db.Exec(
		`INSERT INTO products (code, name, quantity, min_quantity, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		code, "product "+code, quantity, minQuantity, now, now)
	if err != nil {
		t.Fatalf("seed product: %v", err)
	}
	id, _ := res.LastInsertId()
	return id
}

func (e *env) quantity(t *testing.T, id int64) int64 {
	t.Helper()
	p, err := e.uc.GetProduct(context.Background(), id)
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	return p.Quantity
}

func (e *env) movements(t *testing.T, id int64) []model.StockMovement {
	t.Helper()
	ms, _, err := e.uc.ListMovements(context.Background(), &dto.MovementFilters{ProductID: id})
	if err != nil {
		t.Fatalf("ListMovements: %v", err)
	}
	return ms
}

func TestAdjustStockSaleScenario(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := e.seedProduct(t, "P1", 10, 5)

	res, err := e.uc.AdjustStock(ctx, &dto.AdjustStockInput{ProductID: id, Amount: 3, Reason: "venta", Actor: "cajero1"})
	if err != nil {
		t.Fatalf("AdjustStock: %v", err)
	}
	if res.PreviousQuantity != 10 || res.NewQuantity != 7 || res.Clamped {
		t.Errorf("first sale = %+v, want 10 -> 7 unclamped", res)
	}
	if q := e.quantity(t, id); q != 7 {
		t.Errorf("quantity = %d, want 7", q)
	}

	ms := e.movements(t, id)
	if len(ms) != 1 {
		t.Fatalf("movements = %d, want 1", len(ms))
	}
	m := ms[0]
	if m.Kind != model.MovementOutbound || m.Amount != 3 || m.Delta != -3 || m.Actor != "cajero1" || m.ID != res.MovementID {
		t.Errorf("movement = %+v", m)
	}

	res, err = e.uc.AdjustStock(ctx, &dto.AdjustStockInput{ProductID: id, Amount: 20, Reason: "venta", Actor: "cajero1"})
	if err != nil {
		t.Fatalf("AdjustStock: %v", err)
	}
	if res.PreviousQuantity != 7 || res.NewQuantity != 0 || !res.Clamped || !res.LowStock {
		t.Errorf("second sale = %+v, want 7 -> 0 clamped and low", res)
	}

	low, err := e.uc.ListLowStock(ctx)
	if err != nil {
		t.Fatalf("ListLowStock: %v", err)
	}
	if len(low) != 1 || low[0].ID != id {
		t.Errorf("low stock = %+v, want product %d", low, id)
	}

	adjusted := e.events.ofType(events.TypeStockAdjusted)
	if len(adjusted) != 2 {
		t.Fatalf("StockAdjusted events = %d, want 2", len(adjusted))
	}
	if last := adjusted[1].(events.StockAdjusted); !last.Clamped || last.NewQuantity != 0 {
		t.Errorf("last event = %+v", last)
	}
}

func TestAdjustStockInbound(t *testing.T) {
	e := newEnv(t)
	id := e.seedProduct(t, "P1", 0, 5)

	res, err := e.uc.AdjustStock(context.Background(), &dto.AdjustStockInput{ProductID: id, Amount: 12, Reason: "ingreso_manual"})
	if err != nil {
		t.Fatalf("AdjustStock: %v", err)
	}
	if res.NewQuantity != 12 || res.Kind != model.MovementInbound || res.LowStock {
		t.Errorf("result = %+v", res)
	}
	if ms := e.movements(t, id); ms[0].Actor != "sistema" {
		t.Errorf("actor = %q, want default", ms[0].Actor)
	}
}

func TestAdjustStockValidation(t *testing.T) {
	e := newEnv(t)
	id := e.seedProduct(t, "P1", 5, 1)

	tests := []struct {
		name  string
		input dto.AdjustStockInput
		kind  apperror.Kind
	}{
		{"missing product", dto.AdjustStockInput{ProductID: 999, Amount: 1, Reason: "venta"}, apperror.KindNotFound},
		{"negative amount", dto.AdjustStockInput{ProductID: id, Amount: -1, Reason: "venta"}, apperror.KindInvalidArgument},
		{"empty reason", dto.AdjustStockInput{ProductID: id, Amount: 1, Reason: ""}, apperror.KindInvalidArgument},
		{"zero id", dto.AdjustStockInput{ProductID: 0, Amount: 1, Reason: "venta"}, apperror.KindInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := tt.input
			if _, err := e.uc.AdjustStock(context.Background(), &input); !apperror.Is(err, tt.kind) {
				t.Errorf("err = %v, want %s", err, tt.kind)
			}
		})
	}

	if q := e.quantity(t, id); q != 5 {
		t.Errorf("quantity changed to %d by rejected calls", q)
	}
	if ms := e.movements(t, id); len(ms) != 0 {
		t.Errorf("rejected calls logged %d movements", len(ms))
	}
}

func TestAdjustStockNeverNegative(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := e.seedProduct(t, "P1", 4, 0)

	for _, amount := range []int64{1, 5, 0, 3, 100} {
		res, err := e.uc.AdjustStock(ctx, &dto.AdjustStockInput{ProductID: id, Amount: amount, Reason: "egreso_manual"})
		if err != nil {
			t.Fatalf("AdjustStock(%d): %v", amount, err)
		}
		if res.NewQuantity < 0 {
			t.Fatalf("quantity went negative: %+v", res)
		}
	}
	if q := e.quantity(t, id); q != 0 {
		t.Errorf("quantity = %d, want 0", q)
	}
}

func TestAdjustStockRollsBackOnStorageFailure(t *testing.T) {
	e := newEnv(t)
	id := e.seedProduct(t, "P1", 10, 2)
	e.repo.failInsert = true

	_, err := e.uc.AdjustStock(context.Background(), &dto.AdjustStockInput{ProductID: id, Amount: 4, Reason: "venta"})
	if !apperror.Is(err, apperror.KindLocalStorage) {
		t.Fatalf("err = %v, want local storage failure", err)
	}

	e.repo.failInsert = false
	if q := e.quantity(t, id); q != 10 {
		t.Errorf("quantity = %d after failed adjustment, want 10", q)
	}
	if ms := e.movements(t, id); len(ms) != 0 {
		t.Errorf("movements = %d after failed adjustment, want 0", len(ms))
	}
	if n := len(e.events.ofType(events.TypeStockAdjusted)); n != 0 {
		t.Errorf("StockAdjusted published for a rolled back adjustment")
	}
}

func TestAdjustStockQueuesWhenOffline(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := e.seedProduct(t, "P1", 10, 2)

	if _, err := e.uc.AdjustStock(ctx, &dto.AdjustStockInput{ProductID: id, Amount: 1, Reason: "venta"}); err != nil {
		t.Fatalf("online AdjustStock: %v", err)
	}
	pending, _ := e.queue.ListPending(ctx, 5)
	if len(pending) != 0 {
		t.Fatalf("online adjustment queued %d entries", len(pending))
	}

	e.oracle.Set(false)
	res, err := e.uc.AdjustStock(ctx, &dto.AdjustStockInput{ProductID: id, Amount: 2, Reason: "venta"})
	if err != nil {
		t.Fatalf("offline AdjustStock: %v", err)
	}
	if !res.Queued {
		t.Error("offline adjustment not reported as queued")
	}

	pending, err = e.queue.ListPending(ctx, 5)
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("pending = %d, want 2", len(pending))
	}
	if pending[0].TableName != model.TableProducts || pending[0].Operation != model.OpUpdate {
		t.Errorf("first entry = %s %s", pending[0].Operation, pending[0].TableName)
	}
	if pending[1].TableName != model.TableStockMovements || pending[1].Operation != model.OpInsert {
		t.Errorf("second entry = %s %s", pending[1].Operation, pending[1].TableName)
	}

	ms := e.movements(t, id)
	if !ms[0].SyncPending || ms[1].SyncPending {
		t.Errorf("sync_pending flags = %v, %v; want newest pending only", ms[0].SyncPending, ms[1].SyncPending)
	}

	if err := e.uc.Acknowledge(ctx, &pending[1]); err != nil {
		t.Fatalf("Acknowledge: %v", err)
	}
	if err := e.uc.Acknowledge(ctx, &pending[0]); err != nil {
		t.Fatalf("Acknowledge product entry: %v", err)
	}
	if ms := e.movements(t, id); ms[0].SyncPending {
		t.Error("movement still pending after acknowledgement")
	}
}

func TestAdjustStockSerializesPerProduct(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	const n = 20
	id := e.seedProduct(t, "P1", n, 0)

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.uc.AdjustStock(ctx, &dto.AdjustStockInput{ProductID: id, Amount: 1, Reason: "venta"}); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("AdjustStock: %v", err)
	}

	if q := e.quantity(t, id); q != 0 {
		t.Errorf("quantity = %d, want 0", q)
	}

	// Newest first: each movement starts where the previous one ended.
	ms := e.movements(t, id)
	if len(ms) != n {
		t.Fatalf("movements = %d, want %d", len(ms), n)
	}
	for i := 0; i < len(ms); i++ {
		m := ms[i]
		if m.QuantityAfter-m.QuantityBefore != m.Delta {
			t.Errorf("movement %d: after-before != delta", m.ID)
		}
		if i+1 < len(ms) && ms[i+1].QuantityAfter != m.QuantityBefore {
			t.Errorf("movement %d starts at %d, previous ended at %d", m.ID, m.QuantityBefore, ms[i+1].QuantityAfter)
		}
	}
}

func TestListMovementsFilters(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := e.seedProduct(t, "P1", 0, 0)

	for _, reason := range []string{"inicial", "venta", "devolucion", "venta"} {
		if _, err := e.uc.AdjustStock(ctx, &dto.AdjustStockInput{ProductID: id, Amount: 1, Reason: reason}); err != nil {
			t.Fatalf("AdjustStock: %v", err)
		}
	}

	out, total, err := e.uc.ListMovements(ctx, &dto.MovementFilters{ProductID: id, Kind: model.MovementOutbound})
	if err != nil {
		t.Fatalf("ListMovements: %v", err)
	}
	if total != 2 || len(out) != 2 {
		t.Errorf("outbound = %d/%d, want 2", len(out), total)
	}

	page, total, err := e.uc.ListMovements(ctx, &dto.MovementFilters{ProductID: id, Page: 2, PageSize: 3})
	if err != nil {
		t.Fatalf("ListMovements: %v", err)
	}
	if total != 4 || len(page) != 1 || page[0].Reason != "inicial" {
		t.Errorf("page 2 = %+v (total %d), want the oldest movement", page, total)
	}

	future := time.Now().Add(time.Hour)
	none, _, err := e.uc.ListMovements(ctx, &dto.MovementFilters{ProductID: id, From: &future})
	if err != nil {
		t.Fatalf("ListMovements: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("movements after now = %d, want 0", len(none))
	}

	if _, _, err := e.uc.ListMovements(ctx, &dto.MovementFilters{Kind: "sideways"}); !apperror.Is(err, apperror.KindInvalidArgument) {
		t.Errorf("bad kind err = %v", err)
	}
}

func TestExclusiveAdjustmentJoinsCallerTransaction(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := e.seedProduct(t, "P1", 10, 5)
	txm := sqlite.NewTxManager(e.db)

	input := &dto.AdjustStockInput{ProductID: id, Amount: 3, Reason: "venta", Exclusive: true}
	if _, err := e.uc.AdjustStock(ctx, input); !apperror.Is(err, apperror.KindInvalidArgument) {
		t.Fatalf("exclusive adjustment outside a transaction: err = %v", err)
	}

	err := txm.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := e.uc.AdjustStock(ctx, input); err != nil {
			return err
		}
		if n := len(e.events.ofType(events.TypeStockAdjusted)); n != 0 {
			t.Errorf("StockAdjusted published before commit")
		}
		return errors.New("caller aborts")
	})
	if err == nil {
		t.Fatal("expected the caller's error")
	}
	if q := e.quantity(t, id); q != 10 {
		t.Errorf("quantity = %d after rollback, want 10", q)
	}
	if n := len(e.events.ofType(events.TypeStockAdjusted)); n != 0 {
		t.Errorf("StockAdjusted published for a rolled back adjustment")
	}

	input.Queue = true
	err = txm.WithinTx(ctx, func(ctx context.Context) error {
		_, err := e.uc.AdjustStock(ctx, input)
		return err
	})
	if err != nil {
		t.Fatalf("WithinTx: %v", err)
	}
	if q := e.quantity(t, id); q != 7 {
		t.Errorf("quantity = %d, want 7", q)
	}
	if n := len(e.events.ofType(events.TypeStockAdjusted)); n != 1 {
		t.Errorf("StockAdjusted published %d times after commit, want 1", n)
	}
	pending, _ := e.queue.ListPending(ctx, 5)
	if len(pending) != 2 {
		t.Errorf("pending = %d, want the queue decision from the caller", len(pending))
	}
}
