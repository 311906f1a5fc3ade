package listener

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fekuna/omnipos-offline-sync/internal/apperror"
	"github.com/fekuna/omnipos-offline-sync/internal/events"
	"github.com/fekuna/omnipos-offline-sync/internal/logger"
	"github.com/fekuna/omnipos-offline-sync/internal/model"
	"github.com/fekuna/omnipos-offline-sync/internal/stock/dto"
	"github.com/segmentio/kafka-go"
)

type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
	done      chan struct{}
}

func newFakeReader(msgs ...kafka.Message) *fakeReader {
	for i := range msgs {
		msgs[i].Offset = int64(i)
	}
	return &fakeReader{msgs: msgs, done: make(chan struct{})}
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.msgs) > 0 {
		m := r.msgs[0]
		r.msgs = r.msgs[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

type fakeStock struct {
	mu       sync.Mutex
	inputs   []dto.AdjustStockInput
	failures map[int64]int
	missing  map[int64]bool
}

func (f *fakeStock) AdjustStock(_ context.Context, in *dto.AdjustStockInput) (*dto.AdjustStockResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.missing[in.ProductID] {
		return nil, apperror.NotFound("test", "product %d not found", in.ProductID)
	}
	if f.failures[in.ProductID] > 0 {
		f.failures[in.ProductID]--
		return nil, apperror.Storage("test", errors.New("database is locked"))
	}
	f.inputs = append(f.inputs, *in)
	return &dto.AdjustStockResult{ProductID: in.ProductID}, nil
}

func (f *fakeStock) ListLowStock(context.Context) ([]model.Product, error) {
	return nil, nil
}

func (f *fakeStock) ListMovements(context.Context, *dto.MovementFilters) ([]model.StockMovement, int, error) {
	return nil, 0, nil
}

func (f *fakeStock) GetProduct(context.Context, int64) (*model.Product, error) {
	return nil, nil
}

func (f *fakeStock) Acknowledge(context.Context, *model.SyncEntry) error {
	return nil
}

func (f *fakeStock) applied() []dto.AdjustStockInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]dto.AdjustStockInput(nil), f.inputs...)
}

type memDeduper struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (d *memDeduper) FirstSeen(_ context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen[key] {
		return false, nil
	}
	d.seen[key] = true
	return true, nil
}

func (d *memDeduper) Forget(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, key)
	return nil
}

func invoiceMessage(t *testing.T, eventID, eventType string, items ...InvoiceItemPayload) kafka.Message {
	t.Helper()
	payload, err := json.Marshal(InvoiceIssuedPayload{InvoiceID: "F-" + eventID, Actor: "cajero1", Items: items})
	if err != nil {
		t.Fatal(err)
	}
	value, err := json.Marshal(events.Envelope{
		EventID:      eventID,
		EventType:    eventType,
		EventVersion: 1,
		OccurredAt:   time.Now().UTC(),
		Producer:     "invoicing",
		Payload:      payload,
	})
	if err != nil {
		t.Fatal(err)
	}
	return kafka.Message{Value: value}
}

func run(t *testing.T, reader *fakeReader, uc *fakeStock, dedup Deduper, wantCommits int) {
	t.Helper()
	l := NewSalesListener(reader, uc, dedup, logger.NewNop())
	l.retryDelay = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Start(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for len(reader.commits()) < wantCommits && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Start returned %v", err)
	}
	if got := len(reader.commits()); got != wantCommits {
		t.Fatalf("commits = %d, want %d", got, wantCommits)
	}
}

func TestSalesListenerAppliesInvoiceLines(t *testing.T) {
	reader := newFakeReader(
		invoiceMessage(t, "e1", EventInvoiceIssued,
			InvoiceItemPayload{ProductID: 1, Quantity: 3},
			InvoiceItemPayload{ProductID: 2, Quantity: 1},
		),
		invoiceMessage(t, "e2", "InvoiceCancelled", InvoiceItemPayload{ProductID: 1, Quantity: 3}),
		kafka.Message{Value: []byte("not json")},
	)
	uc := &fakeStock{}
	run(t, reader, uc, nil, 3)

	got := uc.applied()
	if len(got) != 2 {
		t.Fatalf("adjustments = %d, want 2", len(got))
	}
	for _, in := range got {
		if in.Reason != "venta" || in.Actor != "cajero1" {
			t.Errorf("adjustment = %+v", in)
		}
	}
	if got[0].Amount != 3 || got[1].Amount != 1 {
		t.Errorf("amounts = %d, %d", got[0].Amount, got[1].Amount)
	}
}

func TestSalesListenerSkipsDuplicates(t *testing.T) {
	msg := invoiceMessage(t, "e1", EventInvoiceIssued, InvoiceItemPayload{ProductID: 1, Quantity: 2})
	reader := newFakeReader(msg, msg)
	uc := &fakeStock{}
	run(t, reader, uc, &memDeduper{seen: map[string]bool{}}, 2)

	if n := len(uc.applied()); n != 1 {
		t.Errorf("adjustments = %d, want 1", n)
	}
}

func TestSalesListenerRetriesStorageFailures(t *testing.T) {
	reader := newFakeReader(invoiceMessage(t, "e1", EventInvoiceIssued,
		InvoiceItemPayload{ProductID: 1, Quantity: 1},
		InvoiceItemPayload{ProductID: 2, Quantity: 1},
	))
	uc := &fakeStock{failures: map[int64]int{2: 2}}
	run(t, reader, uc, &memDeduper{seen: map[string]bool{}}, 1)

	got := uc.applied()
	if len(got) != 2 || got[0].ProductID != 1 || got[1].ProductID != 2 {
		t.Errorf("adjustments = %+v, want product 1 once then product 2", got)
	}
}

func TestSalesListenerSkipsBadLines(t *testing.T) {
	reader := newFakeReader(invoiceMessage(t, "e1", EventInvoiceIssued,
		InvoiceItemPayload{ProductID: 7, Quantity: 1},
		InvoiceItemPayload{ProductID: 1, Quantity: 0.5},
		InvoiceItemPayload{ProductID: 2, Quantity: 4},
	))
	uc := &fakeStock{missing: map[int64]bool{7: true}}
	run(t, reader, uc, nil, 1)

	got := uc.applied()
	if len(got) != 1 || got[0].ProductID != 2 {
		t.Errorf("adjustments = %+v, want only product 2", got)
	}
}
