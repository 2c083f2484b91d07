package cart

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/ration-portal/internal/backend"
	"github.com/mmeshcher/ration-portal/internal/model"
)

type stubBackend struct {
	mu sync.Mutex

	cart   model.Cart
	getErr error

	// syncFn получает номер вызова, начиная с 1.
	syncFn    func(call int, lines []model.CartLine) (model.Cart, error)
	syncCalls int

	removeCart  model.Cart
	removeErr   error
	removeCalls int

	clearErrs  []error
	clearCalls int

	placeID    int64
	placeErr   error
	placeKeys  []string
	placeLines []model.CartLine
}

func (s *stubBackend) GetCart(ctx context.Context, token string) (model.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart, s.getErr
}

func (s *stubBackend) SyncCart(ctx context.Context, token string, lines []model.CartLine) (model.Cart, error) {
	s.mu.Lock()
	s.syncCalls++
	call := s.syncCalls
	fn := s.syncFn
	s.mu.Unlock()

	if fn != nil {
		return fn(call, lines)
	}
	return echo(lines), nil
}

func (s *stubBackend) RemoveCartLine(ctx context.Context, token string, lineID int64) (model.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeCalls++
	return s.removeCart, s.removeErr
}

func (s *stubBackend) ClearCart(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearCalls++
	if len(s.clearErrs) == 0 {
		return nil
	}
	err := s.clearErrs[0]
	s.clearErrs = s.clearErrs[1:]
	return err
}

func (s *stubBackend) PlaceOrder(ctx context.Context, token string, lines []model.CartLine, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.placeKeys = append(s.placeKeys, key)
	s.placeLines = lines
	return s.placeID, s.placeErr
}

func (s *stubBackend) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncCalls
}

// echo возвращает строки так, как их вернул бы бэкенд: с идентификаторами.
func echo(lines []model.CartLine) model.Cart {
	out := make([]model.CartLine, len(lines))
	for i, l := range lines {
		l.LineID = l.ProductID * 10
		l.State = model.LineReconciled
		out[i] = l
	}
	return model.Cart{Lines: out}
}

type correctedErr struct {
	cart model.Cart
}

func (e *correctedErr) Error() string { return "cap adjusted" }

func (e *correctedErr) CorrectedCart() (model.Cart, bool) { return e.cart, true }

func price(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newLoaded(t *testing.T, b *stubBackend) *Coordinator {
	t.Helper()
	c := NewCoordinator(b, "sess", model.DefaultPolicy.HardCap)
	require.NoError(t, c.Load(context.Background(), "tok"))
	return c
}

func TestAddOrUpdate_InvalidQuantityMakesNoCall(t *testing.T) {
	b := &stubBackend{}
	c := NewCoordinator(b, "sess", model.DefaultPolicy.HardCap)

	for _, q := range []int{0, -1} {
		err := c.AddOrUpdate(context.Background(), "tok", 1, q, 0)
		assert.ErrorIs(t, err, ErrInvalidQuantity)
	}
	assert.Equal(t, 0, b.calls())
	assert.False(t, c.Snapshot().Loaded)
}

func TestAddOrUpdate_ReplacesStateWithResponse(t *testing.T) {
	b := &stubBackend{
		cart: model.Cart{Lines: []model.CartLine{{LineID: 5, ProductID: 2, Quantity: 1}}},
		syncFn: func(_ int, lines []model.CartLine) (model.Cart, error) {
			// Бэкенд урезает количество и пересчитывает итоги.
			return model.Cart{
				Lines: []model.CartLine{
					{LineID: 5, ProductID: 2, Quantity: 1, UnitPrice: price("10"), LineTotal: price("10")},
					{LineID: 6, ProductID: 3, Quantity: 2, UnitPrice: price("20"), LineTotal: price("40")},
				},
				Summary: model.CartSummary{PayableAmount: price("25")},
			}, nil
		},
	}
	c := NewCoordinator(b, "sess", model.DefaultPolicy.HardCap)

	require.NoError(t, c.AddOrUpdate(context.Background(), "tok", 3, 5, 0))

	snap := c.Snapshot()
	require.Len(t, snap.Lines, 2)
	assert.Equal(t, 2, snap.Quantity(3))
	assert.Equal(t, int64(6), snap.Lines[1].LineID)
	assert.True(t, snap.Summary.PayableAmount.Equal(price("25")))
	for _, l := range snap.Lines {
		assert.Equal(t, model.LineReconciled, l.State)
	}
	assert.False(t, snap.Pending)
	assert.Empty(t, snap.LastError)
}

func TestAddOrUpdate_SendsWholeLineSet(t *testing.T) {
	var sent []model.CartLine
	b := &stubBackend{
		cart: model.Cart{Lines: []model.CartLine{{LineID: 5, ProductID: 2, Quantity: 1}}},
		syncFn: func(_ int, lines []model.CartLine) (model.Cart, error) {
			sent = lines
			return echo(lines), nil
		},
	}
	c := newLoaded(t, b)

	require.NoError(t, c.AddOrUpdate(context.Background(), "tok", 7, 3, 0))
	require.Len(t, sent, 2)
	assert.Equal(t, int64(5), sent[0].LineID)
	assert.Equal(t, int64(7), sent[1].ProductID)
	assert.Equal(t, model.LineSyncing, sent[1].State)

	require.NoError(t, c.AddOrUpdate(context.Background(), "tok", 7, 4, 70))
	require.Len(t, sent, 2)
	assert.Equal(t, 4, sent[1].Quantity)
}

func TestAddOrUpdate_StaleResponseDiscarded(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	b := &stubBackend{
		syncFn: func(call int, lines []model.CartLine) (model.Cart, error) {
			if call == 1 {
				close(started)
				<-release
			}
			return echo(lines), nil
		},
	}
	c := newLoaded(t, b)

	done := make(chan error)
	go func() {
		done <- c.AddOrUpdate(context.Background(), "tok", 1, 1, 0)
	}()
	<-started

	require.NoError(t, c.AddOrUpdate(context.Background(), "tok", 1, 3, 0))
	assert.Equal(t, 3, c.Snapshot().Quantity(1))

	close(release)
	require.NoError(t, <-done)

	snap := c.Snapshot()
	assert.Equal(t, 3, snap.Quantity(1), "late response must not override newer state")
	assert.False(t, snap.Pending)
}

func TestAddOrUpdate_SupersededResponseUpdatesBaseline(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	failure := errors.New("backend down")

	b := &stubBackend{
		syncFn: func(call int, lines []model.CartLine) (model.Cart, error) {
			switch call {
			case 1:
				close(started)
				<-release
				return model.Cart{Lines: []model.CartLine{{LineID: 10, ProductID: 1, Quantity: 1}}}, nil
			default:
				return model.Cart{}, failure
			}
		},
	}
	c := newLoaded(t, b)

	done := make(chan error)
	go func() {
		done <- c.AddOrUpdate(context.Background(), "tok", 1, 1, 0)
	}()
	<-started

	err := c.AddOrUpdate(context.Background(), "tok", 2, 1, 0)
	require.ErrorIs(t, err, failure)
	assert.True(t, c.Snapshot().Empty(), "rolled back to the empty confirmed cart")

	close(release)
	require.NoError(t, <-done)
	assert.True(t, c.Snapshot().Empty(), "superseded response is not shown")

	err = c.AddOrUpdate(context.Background(), "tok", 3, 1, 0)
	require.ErrorIs(t, err, failure)

	snap := c.Snapshot()
	require.Len(t, snap.Lines, 1)
	assert.Equal(t, int64(1), snap.Lines[0].ProductID)
	assert.Equal(t, int64(3), snap.FailedProductID)
}

func TestAddOrUpdate_RollbackMarksFailedLine(t *testing.T) {
	failure := errors.New("timeout")
	b := &stubBackend{
		cart: model.Cart{Lines: []model.CartLine{{LineID: 5, ProductID: 2, Quantity: 1}}},
		syncFn: func(int, []model.CartLine) (model.Cart, error) {
			return model.Cart{}, failure
		},
	}
	c := newLoaded(t, b)

	err := c.AddOrUpdate(context.Background(), "tok", 2, 4, 5)
	require.ErrorIs(t, err, failure)

	snap := c.Snapshot()
	require.Len(t, snap.Lines, 1)
	assert.Equal(t, 1, snap.Lines[0].Quantity)
	assert.Equal(t, model.LineFailed, snap.Lines[0].State)
	assert.Equal(t, "timeout", snap.LastError)
}

func TestAddOrUpdate_CorrectedCartApplied(t *testing.T) {
	corrected := model.Cart{
		Lines:   []model.CartLine{{LineID: 5, ProductID: 2, Quantity: 2}},
		Summary: model.CartSummary{PayableAmount: price("100")},
	}
	b := &stubBackend{
		syncFn: func(int, []model.CartLine) (model.Cart, error) {
			return model.Cart{}, &correctedErr{cart: corrected}
		},
	}
	c := newLoaded(t, b)

	err := c.AddOrUpdate(context.Background(), "tok", 2, 9, 0)
	require.Error(t, err)

	snap := c.Snapshot()
	assert.Equal(t, 2, snap.Quantity(2))
	assert.True(t, snap.Summary.PayableAmount.Equal(price("100")))
	assert.Equal(t, "cap adjusted", snap.LastError)
}

func TestAddOrUpdate_LoadsBeforeFirstSync(t *testing.T) {
	var sent []model.CartLine
	b := &stubBackend{
		cart: model.Cart{Lines: []model.CartLine{{LineID: 5, ProductID: 2, Quantity: 1}}},
		syncFn: func(_ int, lines []model.CartLine) (model.Cart, error) {
			sent = lines
			return echo(lines), nil
		},
	}
	c := NewCoordinator(b, "sess", model.DefaultPolicy.HardCap)

	require.NoError(t, c.AddOrUpdate(context.Background(), "tok", 3, 1, 0))
	assert.Len(t, sent, 2, "server lines are kept")
}

func TestAddOrUpdate_CapGuard(t *testing.T) {
	b := &stubBackend{
		cart: model.Cart{Lines: []model.CartLine{{LineID: 5, ProductID: 1, Quantity: 2, UnitPrice: price("10000")}}},
		syncFn: func(_ int, lines []model.CartLine) (model.Cart, error) {
			return model.Cart{Lines: lines}, nil
		},
	}
	c := newLoaded(t, b)
	c.Remember([]model.Product{
		{ID: 1, Price: price("10000")},
		{ID: 2, Price: price("6000")},
	})

	err := c.AddOrUpdate(context.Background(), "tok", 2, 1, 0)
	assert.ErrorIs(t, err, ErrCapExceeded)
	assert.Equal(t, 0, b.calls())
	assert.Equal(t, 0, c.Snapshot().Quantity(2))

	// Уменьшение не блокируется.
	require.NoError(t, c.AddOrUpdate(context.Background(), "tok", 1, 1, 5))
	assert.Equal(t, 1, b.calls())

	// Неизвестная цена отключает проверку.
	require.NoError(t, c.AddOrUpdate(context.Background(), "tok", 99, 100, 0))
	assert.Equal(t, 2, b.calls())
}

func TestAddOrUpdate_DecoratesNewLineFromCatalog(t *testing.T) {
	b := &stubBackend{
		syncFn: func(_ int, lines []model.CartLine) (model.Cart, error) {
			out := echo(lines)
			out.Lines[0].Product = model.ProductSnapshot{}
			return out, nil
		},
	}
	c := newLoaded(t, b)
	c.Remember([]model.Product{{ID: 4, Name: "Lentils", Measure: "kg", Price: price("300")}})

	require.NoError(t, c.AddOrUpdate(context.Background(), "tok", 4, 2, 0))

	line, ok := c.Snapshot().Line(4)
	require.True(t, ok)
	assert.Equal(t, "Lentils", line.Product.Name)
	assert.True(t, line.UnitPrice.Equal(price("300")))
	assert.True(t, c.Snapshot().Estimate.Equal(price("600")))
}

func TestRemove(t *testing.T) {
	b := &stubBackend{
		cart: model.Cart{Lines: []model.CartLine{
			{LineID: 5, ProductID: 1, Quantity: 1},
			{LineID: 6, ProductID: 2, Quantity: 1},
		}},
		removeErr: errors.New("boom"),
	}
	c := newLoaded(t, b)

	require.Error(t, c.Remove(context.Background(), "tok", 5))
	assert.Len(t, c.Snapshot().Lines, 2, "failure leaves state unchanged")

	b.removeErr = nil
	b.removeCart = model.Cart{Lines: []model.CartLine{{LineID: 6, ProductID: 2, Quantity: 1}}}
	require.NoError(t, c.Remove(context.Background(), "tok", 5))
	assert.Len(t, c.Snapshot().Lines, 1)

	assert.ErrorIs(t, c.Remove(context.Background(), "tok", 42), ErrLineNotFound)
	assert.Equal(t, 2, b.removeCalls)
}

func TestClear_RequiresConfirmationAndIsIdempotent(t *testing.T) {
	b := &stubBackend{
		cart:      model.Cart{Lines: []model.CartLine{{LineID: 5, ProductID: 1, Quantity: 1}}},
		clearErrs: []error{nil, &backend.APIError{StatusCode: http.StatusNotFound, Message: "Cart is empty"}},
	}
	c := newLoaded(t, b)

	assert.ErrorIs(t, c.Clear(context.Background(), "tok", false), ErrConfirmationRequired)
	assert.Equal(t, 0, b.clearCalls)

	require.NoError(t, c.Clear(context.Background(), "tok", true))
	assert.True(t, c.Snapshot().Empty())

	require.NoError(t, c.Clear(context.Background(), "tok", true))
	assert.True(t, c.Snapshot().Empty())
	assert.Equal(t, 2, b.clearCalls)
}

func TestClear_Failure(t *testing.T) {
	b := &stubBackend{
		cart:      model.Cart{Lines: []model.CartLine{{LineID: 5, ProductID: 1, Quantity: 1}}},
		clearErrs: []error{&backend.APIError{StatusCode: http.StatusInternalServerError}},
	}
	c := newLoaded(t, b)

	require.Error(t, c.Clear(context.Background(), "tok", true))
	assert.Len(t, c.Snapshot().Lines, 1)
}

func TestSubmit(t *testing.T) {
	b := &stubBackend{
		cart:     model.Cart{Lines: []model.CartLine{{LineID: 5, ProductID: 1, Quantity: 2}}},
		placeErr: errors.New("unavailable"),
	}
	c := newLoaded(t, b)

	_, err := c.Submit(context.Background(), "tok", false)
	assert.ErrorIs(t, err, ErrConfirmationRequired)

	_, err = c.Submit(context.Background(), "tok", true)
	require.Error(t, err)
	assert.Len(t, c.Snapshot().Lines, 1, "failure leaves cart untouched")

	b.placeErr = nil
	b.placeID = 77
	id, err := c.Submit(context.Background(), "tok", true)
	require.NoError(t, err)
	assert.Equal(t, int64(77), id)
	assert.True(t, c.Snapshot().Empty())
	require.Len(t, b.placeLines, 1)
	assert.Equal(t, 2, b.placeLines[0].Quantity)

	require.Len(t, b.placeKeys, 2)
	assert.NotEmpty(t, b.placeKeys[0])
	assert.Equal(t, b.placeKeys[0], b.placeKeys[1], "same cart revision reuses the key")

	_, err = c.Submit(context.Background(), "tok", true)
	assert.ErrorIs(t, err, ErrEmptyCart)
}

func TestSubmit_NewCartAfterDropGetsNewKey(t *testing.T) {
	b := &stubBackend{placeID: 1}
	r := NewRegistry(b, model.DefaultPolicy.HardCap, time.Hour, nil)
	ctx := context.Background()

	c := r.For("sess")
	require.NoError(t, c.Load(ctx, "tok"))
	require.NoError(t, c.AddOrUpdate(ctx, "tok", 1, 2, 0))
	_, err := c.Submit(ctx, "tok", true)
	require.NoError(t, err)

	r.Drop("sess")

	c = r.For("sess")
	require.NoError(t, c.Load(ctx, "tok"))
	require.NoError(t, c.AddOrUpdate(ctx, "tok", 2, 5, 0))
	_, err = c.Submit(ctx, "tok", true)
	require.NoError(t, err)

	require.Len(t, b.placeKeys, 2)
	assert.NotEqual(t, b.placeKeys[0], b.placeKeys[1])
}

func TestSubmit_RefusedWhileSyncPending(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	b := &stubBackend{
		syncFn: func(call int, lines []model.CartLine) (model.Cart, error) {
			close(started)
			<-release
			return echo(lines), nil
		},
	}
	c := newLoaded(t, b)

	done := make(chan error)
	go func() {
		done <- c.AddOrUpdate(context.Background(), "tok", 1, 4, 0)
	}()
	<-started

	_, err := c.Submit(context.Background(), "tok", true)
	assert.ErrorIs(t, err, ErrSyncInProgress)

	close(release)
	require.NoError(t, <-done)

	b.placeID = 9
	id, err := c.Submit(context.Background(), "tok", true)
	require.NoError(t, err)
	assert.Equal(t, int64(9), id)
	require.Len(t, b.placeKeys, 1)
	require.Len(t, b.placeLines, 1)
	assert.Equal(t, 4, b.placeLines[0].Quantity)
}

func TestLoad_Failure(t *testing.T) {
	b := &stubBackend{getErr: errors.New("down")}
	c := NewCoordinator(b, "sess", model.DefaultPolicy.HardCap)

	require.Error(t, c.Load(context.Background(), "tok"))
	snap := c.Snapshot()
	assert.True(t, snap.Empty())
	assert.False(t, snap.Loaded)
	assert.Equal(t, "down", snap.LastError)
}

func TestRegistry(t *testing.T) {
	now := time.Now()
	r := NewRegistry(&stubBackend{}, model.DefaultPolicy.HardCap, time.Hour, nil)
	r.now = func() time.Time { return now }

	a := r.For("a")
	assert.Same(t, a, r.For("a"))
	r.For("b")
	assert.Equal(t, 2, r.Len())

	r.Drop("b")
	assert.Equal(t, 1, r.Len())

	now = now.Add(2 * time.Hour)
	assert.Equal(t, 1, r.Sweep())
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_RunStopsOnCancel(t *testing.T) {
	r := NewRegistry(&stubBackend{}, model.DefaultPolicy.HardCap, time.Hour, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error)
	go func() { done <- r.Run(ctx, 10*time.Millisecond) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}
