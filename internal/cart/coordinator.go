// Package cart держит локальное зеркало корзины сотрудника и сверяет его с бэкендом.
//
// Бэкенд считается источником истины, каждый ответ целиком заменяет строки и итоги.
// Запросы нумеруются; ответ меняет видимое состояние, только если после него
// не было отправлено более нового запроса.
package cart

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/ration-portal/internal/backend"
	"github.com/mmeshcher/ration-portal/internal/model"
)

var (
	// ErrInvalidQuantity возвращается для количества меньше единицы.
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
	// ErrCapExceeded возвращается, если оценка суммы корзины превышает лимит программы.
	ErrCapExceeded = errors.New("cart total exceeds the ration cap")
	// ErrConfirmationRequired возвращается для разрушающих действий без подтверждения.
	ErrConfirmationRequired = errors.New("confirmation required")
	// ErrEmptyCart возвращается при попытке оформить пустую корзину.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrLineNotFound возвращается, если строки с таким идентификатором нет в корзине.
	ErrLineNotFound = errors.New("cart line not found")
	// ErrSyncInProgress возвращается при оформлении заказа, пока изменения корзины не подтверждены.
	ErrSyncInProgress = errors.New("cart sync in progress")
)

// Backend описывает операции бэкенда, нужные координатору.
type Backend interface {
	GetCart(ctx context.Context, token string) (model.Cart, error)
	SyncCart(ctx context.Context, token string, lines []model.CartLine) (model.Cart, error)
	RemoveCartLine(ctx context.Context, token string, lineID int64) (model.Cart, error)
	ClearCart(ctx context.Context, token string) error
	PlaceOrder(ctx context.Context, token string, lines []model.CartLine, idempotencyKey string) (int64, error)
}

// correction реализуют ошибки, несущие исправленную бэкендом корзину.
type correction interface {
	CorrectedCart() (model.Cart, bool)
}

// Snapshot: неизменяемая копия состояния корзины для отрисовки.
type Snapshot struct {
	Lines           []model.CartLine
	Summary         model.CartSummary
	Estimate        decimal.Decimal
	LastError       string
	FailedProductID int64
	Pending         bool
	Loaded          bool
}

// Empty сообщает, нет ли в корзине строк.
func (s Snapshot) Empty() bool {
	return len(s.Lines) == 0
}

// Quantity возвращает количество товара в корзине или 0.
func (s Snapshot) Quantity(productID int64) int {
	for _, l := range s.Lines {
		if l.ProductID == productID {
			return l.Quantity
		}
	}
	return 0
}

// Line возвращает строку корзины для товара.
func (s Snapshot) Line(productID int64) (model.CartLine, bool) {
	for _, l := range s.Lines {
		if l.ProductID == productID {
			return l, true
		}
	}
	return model.CartLine{}, false
}

// Coordinator координирует корзину одной сессии.
type Coordinator struct {
	mu sync.Mutex

	backend   Backend
	sessionID string
	cartID    uuid.UUID
	hardCap   decimal.Decimal

	lines   []model.CartLine
	summary model.CartSummary

	// confirmed хранит последнюю корзину, подтверждённую бэкендом.
	confirmed    model.Cart
	confirmedSeq uint64

	seq      uint64
	revision uint64
	pending  int
	loaded   bool

	lastErr       string
	failedProduct int64

	catalog  map[int64]model.Product
	lastUsed time.Time
	now      func() time.Time
}

// NewCoordinator создаёт координатор корзины для сессии.
func NewCoordinator(b Backend, sessionID string, hardCap decimal.Decimal) *Coordinator {
	c := &Coordinator{
		backend:   b,
		sessionID: sessionID,
		cartID:    uuid.New(),
		hardCap:   hardCap,
		catalog:   make(map[int64]model.Product),
		now:       time.Now,
	}
	c.lastUsed = c.now()
	return c
}

// Snapshot возвращает копию текущего состояния.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		Lines:           copyLines(c.lines),
		Summary:         c.summary,
		Estimate:        c.estimate(c.lines),
		LastError:       c.lastErr,
		FailedProductID: c.failedProduct,
		Pending:         c.pending > 0,
		Loaded:          c.loaded,
	}
}

// Remember запоминает цены и данные товаров, показанных в каталоге.
func (c *Coordinator) Remember(products []model.Product) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, p := range products {
		c.catalog[p.ID] = p
	}
}

// Load загружает корзину с бэкенда.
func (c *Coordinator) Load(ctx context.Context, token string) error {
	c.mu.Lock()
	seq := c.begin()
	c.mu.Unlock()

	cart, err := c.backend.GetCart(ctx, token)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending--

	if err != nil {
		if seq == c.seq {
			c.lastErr = err.Error()
		}
		return fmt.Errorf("load cart: %w", err)
	}

	c.apply(seq, cart)
	return nil
}

// AddOrUpdate добавляет товар или меняет количество и отправляет весь набор строк бэкенду.
// Ненулевой lineID задаёт уже сохранённую строку, при нуле строка ищется по товару.
func (c *Coordinator) AddOrUpdate(ctx context.Context, token string, productID int64, quantity int, lineID int64) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}

	// Бэкенд заменяет корзину целиком, поэтому без загруженной корзины нельзя отправлять правку.
	if err := c.ensureLoaded(ctx, token); err != nil {
		return err
	}

	c.mu.Lock()
	proposed := c.propose(productID, quantity, lineID)
	if c.exceedsCap(c.lines, proposed) {
		c.mu.Unlock()
		return ErrCapExceeded
	}
	c.setLines(proposed)
	seq := c.begin()
	c.mu.Unlock()

	cart, err := c.backend.SyncCart(ctx, token, copyLines(proposed))

	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending--

	if err == nil {
		c.apply(seq, cart)
		return nil
	}

	var corr correction
	if errors.As(err, &corr) {
		if corrected, ok := corr.CorrectedCart(); ok {
			c.apply(seq, corrected)
			if seq == c.seq {
				c.lastErr = err.Error()
			}
			return fmt.Errorf("sync cart: %w", err)
		}
	}

	c.rollback(seq, productID, err)
	return fmt.Errorf("sync cart: %w", err)
}

// Remove удаляет строку корзины. При ошибке состояние не меняется.
func (c *Coordinator) Remove(ctx context.Context, token string, lineID int64) error {
	c.mu.Lock()
	if lineID <= 0 || (c.loaded && !hasLine(c.lines, lineID)) {
		c.mu.Unlock()
		return ErrLineNotFound
	}
	seq := c.begin()
	c.mu.Unlock()

	cart, err := c.backend.RemoveCartLine(ctx, token, lineID)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending--

	if err != nil {
		if seq == c.seq {
			c.lastErr = err.Error()
		}
		return fmt.Errorf("remove cart line: %w", err)
	}

	c.apply(seq, cart)
	return nil
}

// Clear очищает корзину. Ответ 404 означает, что на бэкенде корзина уже пуста.
func (c *Coordinator) Clear(ctx context.Context, token string, confirmed bool) error {
	if !confirmed {
		return ErrConfirmationRequired
	}

	c.mu.Lock()
	seq := c.begin()
	c.mu.Unlock()

	err := c.backend.ClearCart(ctx, token)
	if err != nil && isNotFound(err) {
		err = nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending--

	if err != nil {
		if seq == c.seq {
			c.lastErr = err.Error()
		}
		return fmt.Errorf("clear cart: %w", err)
	}

	c.apply(seq, model.Cart{})
	return nil
}

// Submit оформляет заказ из текущих строк и возвращает его идентификатор.
// При ошибке корзина остаётся нетронутой.
func (c *Coordinator) Submit(ctx context.Context, token string, confirmed bool) (int64, error) {
	if !confirmed {
		return 0, ErrConfirmationRequired
	}

	if err := c.ensureLoaded(ctx, token); err != nil {
		return 0, err
	}

	c.mu.Lock()
	if len(c.lines) == 0 {
		c.mu.Unlock()
		return 0, ErrEmptyCart
	}
	if c.pending > 0 {
		c.mu.Unlock()
		return 0, ErrSyncInProgress
	}
	lines := copyLines(c.lines)
	key := c.idempotencyKey()
	seq := c.begin()
	c.mu.Unlock()

	orderID, err := c.backend.PlaceOrder(ctx, token, lines, key)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending--

	if err != nil {
		if seq == c.seq {
			c.lastErr = err.Error()
		}
		return 0, fmt.Errorf("place order: %w", err)
	}

	c.apply(seq, model.Cart{})
	return orderID, nil
}

func (c *Coordinator) ensureLoaded(ctx context.Context, token string) error {
	c.mu.Lock()
	loaded := c.loaded
	c.mu.Unlock()
	if loaded {
		return nil
	}
	return c.Load(ctx, token)
}

// Touch отмечает использование координатора.
func (c *Coordinator) Touch() {
	c.mu.Lock()
	c.lastUsed = c.now()
	c.mu.Unlock()
}

func (c *Coordinator) idleSince() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastUsed
}

// begin выдаёт номер нового запроса. Вызывается под c.mu.
func (c *Coordinator) begin() uint64 {
	c.seq++
	c.pending++
	c.lastUsed = c.now()
	return c.seq
}

// apply принимает подтверждённую бэкендом корзину. Вызывается под c.mu.
func (c *Coordinator) apply(seq uint64, cart model.Cart) {
	if seq > c.confirmedSeq {
		c.confirmed = model.Cart{Lines: copyLines(cart.Lines), Summary: cart.Summary}
		c.confirmedSeq = seq
	}
	c.loaded = true
	if seq != c.seq {
		return
	}

	lines := copyLines(cart.Lines)
	for i := range lines {
		lines[i].State = model.LineReconciled
		c.decorate(&lines[i])
	}
	c.setLines(lines)
	c.summary = cart.Summary
	c.lastErr = ""
	c.failedProduct = 0
}

// rollback возвращает строки к последней подтверждённой корзине. Вызывается под c.mu.
func (c *Coordinator) rollback(seq uint64, productID int64, err error) {
	if seq != c.seq {
		return
	}

	lines := copyLines(c.confirmed.Lines)
	for i := range lines {
		lines[i].State = model.LineReconciled
		if lines[i].ProductID == productID {
			lines[i].State = model.LineFailed
		}
	}
	c.setLines(lines)
	c.summary = c.confirmed.Summary
	c.lastErr = err.Error()
	c.failedProduct = productID
}

func (c *Coordinator) setLines(lines []model.CartLine) {
	c.lines = lines
	c.revision++
}

func (c *Coordinator) propose(productID int64, quantity int, lineID int64) []model.CartLine {
	lines := copyLines(c.lines)
	for i := range lines {
		if (lineID != 0 && lines[i].LineID == lineID) || lines[i].ProductID == productID {
			lines[i].Quantity = quantity
			lines[i].State = model.LineSyncing
			return lines
		}
	}

	line := model.CartLine{
		LineID:    lineID,
		ProductID: productID,
		Quantity:  quantity,
		State:     model.LineSyncing,
	}
	c.decorate(&line)
	return append(lines, line)
}

// decorate дополняет строку ценой и данными товара из каталога, если бэкенд их не прислал.
func (c *Coordinator) decorate(line *model.CartLine) {
	p, ok := c.catalog[line.ProductID]
	if !ok {
		return
	}
	if line.UnitPrice.IsZero() {
		line.UnitPrice = p.Price
	}
	if line.Product.Name == "" {
		line.Product = p.Snapshot()
	}
}

// estimate считает сумму корзины по известным ценам.
func (c *Coordinator) estimate(lines []model.CartLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(c.unitPrice(l).Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return total
}

func (c *Coordinator) unitPrice(l model.CartLine) decimal.Decimal {
	if !l.UnitPrice.IsZero() {
		return l.UnitPrice
	}
	if p, ok := c.catalog[l.ProductID]; ok {
		return p.Price
	}
	return decimal.Zero
}

// exceedsCap блокирует только правки, увеличивающие оценку сверх лимита.
// Если цена хотя бы одной строки неизвестна, проверка пропускается.
func (c *Coordinator) exceedsCap(current, proposed []model.CartLine) bool {
	if c.hardCap.IsZero() {
		return false
	}
	for _, l := range proposed {
		if c.unitPrice(l).IsZero() {
			return false
		}
	}

	next := c.estimate(proposed)
	return next.GreaterThan(c.hardCap) && next.GreaterThan(c.estimate(current))
}

// idempotencyKey постоянен для одной ревизии строк и уникален между координаторами одной сессии.
func (c *Coordinator) idempotencyKey() string {
	name := fmt.Sprintf("%s/%d", c.sessionID, c.revision)
	return uuid.NewSHA1(c.cartID, []byte(name)).String()
}

func isNotFound(err error) bool {
	var apiErr *backend.APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

func hasLine(lines []model.CartLine, lineID int64) bool {
	for _, l := range lines {
		if l.LineID == lineID {
			return true
		}
	}
	return false
}

func copyLines(lines []model.CartLine) []model.CartLine {
	if len(lines) == 0 {
		return []model.CartLine{}
	}
	return append([]model.CartLine(nil), lines...)
}
