package service

import (
	"context"
	"errors"
	"time"

	"github.com/nakshjewels/cart-service/internal/catalog"
	"github.com/nakshjewels/cart-service/internal/domain"
	"github.com/nakshjewels/cart-service/internal/repository"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type Options struct {
	// MaxAttempts bounds the read-modify-write loop on version conflicts.
	MaxAttempts    int
	StoreTimeout   time.Duration
	CatalogTimeout time.Duration
}

func DefaultOptions() Options {
	return Options{
		MaxAttempts:    3,
		StoreTimeout:   2 * time.Second,
		CatalogTimeout: 2 * time.Second,
	}
}

// CartService applies cart commands. Each mutation loads the stored cart,
// validates it against live catalog data, reprices it and saves it with an
// optimistic version check, retrying the whole sequence on conflict.
type CartService struct {
	repo    repository.CartRepository
	catalog catalog.Catalog
	logger  *zap.Logger
	tracer  trace.Tracer
	opts    Options
	now     func() time.Time
}

func NewCartService(repo repository.CartRepository, cat catalog.Catalog, logger *zap.Logger, opts Options) *CartService {
	def := DefaultOptions()
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = def.MaxAttempts
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = def.StoreTimeout
	}
	if opts.CatalogTimeout <= 0 {
		opts.CatalogTimeout = def.CatalogTimeout
	}
	return &CartService{
		repo:    repo,
		catalog: cat,
		logger:  logger,
		tracer:  otel.Tracer("github.com/nakshjewels/cart-service/internal/service"),
		opts:    opts,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// GetCart returns the priced cart, or an empty one if the session has none.
// Nothing is persisted on read.
func (s *CartService) GetCart(ctx context.Context, sessionID string) (view *domain.CartView, err error) {
	ctx, span := s.tracer.Start(ctx, "cart.get", trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer func() { endSpan(span, err) }()

	if err := validateSessionID(sessionID); err != nil {
		return nil, err
	}

	cart, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if cart.IsEmpty() {
		return emptyView(cart), nil
	}

	return s.priceLogged(ctx, cart, nil)
}

func (s *CartService) AddItem(ctx context.Context, sessionID, productID string, quantity int) (*domain.CartView, error) {
	return s.Execute(ctx, sessionID, AddItem{ProductID: productID, Quantity: quantity})
}

func (s *CartService) SetItemQuantity(ctx context.Context, sessionID, productID string, quantity int) (*domain.CartView, error) {
	return s.Execute(ctx, sessionID, SetQuantity{ProductID: productID, Quantity: quantity})
}

func (s *CartService) RemoveItem(ctx context.Context, sessionID, productID string) (*domain.CartView, error) {
	return s.Execute(ctx, sessionID, RemoveItem{ProductID: productID})
}

func (s *CartService) ClearCart(ctx context.Context, sessionID string) (*domain.CartView, error) {
	return s.Execute(ctx, sessionID, Clear{})
}

// Execute runs one command against the session's cart.
func (s *CartService) Execute(ctx context.Context, sessionID string, cmd Command) (view *domain.CartView, err error) {
	name := "cart.unknown"
	if cmd != nil {
		name = "cart." + cmd.commandName()
	}
	ctx, span := s.tracer.Start(ctx, name, trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer func() { endSpan(span, err) }()

	if err := validateSessionID(sessionID); err != nil {
		return nil, err
	}
	if err := validateCommand(cmd); err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= s.opts.MaxAttempts; attempt++ {
		view, err = s.mutate(ctx, sessionID, cmd)
		if !errors.Is(err, repository.ErrConflict) {
			return view, err
		}
		span.AddEvent("version conflict", trace.WithAttributes(attribute.Int("attempt", attempt)))
		s.logger.Debug("cart version conflict, retrying",
			zap.String("session_id", sessionID),
			zap.String("command", cmd.commandName()),
			zap.Int("attempt", attempt))
	}

	s.logger.Warn("cart update gave up after repeated conflicts",
		zap.String("session_id", sessionID),
		zap.String("command", cmd.commandName()),
		zap.Int("attempts", s.opts.MaxAttempts))
	return nil, domain.DependencyUnavailable("cart store", domain.Conflict(sessionID))
}

// mutate is one read-modify-write attempt. It returns repository.ErrConflict
// untouched so Execute can retry.
func (s *CartService) mutate(ctx context.Context, sessionID string, cmd Command) (*domain.CartView, error) {
	current, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	next := current.Clone()
	known, err := s.apply(ctx, next, cmd)
	if err != nil {
		return nil, err
	}

	view, err := s.priceLogged(ctx, next, known)
	if err != nil {
		return nil, err
	}

	if next.SameItems(current) {
		// no-op removals and repeated sets leave the stored cart untouched
		return view, nil
	}

	// a cancelled caller must not get a write it no longer waits for
	if err := ctx.Err(); err != nil {
		return nil, domain.DependencyUnavailable("request", err)
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	if err := s.repo.SaveCart(storeCtx, next); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, err
		}
		s.logger.Warn("cart save failed", zap.String("session_id", sessionID), zap.Error(err))
		return nil, domain.DependencyUnavailable("cart store", err)
	}

	view.UpdatedAt = next.UpdatedAt
	return view, nil
}

// apply dispatches to the handler of each command variant and returns the
// product snapshots it already resolved.
func (s *CartService) apply(ctx context.Context, cart *domain.Cart, cmd Command) (map[string]*domain.Product, error) {
	switch c := cmd.(type) {
	case AddItem:
		return s.applyAdd(ctx, cart, c)
	case SetQuantity:
		return s.applySet(ctx, cart, c)
	case RemoveItem:
		removeLine(cart, c.ProductID)
		return nil, nil
	case Clear:
		// the emptied record is saved at the next version so a writer still
		// holding the old one conflicts instead of resurrecting its lines
		cart.Items = []domain.CartItem{}
		return nil, nil
	default:
		return nil, domain.InvalidArgument("unsupported command %T", cmd)
	}
}

func (s *CartService) applyAdd(ctx context.Context, cart *domain.Cart, c AddItem) (map[string]*domain.Product, error) {
	product, err := s.resolve(ctx, c.ProductID)
	if err != nil {
		return nil, err
	}
	if !product.IsAvailable {
		return nil, domain.Unavailable(c.ProductID)
	}

	existing := cart.Quantity(c.ProductID)
	// compare against the remaining room so huge quantities cannot overflow
	if room := product.Stock - existing; c.Quantity > room {
		return nil, domain.StockExceeded(c.ProductID, room)
	}

	if i, ok := cart.FindItem(c.ProductID); ok {
		cart.Items[i].Quantity = existing + c.Quantity
	} else {
		cart.Items = append(cart.Items, domain.CartItem{
			ProductID: c.ProductID,
			Quantity:  c.Quantity,
			AddedAt:   s.now(),
		})
	}

	return map[string]*domain.Product{product.ID: product}, nil
}

func (s *CartService) applySet(ctx context.Context, cart *domain.Cart, c SetQuantity) (map[string]*domain.Product, error) {
	if c.Quantity == 0 {
		removeLine(cart, c.ProductID)
		return nil, nil
	}

	i, ok := cart.FindItem(c.ProductID)
	if !ok {
		return nil, domain.NotFoundInCart(c.ProductID)
	}

	product, err := s.resolve(ctx, c.ProductID)
	if err != nil {
		return nil, err
	}
	// lowering the quantity of an item that went unavailable is still allowed
	if !product.IsAvailable && c.Quantity > cart.Items[i].Quantity {
		return nil, domain.Unavailable(c.ProductID)
	}
	if c.Quantity > product.Stock {
		return nil, domain.StockExceeded(c.ProductID, product.Stock)
	}

	cart.Items[i].Quantity = c.Quantity
	return map[string]*domain.Product{product.ID: product}, nil
}

// load returns the stored cart or a fresh empty one.
func (s *CartService) load(ctx context.Context, sessionID string) (*domain.Cart, error) {
	storeCtx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	cart, err := s.repo.GetCart(storeCtx, sessionID)
	if errors.Is(err, repository.ErrCartNotFound) {
		return domain.NewCart(sessionID), nil
	}
	if err != nil {
		s.logger.Warn("cart load failed", zap.String("session_id", sessionID), zap.Error(err))
		return nil, domain.DependencyUnavailable("cart store", err)
	}
	return cart, nil
}

func (s *CartService) resolve(ctx context.Context, productID string) (*domain.Product, error) {
	catalogCtx, cancel := context.WithTimeout(ctx, s.opts.CatalogTimeout)
	defer cancel()

	product, err := s.catalog.Resolve(catalogCtx, productID)
	if errors.Is(err, catalog.ErrProductNotFound) {
		return nil, domain.NotFound(productID)
	}
	if err != nil {
		s.logger.Warn("catalog lookup failed", zap.String("product_id", productID), zap.Error(err))
		return nil, domain.DependencyUnavailable("catalog", err)
	}
	return product, nil
}

func (s *CartService) priceLogged(ctx context.Context, cart *domain.Cart, known map[string]*domain.Product) (*domain.CartView, error) {
	catalogCtx, cancel := context.WithTimeout(ctx, s.opts.CatalogTimeout)
	defer cancel()

	view, err := s.price(catalogCtx, cart, known)
	if errors.Is(err, domain.ErrCatalogInconsistent) {
		s.logger.Error("cart references a product the catalog no longer has",
			zap.String("session_id", cart.SessionID),
			zap.Error(err))
	}
	return view, err
}

func removeLine(cart *domain.Cart, productID string) {
	if i, ok := cart.FindItem(productID); ok {
		cart.Items = append(cart.Items[:i], cart.Items[i+1:]...)
	}
}

func emptyView(cart *domain.Cart) *domain.CartView {
	view, _ := Price(cart, nil)
	return view
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("cart.error_kind", string(domain.KindOf(err))))
	}
	span.End()
}
