package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"mitienda/backend/internal/blob"
	"mitienda/backend/internal/cache"
	"mitienda/backend/internal/codes"
	"mitienda/backend/internal/domain"
	"mitienda/backend/internal/pricing"
	"mitienda/backend/internal/store"
	"mitienda/backend/internal/xid"
)

// ErrForbidden means the authenticated actor's role is not allowed to perform
// the operation.
var ErrForbidden = errors.New("insufficient role")

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

var roleRank = map[string]int{
	domain.RoleOperator:   1,
	domain.RoleAdmin:      2,
	domain.RoleSuperAdmin: 3,
}

func requireRole(ctx context.Context, minRole string) error {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return ErrForbidden
	}
	if roleRank[actor.Role] < roleRank[minRole] {
		return fmt.Errorf("%w: %s role required", ErrForbidden, minRole)
	}
	return nil
}

const (
	catalogCacheKey   = "catalog:public"
	maxAttachmentSize = 5 << 20
)

var allowedAttachmentTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/webp":      true,
	"application/pdf": true,
}

type Service struct {
	repo       store.Repository
	catalog    cache.CatalogCache
	blobs      blob.Storage
	catalogTTL time.Duration
	log        *logrus.Logger
}

func New(repo store.Repository, catalog cache.CatalogCache, blobs blob.Storage, catalogTTL time.Duration, log *logrus.Logger) *Service {
	if catalogTTL <= 0 {
		catalogTTL = 60 * time.Second
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &Service{
		repo:       repo,
		catalog:    catalog,
		blobs:      blobs,
		catalogTTL: catalogTTL,
		log:        log,
	}
}

func (s *Service) ListProducts(ctx context.Context, includeInactive bool) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx, includeInactive)
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	p, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return *p, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.Product{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Product{}, fmt.Errorf("%w: name is required", store.ErrValidation)
	}
	if !req.Price.IsPositive() {
		return domain.Product{}, fmt.Errorf("%w: price must be greater than zero", store.ErrValidation)
	}
	if req.Stock < 0 || req.MinStock < 0 {
		return domain.Product{}, fmt.Errorf("%w: stock cannot be negative", store.ErrValidation)
	}
	if req.CategoryID != "" {
		if _, err := s.repo.GetCategory(ctx, req.CategoryID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return domain.Product{}, fmt.Errorf("%w: category %s does not exist", store.ErrValidation, req.CategoryID)
			}
			return domain.Product{}, err
		}
	}

	// Pre-check gives a friendly error; the store enforces uniqueness anyway.
	if _, err := s.repo.FindProductByName(ctx, req.Name); err == nil {
		return domain.Product{}, store.ErrDuplicateName
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.Product{}, err
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		ID:          xid.New("prod"),
		Name:        req.Name,
		Description: strings.TrimSpace(req.Description),
		Price:       req.Price,
		Stock:       req.Stock,
		MinStock:    req.MinStock,
		CategoryID:  req.CategoryID,
		Active:      true,
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.invalidateCatalog(ctx)
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.Product{}, err
	}

	existing, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, fmt.Errorf("%w: name cannot be empty", store.ErrValidation)
		}
		if !strings.EqualFold(name, existing.Name) {
			if _, err := s.repo.FindProductByName(ctx, name); err == nil {
				return domain.Product{}, store.ErrDuplicateName
			} else if !errors.Is(err, store.ErrNotFound) {
				return domain.Product{}, err
			}
		}
		updated.Name = name
	}
	if req.Description != nil {
		updated.Description = strings.TrimSpace(*req.Description)
	}
	if req.Price != nil {
		if !req.Price.IsPositive() {
			return domain.Product{}, fmt.Errorf("%w: price must be greater than zero", store.ErrValidation)
		}
		updated.Price = *req.Price
	}
	if req.MinStock != nil {
		if *req.MinStock < 0 {
			return domain.Product{}, fmt.Errorf("%w: min stock cannot be negative", store.ErrValidation)
		}
		updated.MinStock = *req.MinStock
	}
	if req.CategoryID != nil {
		if *req.CategoryID != "" {
			if _, err := s.repo.GetCategory(ctx, *req.CategoryID); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return domain.Product{}, fmt.Errorf("%w: category %s does not exist", store.ErrValidation, *req.CategoryID)
				}
				return domain.Product{}, err
			}
		}
		updated.CategoryID = *req.CategoryID
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	s.invalidateCatalog(ctx)
	return *saved, nil
}

// SetProductActive deactivates or restores a product. Repeating the same
// transition is a no-op that returns the current state.
func (s *Service) SetProductActive(ctx context.Context, id string, active bool) (domain.Product, error) {
	if err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.Product{}, err
	}
	saved, err := s.repo.SetProductActive(ctx, id, active)
	if err != nil {
		return domain.Product{}, err
	}
	s.invalidateCatalog(ctx)
	return *saved, nil
}

func (s *Service) ListCategories(ctx context.Context, includeInactive bool) ([]domain.Category, error) {
	return s.repo.ListCategories(ctx, includeInactive)
}

func (s *Service) GetCategory(ctx context.Context, id string) (domain.Category, error) {
	c, err := s.repo.GetCategory(ctx, id)
	if err != nil {
		return domain.Category{}, err
	}
	return *c, nil
}

func (s *Service) CreateCategory(ctx context.Context, req domain.CategoryCreateRequest) (domain.Category, error) {
	if err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.Category{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Category{}, fmt.Errorf("%w: name is required", store.ErrValidation)
	}
	if _, err := s.repo.FindCategoryByName(ctx, req.Name); err == nil {
		return domain.Category{}, store.ErrDuplicateName
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.Category{}, err
	}

	created, err := s.repo.CreateCategory(ctx, domain.Category{
		ID:          xid.New("cat"),
		Name:        req.Name,
		Description: strings.TrimSpace(req.Description),
		Active:      true,
	})
	if err != nil {
		return domain.Category{}, err
	}
	return *created, nil
}

func (s *Service) UpdateCategory(ctx context.Context, id string, req domain.CategoryUpdateRequest) (domain.Category, error) {
	if err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.Category{}, err
	}

	existing, err := s.repo.GetCategory(ctx, id)
	if err != nil {
		return domain.Category{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Category{}, fmt.Errorf("%w: name cannot be empty", store.ErrValidation)
		}
		if !strings.EqualFold(name, existing.Name) {
			if _, err := s.repo.FindCategoryByName(ctx, name); err == nil {
				return domain.Category{}, store.ErrDuplicateName
			} else if !errors.Is(err, store.ErrNotFound) {
				return domain.Category{}, err
			}
		}
		updated.Name = name
	}
	if req.Description != nil {
		updated.Description = strings.TrimSpace(*req.Description)
	}

	saved, err := s.repo.UpdateCategory(ctx, updated)
	if err != nil {
		return domain.Category{}, err
	}
	return *saved, nil
}

func (s *Service) SetCategoryActive(ctx context.Context, id string, active bool) (domain.Category, error) {
	if err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.Category{}, err
	}
	saved, err := s.repo.SetCategoryActive(ctx, id, active)
	if err != nil {
		return domain.Category{}, err
	}
	s.invalidateCatalog(ctx)
	return *saved, nil
}

func (s *Service) ListClients(ctx context.Context, kind string, includeInactive bool) ([]domain.Client, error) {
	if kind != "" && kind != domain.ClientKindCustomer && kind != domain.ClientKindSupplier {
		return nil, fmt.Errorf("%w: unknown client kind %q", store.ErrValidation, kind)
	}
	return s.repo.ListClients(ctx, kind, includeInactive)
}

func (s *Service) GetClient(ctx context.Context, id string) (domain.Client, error) {
	c, err := s.repo.GetClient(ctx, id)
	if err != nil {
		return domain.Client{}, err
	}
	return *c, nil
}

func (s *Service) CreateClient(ctx context.Context, req domain.ClientCreateRequest) (domain.Client, error) {
	if err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.Client{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Client{}, fmt.Errorf("%w: name is required", store.ErrValidation)
	}
	if req.Kind != domain.ClientKindCustomer && req.Kind != domain.ClientKindSupplier {
		return domain.Client{}, fmt.Errorf("%w: unknown client kind %q", store.ErrValidation, req.Kind)
	}
	if _, err := s.repo.FindClientByName(ctx, req.Name); err == nil {
		return domain.Client{}, store.ErrDuplicateName
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.Client{}, err
	}

	created, err := s.repo.CreateClient(ctx, domain.Client{
		ID:        xid.New("cli"),
		Name:      req.Name,
		LegalName: strings.TrimSpace(req.LegalName),
		Kind:      req.Kind,
		Email:     strings.TrimSpace(req.Email),
		Phone:     strings.TrimSpace(req.Phone),
		Address:   strings.TrimSpace(req.Address),
		TaxID:     strings.TrimSpace(req.TaxID),
		Active:    true,
	})
	if err != nil {
		return domain.Client{}, err
	}
	return *created, nil
}

func (s *Service) UpdateClient(ctx context.Context, id string, req domain.ClientUpdateRequest) (domain.Client, error) {
	if err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.Client{}, err
	}

	existing, err := s.repo.GetClient(ctx, id)
	if err != nil {
		return domain.Client{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Client{}, fmt.Errorf("%w: name cannot be empty", store.ErrValidation)
		}
		if !strings.EqualFold(name, existing.Name) {
			if _, err := s.repo.FindClientByName(ctx, name); err == nil {
				return domain.Client{}, store.ErrDuplicateName
			} else if !errors.Is(err, store.ErrNotFound) {
				return domain.Client{}, err
			}
		}
		updated.Name = name
	}
	if req.LegalName != nil {
		updated.LegalName = strings.TrimSpace(*req.LegalName)
	}
	if req.Email != nil {
		updated.Email = strings.TrimSpace(*req.Email)
	}
	if req.Phone != nil {
		updated.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.Address != nil {
		updated.Address = strings.TrimSpace(*req.Address)
	}
	if req.TaxID != nil {
		updated.TaxID = strings.TrimSpace(*req.TaxID)
	}

	saved, err := s.repo.UpdateClient(ctx, updated)
	if err != nil {
		return domain.Client{}, err
	}
	return *saved, nil
}

func (s *Service) SetClientActive(ctx context.Context, id string, active bool) (domain.Client, error) {
	if err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.Client{}, err
	}
	saved, err := s.repo.SetClientActive(ctx, id, active)
	if err != nil {
		return domain.Client{}, err
	}
	return *saved, nil
}

func (s *Service) ListOffers(ctx context.Context) ([]domain.Offer, error) {
	return s.repo.ListOffers(ctx)
}

func (s *Service) GetOffer(ctx context.Context, id string) (domain.Offer, error) {
	o, err := s.repo.GetOffer(ctx, id)
	if err != nil {
		return domain.Offer{}, err
	}
	return *o, nil
}

func (s *Service) CreateOffer(ctx context.Context, req domain.OfferCreateRequest) (domain.Offer, error) {
	if err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.Offer{}, err
	}

	offer := domain.Offer{
		ID:          xid.New("off"),
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
		Scope:       req.Scope,
		Kind:        req.Kind,
		Value:       req.Value,
		CategoryID:  req.CategoryID,
		ProductID:   req.ProductID,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		Priority:    req.Priority,
		Active:      true,
	}
	if err := s.validateOffer(ctx, offer); err != nil {
		return domain.Offer{}, err
	}

	created, err := s.repo.CreateOffer(ctx, offer)
	if err != nil {
		return domain.Offer{}, err
	}

	s.invalidateCatalog(ctx)
	return *created, nil
}

func (s *Service) UpdateOffer(ctx context.Context, id string, req domain.OfferUpdateRequest) (domain.Offer, error) {
	if err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.Offer{}, err
	}

	existing, err := s.repo.GetOffer(ctx, id)
	if err != nil {
		return domain.Offer{}, err
	}

	updated := *existing
	if req.Name != nil {
		updated.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		updated.Description = strings.TrimSpace(*req.Description)
	}
	if req.Scope != nil {
		updated.Scope = *req.Scope
	}
	if req.Kind != nil {
		updated.Kind = *req.Kind
	}
	if req.Value != nil {
		updated.Value = *req.Value
	}
	if req.CategoryID != nil {
		updated.CategoryID = *req.CategoryID
	}
	if req.ProductID != nil {
		updated.ProductID = *req.ProductID
	}
	if req.StartDate != nil {
		updated.StartDate = req.StartDate
	}
	if req.EndDate != nil {
		updated.EndDate = req.EndDate
	}
	if req.Priority != nil {
		updated.Priority = *req.Priority
	}
	if err := s.validateOffer(ctx, updated); err != nil {
		return domain.Offer{}, err
	}

	saved, err := s.repo.UpdateOffer(ctx, updated)
	if err != nil {
		return domain.Offer{}, err
	}

	s.invalidateCatalog(ctx)
	return *saved, nil
}

func (s *Service) SetOfferActive(ctx context.Context, id string, active bool) (domain.Offer, error) {
	if err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.Offer{}, err
	}
	saved, err := s.repo.SetOfferActive(ctx, id, active)
	if err != nil {
		return domain.Offer{}, err
	}
	s.invalidateCatalog(ctx)
	return *saved, nil
}

func (s *Service) validateOffer(ctx context.Context, offer domain.Offer) error {
	if offer.Name == "" {
		return fmt.Errorf("%w: name is required", store.ErrValidation)
	}
	if offer.StartDate == nil {
		return fmt.Errorf("%w: start date is required", store.ErrValidation)
	}
	if offer.EndDate != nil && offer.EndDate.Before(*offer.StartDate) {
		return fmt.Errorf("%w: end date before start date", store.ErrValidation)
	}

	switch offer.Scope {
	case domain.OfferScopeGeneral:
	case domain.OfferScopeCategory:
		if offer.CategoryID == "" {
			return fmt.Errorf("%w: category scope requires a category", store.ErrValidation)
		}
		if _, err := s.repo.GetCategory(ctx, offer.CategoryID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("%w: category %s does not exist", store.ErrValidation, offer.CategoryID)
			}
			return err
		}
	case domain.OfferScopeProduct:
		if offer.ProductID == "" {
			return fmt.Errorf("%w: product scope requires a product", store.ErrValidation)
		}
		if _, err := s.repo.GetProduct(ctx, offer.ProductID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("%w: product %s does not exist", store.ErrValidation, offer.ProductID)
			}
			return err
		}
	default:
		return fmt.Errorf("%w: unknown offer scope %q", store.ErrValidation, offer.Scope)
	}

	switch offer.Kind {
	case domain.OfferKindPercentage:
		if !offer.Value.IsPositive() || offer.Value.GreaterThan(decimal.NewFromInt(100)) {
			return fmt.Errorf("%w: percentage must be between 0 and 100", store.ErrValidation)
		}
	case domain.OfferKindFixedAmount:
		if !offer.Value.IsPositive() {
			return fmt.Errorf("%w: fixed amount must be greater than zero", store.ErrValidation)
		}
	case domain.OfferKindSpecialPrice:
		if offer.Value.IsNegative() {
			return fmt.Errorf("%w: special price cannot be negative", store.ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown offer kind %q", store.ErrValidation, offer.Kind)
	}

	return nil
}

// CreatePurchase registers a supplier order. A purchase defaults to pending;
// one born received increments stock immediately.
func (s *Service) CreatePurchase(ctx context.Context, req domain.PurchaseCreateRequest) (domain.TradeDocument, error) {
	if err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.TradeDocument{}, err
	}

	status := req.Status
	if status == "" {
		status = domain.StatusPending
	}
	if status != domain.StatusPending && status != domain.StatusReceived {
		return domain.TradeDocument{}, fmt.Errorf("%w: purchase status must be pending or received", store.ErrValidation)
	}

	supplier, err := s.requireClient(ctx, req.SupplierID, domain.ClientKindSupplier)
	if err != nil {
		return domain.TradeDocument{}, err
	}

	items, subtotal, err := s.buildLineItems(ctx, req.Items, false)
	if err != nil {
		return domain.TradeDocument{}, err
	}
	tax, total, err := computeTotals(subtotal, req.TaxPercent)
	if err != nil {
		return domain.TradeDocument{}, err
	}

	doc := domain.TradeDocument{
		ID:            xid.New("pur"),
		ClientID:      supplier.ID,
		ClientName:    supplier.Name,
		Status:        status,
		PaymentMethod: strings.TrimSpace(req.PaymentMethod),
		Items:         items,
		TaxPercent:    req.TaxPercent,
		Subtotal:      subtotal,
		Tax:           tax,
		Total:         total,
		Notes:         strings.TrimSpace(req.Notes),
	}

	created, err := s.repo.CreatePurchase(ctx, doc)
	if err != nil {
		return domain.TradeDocument{}, err
	}
	if status == domain.StatusReceived {
		s.invalidateCatalog(ctx)
	}
	s.log.WithFields(logrus.Fields{"code": created.Code, "supplier": supplier.Name, "status": created.Status}).Info("purchase created")
	return *created, nil
}

func (s *Service) ListPurchases(ctx context.Context) ([]domain.TradeDocument, error) {
	return s.repo.ListPurchases(ctx)
}

func (s *Service) GetPurchase(ctx context.Context, id string) (domain.TradeDocument, error) {
	doc, err := s.repo.GetPurchase(ctx, id)
	if err != nil {
		return domain.TradeDocument{}, err
	}
	return *doc, nil
}

func (s *Service) UpdatePurchaseStatus(ctx context.Context, id string, status string) (domain.TradeDocument, error) {
	if err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.TradeDocument{}, err
	}
	saved, err := s.repo.UpdatePurchaseStatus(ctx, id, status)
	if err != nil {
		return domain.TradeDocument{}, err
	}
	if status == domain.StatusReceived {
		s.invalidateCatalog(ctx)
	}
	s.log.WithFields(logrus.Fields{"code": saved.Code, "status": saved.Status}).Info("purchase status updated")
	return *saved, nil
}

// CreateSale fulfills a customer sale. The store checks and decrements stock
// atomically; a sale is born completed.
func (s *Service) CreateSale(ctx context.Context, req domain.SaleCreateRequest) (domain.TradeDocument, error) {
	if err := requireRole(ctx, domain.RoleOperator); err != nil {
		return domain.TradeDocument{}, err
	}

	customer, err := s.requireClient(ctx, req.CustomerID, domain.ClientKindCustomer)
	if err != nil {
		return domain.TradeDocument{}, err
	}

	items, subtotal, err := s.buildLineItems(ctx, req.Items, true)
	if err != nil {
		return domain.TradeDocument{}, err
	}
	tax, total, err := computeTotals(subtotal, req.TaxPercent)
	if err != nil {
		return domain.TradeDocument{}, err
	}

	doc := domain.TradeDocument{
		ID:            xid.New("sal"),
		ClientID:      customer.ID,
		ClientName:    customer.Name,
		Status:        domain.StatusCompleted,
		PaymentMethod: strings.TrimSpace(req.PaymentMethod),
		Items:         items,
		TaxPercent:    req.TaxPercent,
		Subtotal:      subtotal,
		Tax:           tax,
		Total:         total,
		Notes:         strings.TrimSpace(req.Notes),
	}

	created, err := s.repo.CreateSale(ctx, doc)
	if err != nil {
		return domain.TradeDocument{}, err
	}

	s.invalidateCatalog(ctx)
	s.log.WithFields(logrus.Fields{"code": created.Code, "customer": customer.Name, "total": created.Total.String()}).Info("sale completed")
	return *created, nil
}

func (s *Service) ListSales(ctx context.Context) ([]domain.TradeDocument, error) {
	return s.repo.ListSales(ctx)
}

func (s *Service) GetSale(ctx context.Context, id string) (domain.TradeDocument, error) {
	doc, err := s.repo.GetSale(ctx, id)
	if err != nil {
		return domain.TradeDocument{}, err
	}
	return *doc, nil
}

// PreviewNextCode returns the code the next document would receive. Display
// only: the code actually assigned may differ under concurrency.
func (s *Service) PreviewNextCode(ctx context.Context, series codes.Series) (string, error) {
	if series != codes.SeriesPurchase && series != codes.SeriesSale {
		return "", fmt.Errorf("%w: unknown code series", store.ErrValidation)
	}
	return s.repo.PeekNextCode(ctx, series)
}

func (s *Service) requireClient(ctx context.Context, id string, kind string) (*domain.Client, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: client is required", store.ErrValidation)
	}
	client, err := s.repo.GetClient(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: client %s does not exist", store.ErrValidation, id)
		}
		return nil, err
	}
	if client.Kind != kind {
		return nil, fmt.Errorf("%w: client %s is not a %s", store.ErrValidation, client.Name, kind)
	}
	if !client.Active {
		return nil, fmt.Errorf("%w: client %s is inactive", store.ErrValidation, client.Name)
	}
	return client, nil
}

// buildLineItems resolves products, caches their names, and computes the
// subtotal. For sales an omitted unit price defaults to the current resolved
// catalog price.
func (s *Service) buildLineItems(ctx context.Context, reqs []domain.LineItemRequest, isSale bool) ([]domain.LineItem, decimal.Decimal, error) {
	if len(reqs) == 0 {
		return nil, decimal.Zero, fmt.Errorf("%w: at least one line item is required", store.ErrValidation)
	}

	var liveOffers []domain.Offer
	if isSale {
		cfg, err := s.repo.GetSystemConfig(ctx)
		if err != nil {
			return nil, decimal.Zero, err
		}
		if cfg.Features.Offers {
			liveOffers, err = s.repo.ListLiveOffers(ctx, time.Now().UTC())
			if err != nil {
				return nil, decimal.Zero, err
			}
		}
	}

	items := make([]domain.LineItem, 0, len(reqs))
	subtotal := decimal.Zero
	for _, req := range reqs {
		if req.Quantity < 1 {
			return nil, decimal.Zero, fmt.Errorf("%w: quantity must be at least 1", store.ErrValidation)
		}
		product, err := s.repo.GetProduct(ctx, req.ProductID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, decimal.Zero, fmt.Errorf("%w: product %s does not exist", store.ErrValidation, req.ProductID)
			}
			return nil, decimal.Zero, err
		}
		if isSale && !product.Active {
			return nil, decimal.Zero, fmt.Errorf("%w: product %s is inactive", store.ErrValidation, product.Name)
		}

		unitPrice := req.UnitPrice
		if unitPrice.IsZero() {
			unitPrice = product.Price
			if isSale && len(liveOffers) > 0 {
				unitPrice = pricing.Resolve(*product, liveOffers).FinalPrice
			}
		}
		if unitPrice.IsNegative() {
			return nil, decimal.Zero, fmt.Errorf("%w: unit price cannot be negative", store.ErrValidation)
		}

		lineSubtotal := unitPrice.Mul(decimal.NewFromInt(int64(req.Quantity)))
		items = append(items, domain.LineItem{
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    req.Quantity,
			UnitPrice:   unitPrice,
			Subtotal:    lineSubtotal,
		})
		subtotal = subtotal.Add(lineSubtotal)
	}
	return items, subtotal, nil
}

func computeTotals(subtotal decimal.Decimal, taxPercent decimal.Decimal) (tax decimal.Decimal, total decimal.Decimal, err error) {
	if taxPercent.IsNegative() || taxPercent.GreaterThan(decimal.NewFromInt(100)) {
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w: tax percent must be between 0 and 100", store.ErrValidation)
	}
	tax = subtotal.Mul(taxPercent).Div(decimal.NewFromInt(100))
	total = subtotal.Add(tax)
	return tax, total, nil
}

// PublicCatalog renders the storefront view: active products with their
// offer-resolved prices. The result is cached; catalog-affecting writes
// invalidate it.
func (s *Service) PublicCatalog(ctx context.Context) ([]domain.CatalogEntry, error) {
	if entries, hit, err := s.catalog.Get(ctx, catalogCacheKey); err == nil && hit {
		return entries, nil
	} else if err != nil {
		s.log.WithError(err).Warn("catalog cache read failed")
	}

	products, err := s.repo.ListProducts(ctx, false)
	if err != nil {
		return nil, err
	}

	cfg, err := s.repo.GetSystemConfig(ctx)
	if err != nil {
		return nil, err
	}
	var liveOffers []domain.Offer
	if cfg.Features.Offers {
		liveOffers, err = s.repo.ListLiveOffers(ctx, time.Now().UTC())
		if err != nil {
			return nil, err
		}
	}

	entries := make([]domain.CatalogEntry, 0, len(products))
	for _, product := range products {
		entries = append(entries, domain.CatalogEntry{
			Product: product,
			Pricing: pricing.Resolve(product, liveOffers),
		})
	}

	if err := s.catalog.Set(ctx, catalogCacheKey, entries, s.catalogTTL); err != nil {
		s.log.WithError(err).Warn("catalog cache write failed")
	}
	return entries, nil
}

// QuotePrice resolves the current price for one product.
func (s *Service) QuotePrice(ctx context.Context, productID string) (domain.PriceQuote, error) {
	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return domain.PriceQuote{}, err
	}

	cfg, err := s.repo.GetSystemConfig(ctx)
	if err != nil {
		return domain.PriceQuote{}, err
	}
	var liveOffers []domain.Offer
	if cfg.Features.Offers {
		liveOffers, err = s.repo.ListLiveOffers(ctx, time.Now().UTC())
		if err != nil {
			return domain.PriceQuote{}, err
		}
	}
	return pricing.Resolve(*product, liveOffers), nil
}

func (s *Service) GetSystemConfig(ctx context.Context) (domain.SystemConfig, error) {
	cfg, err := s.repo.GetSystemConfig(ctx)
	if err != nil {
		return domain.SystemConfig{}, err
	}
	return *cfg, nil
}

func (s *Service) UpdateFeatureFlag(ctx context.Context, req domain.FeatureFlagUpdateRequest) (domain.SystemConfig, error) {
	if err := requireRole(ctx, domain.RoleSuperAdmin); err != nil {
		return domain.SystemConfig{}, err
	}
	cfg, err := s.repo.UpdateFeatureFlag(ctx, req.Feature, req.Enabled)
	if err != nil {
		return domain.SystemConfig{}, err
	}
	s.invalidateCatalog(ctx)
	s.log.WithFields(logrus.Fields{"feature": req.Feature, "enabled": req.Enabled}).Info("feature flag updated")
	return *cfg, nil
}

// AttachFile uploads a document attachment and links it to the purchase or
// sale. Files are capped at 5 MB and restricted to images and PDFs.
func (s *Service) AttachFile(ctx context.Context, docKind string, id string, filename string, contentType string, size int64, content io.Reader) (domain.TradeDocument, error) {
	if err := requireRole(ctx, domain.RoleOperator); err != nil {
		return domain.TradeDocument{}, err
	}
	if size > maxAttachmentSize {
		return domain.TradeDocument{}, fmt.Errorf("%w: attachment exceeds 5 MB", store.ErrValidation)
	}
	if !allowedAttachmentTypes[contentType] {
		return domain.TradeDocument{}, fmt.Errorf("%w: unsupported attachment type %q", store.ErrValidation, contentType)
	}

	var folder, previousURL string
	switch docKind {
	case "purchases":
		folder = "purchases"
		existing, err := s.repo.GetPurchase(ctx, id)
		if err != nil {
			return domain.TradeDocument{}, err
		}
		previousURL = existing.AttachmentURL
	case "sales":
		folder = "sales"
		existing, err := s.repo.GetSale(ctx, id)
		if err != nil {
			return domain.TradeDocument{}, err
		}
		previousURL = existing.AttachmentURL
	default:
		return domain.TradeDocument{}, fmt.Errorf("%w: unknown document kind %q", store.ErrValidation, docKind)
	}

	url, err := s.blobs.Upload(ctx, folder, filename, contentType, io.LimitReader(content, maxAttachmentSize))
	if err != nil {
		if errors.Is(err, blob.ErrDisabled) {
			return domain.TradeDocument{}, fmt.Errorf("%w: attachments", store.ErrUnavailable)
		}
		return domain.TradeDocument{}, err
	}

	var saved *domain.TradeDocument
	if docKind == "purchases" {
		saved, err = s.repo.SetPurchaseAttachment(ctx, id, url)
	} else {
		saved, err = s.repo.SetSaleAttachment(ctx, id, url)
	}
	if err != nil {
		// Best effort: don't leak the uploaded object if the link failed.
		if delErr := s.blobs.Delete(ctx, url); delErr != nil {
			s.log.WithError(delErr).Warn("orphaned attachment cleanup failed")
		}
		return domain.TradeDocument{}, err
	}

	// Replacing an attachment orphans the old object; remove it best effort.
	if previousURL != "" && previousURL != url {
		if delErr := s.blobs.Delete(ctx, previousURL); delErr != nil && !errors.Is(delErr, blob.ErrDisabled) {
			s.log.WithError(delErr).Warn("previous attachment cleanup failed")
		}
	}
	return *saved, nil
}

func (s *Service) invalidateCatalog(ctx context.Context) {
	if err := s.catalog.Invalidate(ctx, catalogCacheKey); err != nil {
		s.log.WithError(err).Warn("catalog cache invalidation failed")
	}
}
