package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"mitienda/backend/internal/codes"
	"mitienda/backend/internal/domain"
	"mitienda/backend/internal/store"
	"mitienda/backend/internal/xid"
)

// Store is the in-memory Repository used for dev/demo mode and tests. One
// mutex guards everything, so the multi-step document transactions are atomic
// by construction.
type Store struct {
	mu              sync.RWMutex
	products        map[string]domain.Product
	categories      map[string]domain.Category
	clients         map[string]domain.Client
	offers          map[string]domain.Offer
	purchasesByID   map[string]domain.TradeDocument
	salesByID       map[string]domain.TradeDocument
	codesTaken      map[string]struct{}
	systemConfig    *domain.SystemConfig
	usersByUsername map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		products:        make(map[string]domain.Product),
		categories:      make(map[string]domain.Category),
		clients:         make(map[string]domain.Client),
		offers:          make(map[string]domain.Offer),
		purchasesByID:   make(map[string]domain.TradeDocument),
		salesByID:       make(map[string]domain.TradeDocument),
		codesTaken:      make(map[string]struct{}),
		usersByUsername: seedUsers(),
	}
}

// seedUsers builds the initial in-memory accounts for dev/demo mode.
// Credentials come from SEED_ADMIN_PASSWORD and SEED_OPERATOR_PASSWORD; unset
// variables fall back to hardcoded dev defaults with a warning. The memory
// store is never used in production (the backend uses PostgreSQL when
// DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	operatorPwd := envOr("SEED_OPERATOR_PASSWORD", "operator123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_OPERATOR_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_OPERATOR_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"root", adminPwd, domain.RoleSuperAdmin},
		{"admin", adminPwd, domain.RoleAdmin},
		{"operator", operatorPwd, domain.RoleOperator},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a store preloaded with a small demo catalog.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	categories := []domain.Category{
		{ID: xid.New("cat"), Name: "Bebidas", Description: "Refrescos, aguas y zumos", Active: true, CreatedAt: now, UpdatedAt: now},
		{ID: xid.New("cat"), Name: "Panadería", Description: "Pan y bollería", Active: true, CreatedAt: now, UpdatedAt: now},
		{ID: xid.New("cat"), Name: "Limpieza", Description: "Productos de limpieza del hogar", Active: true, CreatedAt: now, UpdatedAt: now},
	}
	for _, c := range categories {
		s.categories[c.ID] = c
	}

	products := []struct {
		name     string
		price    string
		stock    int
		minStock int
		category string
	}{
		{"Agua Mineral 1.5L", "0.85", 120, 24, categories[0].ID},
		{"Refresco Cola 330ml", "1.10", 90, 24, categories[0].ID},
		{"Zumo de Naranja 1L", "2.35", 40, 12, categories[0].ID},
		{"Pan de Molde", "1.65", 30, 10, categories[1].ID},
		{"Croissant", "0.95", 25, 8, categories[1].ID},
		{"Detergente 3L", "6.80", 18, 6, categories[2].ID},
		{"Lavavajillas 750ml", "2.20", 22, 6, categories[2].ID},
	}
	for _, p := range products {
		product := domain.Product{
			ID:         xid.New("prod"),
			Name:       p.name,
			Price:      decimal.RequireFromString(p.price),
			Stock:      p.stock,
			MinStock:   p.minStock,
			CategoryID: p.category,
			Active:     true,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		s.products[product.ID] = product
	}

	clients := []domain.Client{
		{ID: xid.New("cli"), Name: "Cliente Mostrador", Kind: domain.ClientKindCustomer, Active: true, CreatedAt: now, UpdatedAt: now},
		{ID: xid.New("cli"), Name: "Bar La Plaza", Kind: domain.ClientKindCustomer, Email: "pedidos@barlaplaza.example", Active: true, CreatedAt: now, UpdatedAt: now},
		{ID: xid.New("cli"), Name: "Distribuciones Norte SL", LegalName: "Distribuciones Norte SL", Kind: domain.ClientKindSupplier, TaxID: "B12345678", Active: true, CreatedAt: now, UpdatedAt: now},
	}
	for _, c := range clients {
		s.clients[c.ID] = c
	}

	start := now.Add(-24 * time.Hour)
	offer := domain.Offer{
		ID:          xid.New("off"),
		Name:        "Bebidas -10%",
		Description: "Descuento de lanzamiento en bebidas",
		Scope:       domain.OfferScopeCategory,
		Kind:        domain.OfferKindPercentage,
		Value:       decimal.NewFromInt(10),
		CategoryID:  categories[0].ID,
		StartDate:   &start,
		Priority:    10,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.offers[offer.ID] = offer

	return s
}

func (s *Store) ListProducts(_ context.Context, includeInactive bool) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if !includeInactive && !p.Active {
			continue
		}
		products = append(products, p)
	}
	sortByCreatedDesc(products, func(p domain.Product) (time.Time, string) { return p.CreatedAt, p.ID })
	return products, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copyProduct := p
	return &copyProduct, nil
}

func (s *Store) FindProductByName(_ context.Context, name string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.products {
		if strings.EqualFold(p.Name, name) {
			copyProduct := p
			return &copyProduct, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.products {
		if strings.EqualFold(existing.Name, product.Name) {
			return nil, store.ErrDuplicateName
		}
	}

	now := time.Now().UTC()
	product.CreatedAt = now
	product.UpdatedAt = now
	product.DeletedAt = nil
	s.products[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.products[product.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	for id, other := range s.products {
		if id != product.ID && strings.EqualFold(other.Name, product.Name) {
			return nil, store.ErrDuplicateName
		}
	}

	existing.Name = product.Name
	existing.Description = product.Description
	existing.Price = product.Price
	existing.MinStock = product.MinStock
	existing.CategoryID = product.CategoryID
	existing.UpdatedAt = time.Now().UTC()
	s.products[product.ID] = existing
	updated := existing
	return &updated, nil
}

func (s *Store) SetProductActive(_ context.Context, id string, active bool) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	applyActiveFlag(&p.Active, &p.DeletedAt, &p.UpdatedAt, active)
	s.products[id] = p
	updated := p
	return &updated, nil
}

func (s *Store) ListCategories(_ context.Context, includeInactive bool) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	categories := make([]domain.Category, 0, len(s.categories))
	for _, c := range s.categories {
		if !includeInactive && !c.Active {
			continue
		}
		categories = append(categories, c)
	}
	slices.SortFunc(categories, func(a, b domain.Category) int { return cmpString(a.Name, b.Name) })
	return categories, nil
}

func (s *Store) GetCategory(_ context.Context, id string) (*domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.categories[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copyCategory := c
	return &copyCategory, nil
}

func (s *Store) FindCategoryByName(_ context.Context, name string) (*domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.categories {
		if strings.EqualFold(c.Name, name) {
			copyCategory := c
			return &copyCategory, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) CreateCategory(_ context.Context, category domain.Category) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.categories {
		if strings.EqualFold(existing.Name, category.Name) {
			return nil, store.ErrDuplicateName
		}
	}

	now := time.Now().UTC()
	category.CreatedAt = now
	category.UpdatedAt = now
	category.DeletedAt = nil
	s.categories[category.ID] = category
	created := category
	return &created, nil
}

func (s *Store) UpdateCategory(_ context.Context, category domain.Category) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.categories[category.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	for id, other := range s.categories {
		if id != category.ID && strings.EqualFold(other.Name, category.Name) {
			return nil, store.ErrDuplicateName
		}
	}

	existing.Name = category.Name
	existing.Description = category.Description
	existing.UpdatedAt = time.Now().UTC()
	s.categories[category.ID] = existing
	updated := existing
	return &updated, nil
}

func (s *Store) SetCategoryActive(_ context.Context, id string, active bool) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.categories[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	applyActiveFlag(&c.Active, &c.DeletedAt, &c.UpdatedAt, active)
	s.categories[id] = c
	updated := c
	return &updated, nil
}

func (s *Store) ListClients(_ context.Context, kind string, includeInactive bool) ([]domain.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	clients := make([]domain.Client, 0, len(s.clients))
	for _, c := range s.clients {
		if kind != "" && c.Kind != kind {
			continue
		}
		if !includeInactive && !c.Active {
			continue
		}
		clients = append(clients, c)
	}
	slices.SortFunc(clients, func(a, b domain.Client) int { return cmpString(a.Name, b.Name) })
	return clients, nil
}

func (s *Store) GetClient(_ context.Context, id string) (*domain.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.clients[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copyClient := c
	return &copyClient, nil
}

func (s *Store) FindClientByName(_ context.Context, name string) (*domain.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.clients {
		if strings.EqualFold(c.Name, name) {
			copyClient := c
			return &copyClient, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) CreateClient(_ context.Context, client domain.Client) (*domain.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Uniqueness spans both kinds: a supplier cannot reuse a customer name.
	for _, existing := range s.clients {
		if strings.EqualFold(existing.Name, client.Name) {
			return nil, store.ErrDuplicateName
		}
	}

	now := time.Now().UTC()
	client.CreatedAt = now
	client.UpdatedAt = now
	client.DeletedAt = nil
	s.clients[client.ID] = client
	created := client
	return &created, nil
}

func (s *Store) UpdateClient(_ context.Context, client domain.Client) (*domain.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.clients[client.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	for id, other := range s.clients {
		if id != client.ID && strings.EqualFold(other.Name, client.Name) {
			return nil, store.ErrDuplicateName
		}
	}

	existing.Name = client.Name
	existing.LegalName = client.LegalName
	existing.Email = client.Email
	existing.Phone = client.Phone
	existing.Address = client.Address
	existing.TaxID = client.TaxID
	existing.UpdatedAt = time.Now().UTC()
	s.clients[client.ID] = existing
	updated := existing
	return &updated, nil
}

func (s *Store) SetClientActive(_ context.Context, id string, active bool) (*domain.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.clients[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	applyActiveFlag(&c.Active, &c.DeletedAt, &c.UpdatedAt, active)
	s.clients[id] = c
	updated := c
	return &updated, nil
}

func (s *Store) ListOffers(_ context.Context) ([]domain.Offer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	offers := make([]domain.Offer, 0, len(s.offers))
	for _, o := range s.offers {
		offers = append(offers, o)
	}
	sortByCreatedDesc(offers, func(o domain.Offer) (time.Time, string) { return o.CreatedAt, o.ID })
	return offers, nil
}

func (s *Store) ListLiveOffers(_ context.Context, now time.Time) ([]domain.Offer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	offers := make([]domain.Offer, 0, len(s.offers))
	for _, o := range s.offers {
		if !o.Active {
			continue
		}
		if o.StartDate == nil || o.StartDate.After(now) {
			continue
		}
		if o.EndDate != nil && o.EndDate.Before(startOfDay) {
			continue
		}
		offers = append(offers, o)
	}
	slices.SortFunc(offers, func(a, b domain.Offer) int {
		if a.Priority != b.Priority {
			if a.Priority > b.Priority {
				return -1
			}
			return 1
		}
		if a.CreatedAt.Before(b.CreatedAt) {
			return -1
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return 1
		}
		return cmpString(a.ID, b.ID)
	})
	return offers, nil
}

func (s *Store) GetOffer(_ context.Context, id string) (*domain.Offer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.offers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copyOffer := o
	return &copyOffer, nil
}

func (s *Store) CreateOffer(_ context.Context, offer domain.Offer) (*domain.Offer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	offer.CreatedAt = now
	offer.UpdatedAt = now
	offer.DeletedAt = nil
	s.offers[offer.ID] = offer
	created := offer
	return &created, nil
}

func (s *Store) UpdateOffer(_ context.Context, offer domain.Offer) (*domain.Offer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.offers[offer.ID]
	if !ok {
		return nil, store.ErrNotFound
	}

	existing.Name = offer.Name
	existing.Description = offer.Description
	existing.Scope = offer.Scope
	existing.Kind = offer.Kind
	existing.Value = offer.Value
	existing.CategoryID = offer.CategoryID
	existing.ProductID = offer.ProductID
	existing.StartDate = offer.StartDate
	existing.EndDate = offer.EndDate
	existing.Priority = offer.Priority
	existing.UpdatedAt = time.Now().UTC()
	s.offers[offer.ID] = existing
	updated := existing
	return &updated, nil
}

func (s *Store) SetOfferActive(_ context.Context, id string, active bool) (*domain.Offer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.offers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	applyActiveFlag(&o.Active, &o.DeletedAt, &o.UpdatedAt, active)
	s.offers[id] = o
	updated := o
	return &updated, nil
}

func (s *Store) CreatePurchase(_ context.Context, doc domain.TradeDocument) (*domain.TradeDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc.Code = s.takeNextCodeLocked(codes.SeriesPurchase)

	if doc.Status == domain.StatusReceived {
		if err := s.increaseStockLocked(doc.Items); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	s.purchasesByID[doc.ID] = cloneDocument(doc)
	created := cloneDocument(doc)
	return &created, nil
}

func (s *Store) ListPurchases(_ context.Context) ([]domain.TradeDocument, error) {
	return s.listDocuments(s.purchasesByID), nil
}

func (s *Store) GetPurchase(_ context.Context, id string) (*domain.TradeDocument, error) {
	return s.getDocument(s.purchasesByID, id)
}

func (s *Store) UpdatePurchaseStatus(_ context.Context, id string, status string) (*domain.TradeDocument, error) {
	if status != domain.StatusReceived && status != domain.StatusCancelled {
		return nil, store.ErrInvalidTransition
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.purchasesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if doc.Status != domain.StatusPending {
		return nil, store.ErrInvalidTransition
	}

	if status == domain.StatusReceived {
		if err := s.increaseStockLocked(doc.Items); err != nil {
			return nil, err
		}
	}

	doc.Status = status
	doc.UpdatedAt = time.Now().UTC()
	s.purchasesByID[id] = doc
	updated := cloneDocument(doc)
	return &updated, nil
}

func (s *Store) SetPurchaseAttachment(_ context.Context, id string, url string) (*domain.TradeDocument, error) {
	return s.setAttachment(s.purchasesByID, id, url)
}

func (s *Store) CreateSale(_ context.Context, doc domain.TradeDocument) (*domain.TradeDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Check every line against current stock before mutating anything.
	// Quantities are summed per product so repeated lines draw from one pool.
	requested := make(map[string]int, len(doc.Items))
	for _, item := range doc.Items {
		requested[item.ProductID] += item.Quantity
	}
	for _, item := range doc.Items {
		p, ok := s.products[item.ProductID]
		if !ok {
			return nil, store.ErrNotFound
		}
		if p.Stock < requested[item.ProductID] {
			return nil, &store.InsufficientStockError{
				ProductID:   item.ProductID,
				ProductName: p.Name,
				Available:   p.Stock,
				Requested:   requested[item.ProductID],
			}
		}
	}

	for _, item := range doc.Items {
		p := s.products[item.ProductID]
		p.Stock -= item.Quantity
		p.UpdatedAt = time.Now().UTC()
		s.products[item.ProductID] = p
	}

	doc.Code = s.takeNextCodeLocked(codes.SeriesSale)

	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	s.salesByID[doc.ID] = cloneDocument(doc)
	created := cloneDocument(doc)
	return &created, nil
}

func (s *Store) ListSales(_ context.Context) ([]domain.TradeDocument, error) {
	return s.listDocuments(s.salesByID), nil
}

func (s *Store) GetSale(_ context.Context, id string) (*domain.TradeDocument, error) {
	return s.getDocument(s.salesByID, id)
}

func (s *Store) SetSaleAttachment(_ context.Context, id string, url string) (*domain.TradeDocument, error) {
	return s.setAttachment(s.salesByID, id, url)
}

func (s *Store) PeekNextCode(_ context.Context, series codes.Series) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextCodeLocked(series)
}

func (s *Store) takeNextCodeLocked(series codes.Series) string {
	code, err := s.nextCodeLocked(series)
	if err != nil || code == "" {
		code = codes.Fallback(series, time.Now().UTC().Year())
	}
	for {
		if _, taken := s.codesTaken[code]; !taken {
			break
		}
		code = codes.Fallback(series, time.Now().UTC().Year())
	}
	s.codesTaken[code] = struct{}{}
	return code
}

func (s *Store) nextCodeLocked(series codes.Series) (string, error) {
	prefix := codes.Prefix(series, time.Now().UTC().Year())
	last := ""
	for code := range s.codesTaken {
		if !strings.HasPrefix(code, prefix) {
			continue
		}
		// Width before value: a widened suffix (10000+) outranks any
		// four-digit code even though it sorts lower lexicographically.
		if len(code) > len(last) || (len(code) == len(last) && code > last) {
			last = code
		}
	}
	if last == "" {
		return codes.First(prefix), nil
	}
	return codes.Next(last)
}

func (s *Store) increaseStockLocked(items []domain.LineItem) error {
	for _, item := range items {
		if _, ok := s.products[item.ProductID]; !ok {
			return store.ErrNotFound
		}
	}
	for _, item := range items {
		p := s.products[item.ProductID]
		p.Stock += item.Quantity
		p.UpdatedAt = time.Now().UTC()
		s.products[item.ProductID] = p
	}
	return nil
}

func (s *Store) listDocuments(byID map[string]domain.TradeDocument) []domain.TradeDocument {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]domain.TradeDocument, 0, len(byID))
	for _, doc := range byID {
		docs = append(docs, cloneDocument(doc))
	}
	sortByCreatedDesc(docs, func(d domain.TradeDocument) (time.Time, string) { return d.CreatedAt, d.ID })
	return docs
}

func (s *Store) getDocument(byID map[string]domain.TradeDocument, id string) (*domain.TradeDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := byID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copyDoc := cloneDocument(doc)
	return &copyDoc, nil
}

func (s *Store) setAttachment(byID map[string]domain.TradeDocument, id string, url string) (*domain.TradeDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := byID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	doc.AttachmentURL = url
	doc.UpdatedAt = time.Now().UTC()
	byID[id] = doc
	updated := cloneDocument(doc)
	return &updated, nil
}

func (s *Store) GetSystemConfig(_ context.Context) (*domain.SystemConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.systemConfig == nil {
		s.systemConfig = &domain.SystemConfig{UpdatedAt: time.Now().UTC()}
	}
	copyConfig := *s.systemConfig
	return &copyConfig, nil
}

func (s *Store) UpdateFeatureFlag(_ context.Context, feature string, enabled bool) (*domain.SystemConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.systemConfig == nil {
		s.systemConfig = &domain.SystemConfig{}
	}
	switch feature {
	case "offers":
		s.systemConfig.Features.Offers = enabled
	case "orders":
		s.systemConfig.Features.Orders = enabled
	case "reporting":
		s.systemConfig.Features.Reporting = enabled
	default:
		return nil, store.ErrValidation
	}
	s.systemConfig.UpdatedAt = time.Now().UTC()
	copyConfig := *s.systemConfig
	return &copyConfig, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrValidation
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrDuplicateName
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleOperator
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrValidation
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func applyActiveFlag(active *bool, deletedAt **time.Time, updatedAt *time.Time, next bool) {
	now := time.Now().UTC()
	*active = next
	*updatedAt = now
	if next {
		*deletedAt = nil
		return
	}
	// Repeat deactivation keeps the original deletion time.
	if *deletedAt == nil {
		at := now
		*deletedAt = &at
	}
}

func sortByCreatedDesc[T any](items []T, key func(T) (time.Time, string)) {
	slices.SortFunc(items, func(a, b T) int {
		at, aid := key(a)
		bt, bid := key(b)
		if at.Equal(bt) {
			return cmpString(bid, aid)
		}
		if at.After(bt) {
			return -1
		}
		return 1
	})
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}

func cloneDocument(src domain.TradeDocument) domain.TradeDocument {
	dup := src
	items := make([]domain.LineItem, len(src.Items))
	copy(items, src.Items)
	dup.Items = items
	return dup
}
