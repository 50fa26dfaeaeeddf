package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"mitienda/backend/internal/blob"
	"mitienda/backend/internal/cache"
	"mitienda/backend/internal/codes"
	"mitienda/backend/internal/domain"
	"mitienda/backend/internal/store"
	"mitienda/backend/internal/store/memory"
)

func newTestService() *Service {
	repo := memory.NewSeeded()
	return New(repo, cache.NoopCatalogCache{}, blob.Disabled{}, 5*time.Second, nil)
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: domain.RoleAdmin})
}

func operatorCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "operator", Role: domain.RoleOperator})
}

func rootCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "root", Role: domain.RoleSuperAdmin})
}

func mustProduct(t *testing.T, svc *Service, name string) domain.Product {
	t.Helper()
	products, err := svc.ListProducts(context.Background(), true)
	if err != nil {
		t.Fatalf("list products: %v", err)
	}
	for _, p := range products {
		if p.Name == name {
			return p
		}
	}
	t.Fatalf("seeded product %q not found", name)
	return domain.Product{}
}

func mustClient(t *testing.T, svc *Service, kind string) domain.Client {
	t.Helper()
	clients, err := svc.ListClients(context.Background(), kind, false)
	if err != nil {
		t.Fatalf("list clients: %v", err)
	}
	if len(clients) == 0 {
		t.Fatalf("no seeded %s found", kind)
	}
	return clients[0]
}

func TestCreateProductRequiresAdmin(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateProduct(operatorCtx(), domain.ProductCreateRequest{
		Name:  "Aceite de Oliva 1L",
		Price: decimal.RequireFromString("5.45"),
	})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	_, err = svc.CreateProduct(context.Background(), domain.ProductCreateRequest{
		Name:  "Aceite de Oliva 1L",
		Price: decimal.RequireFromString("5.45"),
	})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden without actor, got %v", err)
	}
}

func TestCreateProductDuplicateName(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateProduct(adminCtx(), domain.ProductCreateRequest{
		Name:  "agua mineral 1.5L",
		Price: decimal.RequireFromString("0.90"),
	})
	if !errors.Is(err, store.ErrDuplicateName) {
		t.Fatalf("expected duplicate name error, got %v", err)
	}
}

func TestSaleDecrementsStockAndAssignsCode(t *testing.T) {
	svc := newTestService()
	product := mustProduct(t, svc, "Pan de Molde")
	customer := mustClient(t, svc, domain.ClientKindCustomer)

	sale, err := svc.CreateSale(operatorCtx(), domain.SaleCreateRequest{
		CustomerID: customer.ID,
		Items:      []domain.LineItemRequest{{ProductID: product.ID, Quantity: 4}},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}

	wantPrefix := fmt.Sprintf("VE-%d-", time.Now().UTC().Year())
	if !strings.HasPrefix(sale.Code, wantPrefix) {
		t.Fatalf("expected code with prefix %s, got %s", wantPrefix, sale.Code)
	}
	if sale.Status != domain.StatusCompleted {
		t.Fatalf("expected completed sale, got %s", sale.Status)
	}

	after, err := svc.GetProduct(context.Background(), product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if after.Stock != product.Stock-4 {
		t.Fatalf("expected stock %d, got %d", product.Stock-4, after.Stock)
	}
}

func TestSaleInsufficientStockLeavesStockUntouched(t *testing.T) {
	svc := newTestService()
	product := mustProduct(t, svc, "Croissant")
	customer := mustClient(t, svc, domain.ClientKindCustomer)

	_, err := svc.CreateSale(operatorCtx(), domain.SaleCreateRequest{
		CustomerID: customer.ID,
		Items: []domain.LineItemRequest{
			{ProductID: product.ID, Quantity: product.Stock + 1},
		},
	})

	var stockErr *store.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if stockErr.ProductID != product.ID || stockErr.Available != product.Stock || stockErr.Requested != product.Stock+1 {
		t.Fatalf("unexpected error detail: %+v", stockErr)
	}

	after, err := svc.GetProduct(context.Background(), product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if after.Stock != product.Stock {
		t.Fatalf("stock must be untouched after a failed sale, got %d", after.Stock)
	}
}

func TestSaleRepeatedProductLinesShareOneStockPool(t *testing.T) {
	svc := newTestService()
	customer := mustClient(t, svc, domain.ClientKindCustomer)

	product, err := svc.CreateProduct(adminCtx(), domain.ProductCreateRequest{
		Name:  "Turrón de Almendra",
		Price: decimal.RequireFromString("4.50"),
		Stock: 5,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	_, err = svc.CreateSale(operatorCtx(), domain.SaleCreateRequest{
		CustomerID: customer.ID,
		Items: []domain.LineItemRequest{
			{ProductID: product.ID, Quantity: 3},
			{ProductID: product.ID, Quantity: 3},
		},
	})
	var stockErr *store.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected InsufficientStockError for 3+3 against stock 5, got %v", err)
	}
	if stockErr.Requested != 6 || stockErr.Available != 5 {
		t.Fatalf("unexpected error detail: %+v", stockErr)
	}

	after, err := svc.GetProduct(context.Background(), product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if after.Stock != 5 {
		t.Fatalf("failed sale must not change stock, got %d", after.Stock)
	}
}

func TestMultiLineSaleFailsAtomically(t *testing.T) {
	svc := newTestService()
	ok := mustProduct(t, svc, "Pan de Molde")
	short := mustProduct(t, svc, "Croissant")
	customer := mustClient(t, svc, domain.ClientKindCustomer)

	_, err := svc.CreateSale(operatorCtx(), domain.SaleCreateRequest{
		CustomerID: customer.ID,
		Items: []domain.LineItemRequest{
			{ProductID: ok.ID, Quantity: 1},
			{ProductID: short.ID, Quantity: short.Stock + 10},
		},
	})
	var stockErr *store.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}

	after, _ := svc.GetProduct(context.Background(), ok.ID)
	if after.Stock != ok.Stock {
		t.Fatalf("first line must not be decremented when a later line fails")
	}
}

func TestPurchaseLifecycle(t *testing.T) {
	svc := newTestService()
	product := mustProduct(t, svc, "Detergente 3L")
	supplier := mustClient(t, svc, domain.ClientKindSupplier)

	purchase, err := svc.CreatePurchase(adminCtx(), domain.PurchaseCreateRequest{
		SupplierID: supplier.ID,
		Items:      []domain.LineItemRequest{{ProductID: product.ID, Quantity: 12, UnitPrice: decimal.RequireFromString("4.10")}},
	})
	if err != nil {
		t.Fatalf("create purchase: %v", err)
	}
	if purchase.Status != domain.StatusPending {
		t.Fatalf("expected pending purchase, got %s", purchase.Status)
	}
	wantPrefix := fmt.Sprintf("OC-%d-", time.Now().UTC().Year())
	if !strings.HasPrefix(purchase.Code, wantPrefix) {
		t.Fatalf("expected code with prefix %s, got %s", wantPrefix, purchase.Code)
	}

	// Pending purchases do not move stock.
	mid, _ := svc.GetProduct(context.Background(), product.ID)
	if mid.Stock != product.Stock {
		t.Fatalf("pending purchase must not change stock")
	}

	received, err := svc.UpdatePurchaseStatus(adminCtx(), purchase.ID, domain.StatusReceived)
	if err != nil {
		t.Fatalf("receive purchase: %v", err)
	}
	if received.Status != domain.StatusReceived {
		t.Fatalf("expected received, got %s", received.Status)
	}

	after, _ := svc.GetProduct(context.Background(), product.ID)
	if after.Stock != product.Stock+12 {
		t.Fatalf("expected stock %d after receiving, got %d", product.Stock+12, after.Stock)
	}

	// Received is terminal.
	_, err = svc.UpdatePurchaseStatus(adminCtx(), purchase.ID, domain.StatusCancelled)
	if !errors.Is(err, store.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestPurchaseBornReceivedIncrementsStock(t *testing.T) {
	svc := newTestService()
	product := mustProduct(t, svc, "Lavavajillas 750ml")
	supplier := mustClient(t, svc, domain.ClientKindSupplier)

	_, err := svc.CreatePurchase(adminCtx(), domain.PurchaseCreateRequest{
		SupplierID: supplier.ID,
		Status:     domain.StatusReceived,
		Items:      []domain.LineItemRequest{{ProductID: product.ID, Quantity: 6, UnitPrice: decimal.RequireFromString("1.50")}},
	})
	if err != nil {
		t.Fatalf("create purchase: %v", err)
	}

	after, _ := svc.GetProduct(context.Background(), product.ID)
	if after.Stock != product.Stock+6 {
		t.Fatalf("expected stock %d, got %d", product.Stock+6, after.Stock)
	}
}

func TestCancelledPurchaseNeverMovesStock(t *testing.T) {
	svc := newTestService()
	product := mustProduct(t, svc, "Detergente 3L")
	supplier := mustClient(t, svc, domain.ClientKindSupplier)

	purchase, err := svc.CreatePurchase(adminCtx(), domain.PurchaseCreateRequest{
		SupplierID: supplier.ID,
		Items:      []domain.LineItemRequest{{ProductID: product.ID, Quantity: 3, UnitPrice: decimal.RequireFromString("4.00")}},
	})
	if err != nil {
		t.Fatalf("create purchase: %v", err)
	}

	cancelled, err := svc.UpdatePurchaseStatus(adminCtx(), purchase.ID, domain.StatusCancelled)
	if err != nil {
		t.Fatalf("cancel purchase: %v", err)
	}
	if cancelled.Status != domain.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}

	after, _ := svc.GetProduct(context.Background(), product.ID)
	if after.Stock != product.Stock {
		t.Fatalf("cancelled purchase must not change stock")
	}

	_, err = svc.UpdatePurchaseStatus(adminCtx(), purchase.ID, domain.StatusReceived)
	if !errors.Is(err, store.ErrInvalidTransition) {
		t.Fatalf("cancelled is terminal, got %v", err)
	}
}

func TestSaleTotals(t *testing.T) {
	svc := newTestService()
	customer := mustClient(t, svc, domain.ClientKindCustomer)

	product, err := svc.CreateProduct(adminCtx(), domain.ProductCreateRequest{
		Name:  "Caja Surtida",
		Price: decimal.RequireFromString("10.00"),
		Stock: 50,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	sale, err := svc.CreateSale(operatorCtx(), domain.SaleCreateRequest{
		CustomerID: customer.ID,
		Items:      []domain.LineItemRequest{{ProductID: product.ID, Quantity: 3}},
		TaxPercent: decimal.RequireFromString("21"),
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}

	if !sale.Subtotal.Equal(decimal.RequireFromString("30.00")) {
		t.Fatalf("expected subtotal 30.00, got %s", sale.Subtotal)
	}
	if !sale.Tax.Equal(decimal.RequireFromString("6.30")) {
		t.Fatalf("expected tax 6.30, got %s", sale.Tax)
	}
	if !sale.Total.Equal(decimal.RequireFromString("36.30")) {
		t.Fatalf("expected total 36.30, got %s", sale.Total)
	}
}

func TestSaleRejectsBadTaxPercent(t *testing.T) {
	svc := newTestService()
	product := mustProduct(t, svc, "Pan de Molde")
	customer := mustClient(t, svc, domain.ClientKindCustomer)

	for _, pct := range []string{"-1", "101"} {
		_, err := svc.CreateSale(operatorCtx(), domain.SaleCreateRequest{
			CustomerID: customer.ID,
			Items:      []domain.LineItemRequest{{ProductID: product.ID, Quantity: 1}},
			TaxPercent: decimal.RequireFromString(pct),
		})
		if !errors.Is(err, store.ErrValidation) {
			t.Fatalf("tax percent %s: expected validation error, got %v", pct, err)
		}
	}
}

func TestCodeSequencePerSeries(t *testing.T) {
	svc := newTestService()
	product := mustProduct(t, svc, "Agua Mineral 1.5L")
	customer := mustClient(t, svc, domain.ClientKindCustomer)
	supplier := mustClient(t, svc, domain.ClientKindSupplier)

	first, err := svc.CreateSale(operatorCtx(), domain.SaleCreateRequest{
		CustomerID: customer.ID,
		Items:      []domain.LineItemRequest{{ProductID: product.ID, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("first sale: %v", err)
	}
	second, err := svc.CreateSale(operatorCtx(), domain.SaleCreateRequest{
		CustomerID: customer.ID,
		Items:      []domain.LineItemRequest{{ProductID: product.ID, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("second sale: %v", err)
	}

	year := time.Now().UTC().Year()
	if first.Code != fmt.Sprintf("VE-%d-0001", year) || second.Code != fmt.Sprintf("VE-%d-0002", year) {
		t.Fatalf("expected sequential sale codes, got %s then %s", first.Code, second.Code)
	}

	// The purchase series counts independently.
	purchase, err := svc.CreatePurchase(adminCtx(), domain.PurchaseCreateRequest{
		SupplierID: supplier.ID,
		Items:      []domain.LineItemRequest{{ProductID: product.ID, Quantity: 1, UnitPrice: decimal.RequireFromString("0.50")}},
	})
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if purchase.Code != fmt.Sprintf("OC-%d-0001", year) {
		t.Fatalf("expected OC-%d-0001, got %s", year, purchase.Code)
	}

	next, err := svc.PreviewNextCode(context.Background(), codes.SeriesSale)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if next != fmt.Sprintf("VE-%d-0003", year) {
		t.Fatalf("expected preview VE-%d-0003, got %s", year, next)
	}
}

func TestConcurrentSalesNeverOversell(t *testing.T) {
	svc := newTestService()
	customer := mustClient(t, svc, domain.ClientKindCustomer)

	product, err := svc.CreateProduct(adminCtx(), domain.ProductCreateRequest{
		Name:  "Edición Limitada",
		Price: decimal.RequireFromString("3.00"),
		Stock: 10,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	sold := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CreateSale(operatorCtx(), domain.SaleCreateRequest{
				CustomerID: customer.ID,
				Items:      []domain.LineItemRequest{{ProductID: product.ID, Quantity: 1}},
			})
			if err == nil {
				mu.Lock()
				sold++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if sold != 10 {
		t.Fatalf("expected exactly 10 successful sales, got %d", sold)
	}
	after, _ := svc.GetProduct(context.Background(), product.ID)
	if after.Stock != 0 {
		t.Fatalf("expected zero stock, got %d", after.Stock)
	}
}

func TestSoftDeleteLifecycle(t *testing.T) {
	svc := newTestService()
	product := mustProduct(t, svc, "Zumo de Naranja 1L")

	deactivated, err := svc.SetProductActive(adminCtx(), product.ID, false)
	if err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if deactivated.Active || deactivated.DeletedAt == nil {
		t.Fatalf("expected inactive product with deleted_at set, got %+v", deactivated)
	}

	active, err := svc.ListProducts(context.Background(), false)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, p := range active {
		if p.ID == product.ID {
			t.Fatalf("deactivated product must not appear in the default listing")
		}
	}

	// Deactivated products stay readable by id and block sales.
	if _, err := svc.GetProduct(context.Background(), product.ID); err != nil {
		t.Fatalf("get deactivated product: %v", err)
	}
	customer := mustClient(t, svc, domain.ClientKindCustomer)
	_, err = svc.CreateSale(operatorCtx(), domain.SaleCreateRequest{
		CustomerID: customer.ID,
		Items:      []domain.LineItemRequest{{ProductID: product.ID, Quantity: 1}},
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error selling an inactive product, got %v", err)
	}

	restored, err := svc.SetProductActive(adminCtx(), product.ID, true)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if !restored.Active || restored.DeletedAt != nil {
		t.Fatalf("expected restored product, got %+v", restored)
	}
}

func TestFeatureFlagsDefaultOffAndGated(t *testing.T) {
	svc := newTestService()

	cfg, err := svc.GetSystemConfig(context.Background())
	if err != nil {
		t.Fatalf("get config: %v", err)
	}
	if cfg.Features.Offers || cfg.Features.Orders || cfg.Features.Reporting {
		t.Fatalf("expected all flags off by default, got %+v", cfg.Features)
	}

	_, err = svc.UpdateFeatureFlag(adminCtx(), domain.FeatureFlagUpdateRequest{Feature: "offers", Enabled: true})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected superadmin gate, got %v", err)
	}

	updated, err := svc.UpdateFeatureFlag(rootCtx(), domain.FeatureFlagUpdateRequest{Feature: "offers", Enabled: true})
	if err != nil {
		t.Fatalf("update flag: %v", err)
	}
	if !updated.Features.Offers {
		t.Fatalf("expected offers flag on")
	}

	_, err = svc.UpdateFeatureFlag(rootCtx(), domain.FeatureFlagUpdateRequest{Feature: "loyalty", Enabled: true})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error for unknown flag, got %v", err)
	}
}

func TestSaleUsesOfferPriceWhenFlagEnabled(t *testing.T) {
	svc := newTestService()
	product := mustProduct(t, svc, "Agua Mineral 1.5L")
	customer := mustClient(t, svc, domain.ClientKindCustomer)

	// Flag off: list price applies even though a live offer exists.
	sale, err := svc.CreateSale(operatorCtx(), domain.SaleCreateRequest{
		CustomerID: customer.ID,
		Items:      []domain.LineItemRequest{{ProductID: product.ID, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("sale with flag off: %v", err)
	}
	if !sale.Items[0].UnitPrice.Equal(product.Price) {
		t.Fatalf("expected list price %s, got %s", product.Price, sale.Items[0].UnitPrice)
	}

	if _, err := svc.UpdateFeatureFlag(rootCtx(), domain.FeatureFlagUpdateRequest{Feature: "offers", Enabled: true}); err != nil {
		t.Fatalf("enable offers: %v", err)
	}

	// Flag on: the seeded 10% category offer on Bebidas applies.
	discounted, err := svc.CreateSale(operatorCtx(), domain.SaleCreateRequest{
		CustomerID: customer.ID,
		Items:      []domain.LineItemRequest{{ProductID: product.ID, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("sale with flag on: %v", err)
	}
	want := product.Price.Mul(decimal.RequireFromString("0.9"))
	if !discounted.Items[0].UnitPrice.Equal(want) {
		t.Fatalf("expected discounted price %s, got %s", want, discounted.Items[0].UnitPrice)
	}

	// An explicit unit price always wins over the resolver.
	override, err := svc.CreateSale(operatorCtx(), domain.SaleCreateRequest{
		CustomerID: customer.ID,
		Items:      []domain.LineItemRequest{{ProductID: product.ID, Quantity: 1, UnitPrice: decimal.RequireFromString("0.50")}},
	})
	if err != nil {
		t.Fatalf("sale with override: %v", err)
	}
	if !override.Items[0].UnitPrice.Equal(decimal.RequireFromString("0.50")) {
		t.Fatalf("expected override price, got %s", override.Items[0].UnitPrice)
	}
}

func TestOfferValidation(t *testing.T) {
	svc := newTestService()
	now := time.Now().UTC()
	earlier := now.Add(-48 * time.Hour)

	cases := []struct {
		name string
		req  domain.OfferCreateRequest
	}{
		{"missing start date", domain.OfferCreateRequest{
			Name: "Sin Fecha", Scope: domain.OfferScopeGeneral,
			Kind: domain.OfferKindPercentage, Value: decimal.NewFromInt(10),
		}},
		{"end before start", domain.OfferCreateRequest{
			Name: "Fechas Invertidas", Scope: domain.OfferScopeGeneral,
			Kind: domain.OfferKindPercentage, Value: decimal.NewFromInt(10),
			StartDate: &now, EndDate: &earlier,
		}},
		{"percentage over 100", domain.OfferCreateRequest{
			Name: "Demasiado", Scope: domain.OfferScopeGeneral,
			Kind: domain.OfferKindPercentage, Value: decimal.NewFromInt(120),
			StartDate: &now,
		}},
		{"product scope without product", domain.OfferCreateRequest{
			Name: "Sin Producto", Scope: domain.OfferScopeProduct,
			Kind: domain.OfferKindPercentage, Value: decimal.NewFromInt(10),
			StartDate: &now,
		}},
		{"unknown kind", domain.OfferCreateRequest{
			Name: "Tipo Raro", Scope: domain.OfferScopeGeneral,
			Kind: "bogo", Value: decimal.NewFromInt(10),
			StartDate: &now,
		}},
	}
	for _, tc := range cases {
		if _, err := svc.CreateOffer(adminCtx(), tc.req); !errors.Is(err, store.ErrValidation) {
			t.Fatalf("%s: expected validation error, got %v", tc.name, err)
		}
	}
}

func TestPurchaseRequiresSupplier(t *testing.T) {
	svc := newTestService()
	product := mustProduct(t, svc, "Pan de Molde")
	customer := mustClient(t, svc, domain.ClientKindCustomer)

	_, err := svc.CreatePurchase(adminCtx(), domain.PurchaseCreateRequest{
		SupplierID: customer.ID,
		Items:      []domain.LineItemRequest{{ProductID: product.ID, Quantity: 1, UnitPrice: decimal.RequireFromString("1.00")}},
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error using a customer as supplier, got %v", err)
	}
}

func TestClientNameUniqueAcrossKinds(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateClient(adminCtx(), domain.ClientCreateRequest{
		Name: "distribuciones norte sl",
		Kind: domain.ClientKindCustomer,
	})
	if !errors.Is(err, store.ErrDuplicateName) {
		t.Fatalf("expected duplicate across kinds, got %v", err)
	}
}

func TestPublicCatalogAppliesOffers(t *testing.T) {
	svc := newTestService()
	product := mustProduct(t, svc, "Refresco Cola 330ml")

	if _, err := svc.UpdateFeatureFlag(rootCtx(), domain.FeatureFlagUpdateRequest{Feature: "offers", Enabled: true}); err != nil {
		t.Fatalf("enable offers: %v", err)
	}

	entries, err := svc.PublicCatalog(context.Background())
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}

	found := false
	for _, entry := range entries {
		if entry.Product.ID != product.ID {
			continue
		}
		found = true
		want := product.Price.Mul(decimal.RequireFromString("0.9"))
		if !entry.Pricing.FinalPrice.Equal(want) {
			t.Fatalf("expected catalog price %s, got %s", want, entry.Pricing.FinalPrice)
		}
		if !entry.Pricing.HasDiscount {
			t.Fatalf("expected a discount on %s", product.Name)
		}
	}
	if !found {
		t.Fatalf("product missing from catalog")
	}
}

func TestAttachFileValidation(t *testing.T) {
	svc := newTestService()
	product := mustProduct(t, svc, "Pan de Molde")
	customer := mustClient(t, svc, domain.ClientKindCustomer)

	sale, err := svc.CreateSale(operatorCtx(), domain.SaleCreateRequest{
		CustomerID: customer.ID,
		Items:      []domain.LineItemRequest{{ProductID: product.ID, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}

	body := strings.NewReader("not really a pdf")

	_, err = svc.AttachFile(operatorCtx(), "sales", sale.ID, "big.pdf", "application/pdf", 6<<20, body)
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected size validation error, got %v", err)
	}

	_, err = svc.AttachFile(operatorCtx(), "sales", sale.ID, "notes.txt", "text/plain", 10, body)
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected content type validation error, got %v", err)
	}

	// Blob storage is disabled in tests, so a valid request surfaces as unavailable.
	_, err = svc.AttachFile(operatorCtx(), "sales", sale.ID, "ticket.pdf", "application/pdf", 10, body)
	if !errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("expected unavailable with disabled storage, got %v", err)
	}
}
