package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mitienda/backend/internal/codes"
	"mitienda/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicateName     = errors.New("name already in use")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrValidation        = errors.New("validation failed")
	ErrUnavailable       = errors.New("store unavailable")
)

// InsufficientStockError reports which line item failed the stock check on a
// sale. The whole sale is rejected; no stock is mutated.
type InsufficientStockError struct {
	ProductID   string
	ProductName string
	Available   int
	Requested   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: available %d, requested %d", e.ProductName, e.Available, e.Requested)
}

type Repository interface {
	ListProducts(ctx context.Context, includeInactive bool) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	FindProductByName(ctx context.Context, name string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	SetProductActive(ctx context.Context, id string, active bool) (*domain.Product, error)

	ListCategories(ctx context.Context, includeInactive bool) ([]domain.Category, error)
	GetCategory(ctx context.Context, id string) (*domain.Category, error)
	FindCategoryByName(ctx context.Context, name string) (*domain.Category, error)
	CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error)
	UpdateCategory(ctx context.Context, category domain.Category) (*domain.Category, error)
	SetCategoryActive(ctx context.Context, id string, active bool) (*domain.Category, error)

	ListClients(ctx context.Context, kind string, includeInactive bool) ([]domain.Client, error)
	GetClient(ctx context.Context, id string) (*domain.Client, error)
	FindClientByName(ctx context.Context, name string) (*domain.Client, error)
	CreateClient(ctx context.Context, client domain.Client) (*domain.Client, error)
	UpdateClient(ctx context.Context, client domain.Client) (*domain.Client, error)
	SetClientActive(ctx context.Context, id string, active bool) (*domain.Client, error)

	ListOffers(ctx context.Context) ([]domain.Offer, error)
	GetOffer(ctx context.Context, id string) (*domain.Offer, error)
	ListLiveOffers(ctx context.Context, now time.Time) ([]domain.Offer, error)
	CreateOffer(ctx context.Context, offer domain.Offer) (*domain.Offer, error)
	UpdateOffer(ctx context.Context, offer domain.Offer) (*domain.Offer, error)
	SetOfferActive(ctx context.Context, id string, active bool) (*domain.Offer, error)

	// CreatePurchase assigns the document code and, when the purchase is born
	// received, applies the stock increments — all in one transaction.
	CreatePurchase(ctx context.Context, doc domain.TradeDocument) (*domain.TradeDocument, error)
	ListPurchases(ctx context.Context) ([]domain.TradeDocument, error)
	GetPurchase(ctx context.Context, id string) (*domain.TradeDocument, error)
	// UpdatePurchaseStatus enforces the document state machine; a transition to
	// received increments stock for every line item atomically with the status
	// write.
	UpdatePurchaseStatus(ctx context.Context, id string, status string) (*domain.TradeDocument, error)
	SetPurchaseAttachment(ctx context.Context, id string, url string) (*domain.TradeDocument, error)

	// CreateSale checks stock for every line item against a fresh read and
	// decrements it, all within one transaction; no partial mutation survives a
	// failed check.
	CreateSale(ctx context.Context, doc domain.TradeDocument) (*domain.TradeDocument, error)
	ListSales(ctx context.Context) ([]domain.TradeDocument, error)
	GetSale(ctx context.Context, id string) (*domain.TradeDocument, error)
	SetSaleAttachment(ctx context.Context, id string, url string) (*domain.TradeDocument, error)

	// PeekNextCode returns the code the next document in the series would get.
	// It does not reserve anything; the authoritative code is assigned inside
	// the create transaction.
	PeekNextCode(ctx context.Context, series codes.Series) (string, error)

	// GetSystemConfig creates and returns the default all-off flag set if no
	// config document exists yet.
	GetSystemConfig(ctx context.Context) (*domain.SystemConfig, error)
	UpdateFeatureFlag(ctx context.Context, feature string, enabled bool) (*domain.SystemConfig, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
