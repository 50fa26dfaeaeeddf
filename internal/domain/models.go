package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	MinStock    int             `json:"min_stock"`
	CategoryID  string          `json:"category_id"`
	Active      bool            `json:"active"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	DeletedAt   *time.Time      `json:"deleted_at,omitempty"`
}

type ProductCreateRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	MinStock    int             `json:"min_stock"`
	CategoryID  string          `json:"category_id"`
}

type ProductUpdateRequest struct {
	Name        *string          `json:"name,omitempty"`
	Description *string          `json:"description,omitempty"`
	Price       *decimal.Decimal `json:"price,omitempty"`
	MinStock    *int             `json:"min_stock,omitempty"`
	CategoryID  *string          `json:"category_id,omitempty"`
}

type Category struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Active      bool       `json:"active"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
}

type CategoryCreateRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type CategoryUpdateRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// Client is the unified customer/supplier record. Kind discriminates the two;
// name uniqueness applies across the whole collection regardless of kind.
type Client struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	LegalName string     `json:"legal_name,omitempty"`
	Kind      string     `json:"kind"`
	Email     string     `json:"email,omitempty"`
	Phone     string     `json:"phone,omitempty"`
	Address   string     `json:"address,omitempty"`
	TaxID     string     `json:"tax_id,omitempty"`
	Active    bool       `json:"active"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

type ClientCreateRequest struct {
	Name      string `json:"name"`
	LegalName string `json:"legal_name,omitempty"`
	Kind      string `json:"kind"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Address   string `json:"address,omitempty"`
	TaxID     string `json:"tax_id,omitempty"`
}

type ClientUpdateRequest struct {
	Name      *string `json:"name,omitempty"`
	LegalName *string `json:"legal_name,omitempty"`
	Email     *string `json:"email,omitempty"`
	Phone     *string `json:"phone,omitempty"`
	Address   *string `json:"address,omitempty"`
	TaxID     *string `json:"tax_id,omitempty"`
}

// Offer is a promotional discount rule. Value is interpreted per Kind:
// percentage off, fixed amount off, or an absolute special price.
type Offer struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Scope       string          `json:"scope"`
	Kind        string          `json:"kind"`
	Value       decimal.Decimal `json:"value"`
	CategoryID  string          `json:"category_id,omitempty"`
	ProductID   string          `json:"product_id,omitempty"`
	StartDate   *time.Time      `json:"start_date,omitempty"`
	EndDate     *time.Time      `json:"end_date,omitempty"`
	Priority    int             `json:"priority"`
	Active      bool            `json:"active"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	DeletedAt   *time.Time      `json:"deleted_at,omitempty"`
}

type OfferCreateRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Scope       string          `json:"scope"`
	Kind        string          `json:"kind"`
	Value       decimal.Decimal `json:"value"`
	CategoryID  string          `json:"category_id,omitempty"`
	ProductID   string          `json:"product_id,omitempty"`
	StartDate   *time.Time      `json:"start_date,omitempty"`
	EndDate     *time.Time      `json:"end_date,omitempty"`
	Priority    int             `json:"priority"`
}

type OfferUpdateRequest struct {
	Name        *string          `json:"name,omitempty"`
	Description *string          `json:"description,omitempty"`
	Scope       *string          `json:"scope,omitempty"`
	Kind        *string          `json:"kind,omitempty"`
	Value       *decimal.Decimal `json:"value,omitempty"`
	CategoryID  *string          `json:"category_id,omitempty"`
	ProductID   *string          `json:"product_id,omitempty"`
	StartDate   *time.Time       `json:"start_date,omitempty"`
	EndDate     *time.Time       `json:"end_date,omitempty"`
	Priority    *int             `json:"priority,omitempty"`
}

// LineItem caches the product name and unit price at document-creation time so
// historical documents keep displaying correctly after the product is renamed.
type LineItem struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

type LineItemRequest struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// TradeDocument is the shared shape of purchases and sales: a coded stock
// movement document with a denormalized counterparty name.
type TradeDocument struct {
	ID            string          `json:"id"`
	Code          string          `json:"code"`
	ClientID      string          `json:"client_id"`
	ClientName    string          `json:"client_name"`
	Status        string          `json:"status"`
	PaymentMethod string          `json:"payment_method"`
	Items         []LineItem      `json:"items"`
	TaxPercent    decimal.Decimal `json:"tax_percent"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Tax           decimal.Decimal `json:"tax"`
	Total         decimal.Decimal `json:"total"`
	AttachmentURL string          `json:"attachment_url,omitempty"`
	Notes         string          `json:"notes,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type PurchaseCreateRequest struct {
	SupplierID    string            `json:"supplier_id"`
	Status        string            `json:"status,omitempty"`
	PaymentMethod string            `json:"payment_method,omitempty"`
	Items         []LineItemRequest `json:"items"`
	TaxPercent    decimal.Decimal   `json:"tax_percent"`
	Notes         string            `json:"notes,omitempty"`
}

type SaleCreateRequest struct {
	CustomerID    string            `json:"customer_id"`
	PaymentMethod string            `json:"payment_method,omitempty"`
	Items         []LineItemRequest `json:"items"`
	TaxPercent    decimal.Decimal   `json:"tax_percent"`
	Notes         string            `json:"notes,omitempty"`
}

type StatusUpdateRequest struct {
	Status string `json:"status"`
}

// FeatureFlags gates optional modules. A missing config document reads as all-off.
type FeatureFlags struct {
	Offers    bool `json:"offers"`
	Orders    bool `json:"orders"`
	Reporting bool `json:"reporting"`
}

type SystemConfig struct {
	Features  FeatureFlags `json:"features"`
	UpdatedAt time.Time    `json:"updated_at"`
}

type FeatureFlagUpdateRequest struct {
	Feature string `json:"feature"`
	Enabled bool   `json:"enabled"`
}

// PriceQuote is the offer resolver's result for one product.
type PriceQuote struct {
	OriginalPrice decimal.Decimal `json:"original_price"`
	FinalPrice    decimal.Decimal `json:"final_price"`
	AppliedOffer  *Offer          `json:"applied_offer,omitempty"`
	HasDiscount   bool            `json:"has_discount"`
}

type CatalogEntry struct {
	Product Product    `json:"product"`
	Pricing PriceQuote `json:"pricing"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type UserCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type User struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

const (
	ClientKindCustomer = "customer"
	ClientKindSupplier = "supplier"
)

const (
	OfferScopeGeneral  = "general"
	OfferScopeCategory = "category"
	OfferScopeProduct  = "product"
)

const (
	OfferKindPercentage   = "percentage"
	OfferKindFixedAmount  = "fixed_amount"
	OfferKindSpecialPrice = "special_price"
)

const (
	StatusPending   = "pending"
	StatusReceived  = "received"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

const (
	RoleOperator   = "operator"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "superadmin"
)
