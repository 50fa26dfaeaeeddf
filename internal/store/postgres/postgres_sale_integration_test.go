package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"mitienda/backend/internal/domain"
	"mitienda/backend/internal/store"
)

func TestCreateSaleDecrementsStock(t *testing.T) {
	databaseURL := os.Getenv("MITIENDA_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set MITIENDA_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	productID := fmt.Sprintf("prod-sale-it-%d", stamp)
	productName := fmt.Sprintf("Producto IT %d", stamp)
	clientID := fmt.Sprintf("cli-sale-it-%d", stamp)
	clientName := fmt.Sprintf("Cliente IT %d", stamp)
	saleID := fmt.Sprintf("sal-it-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sale_items WHERE document_id = $1`, saleID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, saleID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM clients WHERE id = $1`, clientID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
	})

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, description, price, stock, min_stock, active, created_at, updated_at)
		VALUES ($1, $2, '', 2.50, 10, 0, true, now(), now())
	`, productID, productName); err != nil {
		t.Fatalf("insert product: %v", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO clients (id, name, kind, active, created_at, updated_at)
		VALUES ($1, $2, 'customer', true, now(), now())
	`, clientID, clientName); err != nil {
		t.Fatalf("insert client: %v", err)
	}

	price := decimal.RequireFromString("2.50")
	created, err := s.CreateSale(ctx, domain.TradeDocument{
		ID:         saleID,
		ClientID:   clientID,
		ClientName: clientName,
		Status:     domain.StatusCompleted,
		Items: []domain.LineItem{{
			ProductID:   productID,
			ProductName: productName,
			Quantity:    4,
			UnitPrice:   price,
			Subtotal:    price.Mul(decimal.NewFromInt(4)),
		}},
		Subtotal: price.Mul(decimal.NewFromInt(4)),
		Total:    price.Mul(decimal.NewFromInt(4)),
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if created.Code == "" {
		t.Fatalf("expected an assigned code")
	}

	product, err := s.GetProduct(ctx, productID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.Stock != 6 {
		t.Fatalf("expected stock 6 after sale, got %d", product.Stock)
	}

	// A second sale over the remaining stock must fail without decrementing.
	_, err = s.CreateSale(ctx, domain.TradeDocument{
		ID:         saleID + "-over",
		ClientID:   clientID,
		ClientName: clientName,
		Status:     domain.StatusCompleted,
		Items: []domain.LineItem{{
			ProductID:   productID,
			ProductName: productName,
			Quantity:    7,
			UnitPrice:   price,
			Subtotal:    price.Mul(decimal.NewFromInt(7)),
		}},
		Subtotal: price.Mul(decimal.NewFromInt(7)),
		Total:    price.Mul(decimal.NewFromInt(7)),
	})
	var stockErr *store.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}

	product, err = s.GetProduct(ctx, productID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.Stock != 6 {
		t.Fatalf("failed sale must not change stock, got %d", product.Stock)
	}

	// Two lines for the same product are summed: 4+4 against stock 6 fails.
	_, err = s.CreateSale(ctx, domain.TradeDocument{
		ID:         saleID + "-split",
		ClientID:   clientID,
		ClientName: clientName,
		Status:     domain.StatusCompleted,
		Items: []domain.LineItem{
			{
				ProductID:   productID,
				ProductName: productName,
				Quantity:    4,
				UnitPrice:   price,
				Subtotal:    price.Mul(decimal.NewFromInt(4)),
			},
			{
				ProductID:   productID,
				ProductName: productName,
				Quantity:    4,
				UnitPrice:   price,
				Subtotal:    price.Mul(decimal.NewFromInt(4)),
			},
		},
		Subtotal: price.Mul(decimal.NewFromInt(8)),
		Total:    price.Mul(decimal.NewFromInt(8)),
	})
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected InsufficientStockError for split lines, got %v", err)
	}
	if stockErr.Requested != 8 || stockErr.Available != 6 {
		t.Fatalf("unexpected error detail: %+v", stockErr)
	}

	product, err = s.GetProduct(ctx, productID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.Stock != 6 {
		t.Fatalf("failed split sale must not change stock, got %d", product.Stock)
	}
}
