package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"mitienda/backend/internal/codes"
	"mitienda/backend/internal/domain"
	"mitienda/backend/internal/store"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const productColumns = `id, name, description, price, stock, min_stock, category_id, active, created_at, updated_at, deleted_at`

func (s *Store) ListProducts(ctx context.Context, includeInactive bool) ([]domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products`
	if !includeInactive {
		query += ` WHERE active = true`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, asStoreErr(err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, asStoreErr(err)
	}
	return &p, nil
}

func (s *Store) FindProductByName(ctx context.Context, name string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE lower(name) = lower($1)`, name)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, asStoreErr(err)
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, description, price, stock, min_stock, category_id, active, created_at, updated_at, deleted_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now(),now(),NULL)
	`, product.ID, product.Name, product.Description, product.Price, product.Stock, product.MinStock, nullIfEmpty(product.CategoryID), product.Active)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateName
		}
		return nil, asStoreErr(err)
	}
	return s.GetProduct(ctx, product.ID)
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, description = $3, price = $4, min_stock = $5, category_id = $6, updated_at = now()
		WHERE id = $1
	`, product.ID, product.Name, product.Description, product.Price, product.MinStock, nullIfEmpty(product.CategoryID))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateName
		}
		return nil, asStoreErr(err)
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	return s.GetProduct(ctx, product.ID)
}

func (s *Store) SetProductActive(ctx context.Context, id string, active bool) (*domain.Product, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET active = $2,
			deleted_at = CASE WHEN $2 THEN NULL ELSE COALESCE(deleted_at, now()) END,
			updated_at = now()
		WHERE id = $1
	`, id, active)
	if err != nil {
		return nil, asStoreErr(err)
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	return s.GetProduct(ctx, id)
}

const categoryColumns = `id, name, description, active, created_at, updated_at, deleted_at`

func (s *Store) ListCategories(ctx context.Context, includeInactive bool) ([]domain.Category, error) {
	query := `SELECT ` + categoryColumns + ` FROM categories`
	if !includeInactive {
		query += ` WHERE active = true`
	}
	query += ` ORDER BY name ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, asStoreErr(err)
	}
	defer rows.Close()

	categories := make([]domain.Category, 0, 16)
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return categories, nil
}

func (s *Store) GetCategory(ctx context.Context, id string) (*domain.Category, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = $1`, id)
	c, err := scanCategory(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, asStoreErr(err)
	}
	return &c, nil
}

func (s *Store) FindCategoryByName(ctx context.Context, name string) (*domain.Category, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+categoryColumns+` FROM categories WHERE lower(name) = lower($1)`, name)
	c, err := scanCategory(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, asStoreErr(err)
	}
	return &c, nil
}

func (s *Store) CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO categories (id, name, description, active, created_at, updated_at, deleted_at)
		VALUES ($1,$2,$3,$4,now(),now(),NULL)
	`, category.ID, category.Name, category.Description, category.Active)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateName
		}
		return nil, asStoreErr(err)
	}
	return s.GetCategory(ctx, category.ID)
}

func (s *Store) UpdateCategory(ctx context.Context, category domain.Category) (*domain.Category, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE categories
		SET name = $2, description = $3, updated_at = now()
		WHERE id = $1
	`, category.ID, category.Name, category.Description)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateName
		}
		return nil, asStoreErr(err)
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	return s.GetCategory(ctx, category.ID)
}

func (s *Store) SetCategoryActive(ctx context.Context, id string, active bool) (*domain.Category, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE categories
		SET active = $2,
			deleted_at = CASE WHEN $2 THEN NULL ELSE COALESCE(deleted_at, now()) END,
			updated_at = now()
		WHERE id = $1
	`, id, active)
	if err != nil {
		return nil, asStoreErr(err)
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	return s.GetCategory(ctx, id)
}

const clientColumns = `id, name, legal_name, kind, email, phone, address, tax_id, active, created_at, updated_at, deleted_at`

func (s *Store) ListClients(ctx context.Context, kind string, includeInactive bool) ([]domain.Client, error) {
	query := `SELECT ` + clientColumns + ` FROM clients WHERE ($1 = '' OR kind = $1)`
	if !includeInactive {
		query += ` AND active = true`
	}
	query += ` ORDER BY name ASC`

	rows, err := s.db.QueryContext(ctx, query, kind)
	if err != nil {
		return nil, asStoreErr(err)
	}
	defer rows.Close()

	clients := make([]domain.Client, 0, 32)
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return clients, nil
}

func (s *Store) GetClient(ctx context.Context, id string) (*domain.Client, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+clientColumns+` FROM clients WHERE id = $1`, id)
	c, err := scanClient(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, asStoreErr(err)
	}
	return &c, nil
}

func (s *Store) FindClientByName(ctx context.Context, name string) (*domain.Client, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+clientColumns+` FROM clients WHERE lower(name) = lower($1)`, name)
	c, err := scanClient(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, asStoreErr(err)
	}
	return &c, nil
}

func (s *Store) CreateClient(ctx context.Context, client domain.Client) (*domain.Client, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO clients (id, name, legal_name, kind, email, phone, address, tax_id, active, created_at, updated_at, deleted_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,now(),now(),NULL)
	`, client.ID, client.Name, client.LegalName, client.Kind, client.Email, client.Phone, client.Address, client.TaxID, client.Active)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateName
		}
		return nil, asStoreErr(err)
	}
	return s.GetClient(ctx, client.ID)
}

func (s *Store) UpdateClient(ctx context.Context, client domain.Client) (*domain.Client, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE clients
		SET name = $2, legal_name = $3, email = $4, phone = $5, address = $6, tax_id = $7, updated_at = now()
		WHERE id = $1
	`, client.ID, client.Name, client.LegalName, client.Email, client.Phone, client.Address, client.TaxID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateName
		}
		return nil, asStoreErr(err)
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	return s.GetClient(ctx, client.ID)
}

func (s *Store) SetClientActive(ctx context.Context, id string, active bool) (*domain.Client, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE clients
		SET active = $2,
			deleted_at = CASE WHEN $2 THEN NULL ELSE COALESCE(deleted_at, now()) END,
			updated_at = now()
		WHERE id = $1
	`, id, active)
	if err != nil {
		return nil, asStoreErr(err)
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	return s.GetClient(ctx, id)
}

const offerColumns = `id, name, description, scope, kind, value, category_id, product_id, start_date, end_date, priority, active, created_at, updated_at, deleted_at`

func (s *Store) ListOffers(ctx context.Context) ([]domain.Offer, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+offerColumns+` FROM offers ORDER BY created_at DESC`)
	if err != nil {
		return nil, asStoreErr(err)
	}
	defer rows.Close()
	return collectOffers(rows)
}

// ListLiveOffers applies the validity-window rule in SQL: the start date is a
// hard timestamp bound, the end date keeps the offer live through its whole
// calendar day.
func (s *Store) ListLiveOffers(ctx context.Context, now time.Time) ([]domain.Offer, error) {
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+offerColumns+`
		FROM offers
		WHERE active = true
			AND start_date IS NOT NULL AND start_date <= $1
			AND (end_date IS NULL OR end_date >= $2)
		ORDER BY priority DESC, created_at ASC
	`, now, startOfDay)
	if err != nil {
		return nil, asStoreErr(err)
	}
	defer rows.Close()
	return collectOffers(rows)
}

func (s *Store) GetOffer(ctx context.Context, id string) (*domain.Offer, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+offerColumns+` FROM offers WHERE id = $1`, id)
	o, err := scanOffer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, asStoreErr(err)
	}
	return &o, nil
}

func (s *Store) CreateOffer(ctx context.Context, offer domain.Offer) (*domain.Offer, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO offers (id, name, description, scope, kind, value, category_id, product_id, start_date, end_date, priority, active, created_at, updated_at, deleted_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,now(),now(),NULL)
	`, offer.ID, offer.Name, offer.Description, offer.Scope, offer.Kind, offer.Value,
		nullIfEmpty(offer.CategoryID), nullIfEmpty(offer.ProductID), nullTime(offer.StartDate), nullTime(offer.EndDate),
		offer.Priority, offer.Active)
	if err != nil {
		return nil, asStoreErr(err)
	}
	return s.GetOffer(ctx, offer.ID)
}

func (s *Store) UpdateOffer(ctx context.Context, offer domain.Offer) (*domain.Offer, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE offers
		SET name = $2, description = $3, scope = $4, kind = $5, value = $6,
			category_id = $7, product_id = $8, start_date = $9, end_date = $10,
			priority = $11, updated_at = now()
		WHERE id = $1
	`, offer.ID, offer.Name, offer.Description, offer.Scope, offer.Kind, offer.Value,
		nullIfEmpty(offer.CategoryID), nullIfEmpty(offer.ProductID), nullTime(offer.StartDate), nullTime(offer.EndDate),
		offer.Priority)
	if err != nil {
		return nil, asStoreErr(err)
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	return s.GetOffer(ctx, offer.ID)
}

func (s *Store) SetOfferActive(ctx context.Context, id string, active bool) (*domain.Offer, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE offers
		SET active = $2,
			deleted_at = CASE WHEN $2 THEN NULL ELSE COALESCE(deleted_at, now()) END,
			updated_at = now()
		WHERE id = $1
	`, id, active)
	if err != nil {
		return nil, asStoreErr(err)
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	return s.GetOffer(ctx, id)
}

func (s *Store) CreatePurchase(ctx context.Context, doc domain.TradeDocument) (*domain.TradeDocument, error) {
	return s.createDocument(ctx, tablePurchases, codes.SeriesPurchase, doc)
}

func (s *Store) ListPurchases(ctx context.Context) ([]domain.TradeDocument, error) {
	return s.listDocuments(ctx, tablePurchases)
}

func (s *Store) GetPurchase(ctx context.Context, id string) (*domain.TradeDocument, error) {
	return s.getDocument(ctx, tablePurchases, id)
}

// UpdatePurchaseStatus moves a pending purchase to received or cancelled. The
// stock increments for a reception happen in the same transaction as the
// status write; received and cancelled are terminal.
func (s *Store) UpdatePurchaseStatus(ctx context.Context, id string, status string) (*domain.TradeDocument, error) {
	if status != domain.StatusReceived && status != domain.StatusCancelled {
		return nil, store.ErrInvalidTransition
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, asStoreErr(err)
	}
	defer func() { _ = tx.Rollback() }()

	var current string
	err = tx.QueryRowContext(ctx, `SELECT status FROM purchases WHERE id = $1 FOR UPDATE`, id).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, asStoreErr(err)
	}
	if current != domain.StatusPending {
		return nil, store.ErrInvalidTransition
	}

	if status == domain.StatusReceived {
		items, err := s.loadItemsTx(ctx, tx, tablePurchases, id)
		if err != nil {
			return nil, err
		}
		if err := applyStockIncrease(ctx, tx, items); err != nil {
			return nil, err
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE purchases SET status = $2, updated_at = now() WHERE id = $1
	`, id, status)
	if err != nil {
		return nil, asStoreErr(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, asStoreErr(err)
	}
	return s.GetPurchase(ctx, id)
}

func (s *Store) SetPurchaseAttachment(ctx context.Context, id string, url string) (*domain.TradeDocument, error) {
	return s.setAttachment(ctx, tablePurchases, id, url)
}

func (s *Store) CreateSale(ctx context.Context, doc domain.TradeDocument) (*domain.TradeDocument, error) {
	return s.createDocument(ctx, tableSales, codes.SeriesSale, doc)
}

func (s *Store) ListSales(ctx context.Context) ([]domain.TradeDocument, error) {
	return s.listDocuments(ctx, tableSales)
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.TradeDocument, error) {
	return s.getDocument(ctx, tableSales, id)
}

func (s *Store) SetSaleAttachment(ctx context.Context, id string, url string) (*domain.TradeDocument, error) {
	return s.setAttachment(ctx, tableSales, id, url)
}

func (s *Store) PeekNextCode(ctx context.Context, series codes.Series) (string, error) {
	table := tableSales
	if series == codes.SeriesPurchase {
		table = tablePurchases
	}
	prefix := codes.Prefix(series, time.Now().UTC().Year())
	var last string
	err := s.db.QueryRowContext(ctx, `
		SELECT code FROM `+table+`
		WHERE code >= $1 AND code < $2
		ORDER BY code DESC
		LIMIT 1
	`, prefix, codes.RangeEnd(prefix)).Scan(&last)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return codes.First(prefix), nil
		}
		return "", asStoreErr(err)
	}
	return codes.Next(last)
}

const (
	tablePurchases = "purchases"
	tableSales     = "sales"
)

func itemsTable(table string) string {
	if table == tablePurchases {
		return "purchase_items"
	}
	return "sale_items"
}

// createDocument inserts a purchase or sale with its line items, assigning the
// sequential code inside the same serializable transaction. A sale locks and
// decrements product stock; a purchase born received increments it. On a code
// collision the insert is retried once with a random-suffix fallback code.
func (s *Store) createDocument(ctx context.Context, table string, series codes.Series, doc domain.TradeDocument) (*domain.TradeDocument, error) {
	created, err := s.createDocumentOnce(ctx, table, series, doc, "")
	if err == nil {
		return created, nil
	}
	if !errors.Is(err, errCodeCollision) {
		return nil, err
	}
	// Degraded path: sequential scan lost a race with a concurrent insert.
	// Retry once with a random suffix; a second collision surfaces.
	fallback := codes.Fallback(series, time.Now().UTC().Year())
	created, err = s.createDocumentOnce(ctx, table, series, doc, fallback)
	if err != nil {
		if errors.Is(err, errCodeCollision) {
			return nil, fmt.Errorf("document code collision persisted after retry")
		}
		return nil, err
	}
	return created, nil
}

var errCodeCollision = errors.New("document code collision")

func (s *Store) createDocumentOnce(ctx context.Context, table string, series codes.Series, doc domain.TradeDocument, forcedCode string) (*domain.TradeDocument, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, asStoreErr(err)
	}
	defer func() { _ = tx.Rollback() }()

	code := forcedCode
	if code == "" {
		code, err = nextCodeTx(ctx, tx, table, series)
		if err != nil {
			return nil, err
		}
	}
	doc.Code = code

	switch table {
	case tableSales:
		if err := checkAndDecrementStock(ctx, tx, doc.Items); err != nil {
			return nil, err
		}
	case tablePurchases:
		if doc.Status == domain.StatusReceived {
			if err := applyStockIncrease(ctx, tx, doc.Items); err != nil {
				return nil, err
			}
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO `+table+` (id, code, client_id, client_name, status, payment_method, tax_percent, subtotal, tax, total, attachment_url, notes, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,now(),now())
	`, doc.ID, doc.Code, doc.ClientID, doc.ClientName, doc.Status, doc.PaymentMethod,
		doc.TaxPercent, doc.Subtotal, doc.Tax, doc.Total, nullIfEmpty(doc.AttachmentURL), doc.Notes)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, errCodeCollision
		}
		return nil, asStoreErr(err)
	}

	for _, item := range doc.Items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO `+itemsTable(table)+` (document_id, product_id, product_name, quantity, unit_price, subtotal)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, doc.ID, item.ProductID, item.ProductName, item.Quantity, item.UnitPrice, item.Subtotal)
		if err != nil {
			return nil, asStoreErr(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, asStoreErr(err)
	}
	return s.getDocument(ctx, table, doc.ID)
}

func nextCodeTx(ctx context.Context, tx *sql.Tx, table string, series codes.Series) (string, error) {
	prefix := codes.Prefix(series, time.Now().UTC().Year())
	var last string
	// Longer codes first: past 9999 the suffix widens, so plain lexicographic
	// order would keep returning the four-digit maximum forever.
	err := tx.QueryRowContext(ctx, `
		SELECT code FROM `+table+`
		WHERE code >= $1 AND code < $2
		ORDER BY length(code) DESC, code DESC
		LIMIT 1
		FOR UPDATE
	`, prefix, codes.RangeEnd(prefix)).Scan(&last)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return codes.First(prefix), nil
		}
		return "", asStoreErr(err)
	}
	return codes.Next(last)
}

// checkAndDecrementStock validates every line item against a locked fresh read
// and decrements only when all items pass. Quantities are summed per product
// so repeated lines for one product cannot each pass against the same
// snapshot. Products are locked in a stable order so concurrent sales cannot
// deadlock.
func checkAndDecrementStock(ctx context.Context, tx *sql.Tx, items []domain.LineItem) error {
	requested := make(map[string]int, len(items))
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if _, seen := requested[item.ProductID]; !seen {
			ids = append(ids, item.ProductID)
		}
		requested[item.ProductID] += item.Quantity
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT id, name, stock FROM products
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE
	`, ids)
	if err != nil {
		return asStoreErr(err)
	}
	type productStock struct {
		name  string
		stock int
	}
	stockByID := make(map[string]productStock, len(ids))
	for rows.Next() {
		var id, name string
		var stock int
		if err := rows.Scan(&id, &name, &stock); err != nil {
			_ = rows.Close()
			return err
		}
		stockByID[id] = productStock{name: name, stock: stock}
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	_ = rows.Close()

	for _, id := range ids {
		current, ok := stockByID[id]
		if !ok {
			return store.ErrNotFound
		}
		if current.stock < requested[id] {
			return &store.InsufficientStockError{
				ProductID:   id,
				ProductName: current.name,
				Available:   current.stock,
				Requested:   requested[id],
			}
		}
	}

	for _, id := range ids {
		_, err := tx.ExecContext(ctx, `
			UPDATE products SET stock = stock - $2, updated_at = now() WHERE id = $1
		`, id, requested[id])
		if err != nil {
			return asStoreErr(err)
		}
	}
	return nil
}

func applyStockIncrease(ctx context.Context, tx *sql.Tx, items []domain.LineItem) error {
	for _, item := range items {
		res, err := tx.ExecContext(ctx, `
			UPDATE products SET stock = stock + $2, updated_at = now() WHERE id = $1
		`, item.ProductID, item.Quantity)
		if err != nil {
			return asStoreErr(err)
		}
		if err := requireAffected(res); err != nil {
			return err
		}
	}
	return nil
}

const documentColumns = `id, code, client_id, client_name, status, payment_method, tax_percent, subtotal, tax, total, attachment_url, notes, created_at, updated_at`

func (s *Store) listDocuments(ctx context.Context, table string) ([]domain.TradeDocument, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+documentColumns+` FROM `+table+` ORDER BY created_at DESC`)
	if err != nil {
		return nil, asStoreErr(err)
	}
	defer rows.Close()

	docs := make([]domain.TradeDocument, 0, 32)
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range docs {
		items, err := s.loadItems(ctx, table, docs[i].ID)
		if err != nil {
			return nil, err
		}
		docs[i].Items = items
	}
	return docs, nil
}

func (s *Store) getDocument(ctx context.Context, table string, id string) (*domain.TradeDocument, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM `+table+` WHERE id = $1`, id)
	d, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, asStoreErr(err)
	}
	items, err := s.loadItems(ctx, table, id)
	if err != nil {
		return nil, err
	}
	d.Items = items
	return &d, nil
}

func (s *Store) setAttachment(ctx context.Context, table string, id string, url string) (*domain.TradeDocument, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE `+table+` SET attachment_url = $2, updated_at = now() WHERE id = $1
	`, id, nullIfEmpty(url))
	if err != nil {
		return nil, asStoreErr(err)
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	return s.getDocument(ctx, table, id)
}

func (s *Store) loadItems(ctx context.Context, table string, documentID string) ([]domain.LineItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, product_name, quantity, unit_price, subtotal
		FROM `+itemsTable(table)+`
		WHERE document_id = $1
		ORDER BY id ASC
	`, documentID)
	if err != nil {
		return nil, asStoreErr(err)
	}
	defer rows.Close()
	return collectItems(rows)
}

func (s *Store) loadItemsTx(ctx context.Context, tx *sql.Tx, table string, documentID string) ([]domain.LineItem, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT product_id, product_name, quantity, unit_price, subtotal
		FROM `+itemsTable(table)+`
		WHERE document_id = $1
		ORDER BY id ASC
	`, documentID)
	if err != nil {
		return nil, asStoreErr(err)
	}
	defer rows.Close()
	return collectItems(rows)
}

func collectItems(rows *sql.Rows) ([]domain.LineItem, error) {
	items := make([]domain.LineItem, 0, 8)
	for rows.Next() {
		var item domain.LineItem
		if err := rows.Scan(&item.ProductID, &item.ProductName, &item.Quantity, &item.UnitPrice, &item.Subtotal); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const configID = "global"

func (s *Store) GetSystemConfig(ctx context.Context) (*domain.SystemConfig, error) {
	cfg, err := s.readSystemConfig(ctx)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, asStoreErr(err)
	}

	// First read: seed the default all-off flag set. A concurrent first read
	// may beat us to the insert; that is fine.
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO system_config (id, offers, orders, reporting, updated_at)
		VALUES ($1,false,false,false,now())
		ON CONFLICT (id) DO NOTHING
	`, configID)
	if err != nil {
		return nil, asStoreErr(err)
	}
	cfg, err = s.readSystemConfig(ctx)
	if err != nil {
		return nil, asStoreErr(err)
	}
	return cfg, nil
}

func (s *Store) readSystemConfig(ctx context.Context) (*domain.SystemConfig, error) {
	var cfg domain.SystemConfig
	err := s.db.QueryRowContext(ctx, `
		SELECT offers, orders, reporting, updated_at FROM system_config WHERE id = $1
	`, configID).Scan(&cfg.Features.Offers, &cfg.Features.Orders, &cfg.Features.Reporting, &cfg.UpdatedAt)
	if err != nil {
		return nil, err
	}
	cfg.UpdatedAt = cfg.UpdatedAt.UTC()
	return &cfg, nil
}

func (s *Store) UpdateFeatureFlag(ctx context.Context, feature string, enabled bool) (*domain.SystemConfig, error) {
	var column string
	switch feature {
	case "offers":
		column = "offers"
	case "orders":
		column = "orders"
	case "reporting":
		column = "reporting"
	default:
		return nil, store.ErrValidation
	}

	if _, err := s.GetSystemConfig(ctx); err != nil {
		return nil, err
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE system_config SET `+column+` = $2, updated_at = now() WHERE id = $1
	`, configID, enabled)
	if err != nil {
		return nil, asStoreErr(err)
	}
	return s.GetSystemConfig(ctx)
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicateName
		}
		return asStoreErr(err)
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at FROM users ORDER BY username ASC
	`)
	if err != nil {
		return nil, asStoreErr(err)
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 8)
	for rows.Next() {
		var u domain.UserAccount
		if err := rows.Scan(&u.Username, &u.Password, &u.Role, &u.Active, &u.CreatedAt); err != nil {
			return nil, err
		}
		u.CreatedAt = u.CreatedAt.UTC()
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password = $2 WHERE username = $1
	`, username, password)
	if err != nil {
		return asStoreErr(err)
	}
	return requireAffected(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	var categoryID sql.NullString
	var deletedAt sql.NullTime
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Stock, &p.MinStock,
		&categoryID, &p.Active, &p.CreatedAt, &p.UpdatedAt, &deletedAt)
	if err != nil {
		return p, err
	}
	if categoryID.Valid {
		p.CategoryID = categoryID.String
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	if deletedAt.Valid {
		at := deletedAt.Time.UTC()
		p.DeletedAt = &at
	}
	return p, nil
}

func scanCategory(row rowScanner) (domain.Category, error) {
	var c domain.Category
	var deletedAt sql.NullTime
	err := row.Scan(&c.ID, &c.Name, &c.Description, &c.Active, &c.CreatedAt, &c.UpdatedAt, &deletedAt)
	if err != nil {
		return c, err
	}
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	if deletedAt.Valid {
		at := deletedAt.Time.UTC()
		c.DeletedAt = &at
	}
	return c, nil
}

func scanClient(row rowScanner) (domain.Client, error) {
	var c domain.Client
	var deletedAt sql.NullTime
	err := row.Scan(&c.ID, &c.Name, &c.LegalName, &c.Kind, &c.Email, &c.Phone, &c.Address,
		&c.TaxID, &c.Active, &c.CreatedAt, &c.UpdatedAt, &deletedAt)
	if err != nil {
		return c, err
	}
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	if deletedAt.Valid {
		at := deletedAt.Time.UTC()
		c.DeletedAt = &at
	}
	return c, nil
}

func scanOffer(row rowScanner) (domain.Offer, error) {
	var o domain.Offer
	var categoryID, productID sql.NullString
	var startDate, endDate, deletedAt sql.NullTime
	err := row.Scan(&o.ID, &o.Name, &o.Description, &o.Scope, &o.Kind, &o.Value,
		&categoryID, &productID, &startDate, &endDate, &o.Priority, &o.Active,
		&o.CreatedAt, &o.UpdatedAt, &deletedAt)
	if err != nil {
		return o, err
	}
	if categoryID.Valid {
		o.CategoryID = categoryID.String
	}
	if productID.Valid {
		o.ProductID = productID.String
	}
	if startDate.Valid {
		at := startDate.Time.UTC()
		o.StartDate = &at
	}
	if endDate.Valid {
		at := endDate.Time.UTC()
		o.EndDate = &at
	}
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	if deletedAt.Valid {
		at := deletedAt.Time.UTC()
		o.DeletedAt = &at
	}
	return o, nil
}

func collectOffers(rows *sql.Rows) ([]domain.Offer, error) {
	offers := make([]domain.Offer, 0, 16)
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, err
		}
		offers = append(offers, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return offers, nil
}

func scanDocument(row rowScanner) (domain.TradeDocument, error) {
	var d domain.TradeDocument
	var attachment sql.NullString
	err := row.Scan(&d.ID, &d.Code, &d.ClientID, &d.ClientName, &d.Status, &d.PaymentMethod,
		&d.TaxPercent, &d.Subtotal, &d.Tax, &d.Total, &attachment, &d.Notes, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return d, err
	}
	if attachment.Valid {
		d.AttachmentURL = attachment.String
	}
	d.CreatedAt = d.CreatedAt.UTC()
	d.UpdatedAt = d.UpdatedAt.UTC()
	return d, nil
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// asStoreErr maps transport-level failures to ErrUnavailable so callers can
// distinguish "store is down" from data errors. Anything else passes through.
func asStoreErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, driver.ErrBadConn) || pgconn.Timeout(err) {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return err
}
