package sample

import (
	"slices"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

// Product is one catalog entry.
type Product struct {
	SKU      string
	Name     string
	Price    decimal.Decimal
	Quantity int
}

// DisplayPrice formats the price with two decimals.
func (p Product) DisplayPrice() string {
	return p.Price.StringFixed(2)
}

// Catalog is the in-memory product list of the shop module.
type Catalog struct {
	mu       sync.RWMutex
	products map[string]Product
}

// NewCatalog creates a catalog holding products.
func NewCatalog(products ...Product) *Catalog {
	c := &Catalog{products: make(map[string]Product, len(products))}
	for _, p := range products {
		c.products[p.SKU] = p
	}
	return c
}

// Put adds or replaces the product with the same SKU.
func (c *Catalog) Put(p Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[p.SKU] = p
}

// Has reports whether sku is taken.
func (c *Catalog) Has(sku string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.products[sku]
	return ok
}

// List returns the products sorted by SKU.
func (c *Catalog) List() []Product {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Product, 0, len(c.products))
	for _, p := range c.products {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b Product) int { return strings.Compare(a.SKU, b.SKU) })
	return out
}

// Accounts maps login emails to passwords and credentials.
type Accounts map[string]Account

// Account is a user that can log in.
type Account struct {
	Password    string
	Credentials []string
}

// DemoAccounts returns the accounts of the sample application.
func DemoAccounts() Accounts {
	return Accounts{
		"jane@example.com":  {Password: "correct-horse", Credentials: []string{"member"}},
		"admin@example.com": {Password: "battery-staple", Credentials: []string{"member", "admin"}},
	}
}

// DemoCatalog returns the initial products of the sample application.
func DemoCatalog() *Catalog {
	return NewCatalog(
		Product{SKU: "TEA-001", Name: "Green tea", Price: decimal.RequireFromString("4.50"), Quantity: 12},
		Product{SKU: "TEA-002", Name: "Black tea", Price: decimal.RequireFromString("3.90"), Quantity: 30},
	)
}
