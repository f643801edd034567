package sample

import (
	"context"
	"fmt"
	"net/http"

	"github.com/compozy/relay/engine/controller"
	"github.com/compozy/relay/engine/core"
	"github.com/compozy/relay/engine/request"
	"github.com/compozy/relay/engine/validation"
	"github.com/shopspring/decimal"
)

func shopModule(catalog *Catalog) *controller.Module {
	return controller.NewModule("Shop").
		Controller("Products", func() controller.Controller { return &productList{catalog: catalog} }).
		Controller("Products.Add", func() controller.Controller { return &productAdd{catalog: catalog} }).
		View("ProductsSuccess", view("Shop/Products/Index")).
		View("Products/AddInput", view("Shop/Products/Add")).
		View("Products/AddError", viewWithStatus("Shop/Products/Add", http.StatusUnprocessableEntity))
}

type productList struct {
	controller.Base
	catalog *Catalog
}

func (p *productList) Methods() *controller.Methods {
	return controller.NewMethods().Execute(controller.Generic,
		func(_ context.Context, c controller.Container, _ *request.DataHolder) (controller.ViewName, error) {
			c.SetAttribute("products", p.catalog.List())
			return controller.Named(controller.ViewSuccess), nil
		})
}

// productAdd shows the product form on read and stores the product on
// write. The SKU format is checked by a validator registered in code, its
// uniqueness by the manual validation hook.
type productAdd struct {
	controller.Base
	catalog *Catalog
}

func (p *productAdd) Methods() *controller.Methods {
	return controller.NewMethods().
		RegisterValidators("write", registerSKUValidator).
		Validate("write", p.validateUnique).
		Execute("write", p.add).
		HandleError("write", showErrors)
}

func registerSKUValidator(_ context.Context, _ controller.Container, m *validation.Manager) error {
	_, err := m.CreateValidator(validation.Spec{
		Class:     "regex",
		Name:      "sku",
		Arguments: []validation.Argument{validation.NewArgument("sku")},
		Errors:    map[string]string{"": "SKUs look like ABC-123"},
		Params:    core.Params{"pattern": `^[A-Z]{3}-[0-9]{3}$`},
	}, nil)
	return err
}

func (p *productAdd) validateUnique(_ context.Context, c controller.Container, rd *request.DataHolder) (bool, error) {
	sku, _ := rd.Parameter("sku")
	if p.catalog.Has(asString(sku)) {
		c.SetAttribute("duplicate", true)
		return false, nil
	}
	return true, nil
}

func (p *productAdd) add(_ context.Context, c controller.Container, rd *request.DataHolder) (controller.ViewName, error) {
	sku, _ := rd.Parameter("sku")
	name, _ := rd.Parameter("name")
	price, _ := rd.Parameter("price_value")
	quantity, _ := rd.Parameter("quantity_int")
	amount, err := toDecimal(price)
	if err != nil {
		return controller.NoView, err
	}
	qty, _ := quantity.(int)
	p.catalog.Put(Product{SKU: asString(sku), Name: asString(name), Price: amount, Quantity: qty})
	return controller.NoView, c.Response().SetRedirect("/Shop/Products", http.StatusSeeOther)
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch n := v.(type) {
	case int:
		return decimal.NewFromInt(int64(n)), nil
	case int64:
		return decimal.NewFromInt(n), nil
	case float64:
		return decimal.NewFromFloat(n), nil
	case string:
		return decimal.NewFromString(n)
	default:
		return decimal.Decimal{}, fmt.Errorf("unexpected price %v", v)
	}
}
