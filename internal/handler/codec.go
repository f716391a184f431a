package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-checkout/internal/domain/order"
	"github.com/xenking/storefront-checkout/internal/domain/product"
)

// errInvalidBody is returned for bodies that are not a well-formed order
// request.
var errInvalidBody = errors.New("invalid request body")

// decodePlaceOrder parses the order placement body. Unknown fields, including
// any client-side price, are ignored.
func decodePlaceOrder(data []byte) (order.PlaceOrderRequest, error) {
	var req order.PlaceOrderRequest
	d := jx.DecodeBytes(data)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "customerId":
			req.CustomerID, err = d.Str()
		case "items":
			err = d.Arr(func(d *jx.Decoder) error {
				line, err := decodeCartLine(d)
				if err != nil {
					return err
				}
				req.Lines = append(req.Lines, line)
				return nil
			})
		case "customer":
			req.Billing, err = decodeBilling(d)
		case "paymentMethod":
			var m string
			m, err = d.Str()
			req.PaymentMethod = order.PaymentMethod(m)
		case "idempotencyKey":
			req.IdempotencyKey, err = d.Str()
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	if err != nil {
		return order.PlaceOrderRequest{}, errors.Wrap(errInvalidBody, err.Error())
	}
	return req, nil
}

func decodeCartLine(d *jx.Decoder) (order.CartLine, error) {
	var line order.CartLine
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "productId":
			line.ProductID, err = d.Str()
		case "quantity":
			line.Quantity, err = d.Int64()
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	return line, err
}

func decodeBilling(d *jx.Decoder) (order.Billing, error) {
	var b order.Billing
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "fullName":
			b.FullName, err = d.Str()
		case "phone":
			b.Phone, err = d.Str()
		case "email":
			b.Email, err = d.Str()
		case "fullAddress":
			b.Address, err = d.Str()
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	return b, err
}

func money(e *jx.Encoder, field string, v decimal.Decimal) {
	e.FieldStart(field)
	e.Num(jx.Num(v.StringFixed(2)))
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID)
	e.FieldStart("customerId")
	e.Str(o.CustomerID)
	e.FieldStart("shopId")
	e.Str(o.SellerID)
	e.FieldStart("status")
	e.Str(string(o.Status))
	e.FieldStart("paymentMethod")
	e.Str(string(o.PaymentMethod))

	e.FieldStart("items")
	e.ArrStart()
	for _, it := range o.Items {
		e.ObjStart()
		e.FieldStart("productId")
		e.Str(it.ProductID)
		e.FieldStart("name")
		e.Str(it.Name)
		money(e, "price", it.UnitPrice)
		e.FieldStart("quantity")
		e.Int64(it.Quantity)
		e.FieldStart("shopId")
		e.Str(it.SellerID)
		money(e, "subtotal", it.Subtotal())
		e.ObjEnd()
	}
	e.ArrEnd()

	money(e, "itemsTotal", o.ItemsTotal)
	money(e, "deliveryCharge", o.DeliveryCharge)
	money(e, "totalAmount", o.TotalAmount)

	e.FieldStart("customer")
	e.ObjStart()
	e.FieldStart("fullName")
	e.Str(o.Billing.FullName)
	e.FieldStart("phone")
	e.Str(o.Billing.Phone)
	e.FieldStart("email")
	e.Str(o.Billing.Email)
	e.FieldStart("fullAddress")
	e.Str(o.Billing.Address)
	e.ObjEnd()

	e.FieldStart("createdAt")
	e.Str(o.CreatedAt.UTC().Format(time.RFC3339Nano))
	e.ObjEnd()
}

func encodeProduct(e *jx.Encoder, p *product.Product) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(p.ID)
	e.FieldStart("name")
	e.Str(p.Name)
	money(e, "price", p.Price)
	e.FieldStart("stock")
	e.Int64(p.Stock)
	e.FieldStart("status")
	e.Str(string(p.Status))
	e.FieldStart("shopId")
	e.Str(p.SellerID)
	e.ObjEnd()
}

func writeJSON(w http.ResponseWriter, code int, e *jx.Encoder) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(e.Bytes())
}

// writeError writes the API's {"code","message"} error body.
func writeError(w http.ResponseWriter, code int, msg string) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("code")
	e.Int(code)
	e.FieldStart("message")
	e.Str(msg)
	e.ObjEnd()
	writeJSON(w, code, &e)
}
