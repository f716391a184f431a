//go:build integration

package integration

import (
	"fmt"
	"net/http"
	"regexp"
	"sync"
	"testing"
)

const testAPIKey = "integration-test-key"

var uuidPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

var testCustomer = customerInfo{
	FullName:    "Asha Rao",
	Phone:       "+91 98000 00000",
	Email:       "asha@example.com",
	FullAddress: "12 MG Road, Bengaluru",
}

func newOrder(customerID string, items ...orderItemRequest) orderRequest {
	return orderRequest{
		CustomerID:    customerID,
		Items:         items,
		Customer:      testCustomer,
		PaymentMethod: "upi",
	}
}

func stockOf(t *testing.T, id string) int64 {
	t.Helper()

	resp := doGet(t, "/api/product/"+id)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET product %s: status %d", id, resp.StatusCode)
	}
	return decodeJSON[productResponse](t, resp).Stock
}

func TestPlaceOrder_NoAuth(t *testing.T) {
	resp := doPost(t, "/api/order", newOrder("cust-auth", orderItemRequest{ProductID: "prod-mug", Quantity: 1}))
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestPlaceOrder_InvalidKey(t *testing.T) {
	resp := doPostWithAuth(t, "/api/order", newOrder("cust-auth", orderItemRequest{ProductID: "prod-mug", Quantity: 1}), "wrong-key")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestPlaceOrder_Rejections(t *testing.T) {
	tests := []struct {
		name string
		req  orderRequest
		want int
	}{
		{name: "empty cart", req: newOrder("cust-rej"), want: http.StatusBadRequest},
		{name: "missing customer", req: newOrder("", orderItemRequest{ProductID: "prod-mug", Quantity: 1}), want: http.StatusBadRequest},
		{name: "zero quantity", req: newOrder("cust-rej", orderItemRequest{ProductID: "prod-mug", Quantity: 0}), want: http.StatusUnprocessableEntity},
		{name: "unknown product", req: newOrder("cust-rej", orderItemRequest{ProductID: "nope", Quantity: 1}), want: http.StatusUnprocessableEntity},
		{name: "sold out", req: newOrder("cust-rej", orderItemRequest{ProductID: "prod-sold-out", Quantity: 1}), want: http.StatusConflict},
		{name: "more than stock", req: newOrder("cust-rej", orderItemRequest{ProductID: "prod-teapot", Quantity: 1000}), want: http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doPostWithAuth(t, "/api/order", tt.req, testAPIKey)
			defer resp.Body.Close()

			if resp.StatusCode != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, resp.StatusCode)
			}
			body := decodeJSON[errorResponse](t, resp)
			if body.Message == "" {
				t.Error("error message is empty")
			}
		})
	}
}

func TestPlaceOrder_DecrementsStock(t *testing.T) {
	before := stockOf(t, "prod-tea-assam")

	resp := doPostWithAuth(t, "/api/order", newOrder("cust-tea",
		orderItemRequest{ProductID: "prod-tea-assam", Quantity: 2},
		orderItemRequest{ProductID: "prod-tea-darjeeling", Quantity: 1},
	), testAPIKey)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	o := decodeJSON[orderResponse](t, resp)
	if !uuidPattern.MatchString(o.ID) {
		t.Errorf("order id %q is not a UUID", o.ID)
	}
	if o.Status != "pending" {
		t.Errorf("status: got %q, want pending", o.Status)
	}
	if len(o.Items) != 2 {
		t.Fatalf("items: got %d, want 2", len(o.Items))
	}
	// 2 x 349 + 499, three items ship free.
	if o.ItemsTotal != 1197 || o.DeliveryCharge != 0 || o.TotalAmount != 1197 {
		t.Errorf("totals: got %v + %v = %v, want 1197 + 0 = 1197", o.ItemsTotal, o.DeliveryCharge, o.TotalAmount)
	}
	if o.ShopID != "shop-leaf" {
		t.Errorf("shopId: got %q, want shop-leaf", o.ShopID)
	}

	if after := stockOf(t, "prod-tea-assam"); after != before-2 {
		t.Errorf("stock: got %d, want %d", after, before-2)
	}

	got := doGetWithAuth(t, "/api/order/"+o.ID, testAPIKey)
	defer got.Body.Close()
	if got.StatusCode != http.StatusOK {
		t.Fatalf("GET order: expected 200, got %d", got.StatusCode)
	}
	if fetched := decodeJSON[orderResponse](t, got); fetched.TotalAmount != o.TotalAmount {
		t.Errorf("fetched total: got %v, want %v", fetched.TotalAmount, o.TotalAmount)
	}
}

func TestPlaceOrder_DeliveryCharge(t *testing.T) {
	resp := doPostWithAuth(t, "/api/order", newOrder("cust-mug", orderItemRequest{ProductID: "prod-mug", Quantity: 1}), testAPIKey)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	o := decodeJSON[orderResponse](t, resp)
	if o.DeliveryCharge != 50 || o.TotalAmount != 299 {
		t.Errorf("got delivery %v total %v, want 50 and 299", o.DeliveryCharge, o.TotalAmount)
	}
}

func TestPlaceOrder_LastUnitRace(t *testing.T) {
	const buyers = 10

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		statuses = make(map[int]int)
	)
	for i := range buyers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp := doPostWithAuth(t, "/api/order",
				newOrder(fmt.Sprintf("racer-%d", i), orderItemRequest{ProductID: "prod-last-unit", Quantity: 1}),
				testAPIKey)
			resp.Body.Close()

			mu.Lock()
			statuses[resp.StatusCode]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	if statuses[http.StatusOK] != 1 {
		t.Fatalf("expected exactly one winner, got statuses %v", statuses)
	}
	if stockOf(t, "prod-last-unit") != 0 {
		t.Fatal("last unit stock did not reach zero")
	}
	for code := range statuses {
		if code != http.StatusOK && code != http.StatusConflict && code != http.StatusServiceUnavailable {
			t.Errorf("unexpected status %d", code)
		}
	}
}

func TestPlaceOrder_IdempotencyKey(t *testing.T) {
	before := stockOf(t, "prod-kettle")
	req := newOrder("cust-idem", orderItemRequest{ProductID: "prod-kettle", Quantity: 1})
	headers := map[string]string{"api_key": testAPIKey, "Idempotency-Key": "checkout-42"}

	first := doPostWithHeaders(t, "/api/order", req, headers)
	defer first.Body.Close()
	second := doPostWithHeaders(t, "/api/order", req, headers)
	defer second.Body.Close()

	if first.StatusCode != http.StatusOK || second.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 twice, got %d and %d", first.StatusCode, second.StatusCode)
	}
	a := decodeJSON[orderResponse](t, first)
	b := decodeJSON[orderResponse](t, second)
	if a.ID != b.ID {
		t.Errorf("replay returned a new order: %s != %s", a.ID, b.ID)
	}
	if after := stockOf(t, "prod-kettle"); after != before-1 {
		t.Errorf("stock: got %d, want %d", after, before-1)
	}
}

func TestOrderLists(t *testing.T) {
	for range 2 {
		resp := doPostWithAuth(t, "/api/order", newOrder("cust-lists", orderItemRequest{ProductID: "prod-mug", Quantity: 1}), testAPIKey)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("place order: status %d", resp.StatusCode)
		}
	}

	resp := doGetWithAuth(t, "/api/customer/cust-lists/orders", testAPIKey)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	orders := decodeJSON[[]orderResponse](t, resp)
	if len(orders) != 2 {
		t.Fatalf("customer orders: got %d, want 2", len(orders))
	}
	if orders[0].CreatedAt.Before(orders[1].CreatedAt) {
		t.Error("customer orders are not newest first")
	}

	seller := doGetWithAuth(t, "/api/seller/shop-homeware/orders", testAPIKey)
	defer seller.Body.Close()
	if seller.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", seller.StatusCode)
	}
	if len(decodeJSON[[]orderResponse](t, seller)) < 2 {
		t.Error("seller orders missing")
	}
}

func TestGetOrder_NotFound(t *testing.T) {
	resp := doGetWithAuth(t, "/api/order/00000000-0000-0000-0000-000000000000", testAPIKey)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestOrderReads_RequireAPIKey(t *testing.T) {
	for _, path := range []string{
		"/api/order/00000000-0000-0000-0000-000000000000",
		"/api/customer/cust-lists/orders",
		"/api/seller/shop-homeware/orders",
	} {
		t.Run(path, func(t *testing.T) {
			resp := doGet(t, path)
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", resp.StatusCode)
			}
		})
	}
}
