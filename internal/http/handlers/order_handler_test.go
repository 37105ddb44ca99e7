package handlers

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samrith-ratana/e-commerce/internal/domain"
	"github.com/samrith-ratana/e-commerce/internal/http/middleware"
)

type orderFixture struct {
	env              *testEnv
	sellerID, seller string
	buyerID, buyer   string
}

func newOrderFixture(t *testing.T) *orderFixture {
	env := newTestEnv(t)
	f := &orderFixture{env: env}
	f.sellerID, f.seller = env.signup(t, "seller@shop.io")
	f.buyerID, f.buyer = env.signup(t, "buyer@shop.io")
	p := listing("P000001", f.sellerID, "Kettle", "Home", "12.50", domain.PostPublished, 0)
	p.Images = []string{"kettle.png"}
	env.seedPost(t, p)
	return f
}

func (f *orderFixture) stock(t *testing.T) domain.Post {
	t.Helper()
	doc, err := f.env.store.Posts.Read(context.Background())
	require.NoError(t, err)
	require.Len(t, doc.Posts, 1)
	return doc.Posts[0]
}

func TestCreateOrder(t *testing.T) {
	f := newOrderFixture(t)
	env := f.env

	w := env.do(http.MethodPost, "/api/orders", `{"postId":"P000001"}`, bearer(f.buyer))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	o := decode[domain.Order](t, w)
	assert.Equal(t, "ORD-000001", o.ID)
	assert.Equal(t, 1, o.Quantity, "quantity defaults to 1")
	assert.Equal(t, f.sellerID, o.SellerID)
	assert.Equal(t, "kettle.png", o.Image)
	assert.Equal(t, domain.OrderCreated, o.Status)
	assert.Empty(t, w.Header().Get(HeaderIdempotencyReplayed))

	w = env.do(http.MethodPost, "/api/orders", `{"postId":"P000001","quantity":2}`, bearer(f.buyer))
	require.Equal(t, http.StatusCreated, w.Code)
	o = decode[domain.Order](t, w)
	assert.True(t, decimal.NewFromInt(25).Equal(o.TotalAmount))

	p := f.stock(t)
	assert.Equal(t, 0, p.Stock)
	assert.Equal(t, domain.PostSoldOut, p.Status)

	w = env.do(http.MethodPost, "/api/orders", `{"postId":"P000001"}`, bearer(f.buyer))
	requireError(t, w, http.StatusBadRequest, ErrCodeBadRequest, "Product is not available for purchase")
}

func TestCreateOrder_Rejections(t *testing.T) {
	f := newOrderFixture(t)
	env := f.env

	cases := []struct {
		name   string
		token  string
		body   string
		status int
		code   string
		msg    string
	}{
		{"fractional quantity", f.buyer, `{"postId":"P000001","quantity":1.5}`, http.StatusBadRequest, ErrCodeBadRequest, "quantity must be a positive integer"},
		{"zero quantity", f.buyer, `{"postId":"P000001","quantity":0}`, http.StatusBadRequest, ErrCodeBadRequest, "quantity must be a positive integer"},
		{"missing post", f.buyer, `{}`, http.StatusBadRequest, ErrCodeBadRequest, "postId is required"},
		{"unknown post", f.buyer, `{"postId":"P000009"}`, http.StatusNotFound, ErrCodeNotFound, "Product not found"},
		{"too many", f.buyer, `{"postId":"P000001","quantity":4}`, http.StatusBadRequest, ErrCodeBadRequest, "Insufficient stock"},
		{"own listing", f.seller, `{"postId":"P000001"}`, http.StatusForbidden, ErrCodeForbidden, "You cannot buy your own product"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := env.do(http.MethodPost, "/api/orders", tc.body, bearer(tc.token))
			requireError(t, w, tc.status, tc.code, tc.msg)
		})
	}
	assert.Equal(t, 3, f.stock(t).Stock)

	w := env.do(http.MethodPost, "/api/orders", `{"postId":"P000001"}`)
	requireError(t, w, http.StatusUnauthorized, ErrCodeUnauthorized, "Unauthorized")
}

func TestCreateOrder_IdempotentReplay(t *testing.T) {
	f := newOrderFixture(t)
	env := f.env
	key := header(middleware.HeaderIdempotencyKey, "checkout-7f3a")

	w := env.do(http.MethodPost, "/api/orders", `{"postId":"P000001"}`, bearer(f.buyer), key)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	first := decode[domain.Order](t, w)

	w = env.do(http.MethodPost, "/api/orders", `{"postId":"P000001"}`, bearer(f.buyer), key)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "true", w.Header().Get(HeaderIdempotencyReplayed))
	assert.Equal(t, first.ID, decode[domain.Order](t, w).ID)
	assert.Equal(t, 2, f.stock(t).Stock, "stock decremented once")

	rec, err := env.idem.Get(context.Background(), f.buyerID, "/api/orders", "checkout-7f3a", time.Now())
	require.NoError(t, err)
	assert.Equal(t, first.ID, rec.ResourceID)

	// keys are scoped per caller
	otherID, other := env.signup(t, "other@shop.io")
	w = env.do(http.MethodPost, "/api/orders", `{"postId":"P000001"}`, bearer(other), key)
	require.Equal(t, http.StatusCreated, w.Code)
	second := decode[domain.Order](t, w)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, otherID, second.BuyerID)
	assert.Empty(t, w.Header().Get(HeaderIdempotencyReplayed))

	w = env.do(http.MethodPost, "/api/orders", `{"postId":"P000001"}`, bearer(f.buyer), header(middleware.HeaderIdempotencyKey, "has spaces"))
	requireError(t, w, http.StatusBadRequest, "bad_idempotency_key", "Invalid Idempotency-Key")
}

func TestListAndGetOrders(t *testing.T) {
	f := newOrderFixture(t)
	env := f.env

	w := env.do(http.MethodPost, "/api/orders", `{"postId":"P000001"}`, bearer(f.buyer))
	require.Equal(t, http.StatusCreated, w.Code)
	id := decode[domain.Order](t, w).ID

	w = env.do(http.MethodGet, "/api/orders", nil, bearer(f.buyer))
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, decode[[]domain.Order](t, w), 1)

	w = env.do(http.MethodGet, "/api/orders?scope=seller", nil, bearer(f.buyer))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[[]domain.Order](t, w))

	w = env.do(http.MethodGet, "/api/orders?scope=seller", nil, bearer(f.seller))
	require.Len(t, decode[[]domain.Order](t, w), 1)

	w = env.do(http.MethodGet, "/api/orders?scope=sales", nil, bearer(f.seller))
	require.Equal(t, http.StatusOK, w.Code)
	sales := decode[[]domain.SalesOrder](t, w)
	require.Len(t, sales, 1)
	assert.Equal(t, "buyer@shop.io", sales[0].BuyerEmail)

	w = env.do(http.MethodGet, "/api/orders?scope=everyone", nil, bearer(f.buyer))
	requireError(t, w, http.StatusBadRequest, ErrCodeBadRequest, "")

	w = env.do(http.MethodGet, "/api/orders/"+id, nil, bearer(f.seller))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, id, decode[domain.Order](t, w).ID)

	_, stranger := env.signup(t, "stranger@shop.io")
	w = env.do(http.MethodGet, "/api/orders/"+id, nil, bearer(stranger))
	requireError(t, w, http.StatusForbidden, ErrCodeForbidden, "Forbidden")

	w = env.do(http.MethodGet, "/api/orders/ORD-999999", nil, bearer(f.buyer))
	requireError(t, w, http.StatusNotFound, ErrCodeNotFound, "Order not found")
}

func TestCancelOrder(t *testing.T) {
	f := newOrderFixture(t)
	env := f.env

	create := func() string {
		w := env.do(http.MethodPost, "/api/orders", `{"postId":"P000001","quantity":3}`, bearer(f.buyer))
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		return decode[domain.Order](t, w).ID
	}

	id := create()
	assert.Equal(t, domain.PostSoldOut, f.stock(t).Status)

	w := env.do(http.MethodPatch, "/api/orders/"+id, `{"action":"refund"}`, bearer(f.buyer))
	requireError(t, w, http.StatusBadRequest, ErrCodeBadRequest, "Unsupported action")

	w = env.do(http.MethodPatch, "/api/orders/"+id, nil, bearer(f.seller))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	o := decode[domain.Order](t, w)
	assert.Equal(t, domain.OrderCancelled, o.Status)
	require.NotNil(t, o.CancelledAt)

	p := f.stock(t)
	assert.Equal(t, 3, p.Stock)
	assert.Equal(t, domain.PostPublished, p.Status, "restock republishes")

	w = env.do(http.MethodDelete, "/api/orders/"+id, nil, bearer(f.buyer))
	requireError(t, w, http.StatusBadRequest, ErrCodeConflict, "Order already cancelled")

	id = create()
	w = env.do(http.MethodPatch, "/api/orders/"+id, `{"action":" Cancel "}`, bearer(f.buyer))
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodDelete, "/api/orders/ORD-000404", nil, bearer(f.buyer))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateOrder_UnreadableBodyCancels(t *testing.T) {
	f := newOrderFixture(t)
	env := f.env

	bodies := map[string]struct {
		body string
		opts []reqOpt
	}{
		"malformed json": {body: `{"action":`},
		"chunked empty": {opts: []reqOpt{func(r *http.Request) { r.ContentLength = -1 }}},
		"json null":     {body: `null`},
	}
	for name, tc := range bodies {
		t.Run(name, func(t *testing.T) {
			w := env.do(http.MethodPost, "/api/orders", `{"postId":"P000001"}`, bearer(f.buyer))
			require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
			id := decode[domain.Order](t, w).ID

			opts := append([]reqOpt{bearer(f.buyer)}, tc.opts...)
			w = env.do(http.MethodPatch, "/api/orders/"+id, tc.body, opts...)
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			assert.Equal(t, domain.OrderCancelled, decode[domain.Order](t, w).Status)
		})
	}
}
