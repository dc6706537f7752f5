package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/checkout"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/payment"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/webhook"
)

var testPepper = []byte("pepper")

// --- Mock implementations ---

type mockAPIKeys struct {
	byHash map[string]*auth.APIKeyInfo
}

func (m *mockAPIKeys) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	info, ok := m.byHash[hash]
	if !ok {
		return nil, errors.New("not found")
	}
	return info, nil
}

type mockCarts struct {
	lines   []cart.Line
	added   cart.Item
	set     cart.Item
	removed string
	cleared bool
	err     error
}

func (m *mockCarts) Add(_ context.Context, _ auth.Principal, productID string, quantity int) (cart.Item, error) {
	if m.err != nil {
		return cart.Item{}, m.err
	}
	m.added = cart.Item{ProductID: productID, Quantity: quantity}
	return m.added, nil
}

func (m *mockCarts) SetQuantity(_ context.Context, _ auth.Principal, productID string, quantity int) (cart.Item, error) {
	m.set = cart.Item{ProductID: productID, Quantity: quantity}
	if m.err != nil {
		return cart.Item{}, m.err
	}
	return m.set, nil
}

func (m *mockCarts) Clear(_ context.Context, _ auth.Principal) error {
	if m.err != nil {
		return m.err
	}
	m.cleared = true
	return nil
}

func (m *mockCarts) Remove(_ context.Context, _ auth.Principal, productID string) error {
	m.removed = productID
	return m.err
}

func (m *mockCarts) View(_ context.Context, _ auth.Principal) ([]cart.Line, error) {
	return m.lines, m.err
}

type mockCheckout struct {
	principal auth.Principal
	req       checkout.Request
	res       *checkout.Result
	err       error
}

func (m *mockCheckout) Checkout(_ context.Context, p auth.Principal, req checkout.Request) (*checkout.Result, error) {
	m.principal = p
	m.req = req
	return m.res, m.err
}

type mockOrders struct {
	order    *order.Order
	payments []payment.Payment
	status   order.Status
	err      error
}

func (m *mockOrders) Detail(_ context.Context, _ auth.Principal, _ string) (*order.Order, []payment.Payment, error) {
	if m.err != nil {
		return nil, nil, m.err
	}
	return m.order, m.payments, nil
}

func (m *mockOrders) List(_ context.Context, _ auth.Principal) ([]order.Order, error) {
	if m.err != nil {
		return nil, m.err
	}
	return []order.Order{*m.order}, nil
}

func (m *mockOrders) UpdateStatus(_ context.Context, _ auth.Principal, _ string, status order.Status) (*order.Order, error) {
	m.status = status
	if m.err != nil {
		return nil, m.err
	}
	o := *m.order
	o.Status = status
	return &o, nil
}

type mockCoupons struct {
	coupon   *coupon.Coupon
	result   coupon.Result
	created  coupon.CreateRequest
	updateID string
	updated  coupon.UpdateRequest
	deleted  string
	err      error
}

func (m *mockCoupons) List(_ context.Context, _ auth.Principal) ([]coupon.Coupon, error) {
	if m.err != nil {
		return nil, m.err
	}
	return []coupon.Coupon{*m.coupon}, nil
}

func (m *mockCoupons) Get(_ context.Context, _ auth.Principal, _ string) (*coupon.Coupon, error) {
	return m.coupon, m.err
}

func (m *mockCoupons) Update(_ context.Context, _ auth.Principal, id string, req coupon.UpdateRequest) (*coupon.Coupon, error) {
	m.updateID = id
	m.updated = req
	if m.err != nil {
		return nil, m.err
	}
	c := *m.coupon
	if req.MaxUsesSet {
		c.MaxUses = req.MaxUses
	}
	return &c, nil
}

func (m *mockCoupons) Delete(_ context.Context, _ auth.Principal, id string) error {
	m.deleted = id
	return m.err
}

func (m *mockCoupons) Check(_ context.Context, _ auth.Principal, _ string) (*coupon.Coupon, coupon.Result, error) {
	return m.coupon, m.result, m.err
}

func (m *mockCoupons) Create(_ context.Context, _ auth.Principal, req coupon.CreateRequest) (*coupon.Coupon, error) {
	m.created = req
	if m.err != nil {
		return nil, m.err
	}
	return &coupon.Coupon{
		ID:              "c1",
		Code:            coupon.NormalizeCode(req.Code),
		DiscountPercent: req.DiscountPercent,
		ValidUntil:      req.ValidUntil,
		MaxUses:         req.MaxUses,
	}, nil
}

type mockWebhooks struct {
	body      []byte
	signature string
	outcome   webhook.Outcome
	err       error
}

func (m *mockWebhooks) Handle(_ context.Context, body []byte, signature string) (webhook.Outcome, error) {
	m.body = body
	m.signature = signature
	return m.outcome, m.err
}

// --- Helpers ---

type testEnv struct {
	carts    *mockCarts
	checkout *mockCheckout
	orders   *mockOrders
	coupons  *mockCoupons
	webhooks *mockWebhooks
	mux      *http.ServeMux
}

func newTestEnv() *testEnv {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	env := &testEnv{
		carts:    &mockCarts{},
		checkout: &mockCheckout{},
		orders: &mockOrders{order: &order.Order{
			ID:     "o1",
			Code:   "#AAA001",
			UserID: "u1",
			Items: []order.Item{
				{ProductID: "p1", Name: "Mug", UnitPrice: decimal.RequireFromString("19.99"), Quantity: 1},
			},
			Subtotal:       decimal.RequireFromString("19.99"),
			DiscountAmount: decimal.RequireFromString("2"),
			ShippingCost:   decimal.Zero,
			Total:          decimal.RequireFromString("17.99"),
			Status:         order.StatusPending,
			CreatedAt:      now,
			UpdatedAt:      now,
		}},
		coupons:  &mockCoupons{},
		webhooks: &mockWebhooks{outcome: webhook.OutcomeProcessed},
		mux:      http.NewServeMux(),
	}
	keys := &mockAPIKeys{byHash: map[string]*auth.APIKeyInfo{}}
	for key, p := range map[string]auth.Principal{
		"customer-key": {UserID: "u1", Role: auth.RoleCustomer},
		"admin-key":    {UserID: "admin", Role: auth.RoleAdmin},
	} {
		hash := HashKey(testPepper, key)
		keys.byHash[hash] = &auth.APIKeyInfo{ID: key, KeyHash: hash, Principal: p}
	}

	h := NewHandler(Deps{
		Carts:    env.carts,
		Checkout: env.checkout,
		Orders:   env.orders,
		Coupons:  env.coupons,
		Webhooks: env.webhooks,
		APIKeys:  keys,
	}, Config{APIKeyPepper: testPepper})
	h.Register(env.mux)
	return env
}

func (env *testEnv) do(method, path, key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if key != "" {
		req.Header.Set(APIKeyHeader, key)
	}
	w := httptest.NewRecorder()
	env.mux.ServeHTTP(w, req)
	return w
}

// --- Tests ---

func TestAuthentication(t *testing.T) {
	for _, tc := range []struct {
		name string
		key  string
		code int
	}{
		{"Missing", "", http.StatusUnauthorized},
		{"Unknown", "nope", http.StatusUnauthorized},
		{"Valid", "customer-key", http.StatusOK},
	} {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv()
			w := env.do(http.MethodGet, "/api/cart", tc.key, "")
			assert.Equal(t, tc.code, w.Code)
		})
	}
}

func TestAuthenticate_HashMismatch(t *testing.T) {
	keys := &mockAPIKeys{byHash: map[string]*auth.APIKeyInfo{
		HashKey(testPepper, "k"): {KeyHash: HashKey([]byte("other"), "k")},
	}}
	a := NewAuthenticator(keys, testPepper)
	_, err := a.Authenticate(context.Background(), "k")
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, statusFor(err))
}

func TestErrorBody(t *testing.T) {
	env := newTestEnv()
	w := env.do(http.MethodGet, "/api/cart", "", "")
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"code":401,"message":"unauthorized"}`, w.Body.String())
}

func TestStatusFor(t *testing.T) {
	for _, tc := range []struct {
		err  error
		code int
	}{
		{order.ErrNotFound, http.StatusNotFound},
		{errors.Wrap(coupon.ErrUsageLimitReached, "redeem"), http.StatusConflict},
		{auth.ErrForbidden, http.StatusForbidden},
		{cart.ErrInvalidQuantity, http.StatusBadRequest},
		{&checkout.ProductNotFoundError{ProductID: "p"}, http.StatusNotFound},
		{errors.Wrap(checkout.ErrPaymentUnavailable, "gateway"), http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	} {
		assert.Equal(t, tc.code, statusFor(tc.err), "%v", tc.err)
	}
}

func TestCart(t *testing.T) {
	env := newTestEnv()
	env.carts.lines = []cart.Line{{
		Item:    cart.Item{ProductID: "p1", Quantity: 2},
		Product: product.Product{ID: "p1", SKU: "SKU-001", Name: "Mug", Price: decimal.RequireFromString("19.99"), Category: "Kitchen"},
	}}

	w := env.do(http.MethodGet, "/api/cart", "customer-key", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"items":[{"productId":"p1","quantity":2,"product":{
		"id":"p1","sku":"SKU-001","name":"Mug","price":19.99,"category":"Kitchen"}}]}`, w.Body.String())

	w = env.do(http.MethodPost, "/api/cart/items", "customer-key", `{"productId":"p1","quantity":3}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, cart.Item{ProductID: "p1", Quantity: 3}, env.carts.added)

	w = env.do(http.MethodDelete, "/api/cart/items/p1", "customer-key", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "p1", env.carts.removed)
}

func TestEditCart(t *testing.T) {
	for _, tc := range []struct {
		name   string
		method string
		path   string
		body   string
		err    error
		code   int
		check  func(t *testing.T, env *testEnv, w *httptest.ResponseRecorder)
	}{
		{
			name: "SetQuantity", method: http.MethodPatch, path: "/api/cart/items/p1", body: `{"quantity":4}`,
			code: http.StatusOK,
			check: func(t *testing.T, env *testEnv, w *httptest.ResponseRecorder) {
				assert.Equal(t, cart.Item{ProductID: "p1", Quantity: 4}, env.carts.set)
				assert.JSONEq(t, `{"productId":"p1","quantity":4}`, w.Body.String())
			},
		},
		{
			name: "SetQuantityZero", method: http.MethodPatch, path: "/api/cart/items/p1", body: `{"quantity":0}`,
			err: cart.ErrInvalidQuantity, code: http.StatusBadRequest,
		},
		{
			name: "SetQuantityNotInCart", method: http.MethodPatch, path: "/api/cart/items/p9", body: `{"quantity":1}`,
			err: cart.ErrItemNotFound, code: http.StatusNotFound,
		},
		{
			name: "SetQuantityMalformed", method: http.MethodPatch, path: "/api/cart/items/p1", body: `{"quantity":"many"}`,
			code: http.StatusBadRequest,
		},
		{
			name: "Clear", method: http.MethodDelete, path: "/api/cart",
			code: http.StatusNoContent,
			check: func(t *testing.T, env *testEnv, _ *httptest.ResponseRecorder) {
				assert.True(t, env.carts.cleared)
			},
		},
		{
			name: "ClearForbidden", method: http.MethodDelete, path: "/api/cart",
			err: auth.ErrForbidden, code: http.StatusForbidden,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv()
			env.carts.err = tc.err
			w := env.do(tc.method, tc.path, "customer-key", tc.body)
			assert.Equal(t, tc.code, w.Code)
			if tc.check != nil {
				tc.check(t, env, w)
			}
		})
	}
}

func TestAddCartItem_BadRequest(t *testing.T) {
	for _, body := range []string{``, `{`, `{"quantity":1}`, `{"productId":1}`} {
		env := newTestEnv()
		w := env.do(http.MethodPost, "/api/cart/items", "customer-key", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
}

func TestCheckout(t *testing.T) {
	env := newTestEnv()
	env.checkout.res = &checkout.Result{
		Order:        env.orders.order,
		PaymentURL:   "https://pay.example/init",
		PreferenceID: "pref-1",
	}

	w := env.do(http.MethodPost, "/api/orders/checkout", "customer-key", `{"couponCode":"demo10"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "demo10", env.checkout.req.CouponCode)
	assert.Equal(t, auth.Principal{UserID: "u1", Role: auth.RoleCustomer}, env.checkout.principal)

	var (
		url   string
		total string
	)
	require.NoError(t, jx.DecodeBytes(w.Body.Bytes()).ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "paymentUrl":
			s, err := d.Str()
			url = s
			return err
		case "order":
			return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
				if string(key) != "total" {
					return d.Skip()
				}
				n, err := d.Num()
				total = n.String()
				return err
			})
		default:
			return d.Skip()
		}
	}))
	assert.Equal(t, "https://pay.example/init", url)
	assert.Equal(t, "17.99", total)
}

func TestCheckout_EmptyBody(t *testing.T) {
	env := newTestEnv()
	env.checkout.res = &checkout.Result{Order: env.orders.order}
	w := env.do(http.MethodPost, "/api/orders/checkout", "customer-key", "")
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Empty(t, env.checkout.req.CouponCode)
}

func TestCheckout_Errors(t *testing.T) {
	for _, tc := range []struct {
		name string
		err  error
		code int
	}{
		{"EmptyCart", checkout.ErrEmptyCart, http.StatusBadRequest},
		{"CouponExhausted", coupon.ErrUsageLimitReached, http.StatusConflict},
		{"GatewayDown", checkout.ErrPaymentUnavailable, http.StatusBadGateway},
	} {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv()
			env.checkout.err = tc.err
			w := env.do(http.MethodPost, "/api/orders/checkout", "customer-key", `{}`)
			assert.Equal(t, tc.code, w.Code)
		})
	}
}

func TestOrders(t *testing.T) {
	env := newTestEnv()

	w := env.do(http.MethodGet, "/api/orders/o1", "customer-key", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{
		"id":"o1","code":"#AAA001","userId":"u1",
		"items":[{"productId":"p1","name":"Mug","unitPrice":19.99,"quantity":1,"subtotal":19.99}],
		"subtotal":19.99,"discountAmount":2.00,"shippingCost":0.00,"total":17.99,
		"status":"PENDING",
		"createdAt":"2026-01-02T03:04:05Z","updatedAt":"2026-01-02T03:04:05Z",
		"payments":[]
	}`, w.Body.String())

	w = env.do(http.MethodGet, "/api/orders", "customer-key", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Body.String(), "[{"))

	env.orders.err = order.ErrNotFound
	w = env.do(http.MethodGet, "/api/orders/zzz", "customer-key", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetOrder_Payments(t *testing.T) {
	env := newTestEnv()
	at := time.Date(2026, 1, 2, 3, 5, 0, 0, time.UTC)
	env.orders.payments = []payment.Payment{
		{
			ExternalID:   "pref-1",
			PreferenceID: "pref-1",
			OrderID:      "o1",
			Amount:       decimal.RequireFromString("17.99"),
			Currency:     "BRL",
			Status:       payment.StatusPending,
			Method:       payment.MethodAccountMoney,
			Raw:          []byte(`{"id":"pref-1"}`),
			CreatedAt:    at,
			UpdatedAt:    at,
		},
		{
			ExternalID:    "123",
			PreferenceID:  "pref-1",
			OrderID:       "o1",
			Amount:        decimal.RequireFromString("17.99"),
			Currency:      "BRL",
			Status:        payment.StatusApproved,
			Method:        "credit_card",
			TransactionID: "tx-9",
			CreatedAt:     at,
			UpdatedAt:     at,
		},
	}

	w := env.do(http.MethodGet, "/api/orders/o1", "customer-key", "")
	require.Equal(t, http.StatusOK, w.Code)

	var payments []string
	require.NoError(t, jx.DecodeBytes(w.Body.Bytes()).ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) != "payments" {
			return d.Skip()
		}
		return d.Arr(func(d *jx.Decoder) error {
			raw, err := d.Raw()
			payments = append(payments, raw.String())
			return err
		})
	}))
	require.Len(t, payments, 2)
	assert.JSONEq(t, `{"externalId":"pref-1","preferenceId":"pref-1","amount":17.99,"currency":"BRL",
		"status":"pending","method":"account_money",
		"createdAt":"2026-01-02T03:05:00Z","updatedAt":"2026-01-02T03:05:00Z"}`, payments[0])
	assert.JSONEq(t, `{"externalId":"123","preferenceId":"pref-1","amount":17.99,"currency":"BRL",
		"status":"approved","method":"credit_card","transactionId":"tx-9",
		"createdAt":"2026-01-02T03:05:00Z","updatedAt":"2026-01-02T03:05:00Z"}`, payments[1])
}

func TestUpdateOrderStatus(t *testing.T) {
	env := newTestEnv()
	w := env.do(http.MethodPatch, "/api/orders/o1/status", "admin-key", `{"status":"SHIPPED"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, order.StatusShipped, env.orders.status)
	assert.Contains(t, w.Body.String(), `"status":"SHIPPED"`)

	w = env.do(http.MethodPatch, "/api/orders/o1/status", "admin-key", `{"status":"LOST"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestValidateCoupon(t *testing.T) {
	env := newTestEnv()
	maxUses := 5
	env.coupons.coupon = &coupon.Coupon{
		Code:            "DEMO10",
		DiscountPercent: decimal.NewFromInt(10),
		ValidUntil:      time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
		MaxUses:         &maxUses,
		UsedCount:       5,
	}
	env.coupons.result = coupon.Result{Reason: coupon.ReasonUsageLimitReached}

	w := env.do(http.MethodGet, "/api/coupons/demo10/validate", "customer-key", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"code":"DEMO10","valid":false,"discountPercent":10.00,
		"validUntil":"2030-01-01T00:00:00Z","maxUses":5,"usedCount":5,
		"reason":"Usage limit reached"}`, w.Body.String())

	env.coupons.err = coupon.ErrNotFound
	w = env.do(http.MethodGet, "/api/coupons/nope/validate", "customer-key", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateCoupon(t *testing.T) {
	env := newTestEnv()
	w := env.do(http.MethodPost, "/api/coupons", "admin-key",
		`{"code":"spring","discountPercent":"12.5","validUntil":"2030-01-01T00:00:00Z","maxUses":null}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, decimal.RequireFromString("12.5").Equal(env.coupons.created.DiscountPercent))
	assert.Nil(t, env.coupons.created.MaxUses)
	assert.Contains(t, w.Body.String(), `"code":"SPRING"`)

	w = env.do(http.MethodPost, "/api/coupons", "admin-key", `{"code":"x","validUntil":"tomorrow"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	env.coupons.err = coupon.ErrDuplicateCode
	w = env.do(http.MethodPost, "/api/coupons", "admin-key", `{"code":"spring","discountPercent":5}`)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCouponAdmin(t *testing.T) {
	stored := func() *coupon.Coupon {
		maxUses := 10
		return &coupon.Coupon{
			ID:              "c1",
			Code:            "SPRING",
			DiscountPercent: decimal.NewFromInt(10),
			ValidUntil:      time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
			MaxUses:         &maxUses,
			UsedCount:       3,
			CreatedAt:       time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		}
	}
	const body = `{"id":"c1","code":"SPRING","discountPercent":10.00,"validUntil":"2030-01-01T00:00:00Z",
		"maxUses":10,"usedCount":3,"createdAt":"2026-01-01T00:00:00Z"}`

	t.Run("List", func(t *testing.T) {
		env := newTestEnv()
		env.coupons.coupon = stored()
		w := env.do(http.MethodGet, "/api/coupons", "admin-key", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, "["+body+"]", w.Body.String())
	})

	t.Run("Get", func(t *testing.T) {
		env := newTestEnv()
		env.coupons.coupon = stored()
		w := env.do(http.MethodGet, "/api/coupons/c1", "admin-key", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, body, w.Body.String())
	})

	for _, tc := range []struct {
		name  string
		body  string
		err   error
		code  int
		check func(t *testing.T, req coupon.UpdateRequest)
	}{
		{
			name: "UpdatePartial", body: `{"discountPercent":"15"}`, code: http.StatusOK,
			check: func(t *testing.T, req coupon.UpdateRequest) {
				require.NotNil(t, req.DiscountPercent)
				assert.True(t, decimal.NewFromInt(15).Equal(*req.DiscountPercent))
				assert.Nil(t, req.Code)
				assert.Nil(t, req.ValidUntil)
				assert.False(t, req.MaxUsesSet)
			},
		},
		{
			name: "UpdateClearsCap", body: `{"maxUses":null}`, code: http.StatusOK,
			check: func(t *testing.T, req coupon.UpdateRequest) {
				assert.True(t, req.MaxUsesSet)
				assert.Nil(t, req.MaxUses)
			},
		},
		{
			name: "UpdateAllFields", body: `{"code":"fall","validUntil":"2031-01-01T00:00:00Z","maxUses":20}`, code: http.StatusOK,
			check: func(t *testing.T, req coupon.UpdateRequest) {
				require.NotNil(t, req.Code)
				assert.Equal(t, "fall", *req.Code)
				require.NotNil(t, req.ValidUntil)
				assert.Equal(t, time.Date(2031, 1, 1, 0, 0, 0, 0, time.UTC), *req.ValidUntil)
				require.NotNil(t, req.MaxUses)
				assert.Equal(t, 20, *req.MaxUses)
			},
		},
		{name: "UpdateCapBelowUsed", body: `{"maxUses":2}`, err: coupon.ErrMaxUsesBelowUsed, code: http.StatusConflict},
		{name: "UpdateInvalid", body: `{"maxUses":4294967297}`, err: coupon.ErrInvalidCoupon, code: http.StatusBadRequest},
		{name: "UpdateBadDate", body: `{"validUntil":"soon"}`, code: http.StatusBadRequest},
		{name: "UpdateMissing", body: `{"discountPercent":5}`, err: coupon.ErrNotFound, code: http.StatusNotFound},
	} {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv()
			env.coupons.coupon = stored()
			env.coupons.err = tc.err
			w := env.do(http.MethodPut, "/api/coupons/c1", "admin-key", tc.body)
			assert.Equal(t, tc.code, w.Code)
			if tc.check != nil {
				assert.Equal(t, "c1", env.coupons.updateID)
				tc.check(t, env.coupons.updated)
			}
		})
	}

	t.Run("Delete", func(t *testing.T) {
		env := newTestEnv()
		w := env.do(http.MethodDelete, "/api/coupons/c1", "admin-key", "")
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "c1", env.coupons.deleted)

		env.coupons.err = coupon.ErrInUse
		w = env.do(http.MethodDelete, "/api/coupons/c1", "admin-key", "")
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("Forbidden", func(t *testing.T) {
		env := newTestEnv()
		env.coupons.err = auth.ErrForbidden
		w := env.do(http.MethodGet, "/api/coupons", "customer-key", "")
		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}

func TestPaymentWebhook(t *testing.T) {
	const body = `{"type":"payment","data":{"id":"123"}}`
	for _, tc := range []struct {
		name    string
		outcome webhook.Outcome
		err     error
		code    int
	}{
		{"Processed", webhook.OutcomeProcessed, nil, http.StatusOK},
		{"Ignored", webhook.OutcomeIgnored, nil, http.StatusOK},
		{"InvalidSignature", webhook.OutcomeFailed, webhook.ErrInvalidSignature, http.StatusBadRequest},
		{"GatewayError", webhook.OutcomeFailed, errors.New("gateway"), http.StatusBadRequest},
	} {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv()
			env.webhooks.outcome = tc.outcome
			env.webhooks.err = tc.err

			req := httptest.NewRequest(http.MethodPost, DefaultWebhookPath, strings.NewReader(body))
			req.Header.Set(SignatureHeader, "ts=1,v1=abc")
			w := httptest.NewRecorder()
			env.mux.ServeHTTP(w, req)

			assert.Equal(t, tc.code, w.Code)
			assert.Empty(t, w.Body.String())
			assert.Equal(t, body, string(env.webhooks.body))
			assert.Equal(t, "ts=1,v1=abc", env.webhooks.signature)
		})
	}
}

func TestPaymentWebhook_NoAPIKeyRequired(t *testing.T) {
	env := newTestEnv()
	w := env.do(http.MethodPost, DefaultWebhookPath, "", `{}`)
	assert.Equal(t, http.StatusOK, w.Code)
}
