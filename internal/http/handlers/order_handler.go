package handlers

import (
	"errors"
	"math"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/samrith-ratana/e-commerce/internal/http/middleware"
	"github.com/samrith-ratana/e-commerce/internal/repo"
	"github.com/samrith-ratana/e-commerce/internal/services"
)

// HeaderIdempotencyReplayed marks a response served from a stored result.
const HeaderIdempotencyReplayed = "Idempotency-Replayed"

// CreateOrderRequest is the purchase payload. Quantity defaults to 1.
type CreateOrderRequest struct {
	PostID   string   `json:"postId" example:"P000001"`
	Quantity *float64 `json:"quantity,omitempty" example:"2"`
}

// OrderActionRequest is the PATCH /orders/{id} payload. Only "cancel" is
// supported; an empty action means cancel.
type OrderActionRequest struct {
	Action string `json:"action" example:"cancel"`
}

// OrdersQuery selects whose orders GET /orders returns.
type OrdersQuery struct {
	Scope string `form:"scope" binding:"omitempty,oneof=buyer seller sales"`
}

// CreateOrder godoc
// @ID          createOrder
// @Summary     Buy a listing
// @Description Decrements stock at the current price. Send Idempotency-Key to make retries safe; a replay
// @Description returns the order created by the first request with Idempotency-Replayed: true.
// @Tags        Orders
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       Idempotency-Key  header    string                        false  "Client-generated retry key"
// @Param       body             body      handlers.CreateOrderRequest  true   "Purchase"
// @Success     201              {object}  domain.Order
// @Header      201              {string}  Idempotency-Replayed  "true when served from a stored result"
// @Failure     400              {object}  handlers.ErrorResponse
// @Failure     401              {object}  handlers.ErrorResponse
// @Failure     403              {object}  handlers.ErrorResponse  "Own listing"
// @Failure     404              {object}  handlers.ErrorResponse
// @Router      /orders [post]
func (h *Handlers) CreateOrder(c *gin.Context) {
	ctx := c.Request.Context()
	uid := middleware.UserID(c)

	if middleware.IsReplay(c) {
		order, err := h.orders.Get(ctx, uid, middleware.ReplayResourceID(c))
		if err != nil {
			failErr(c, err)
			return
		}
		c.Header(HeaderIdempotencyReplayed, "true")
		ok(c, http.StatusCreated, order)
		return
	}

	var req CreateOrderRequest
	if !bindJSON(c, &req) {
		return
	}
	qty := 1
	if req.Quantity != nil {
		q := *req.Quantity
		if q != math.Trunc(q) || q < 1 || q > math.MaxInt32 {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, services.ErrInvalidQuantity.Msg)
			return
		}
		qty = int(q)
	}

	order, err := h.orders.Create(ctx, uid, strings.TrimSpace(req.PostID), qty)
	if err != nil {
		failErr(c, err)
		return
	}

	if key, has := middleware.GetIdempotencyKey(c); has && h.idem != nil {
		owner, scope := middleware.IdempotencyOwner(c), middleware.IdempotencyScope(c)
		if _, err := h.idem.Save(ctx, owner, scope, key, order.ID, http.StatusCreated); err != nil {
			lg := middleware.LoggerFrom(c)
			if errors.Is(err, repo.ErrDuplicate) {
				lg.Debug().Str("order_id", order.ID).Msg("idempotency key recorded concurrently")
			} else {
				lg.Warn().Err(err).Str("order_id", order.ID).Msg("idempotency save failed")
			}
		}
	}
	ok(c, http.StatusCreated, order)
}

// ListOrders godoc
// @ID          listOrders
// @Summary     My purchases or sales
// @Description scope=buyer (default) lists my purchases, seller lists orders on my listings, sales adds the buyer email.
// @Tags        Orders
// @Produce     json
// @Security    BearerAuth
// @Param       scope  query     string  false  "buyer | seller | sales"  Enums(buyer, seller, sales)
// @Success     200    {array}   domain.Order
// @Failure     400    {object}  handlers.ErrorResponse
// @Failure     401    {object}  handlers.ErrorResponse
// @Router      /orders [get]
func (h *Handlers) ListOrders(c *gin.Context) {
	var q OrdersQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, middleware.BindingMessage(err))
		return
	}
	ctx, uid := c.Request.Context(), middleware.UserID(c)

	switch q.Scope {
	case "seller":
		orders, err := h.orders.BySeller(ctx, uid)
		if err != nil {
			failErr(c, err)
			return
		}
		ok(c, http.StatusOK, nonNil(orders))
	case "sales":
		orders, err := h.orders.SalesBySeller(ctx, uid)
		if err != nil {
			failErr(c, err)
			return
		}
		ok(c, http.StatusOK, nonNil(orders))
	default:
		orders, err := h.orders.ByBuyer(ctx, uid)
		if err != nil {
			failErr(c, err)
			return
		}
		ok(c, http.StatusOK, nonNil(orders))
	}
}

// GetOrder godoc
// @ID          getOrder
// @Summary     Get one of my orders
// @Tags        Orders
// @Produce     json
// @Security    BearerAuth
// @Param       id   path      string  true  "Order id"  example(ORD-000001)
// @Success     200  {object}  domain.Order
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /orders/{id} [get]
func (h *Handlers) GetOrder(c *gin.Context) {
	order, err := h.orders.Get(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, order)
}

// UpdateOrder godoc
// @ID          updateOrder
// @Summary     Apply an action to an order
// @Tags        Orders
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path      string                       true   "Order id"
// @Param       body  body      handlers.OrderActionRequest  false  "Action (default cancel)"
// @Success     200   {object}  domain.Order
// @Failure     400   {object}  handlers.ErrorResponse  "Unsupported action or already cancelled"
// @Failure     403   {object}  handlers.ErrorResponse
// @Failure     404   {object}  handlers.ErrorResponse
// @Router      /orders/{id} [patch]
func (h *Handlers) UpdateOrder(c *gin.Context) {
	// An empty, chunked-empty or unparsable body falls back to the default action.
	var req OrderActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		req = OrderActionRequest{}
	}
	action := strings.ToLower(strings.TrimSpace(req.Action))
	if action == "" {
		action = "cancel"
	}
	if action != "cancel" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "Unsupported action")
		return
	}
	h.cancel(c)
}

// CancelOrder godoc
// @ID          cancelOrder
// @Summary     Cancel an order
// @Description Buyer or seller may cancel; stock is restored when the listing still exists.
// @Tags        Orders
// @Produce     json
// @Security    BearerAuth
// @Param       id   path      string  true  "Order id"
// @Success     200  {object}  domain.Order
// @Failure     400  {object}  handlers.ErrorResponse  "Already cancelled"
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /orders/{id} [delete]
func (h *Handlers) CancelOrder(c *gin.Context) {
	h.cancel(c)
}

func (h *Handlers) cancel(c *gin.Context) {
	order, err := h.orders.Cancel(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, order)
}
