// Package services - OrderService
//
// This file implements OrderService, which ties every order to the stock of
// the listing it was bought from. Creating an order decrements stock (a
// listing at zero becomes sold_out); cancelling restores it and republishes
// a sold-out listing.
//
// The listing is written before the order is appended. The two writes touch
// different tables and are not atomic together; the stock check and the
// decrement happen in one update of the posts table.
//
// An order keeps the unit price in effect when it was placed. Later price
// edits on the listing never change existing orders.

package services

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/samrith-ratana/e-commerce/internal/domain"
	"github.com/samrith-ratana/e-commerce/internal/repo"
)

// UnknownCustomer is shown for sales whose buyer account no longer exists.
const UnknownCustomer = "Unknown customer"

// OrderService places and cancels orders, keeping listing stock in step.
//
// Each step locks only the table it touches: the listing is updated first
// and the order appended second, so a crash in between leaves stock
// decremented without an order.
type OrderService struct {
	Orders Table[domain.OrdersFile]
	Posts  Table[domain.PostsFile]
	Users  Table[domain.UsersFile]
	Now    func() time.Time
}

func NewOrderService(orders Table[domain.OrdersFile], posts Table[domain.PostsFile], users Table[domain.UsersFile]) *OrderService {
	return &OrderService{Orders: orders, Posts: posts, Users: users, Now: time.Now}
}

// Create buys quantity units of postID for buyerID at the listing's current
// price. Checks run in order: input, existence, availability, stock, then
// self-purchase. Stock that reaches zero marks the listing sold_out.
func (s *OrderService) Create(ctx context.Context, buyerID, postID string, quantity int) (*domain.Order, error) {
	ctx, span := startSpan(ctx, "OrderService", "Create",
		attribute.String("user.id", buyerID),
		attribute.String("post.id", postID),
		attribute.Int("order.quantity", quantity),
	)
	defer span.End()

	postID = strings.TrimSpace(postID)
	if postID == "" {
		return nil, ErrPostIDRequired
	}
	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}

	now := s.Now().UTC()
	var order domain.Order
	err := s.Posts.Update(ctx, func(doc *domain.PostsFile) error {
		p := findPost(doc, postID)
		switch {
		case p == nil:
			return ErrProductNotFound
		case p.Status != domain.PostPublished:
			return ErrProductUnavailable
		case p.Stock < quantity:
			return ErrInsufficientStock
		case p.AuthorID == buyerID:
			return ErrSelfPurchase
		}

		image := ""
		if len(p.Images) > 0 {
			image = p.Images[0]
		}
		order = domain.Order{
			PostID:      p.ID,
			BuyerID:     buyerID,
			SellerID:    p.AuthorID,
			Title:       p.Title,
			Image:       image,
			UnitPrice:   p.Price,
			Quantity:    quantity,
			TotalAmount: p.Price.Mul(decimal.NewFromInt(int64(quantity))),
			Status:      domain.OrderCreated,
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		p.Stock -= quantity
		p.UpdatedAt = now
		if p.Stock <= 0 {
			p.Stock = 0
			p.Status = domain.PostSoldOut
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = s.Orders.Update(ctx, func(doc *domain.OrdersFile) error {
		ids := make([]string, 0, len(doc.Orders))
		for _, o := range doc.Orders {
			ids = append(ids, o.ID)
		}
		order.ID = repo.NextSequenceID("ORD-", 6, ids)
		doc.Orders = append(doc.Orders, order)
		return nil
	})
	if err != nil {
		log.Error().Err(err).Str("post_id", postID).Int("quantity", quantity).
			Msg("stock decremented but order not persisted")
		return nil, err
	}

	ordersTotal.WithLabelValues("created").Inc()
	log.Info().Str("order_id", order.ID).Str("post_id", postID).Str("buyer_id", buyerID).
		Str("total", order.TotalAmount.String()).Msg("order created")
	return &order, nil
}

// Cancel cancels an order on behalf of its buyer or seller and returns the
// quantity to the listing. A deleted listing is skipped; cancellation still
// succeeds.
func (s *OrderService) Cancel(ctx context.Context, requesterID, orderID string) (*domain.Order, error) {
	ctx, span := startSpan(ctx, "OrderService", "Cancel",
		attribute.String("user.id", requesterID),
		attribute.String("order.id", orderID),
	)
	defer span.End()

	var out domain.Order
	err := s.Orders.Update(ctx, func(doc *domain.OrdersFile) error {
		var o *domain.Order
		for i := range doc.Orders {
			if doc.Orders[i].ID == orderID {
				o = &doc.Orders[i]
				break
			}
		}
		switch {
		case o == nil:
			return ErrOrderNotFound
		case o.Status == domain.OrderCancelled:
			return ErrOrderAlreadyCancelled
		case requesterID != o.BuyerID && requesterID != o.SellerID:
			return ErrForbidden
		}

		now := s.Now().UTC()
		err := s.Posts.Update(ctx, func(posts *domain.PostsFile) error {
			p := findPost(posts, o.PostID)
			if p == nil {
				return repo.ErrNoChange
			}
			p.Stock += o.Quantity
			p.UpdatedAt = now
			if p.Status == domain.PostSoldOut && p.Stock > 0 {
				p.Status = domain.PostPublished
			}
			return nil
		})
		if err != nil {
			return err
		}

		o.Status = domain.OrderCancelled
		o.CancelledAt = &now
		o.UpdatedAt = now
		out = *o
		return nil
	})
	if err != nil {
		return nil, err
	}

	ordersTotal.WithLabelValues("cancelled").Inc()
	log.Info().Str("order_id", orderID).Str("by", requesterID).Msg("order cancelled")
	return &out, nil
}

// Get returns an order visible to requesterID (its buyer or seller).
func (s *OrderService) Get(ctx context.Context, requesterID, orderID string) (*domain.Order, error) {
	doc, err := s.Orders.Read(ctx)
	if err != nil {
		return nil, err
	}
	for _, o := range doc.Orders {
		if o.ID == orderID {
			if requesterID != o.BuyerID && requesterID != o.SellerID {
				return nil, ErrForbidden
			}
			return &o, nil
		}
	}
	return nil, ErrOrderNotFound
}

// ByBuyer returns the orders placed by buyerID, newest first.
func (s *OrderService) ByBuyer(ctx context.Context, buyerID string) ([]domain.Order, error) {
	return s.list(ctx, func(o domain.Order) bool { return o.BuyerID == buyerID })
}

// BySeller returns the orders received by sellerID, newest first.
func (s *OrderService) BySeller(ctx context.Context, sellerID string) ([]domain.Order, error) {
	return s.list(ctx, func(o domain.Order) bool { return o.SellerID == sellerID })
}

// SalesBySeller is BySeller joined with each buyer's email.
func (s *OrderService) SalesBySeller(ctx context.Context, sellerID string) ([]domain.SalesOrder, error) {
	orders, err := s.BySeller(ctx, sellerID)
	if err != nil {
		return nil, err
	}
	users, err := s.Users.Read(ctx)
	if err != nil {
		return nil, err
	}
	emails := make(map[string]string, len(users.Users))
	for _, u := range users.Users {
		emails[u.ID] = u.Email
	}

	out := make([]domain.SalesOrder, 0, len(orders))
	for _, o := range orders {
		email := emails[o.BuyerID]
		if email == "" {
			email = UnknownCustomer
		}
		out = append(out, domain.SalesOrder{Order: o, BuyerEmail: email})
	}
	return out, nil
}

func (s *OrderService) list(ctx context.Context, keep func(domain.Order) bool) ([]domain.Order, error) {
	doc, err := s.Orders.Read(ctx)
	if err != nil {
		return nil, err
	}
	out := []domain.Order{}
	for _, o := range doc.Orders {
		if keep(o) {
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
