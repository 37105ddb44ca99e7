// Package services - PostService
//
// This file implements PostService: listing CRUD restricted to the author,
// the public storefront query and a seller's own inventory. Storefront
// results only contain published listings, newest first, filtered by
// category ("All" matches every category), a case-insensitive keyword over
// title and content, and an optional price ceiling.

package services

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/text/cases"

	"github.com/samrith-ratana/e-commerce/internal/domain"
	"github.com/samrith-ratana/e-commerce/internal/repo"
)

// CategoryAll disables the category filter.
const CategoryAll = "All"

// PostInput is the payload of a new listing.
type PostInput struct {
	Title         string           `json:"title" validate:"required"`
	Content       string           `json:"content" validate:"required"`
	Category      string           `json:"category" validate:"required"`
	Images        []string         `json:"images" validate:"required"`
	Price         *decimal.Decimal `json:"price"`
	OriginalPrice *decimal.Decimal `json:"originalPrice,omitempty"`
	Stock         *int             `json:"stock"`
	Status        string           `json:"status"`
}

var postInputMessages = map[string]string{
	"title":    "Title is required",
	"content":  "Content is required",
	"category": "Category is required",
	"images":   "Images must be an array",
}

var (
	errInvalidPrice = E(KindValidation, "Price must be a valid number")
	errInvalidStock = E(KindValidation, "Stock must be a valid number")
)

// PostUpdate is a partial listing update; nil fields are left untouched.
type PostUpdate struct {
	Title         *string          `json:"title"`
	Content       *string          `json:"content"`
	Category      *string          `json:"category"`
	Images        []string         `json:"images"`
	Price         *decimal.Decimal `json:"price"`
	OriginalPrice *decimal.Decimal `json:"originalPrice"`
	Stock         *int             `json:"stock"`
	Status        *string          `json:"status"`
}

// StorefrontFilter narrows the published catalogue. Zero values disable a filter.
type StorefrontFilter struct {
	Category string
	Keyword  string
	MaxPrice *decimal.Decimal
}

// PostService manages listings.
type PostService struct {
	Posts Table[domain.PostsFile]
	Now   func() time.Time
}

func NewPostService(posts Table[domain.PostsFile]) *PostService {
	return &PostService{Posts: posts, Now: time.Now}
}

// Create validates in and stores a new listing owned by authorID.
func (s *PostService) Create(ctx context.Context, authorID string, in PostInput) (*domain.Post, error) {
	ctx, span := startSpan(ctx, "PostService", "Create", attribute.String("user.id", authorID))
	defer span.End()

	in.Title = strings.TrimSpace(in.Title)
	in.Content = strings.TrimSpace(in.Content)
	in.Category = strings.TrimSpace(in.Category)
	if err := firstInvalid(in, postInputMessages); err != nil {
		return nil, err
	}
	if in.Price == nil || in.Price.IsNegative() {
		return nil, errInvalidPrice
	}
	if in.Stock == nil || *in.Stock < 0 {
		return nil, errInvalidStock
	}

	now := s.Now().UTC()
	post := domain.Post{
		AuthorID:      authorID,
		Title:         in.Title,
		Content:       in.Content,
		Category:      in.Category,
		Price:         *in.Price,
		OriginalPrice: in.OriginalPrice,
		Stock:         *in.Stock,
		Images:        compactImages(in.Images),
		Status:        domain.NormalizePostStatus(in.Status),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if post.Status == domain.PostSoldOut {
		post.Stock = 0
	}

	err := s.Posts.Update(ctx, func(doc *domain.PostsFile) error {
		ids := make([]string, 0, len(doc.Posts))
		for _, p := range doc.Posts {
			ids = append(ids, p.ID)
		}
		post.ID = repo.NextSequenceID("P", 6, ids)
		doc.Posts = append(doc.Posts, post)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &post, nil
}

// Update applies a partial update to a listing owned by userID.
//
// Setting a positive stock on a sold-out listing without choosing a status
// republishes it; marking a listing sold_out zeroes its stock.
func (s *PostService) Update(ctx context.Context, userID, postID string, in PostUpdate) (*domain.Post, error) {
	ctx, span := startSpan(ctx, "PostService", "Update", attribute.String("user.id", userID), attribute.String("post.id", postID))
	defer span.End()

	var out domain.Post
	err := s.Posts.Update(ctx, func(doc *domain.PostsFile) error {
		p := findPost(doc, postID)
		if p == nil {
			return ErrListingNotFound
		}
		if p.AuthorID != userID {
			return ErrNotPostOwner
		}
		if in.Price != nil && in.Price.IsNegative() {
			return errInvalidPrice
		}
		if in.Stock != nil && *in.Stock < 0 {
			return errInvalidStock
		}
		for _, f := range []struct {
			name string
			v    *string
		}{{"title", in.Title}, {"content", in.Content}, {"category", in.Category}} {
			if f.v != nil && strings.TrimSpace(*f.v) == "" {
				return E(KindValidation, postInputMessages[f.name])
			}
		}

		if in.Title != nil {
			p.Title = strings.TrimSpace(*in.Title)
		}
		if in.Content != nil {
			p.Content = strings.TrimSpace(*in.Content)
		}
		if in.Category != nil {
			p.Category = strings.TrimSpace(*in.Category)
		}
		if in.Images != nil {
			p.Images = compactImages(in.Images)
		}
		if in.Price != nil {
			p.Price = *in.Price
		}
		if in.OriginalPrice != nil {
			op := *in.OriginalPrice
			p.OriginalPrice = &op
		}
		if in.Stock != nil {
			p.Stock = *in.Stock
			if in.Status == nil && p.Status == domain.PostSoldOut && p.Stock > 0 {
				p.Status = domain.PostPublished
			}
		}
		if in.Status != nil {
			p.Status = domain.NormalizePostStatus(*in.Status)
		}
		if p.Status == domain.PostSoldOut {
			p.Stock = 0
		}
		p.UpdatedAt = s.Now().UTC()
		out = *p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete removes a listing owned by userID. Orders referencing it are kept.
func (s *PostService) Delete(ctx context.Context, userID, postID string) error {
	ctx, span := startSpan(ctx, "PostService", "Delete", attribute.String("user.id", userID), attribute.String("post.id", postID))
	defer span.End()

	return s.Posts.Update(ctx, func(doc *domain.PostsFile) error {
		for i, p := range doc.Posts {
			if p.ID != postID {
				continue
			}
			if p.AuthorID != userID {
				return ErrNotPostOwner
			}
			doc.Posts = append(doc.Posts[:i], doc.Posts[i+1:]...)
			return nil
		}
		return ErrListingNotFound
	})
}

// Get returns a listing. Drafts and sold-out listings are visible only to
// their author; requesterID may be empty for anonymous callers.
func (s *PostService) Get(ctx context.Context, requesterID, postID string) (*domain.Post, error) {
	doc, err := s.Posts.Read(ctx)
	if err != nil {
		return nil, err
	}
	p := findPost(&doc, postID)
	if p == nil {
		return nil, ErrPostNotFound
	}
	if p.Status != domain.PostPublished && (requesterID == "" || requesterID != p.AuthorID) {
		return nil, ErrForbidden
	}
	return p, nil
}

// Inventory returns every listing of authorID regardless of status.
func (s *PostService) Inventory(ctx context.Context, authorID string) ([]domain.Post, error) {
	doc, err := s.Posts.Read(ctx)
	if err != nil {
		return nil, err
	}
	out := []domain.Post{}
	for _, p := range doc.Posts {
		if p.AuthorID == authorID {
			out = append(out, p)
		}
	}
	return out, nil
}

// Storefront returns published listings matching f, newest first. Category
// must match exactly ("All" matches everything); Keyword matches title or
// content case-insensitively; MaxPrice is inclusive.
func (s *PostService) Storefront(ctx context.Context, f StorefrontFilter) ([]domain.Post, error) {
	ctx, span := startSpan(ctx, "PostService", "Storefront",
		attribute.String("filter.category", f.Category),
		attribute.Bool("filter.keyword", f.Keyword != ""),
	)
	defer span.End()

	doc, err := s.Posts.Read(ctx)
	if err != nil {
		return nil, err
	}
	fold := cases.Fold()
	kw := fold.String(strings.TrimSpace(f.Keyword))

	out := []domain.Post{}
	for _, p := range doc.Posts {
		if p.Status != domain.PostPublished {
			continue
		}
		if f.Category != "" && f.Category != CategoryAll && p.Category != f.Category {
			continue
		}
		if kw != "" && !strings.Contains(fold.String(p.Title), kw) && !strings.Contains(fold.String(p.Content), kw) {
			continue
		}
		if f.MaxPrice != nil && p.Price.GreaterThan(*f.MaxPrice) {
			continue
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func findPost(doc *domain.PostsFile, id string) *domain.Post {
	for i := range doc.Posts {
		if doc.Posts[i].ID == id {
			return &doc.Posts[i]
		}
	}
	return nil
}

func compactImages(in []string) []string {
	out := make([]string, 0, len(in))
	for _, img := range in {
		if img = strings.TrimSpace(img); img != "" {
			out = append(out, img)
		}
	}
	return out
}
