package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/samrith-ratana/e-commerce/internal/http/middleware"
	"github.com/samrith-ratana/e-commerce/internal/services"
)

// DeleteResult acknowledges a removed listing.
type DeleteResult struct {
	Success bool   `json:"success" example:"true"`
	Message string `json:"message" example:"Listing removed"`
}

// ListPosts godoc
// @ID          listPosts
// @Summary     Storefront or own inventory
// @Description Without userId: published listings filtered by q (title/content), cat and maxPrice, newest first.
// @Description With userId: every listing of that author; the caller must be that author.
// @Tags        Posts
// @Produce     json
// @Param       q         query     string  false  "Keyword"
// @Param       cat       query     string  false  "Category (All disables the filter)"
// @Param       maxPrice  query     number  false  "Price ceiling"
// @Param       userId    query     string  false  "Author id for inventory view"
// @Success     200       {array}   domain.Post
// @Failure     401       {object}  handlers.ErrorResponse
// @Failure     403       {object}  handlers.ErrorResponse
// @Router      /posts [get]
func (h *Handlers) ListPosts(c *gin.Context) {
	h.listing(c, c.Query("userId"))
}

// ListProducts godoc
// @ID          listProducts
// @Summary     Storefront or own inventory (authorId variant)
// @Tags        Posts
// @Produce     json
// @Param       q         query     string  false  "Keyword"
// @Param       cat       query     string  false  "Category"
// @Param       maxPrice  query     number  false  "Price ceiling"
// @Param       authorId  query     string  false  "Author id for inventory view"
// @Success     200       {array}   domain.Post
// @Failure     401       {object}  handlers.ErrorResponse
// @Failure     403       {object}  handlers.ErrorResponse
// @Router      /products [get]
func (h *Handlers) ListProducts(c *gin.Context) {
	h.listing(c, c.Query("authorId"))
}

func (h *Handlers) listing(c *gin.Context, authorID string) {
	ctx := c.Request.Context()
	if authorID != "" {
		uid := middleware.UserID(c)
		if uid == "" {
			fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, services.ErrUnauthenticated.Msg)
			return
		}
		if uid != authorID {
			fail(c, http.StatusForbidden, ErrCodeForbidden, services.ErrForbidden.Msg)
			return
		}
		posts, err := h.posts.Inventory(ctx, authorID)
		if err != nil {
			failErr(c, err)
			return
		}
		ok(c, http.StatusOK, nonNil(posts))
		return
	}

	f := services.StorefrontFilter{
		Category: c.Query("cat"),
		Keyword:  c.Query("q"),
	}
	// An unparsable ceiling is ignored rather than filtering everything out.
	if raw := strings.TrimSpace(c.Query("maxPrice")); raw != "" {
		if d, err := decimal.NewFromString(raw); err == nil {
			f.MaxPrice = &d
		}
	}
	posts, err := h.posts.Storefront(ctx, f)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, nonNil(posts))
}

// CreatePost godoc
// @ID          createPost
// @Summary     Create a listing
// @Tags        Posts
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body      services.PostInput  true  "Listing"
// @Success     201   {object}  domain.Post
// @Failure     400   {object}  handlers.ErrorResponse
// @Failure     401   {object}  handlers.ErrorResponse
// @Router      /posts [post]
func (h *Handlers) CreatePost(c *gin.Context) {
	var in services.PostInput
	if !bindJSON(c, &in) {
		return
	}
	p, err := h.posts.Create(c.Request.Context(), middleware.UserID(c), in)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, p)
}

// GetPost godoc
// @ID          getPost
// @Summary     Get a listing
// @Description Draft and sold-out listings are visible to their author only.
// @Tags        Posts
// @Produce     json
// @Param       id   path      string  true  "Listing id"  example(P000001)
// @Success     200  {object}  domain.Post
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /posts/{id} [get]
func (h *Handlers) GetPost(c *gin.Context) {
	p, err := h.posts.Get(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}

// UpdatePost godoc
// @ID          updatePost
// @Summary     Update a listing
// @Tags        Posts
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path      string               true  "Listing id"
// @Param       body  body      services.PostUpdate  true  "Fields to change"
// @Success     200   {object}  domain.Post
// @Failure     400   {object}  handlers.ErrorResponse
// @Failure     403   {object}  handlers.ErrorResponse
// @Failure     404   {object}  handlers.ErrorResponse
// @Router      /posts/{id} [patch]
func (h *Handlers) UpdatePost(c *gin.Context) {
	var in services.PostUpdate
	if !bindJSON(c, &in) {
		return
	}
	p, err := h.posts.Update(c.Request.Context(), middleware.UserID(c), c.Param("id"), in)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}

// DeletePost godoc
// @ID          deletePost
// @Summary     Delete a listing
// @Tags        Posts
// @Produce     json
// @Security    BearerAuth
// @Param       id   path      string  true  "Listing id"
// @Success     200  {object}  handlers.DeleteResult
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /posts/{id} [delete]
func (h *Handlers) DeletePost(c *gin.Context) {
	if err := h.posts.Delete(c.Request.Context(), middleware.UserID(c), c.Param("id")); err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, DeleteResult{Success: true, Message: "Listing removed"})
}

// nonNil keeps empty lists serialized as [] instead of null.
func nonNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
