package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samrith-ratana/e-commerce/internal/domain"
)

func newPosts(t *testing.T) (*PostService, *clock) {
	t.Helper()
	st := newTestStore(t)
	c := newClock()
	svc := NewPostService(st.Posts)
	svc.Now = c.Now
	return svc, c
}

func validInput() PostInput {
	return PostInput{
		Title:    "Desk lamp",
		Content:  "Warm light, barely used",
		Category: "Home",
		Images:   []string{" a.jpg ", "", "b.jpg"},
		Price:    decPtr("12.50"),
		Stock:    intPtr(3),
		Status:   "published",
	}
}

func TestPostCreate(t *testing.T) {
	svc, _ := newPosts(t)
	ctx := context.Background()

	p, err := svc.Create(ctx, "U1", validInput())
	require.NoError(t, err)
	assert.Equal(t, "P000001", p.ID)
	assert.Equal(t, []string{"a.jpg", "b.jpg"}, p.Images)
	assert.Equal(t, domain.PostPublished, p.Status)
	assert.True(t, p.Price.Equal(dec("12.5")))

	in := validInput()
	in.Status = "sold_out"
	p2, err := svc.Create(ctx, "U1", in)
	require.NoError(t, err)
	assert.Equal(t, "P000002", p2.ID)
	assert.Zero(t, p2.Stock)

	in = validInput()
	in.Status = "weird"
	p3, err := svc.Create(ctx, "U1", in)
	require.NoError(t, err)
	assert.Equal(t, domain.PostPublished, p3.Status)
}

func TestPostCreate_Validation(t *testing.T) {
	svc, _ := newPosts(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*PostInput)
		msg    string
	}{
		{"title", func(in *PostInput) { in.Title = "  " }, "Title is required"},
		{"content", func(in *PostInput) { in.Content = "" }, "Content is required"},
		{"category", func(in *PostInput) { in.Category = "" }, "Category is required"},
		{"images", func(in *PostInput) { in.Images = nil }, "Images must be an array"},
		{"price missing", func(in *PostInput) { in.Price = nil }, "Price must be a valid number"},
		{"price negative", func(in *PostInput) { in.Price = decPtr("-1") }, "Price must be a valid number"},
		{"stock", func(in *PostInput) { in.Stock = intPtr(-2) }, "Stock must be a valid number"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := validInput()
			tc.mutate(&in)
			_, err := svc.Create(ctx, "U1", in)
			requireKind(t, err, KindValidation)
			assert.Equal(t, tc.msg, err.Error())
		})
	}
}

func TestPostUpdate(t *testing.T) {
	svc, c := newPosts(t)
	ctx := context.Background()
	p, err := svc.Create(ctx, "U1", validInput())
	require.NoError(t, err)

	_, err = svc.Update(ctx, "U2", p.ID, PostUpdate{Title: strPtr("x")})
	assert.ErrorIs(t, err, ErrNotPostOwner)
	_, err = svc.Update(ctx, "U1", "P999999", PostUpdate{})
	assert.ErrorIs(t, err, ErrListingNotFound)
	_, err = svc.Update(ctx, "U1", p.ID, PostUpdate{Title: strPtr(" ")})
	requireKind(t, err, KindValidation)

	c.Advance(time.Minute)
	up, err := svc.Update(ctx, "U1", p.ID, PostUpdate{Status: strPtr("sold_out")})
	require.NoError(t, err)
	assert.Equal(t, domain.PostSoldOut, up.Status)
	assert.Zero(t, up.Stock)
	assert.True(t, up.UpdatedAt.After(up.CreatedAt))

	up, err = svc.Update(ctx, "U1", p.ID, PostUpdate{Stock: intPtr(4)})
	require.NoError(t, err)
	assert.Equal(t, domain.PostPublished, up.Status, "restock republishes")
	assert.Equal(t, 4, up.Stock)

	up, err = svc.Update(ctx, "U1", p.ID, PostUpdate{Stock: intPtr(2), Status: strPtr("draft"), Price: decPtr("9.99")})
	require.NoError(t, err)
	assert.Equal(t, domain.PostDraft, up.Status)
	assert.True(t, up.Price.Equal(dec("9.99")))
}

func TestPostDeleteAndGet(t *testing.T) {
	svc, _ := newPosts(t)
	ctx := context.Background()

	pub, err := svc.Create(ctx, "U1", validInput())
	require.NoError(t, err)
	in := validInput()
	in.Status = "draft"
	draft, err := svc.Create(ctx, "U1", in)
	require.NoError(t, err)

	got, err := svc.Get(ctx, "", pub.ID)
	require.NoError(t, err)
	assert.Equal(t, pub.ID, got.ID)

	_, err = svc.Get(ctx, "", draft.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = svc.Get(ctx, "U2", draft.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = svc.Get(ctx, "U1", draft.ID)
	require.NoError(t, err)
	_, err = svc.Get(ctx, "U1", "nope")
	assert.ErrorIs(t, err, ErrPostNotFound)

	assert.ErrorIs(t, svc.Delete(ctx, "U2", pub.ID), ErrNotPostOwner)
	require.NoError(t, svc.Delete(ctx, "U1", pub.ID))
	assert.ErrorIs(t, svc.Delete(ctx, "U1", pub.ID), ErrListingNotFound)

	inv, err := svc.Inventory(ctx, "U1")
	require.NoError(t, err)
	require.Len(t, inv, 1)
	assert.Equal(t, draft.ID, inv[0].ID)
}

func TestStorefront(t *testing.T) {
	svc, c := newPosts(t)
	ctx := context.Background()

	mk := func(title, category, price, status string) {
		in := validInput()
		in.Title, in.Category, in.Price, in.Status = title, category, decPtr(price), status
		_, err := svc.Create(ctx, "U1", in)
		require.NoError(t, err)
		c.Advance(time.Second)
	}
	mk("Red Chair", "Home", "40", "published")
	mk("Blue chair", "Home", "60", "published")
	mk("Chair kit", "Tools", "10", "draft")
	mk("Hammer", "Tools", "15", "published")

	all, err := svc.Storefront(ctx, StorefrontFilter{Category: CategoryAll})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "Hammer", all[0].Title, "newest first")

	home, err := svc.Storefront(ctx, StorefrontFilter{Category: "Home", Keyword: "CHAIR"})
	require.NoError(t, err)
	assert.Len(t, home, 2)

	cheap, err := svc.Storefront(ctx, StorefrontFilter{Keyword: "chair", MaxPrice: decPtr("40")})
	require.NoError(t, err)
	require.Len(t, cheap, 1)
	assert.Equal(t, "Red Chair", cheap[0].Title)
}
