package cart

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/backend"
	"storefront/internal/backendtest"
	"storefront/internal/models"
	"storefront/internal/session"
	"storefront/internal/store"
)

type testEnv struct {
	cart     *Store
	sessions *session.Store
	upstream *backendtest.Server
	user     models.User
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	upstream := backendtest.New()
	srv := httptest.NewServer(upstream)
	t.Cleanup(srv.Close)

	db, err := store.Open(":memory:")
	require.NoError(t, err)
	repo := &store.SessionRepo{DB: db}

	var sessions *session.Store
	client := backend.NewClient(srv.URL, func() string { return sessions.Token() })
	sessions = session.New(client, repo, nil)

	u := upstream.AddUser("shopper@example.com", "secret", models.RoleCustomer)
	_, err = sessions.Login(context.Background(), "shopper@example.com", "secret")
	require.NoError(t, err)

	return &testEnv{
		cart:     New(client, sessions, nil),
		sessions: sessions,
		upstream: upstream,
		user:     u,
	}
}

func TestAdd_CreatesLineWithProductSnapshot(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	p := env.upstream.AddProduct("widget", 9.99, "tools")
	ctx := context.Background()

	require.NoError(t, env.cart.Add(ctx, p.ID, 2))

	lines := env.cart.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, p.ID, lines[0].ProductID)
	assert.Equal(t, uint(2), lines[0].Quantity)
	require.NotNil(t, lines[0].Product)
	assert.Equal(t, "widget", lines[0].Product.Name)
	assert.Equal(t, 9.99, lines[0].Product.Price)
}

func TestAdd_DefaultsQuantityToOne(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	p := env.upstream.AddProduct("widget", 5, "tools")

	require.NoError(t, env.cart.Add(context.Background(), p.ID, 0))

	lines := env.cart.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, uint(1), lines[0].Quantity)
}

func TestAdd_IncrementsExistingLine(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	p := env.upstream.AddProduct("widget", 5, "tools")
	ctx := context.Background()

	require.NoError(t, env.cart.Add(ctx, p.ID, 2))
	require.NoError(t, env.cart.Add(ctx, p.ID, 3))

	lines := env.cart.Lines()
	require.Len(t, lines, 1, "adding the same product must never split into two lines")
	assert.Equal(t, uint(5), lines[0].Quantity)
	assert.Equal(t, 1, env.upstream.CartSize(env.user.ID))
}

func TestAdd_RequiresLogin(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	p := env.upstream.AddProduct("widget", 5, "tools")
	env.sessions.Logout()

	err := env.cart.Add(context.Background(), p.ID, 1)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestAdd_RequiresProductID(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	err := env.cart.Add(context.Background(), 0, 1)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestTotal(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	p1 := env.upstream.AddProduct("widget", 10, "tools")
	p2 := env.upstream.AddProduct("gadget", 5, "tools")

	require.NoError(t, env.cart.Add(ctx, p1.ID, 2))
	require.NoError(t, env.cart.Add(ctx, p2.ID, 1))

	assert.Equal(t, float64(25), env.cart.Total())
}

func TestTotal_MissingSnapshotCountsAsZero(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	p1 := env.upstream.AddProduct("widget", 10, "tools")
	p2 := env.upstream.AddProduct("doomed", 99, "tools")

	require.NoError(t, env.cart.Add(ctx, p1.ID, 2))
	require.NoError(t, env.cart.Add(ctx, p2.ID, 1))

	// The product disappears upstream; the next refresh keeps the line
	// but cannot join a snapshot.
	env.upstream.RemoveProduct(p2.ID)
	require.NoError(t, env.cart.Refresh(ctx))

	require.Len(t, env.cart.Lines(), 2)
	assert.Equal(t, float64(20), env.cart.Total())
}

func TestUpdate_RejectsZeroQuantity(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	p := env.upstream.AddProduct("widget", 5, "tools")
	ctx := context.Background()

	require.NoError(t, env.cart.Add(ctx, p.ID, 2))
	lines := env.cart.Lines()
	require.Len(t, lines, 1)

	err := env.cart.Update(ctx, lines[0].ID, 0)
	assert.ErrorIs(t, err, ErrValidation)

	// Nothing changed.
	lines = env.cart.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, uint(2), lines[0].Quantity)
}

func TestUpdateAndRemove(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	p := env.upstream.AddProduct("widget", 5, "tools")
	ctx := context.Background()

	require.NoError(t, env.cart.Add(ctx, p.ID, 2))
	lineID := env.cart.Lines()[0].ID

	require.NoError(t, env.cart.Update(ctx, lineID, 7))
	lines := env.cart.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, uint(7), lines[0].Quantity)

	require.NoError(t, env.cart.Remove(ctx, lineID))
	assert.Empty(t, env.cart.Lines())
	assert.Equal(t, 0, env.upstream.CartSize(env.user.ID))
}

func TestClear(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	p1 := env.upstream.AddProduct("widget", 5, "tools")
	p2 := env.upstream.AddProduct("gadget", 3, "tools")

	require.NoError(t, env.cart.Add(ctx, p1.ID, 1))
	require.NoError(t, env.cart.Add(ctx, p2.ID, 2))
	require.Len(t, env.cart.Lines(), 2)

	require.NoError(t, env.cart.Clear(ctx))

	assert.Empty(t, env.cart.Lines())
	assert.Equal(t, float64(0), env.cart.Total())
	assert.Equal(t, 0, env.upstream.CartSize(env.user.ID))
}

func TestResetLocal(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	p := env.upstream.AddProduct("widget", 5, "tools")

	require.NoError(t, env.cart.Add(ctx, p.ID, 1))
	require.Len(t, env.cart.Lines(), 1)

	env.cart.ResetLocal()

	assert.Empty(t, env.cart.Lines())
	// The server cart is untouched.
	assert.Equal(t, 1, env.upstream.CartSize(env.user.ID))
}
