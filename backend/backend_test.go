package backend

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"relaygate/cache"
	"relaygate/config"
	"relaygate/protocol"
	"relaygate/store"
)

var (
	gw  = protocol.Address{Role: protocol.RoleGateway, Node: "gw-test"}
	dst = protocol.Address{Role: protocol.RoleBackend}
)

func testRouter(t *testing.T, domain string) *Router {
	t.Helper()
	db, err := store.Open(&config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "test.db")},
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	r, err := New(domain, db, nil)
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	return r
}

func call(t *testing.T, r *Router, cmd protocol.Command, payload any) (any, error) {
	t.Helper()
	env, err := protocol.NewCommand(cmd, gw, dst, payload)
	if err != nil {
		t.Fatalf("new command: %v", err)
	}
	return r.Handle(context.Background(), env)
}

func assertNotFound(t *testing.T, err error) {
	t.Helper()
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("err = %v, want *NotFoundError", err)
	}
	if !nf.NotFound() {
		t.Error("NotFound() should be true")
	}
}

func TestNewUnknownDomain(t *testing.T) {
	if _, err := New("orders", nil, nil); err == nil {
		t.Fatal("expected error for unknown domain")
	}
}

func TestUnknownCommand(t *testing.T) {
	r := testRouter(t, protocol.DomainUsers)
	if _, err := call(t, r, protocol.FindAllProducts, protocol.Empty{}); err == nil {
		t.Fatal("users router should reject product commands")
	}
}

func TestBadPayload(t *testing.T) {
	r := testRouter(t, protocol.DomainUsers)
	if _, err := call(t, r, protocol.FindOneUser, "seven"); err == nil {
		t.Fatal("expected decode error")
	}
}

// --- users ---

func TestUserLifecycle(t *testing.T) {
	r := testRouter(t, protocol.DomainUsers)

	v, err := call(t, r, protocol.CreateUser, protocol.CreateUserInput{Name: "Test User", Email: "test@example.com"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	u := v.(protocol.User)
	if u.ID == 0 {
		t.Fatal("ID should be assigned")
	}
	if !u.IsActive {
		t.Error("new users should be active")
	}

	v, err = call(t, r, protocol.FindOneUser, u.ID)
	if err != nil {
		t.Fatalf("find one: %v", err)
	}
	if got := v.(protocol.User); got.Email != "test@example.com" {
		t.Errorf("email = %q", got.Email)
	}

	name := "Renamed"
	active := false
	v, err = call(t, r, protocol.UpdateUser, protocol.UpdateUserRequest{
		ID:    u.ID,
		Patch: protocol.UserPatch{Name: &name, IsActive: &active},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	updated := v.(protocol.User)
	if updated.Name != "Renamed" || updated.IsActive {
		t.Errorf("updated = %+v", updated)
	}
	if updated.Email != "test@example.com" {
		t.Errorf("unpatched email changed to %q", updated.Email)
	}

	v, err = call(t, r, protocol.FindAllUsers, protocol.Empty{})
	if err != nil {
		t.Fatalf("find all: %v", err)
	}
	if list := v.([]protocol.User); len(list) != 1 {
		t.Errorf("len = %d, want 1", len(list))
	}

	v, err = call(t, r, protocol.RemoveUser, u.ID)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if v != nil {
		t.Errorf("remove value = %v, want nil", v)
	}

	_, err = call(t, r, protocol.RemoveUser, u.ID)
	assertNotFound(t, err)
}

func TestUserMissing(t *testing.T) {
	r := testRouter(t, protocol.DomainUsers)

	_, err := call(t, r, protocol.FindOneUser, 999)
	assertNotFound(t, err)

	name := "ghost"
	_, err = call(t, r, protocol.UpdateUser, protocol.UpdateUserRequest{ID: 999, Patch: protocol.UserPatch{Name: &name}})
	assertNotFound(t, err)
}

func TestFindAllUsersEmptyIsValue(t *testing.T) {
	r := testRouter(t, protocol.DomainUsers)
	v, err := call(t, r, protocol.FindAllUsers, protocol.Empty{})
	if err != nil {
		t.Fatalf("find all: %v", err)
	}
	list, ok := v.([]protocol.User)
	if !ok || list == nil {
		t.Fatalf("value = %#v, want empty non-nil list", v)
	}
}

// --- products ---

func TestProductStock(t *testing.T) {
	r := testRouter(t, protocol.DomainProducts)

	v, err := call(t, r, protocol.CreateProduct, protocol.CreateProductInput{
		Name: "Test Product", Description: "This is a test product", Price: 99.99, Stock: 50,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	p := v.(protocol.Product)

	v, err = call(t, r, protocol.UpdateProductStock, protocol.UpdateStockRequest{ID: p.ID, Patch: protocol.StockPatch{Stock: 75}})
	if err != nil {
		t.Fatalf("update stock: %v", err)
	}
	got := v.(protocol.Product)
	if got.Stock != 75 {
		t.Errorf("stock = %d, want 75", got.Stock)
	}
	if got.Price != 99.99 || got.Name != "Test Product" {
		t.Errorf("stock update changed other fields: %+v", got)
	}

	_, err = call(t, r, protocol.UpdateProductStock, protocol.UpdateStockRequest{ID: 999, Patch: protocol.StockPatch{Stock: 1}})
	assertNotFound(t, err)
}

func TestProductPatch(t *testing.T) {
	r := testRouter(t, protocol.DomainProducts)

	v, _ := call(t, r, protocol.CreateProduct, protocol.CreateProductInput{Name: "Lamp", Description: "Desk lamp", Price: 20, Stock: 3})
	p := v.(protocol.Product)

	price := 25.5
	v, err := call(t, r, protocol.UpdateProduct, protocol.UpdateProductRequest{ID: p.ID, Patch: protocol.ProductPatch{Price: &price}})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	got := v.(protocol.Product)
	if got.Price != 25.5 {
		t.Errorf("price = %v, want 25.5", got.Price)
	}
	if got.Description != "Desk lamp" || got.Stock != 3 {
		t.Errorf("unpatched fields changed: %+v", got)
	}
}

func TestProductRemove(t *testing.T) {
	r := testRouter(t, protocol.DomainProducts)

	v, _ := call(t, r, protocol.CreateProduct, protocol.CreateProductInput{Name: "Lamp", Description: "Desk lamp", Price: 20})
	p := v.(protocol.Product)

	if _, err := call(t, r, protocol.RemoveProduct, p.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	_, err := call(t, r, protocol.FindOneProduct, p.ID)
	assertNotFound(t, err)
	_, err = call(t, r, protocol.RemoveProduct, p.ID)
	assertNotFound(t, err)
}

func TestMutationsAreAudited(t *testing.T) {
	db, err := store.Open(&config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "audit.db")},
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	r, err := New(protocol.DomainProducts, db, nil)
	if err != nil {
		t.Fatalf("new router: %v", err)
	}

	v, err := call(t, r, protocol.CreateProduct, protocol.CreateProductInput{Name: "Widget", Description: "w", Price: 1, Stock: 5})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	id := v.(protocol.Product).ID
	if _, err := call(t, r, protocol.UpdateProductStock, protocol.UpdateStockRequest{ID: id, Patch: protocol.StockPatch{Stock: 9}}); err != nil {
		t.Fatalf("update stock: %v", err)
	}
	if _, err := call(t, r, protocol.RemoveProduct, id); err != nil {
		t.Fatalf("remove: %v", err)
	}
	// reads are not audited
	call(t, r, protocol.FindAllProducts, protocol.Empty{})

	entries, err := db.ListEntityAudit(protocol.DomainProducts, id)
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	var actions []string
	for _, e := range entries {
		actions = append(actions, e.Action)
		if e.Actor != gw.Node {
			t.Errorf("actor = %q, want %q", e.Actor, gw.Node)
		}
	}
	want := []string{actionRemove, actionUpdate, actionCreate}
	if len(actions) != len(want) {
		t.Fatalf("actions = %v, want %v", actions, want)
	}
	for i := range want {
		if actions[i] != want[i] {
			t.Errorf("actions[%d] = %q, want %q", i, actions[i], want[i])
		}
	}
	if entries[1].OldValue == "" || entries[1].NewValue == "" {
		t.Errorf("update entry should carry both values: %+v", entries[1])
	}
}

func cachedRouter(t *testing.T, domain string) (*Router, *cache.RedisStore) {
	t.Helper()
	db, err := store.Open(&config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "cached.db")},
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	mr := miniredis.RunT(t)
	c, err := cache.Connect(context.Background(), config.RedisConfig{Address: mr.Addr(), TTL: time.Minute})
	if err != nil {
		t.Fatalf("connect cache: %v", err)
	}
	t.Cleanup(func() { c.Close() })

	r, err := New(domain, db, c)
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	return r, c
}

func listLen(t *testing.T, r *Router) int {
	t.Helper()
	v, err := call(t, r, protocol.FindAllUsers, protocol.Empty{})
	if err != nil {
		t.Fatalf("find all: %v", err)
	}
	return len(v.([]protocol.User))
}

func TestCachedListSeesWrites(t *testing.T) {
	r, _ := cachedRouter(t, protocol.DomainUsers)

	if n := listLen(t, r); n != 0 {
		t.Fatalf("len = %d, want 0", n)
	}
	v, err := call(t, r, protocol.CreateUser, protocol.CreateUserInput{Name: "Ada", Email: "ada@example.com"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	id := v.(protocol.User).ID
	if n := listLen(t, r); n != 1 {
		t.Errorf("after create len = %d, want 1", n)
	}

	name := "Grace"
	if _, err := call(t, r, protocol.UpdateUser, protocol.UpdateUserRequest{ID: id, Patch: protocol.UserPatch{Name: &name}}); err != nil {
		t.Fatalf("update: %v", err)
	}
	v, err = call(t, r, protocol.FindOneUser, id)
	if err != nil {
		t.Fatalf("find one: %v", err)
	}
	if got := v.(protocol.User).Name; got != "Grace" {
		t.Errorf("cached name = %q, want Grace", got)
	}

	if _, err := call(t, r, protocol.RemoveUser, id); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if n := listLen(t, r); n != 0 {
		t.Errorf("after remove len = %d, want 0", n)
	}
}

// A list read started before a create, and stored after it, must not hide
// the new row from later reads.
func TestListReadRacingCreate(t *testing.T) {
	r, c := cachedRouter(t, protocol.DomainUsers)
	ctx := context.Background()

	version, err := c.ListVersion(ctx, protocol.DomainUsers)
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	// reader: rows loaded, nothing cached yet
	stale := []protocol.User{}

	if _, err := call(t, r, protocol.CreateUser, protocol.CreateUserInput{Name: "Ada", Email: "ada@example.com"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	// reader: caches what it loaded
	if err := c.SetList(ctx, protocol.DomainUsers, version, stale); err != nil {
		t.Fatalf("set list: %v", err)
	}

	if n := listLen(t, r); n != 1 {
		t.Errorf("len = %d, want 1: stale list served", n)
	}
}
