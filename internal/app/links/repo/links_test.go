package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"shortd.local/internal/app/links"
	"shortd.local/internal/app/links/snapshot"
)

func newTestRepo(t *testing.T) (*LinksRepo, *snapshot.MemoryStore) {
	t.Helper()
	blob := snapshot.NewMemoryStore()
	store, err := Open(context.Background(), blob)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return NewLinksRepo(store, nil, nil), blob
}

func strptr(s string) *string { return &s }
func boolptr(b bool) *bool    { return &b }

func TestCreateRandomSlug(t *testing.T) {
	r, _ := newTestRepo(t)

	l, err := r.Create(context.Background(), "owner1", "example.com/page", "", true, "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if l.DestinationURL != "https://example.com/page" {
		t.Errorf("DestinationURL = %q, want https:// prefix", l.DestinationURL)
	}
	if len(l.Slug) != 6 {
		t.Errorf("slug %q length = %d, want 6", l.Slug, len(l.Slug))
	}
	if got := l.StatusAt(time.Now()); got != links.StatusActive {
		t.Errorf("status = %v, want active", got)
	}
	if l.ClickCount != 0 {
		t.Errorf("new link ClickCount = %d, want 0", l.ClickCount)
	}
}

func TestCreateInvalidSlug(t *testing.T) {
	r, _ := newTestRepo(t)

	if _, err := r.Create(context.Background(), "owner1", "https://example.com", "ab", true, ""); !errors.Is(err, links.ErrSlugLength) {
		t.Fatalf("err = %v, want ErrSlugLength", err)
	}
}

func TestCreateSlugTakenCaseInsensitive(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()

	if _, err := r.Create(ctx, "owner1", "https://example.com/a", "promo", true, ""); err != nil {
		t.Fatalf("Create: %v", err)
	}
	// 另一个 owner、不同大小写，同样撞车
	if _, err := r.Create(ctx, "owner2", "https://example.com/b", "PROMO", true, ""); !errors.Is(err, links.ErrSlugTaken) {
		t.Fatalf("err = %v, want ErrSlugTaken", err)
	}
}

func TestAccessIncrementsCount(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()

	l, err := r.Create(ctx, "owner1", "https://example.com", "promo", true, "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	dest, err := r.AccessBySlug(ctx, "promo", time.Now())
	if err != nil {
		t.Fatalf("AccessBySlug: %v", err)
	}
	if dest != "https://example.com" {
		t.Errorf("dest = %q", dest)
	}

	got, err := r.FindByID(ctx, "owner1", l.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if got.ClickCount != 1 {
		t.Errorf("ClickCount = %d, want 1", got.ClickCount)
	}
}

func TestAccessDisabledDoesNotCount(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()

	l, err := r.Create(ctx, "owner1", "https://example.com", "promo", false, "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := r.AccessBySlug(ctx, "promo", time.Now()); !errors.Is(err, links.ErrLinkDisabled) {
		t.Fatalf("err = %v, want ErrLinkDisabled", err)
	}
	got, _ := r.FindByID(ctx, "owner1", l.ID)
	if got.ClickCount != 0 {
		t.Errorf("ClickCount = %d, want 0", got.ClickCount)
	}
}

func TestAccessExpiredSweeps(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()

	past := time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)
	l, err := r.Create(ctx, "owner1", "https://example.com", "old", true, past)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := r.AccessBySlug(ctx, "old", time.Now()); !errors.Is(err, links.ErrLinkExpired) {
		t.Fatalf("err = %v, want ErrLinkExpired", err)
	}
	// 访问路径顺手把 enabled 关掉（清扫），且不加计数
	got, _ := r.FindByID(ctx, "owner1", l.ID)
	if got.Enabled {
		t.Error("expired link still enabled after access")
	}
	if got.ClickCount != 0 {
		t.Errorf("ClickCount = %d, want 0", got.ClickCount)
	}
	// 再访问一次仍是 ErrLinkExpired（清扫幂等）
	if _, err := r.AccessBySlug(ctx, "old", time.Now()); !errors.Is(err, links.ErrLinkExpired) {
		t.Fatalf("second access err = %v, want ErrLinkExpired", err)
	}
}

func TestAccessUnknownSlug(t *testing.T) {
	r, _ := newTestRepo(t)
	if _, err := r.AccessBySlug(context.Background(), "nope42", time.Now()); !errors.Is(err, links.ErrLinkNotFound) {
		t.Fatalf("err = %v, want ErrLinkNotFound", err)
	}
}

func TestEnableExpiredRejected(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()

	past := time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)
	l, err := r.Create(ctx, "owner1", "https://example.com", "old", false, past)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := r.Edit(ctx, "owner1", l.ID, Patch{Enabled: boolptr(true)}); !errors.Is(err, links.ErrLinkExpired) {
		t.Fatalf("err = %v, want ErrLinkExpired", err)
	}
	// 原记录不变
	got, _ := r.FindByID(ctx, "owner1", l.ID)
	if got.Enabled {
		t.Error("link got enabled despite ErrLinkExpired")
	}

	// 同一次编辑里把过期时间改到将来则允许启用
	future := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	updated, err := r.Edit(ctx, "owner1", l.ID, Patch{Enabled: boolptr(true), ExpiresAtRaw: strptr(future)})
	if err != nil {
		t.Fatalf("Edit with future expiry: %v", err)
	}
	if !updated.Enabled {
		t.Error("link not enabled")
	}
}

func TestEditSlugConflictExcludesSelf(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()

	a, _ := r.Create(ctx, "owner1", "https://example.com/a", "aaa", true, "")
	if _, err := r.Create(ctx, "owner1", "https://example.com/b", "bbb", true, ""); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// 改成别人的 slug 撞车
	if _, err := r.Edit(ctx, "owner1", a.ID, Patch{RequestedSlug: strptr("bbb")}); !errors.Is(err, links.ErrSlugTaken) {
		t.Fatalf("err = %v, want ErrSlugTaken", err)
	}
	// 改成自己当前的 slug 不算撞车
	if _, err := r.Edit(ctx, "owner1", a.ID, Patch{RequestedSlug: strptr("aaa")}); err != nil {
		t.Fatalf("self slug edit: %v", err)
	}
}

func TestEditClearExpiry(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()

	future := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	l, _ := r.Create(ctx, "owner1", "https://example.com", "promo", true, future)

	got, err := r.Edit(ctx, "owner1", l.ID, Patch{ExpiresAtRaw: strptr("")})
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if got.ExpiresAt != nil {
		t.Errorf("ExpiresAt = %v, want nil", got.ExpiresAt)
	}
}

func TestDeleteOwnerScoped(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()

	l, _ := r.Create(ctx, "owner1", "https://example.com", "promo", true, "")

	if err := r.Delete(ctx, "owner2", l.ID); !errors.Is(err, links.ErrLinkNotFound) {
		t.Fatalf("cross-owner delete err = %v, want ErrLinkNotFound", err)
	}
	if err := r.Delete(ctx, "owner1", l.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := r.FindByID(ctx, "owner1", l.ID); !errors.Is(err, links.ErrLinkNotFound) {
		t.Fatalf("find after delete err = %v, want ErrLinkNotFound", err)
	}
	// slug 立即可以重用
	if _, err := r.Create(ctx, "owner2", "https://example.com/b", "promo", true, ""); err != nil {
		t.Fatalf("recreate after delete: %v", err)
	}
}

func TestListSweepsAndFilters(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()
	now := time.Now()

	past := now.Add(-time.Hour).UTC().Format(time.RFC3339)
	r.Create(ctx, "owner1", "https://example.com/first", "first1", true, "")
	r.Create(ctx, "owner1", "https://example.com/old", "oldone", true, past)
	r.Create(ctx, "owner1", "https://example.com/off", "offone", false, "")
	r.Create(ctx, "owner2", "https://example.com/other", "others", true, "")

	all, err := r.List(ctx, "owner1", Filter{}, now)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("len = %d, want 3 (owner scoped)", len(all))
	}
	// 最新创建在前
	if all[0].Slug != "offone" || all[2].Slug != "first1" {
		t.Errorf("order = [%s %s %s], want newest first", all[0].Slug, all[1].Slug, all[2].Slug)
	}
	// 列表前清扫：过期条目已被关掉
	for _, l := range all {
		if l.Slug == "oldone" && l.Enabled {
			t.Error("expired link not swept by List")
		}
	}

	expired, err := r.List(ctx, "owner1", Filter{Status: links.StatusExpired}, now)
	if err != nil {
		t.Fatalf("List expired: %v", err)
	}
	if len(expired) != 1 || expired[0].Slug != "oldone" {
		t.Errorf("expired filter = %v", expired)
	}

	byQuery, err := r.List(ctx, "owner1", Filter{Query: "FIRST"}, now)
	if err != nil {
		t.Fatalf("List query: %v", err)
	}
	if len(byQuery) != 1 || byQuery[0].Slug != "first1" {
		t.Errorf("query filter = %v", byQuery)
	}
}

func TestSweepExpiredIdempotent(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()
	now := time.Now()

	past := now.Add(-time.Hour).UTC().Format(time.RFC3339)
	r.Create(ctx, "owner1", "https://example.com/a", "aaa", true, past)
	r.Create(ctx, "owner1", "https://example.com/b", "bbb", true, past)
	r.Create(ctx, "owner1", "https://example.com/c", "ccc", true, "")

	swept, err := r.SweepExpired(ctx, now)
	if err != nil {
		t.Fatalf("SweepExpired: %v", err)
	}
	if swept != 2 {
		t.Errorf("swept = %d, want 2", swept)
	}
	swept, err = r.SweepExpired(ctx, now)
	if err != nil {
		t.Fatalf("second SweepExpired: %v", err)
	}
	if swept != 0 {
		t.Errorf("second sweep = %d, want 0", swept)
	}
}

func TestAdminDisable(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()

	l, _ := r.Create(ctx, "owner1", "https://example.com", "promo", true, "")

	if err := r.Disable(ctx, l.ID); err != nil {
		t.Fatalf("Disable: %v", err)
	}
	if err := r.Disable(ctx, l.ID); !errors.Is(err, ErrAlreadyDisabled) {
		t.Fatalf("err = %v, want ErrAlreadyDisabled", err)
	}
	if _, err := r.AccessBySlug(ctx, "promo", time.Now()); !errors.Is(err, links.ErrLinkDisabled) {
		t.Fatalf("access err = %v, want ErrLinkDisabled", err)
	}
}

func TestPersistFailureRollsBack(t *testing.T) {
	r, blob := newTestRepo(t)
	ctx := context.Background()
	saveErr := errors.New("disk full")

	l, err := r.Create(ctx, "owner1", "https://example.com", "promo", true, "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// 创建失败：内存里不能留下半条记录
	blob.FailNext, blob.FailErr = 1, saveErr
	if _, err := r.Create(ctx, "owner1", "https://example.com/b", "other1", true, ""); !errors.Is(err, saveErr) {
		t.Fatalf("err = %v, want save error", err)
	}
	if _, err := r.LinkBySlug(ctx, "other1"); !errors.Is(err, links.ErrLinkNotFound) {
		t.Fatal("failed create left link behind")
	}

	// 访问落盘失败：计数回滚
	blob.FailNext, blob.FailErr = 1, saveErr
	if _, err := r.AccessBySlug(ctx, "promo", time.Now()); !errors.Is(err, saveErr) {
		t.Fatalf("access err = %v, want save error", err)
	}
	got, _ := r.FindByID(ctx, "owner1", l.ID)
	if got.ClickCount != 0 {
		t.Errorf("ClickCount = %d after failed persist, want 0", got.ClickCount)
	}

	// 编辑失败：字段回滚
	blob.FailNext, blob.FailErr = 1, saveErr
	if _, err := r.Edit(ctx, "owner1", l.ID, Patch{DestinationRaw: strptr("https://changed.example.com")}); !errors.Is(err, saveErr) {
		t.Fatalf("edit err = %v, want save error", err)
	}
	got, _ = r.FindByID(ctx, "owner1", l.ID)
	if got.DestinationURL != "https://example.com" {
		t.Errorf("DestinationURL = %q after failed edit, want unchanged", got.DestinationURL)
	}
}

func TestReloadFromSnapshot(t *testing.T) {
	blob := snapshot.NewMemoryStore()
	ctx := context.Background()

	store, err := Open(ctx, blob)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	r := NewLinksRepo(store, nil, nil)
	l, err := r.Create(ctx, "owner1", "https://example.com", "promo", true, "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := r.AccessBySlug(ctx, "promo", time.Now()); err != nil {
		t.Fatalf("AccessBySlug: %v", err)
	}

	// 新进程：从同一个快照重建
	store2, err := Open(ctx, blob)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	r2 := NewLinksRepo(store2, nil, nil)
	got, err := r2.FindByID(ctx, "owner1", l.ID)
	if err != nil {
		t.Fatalf("FindByID after reload: %v", err)
	}
	if got.Slug != "promo" || got.ClickCount != 1 {
		t.Errorf("reloaded link = %+v", got)
	}
}
