package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"shortd.local/internal/app/links"
	"shortd.local/internal/app/links/cache"
)

var ErrAlreadyDisabled = errors.New("link already disabled")

// Filter 是列表查询的过滤条件。零值表示不过滤。
type Filter struct {
	Query  string       // slug 或目标 URL 的子串匹配（大小写不敏感）
	Status links.Status // 按推导状态过滤
}

// Patch 是编辑操作的部分字段集。nil 表示不改该字段。
//
// ExpiresAtRaw 指向空串表示清除过期时间（改成永不过期）。
type Patch struct {
	DestinationRaw *string
	RequestedSlug  *string
	Enabled        *bool
	ExpiresAtRaw   *string
}

// LinksRepo 实现链接的创建、编辑、删除、访问与列表。
//
// 所有变更都在 store 的互斥锁内完成“校验 → 改内存 → 写快照”，
// slug 唯一性检查因此与变更原子；快照写失败时回滚内存态。
type LinksRepo struct {
	store  *Store
	filter *cache.SlugFilter // 可空：分配器查重的快速前置判断
	miss   *cache.MissCache  // 可空：redirect 404 的负缓存
}

func NewLinksRepo(store *Store, filter *cache.SlugFilter, miss *cache.MissCache) *LinksRepo {
	r := &LinksRepo{store: store, filter: filter, miss: miss}
	if filter != nil {
		// 启动时用存量 slug 预热布隆过滤器。
		store.mu.Lock()
		for i := range store.state.Links {
			filter.Add(strings.ToLower(store.state.Links[i].Slug))
		}
		store.mu.Unlock()
	}
	return r
}

// existsLocked 大小写不敏感地检查 slug 是否被占用，excludeID 用于编辑时排除自身。
func (r *LinksRepo) existsLocked(slug string, excludeID string) bool {
	for i := range r.store.state.Links {
		l := &r.store.state.Links[i]
		if l.ID != excludeID && strings.EqualFold(l.Slug, slug) {
			return true
		}
	}
	return false
}

// allocTarget 返回给分配器用的查重函数：布隆说“一定不存在”就跳过线性扫描。
func (r *LinksRepo) allocTarget(excludeID string) func(string) bool {
	return func(slug string) bool {
		if r.filter != nil && !r.filter.MightExist(slug) {
			return false
		}
		return r.existsLocked(slug, excludeID)
	}
}

func (r *LinksRepo) findIndexByIDLocked(id string) int {
	for i := range r.store.state.Links {
		if r.store.state.Links[i].ID == id {
			return i
		}
	}
	return -1
}

func (r *LinksRepo) findIndexBySlugLocked(slug string) int {
	for i := range r.store.state.Links {
		if strings.EqualFold(r.store.state.Links[i].Slug, slug) {
			return i
		}
	}
	return -1
}

// Create 创建一条新链接。requestedSlug 为空时随机分配。
func (r *LinksRepo) Create(ctx context.Context, ownerID, destinationRaw, requestedSlug string, enabled bool, expiresAtRaw string) (links.Link, error) {
	dest, err := links.NormalizeURL(destinationRaw)
	if err != nil {
		return links.Link{}, err
	}
	expiresAt, err := links.ParseExpiry(expiresAtRaw)
	if err != nil {
		return links.Link{}, err
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	slug, err := links.AllocateSlug(requestedSlug, r.allocTarget(""))
	if err != nil {
		return links.Link{}, err
	}

	l := links.Link{
		ID:             links.NewID(),
		OwnerID:        ownerID,
		DestinationURL: dest,
		Slug:           slug,
		CreatedAt:      time.Now().UTC(),
		ExpiresAt:      expiresAt,
		Enabled:        enabled,
	}

	r.store.state.Links = append(r.store.state.Links, l)
	if err := r.store.persistLocked(ctx); err != nil {
		r.store.state.Links = r.store.state.Links[:len(r.store.state.Links)-1]
		return links.Link{}, err
	}

	if r.filter != nil {
		r.filter.Add(strings.ToLower(slug))
	}
	if r.miss != nil {
		// 覆盖可能残留的负缓存，新 slug 立即可用。
		r.miss.Forget(strings.ToLower(slug))
	}
	return cloneLink(l), nil
}

// Edit 合并部分字段到已有记录。改 slug 时重新校验并查重（排除自身）。
//
// 把 Enabled 改成 true 而链接（按改动后的过期时间）已过期时，
// 返回 ErrLinkExpired 且状态不变；同一次编辑里把过期时间改到将来则允许。
func (r *LinksRepo) Edit(ctx context.Context, ownerID, id string, p Patch) (links.Link, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	idx := r.findIndexByIDLocked(id)
	if idx < 0 || r.store.state.Links[idx].OwnerID != ownerID {
		return links.Link{}, links.ErrLinkNotFound
	}
	prev := cloneLink(r.store.state.Links[idx])
	next := cloneLink(prev)

	if p.DestinationRaw != nil {
		dest, err := links.NormalizeURL(*p.DestinationRaw)
		if err != nil {
			return links.Link{}, err
		}
		next.DestinationURL = dest
	}
	if p.RequestedSlug != nil {
		slug, err := links.AllocateSlug(*p.RequestedSlug, r.allocTarget(id))
		if err != nil {
			return links.Link{}, err
		}
		next.Slug = slug
	}
	if p.ExpiresAtRaw != nil {
		expiresAt, err := links.ParseExpiry(*p.ExpiresAtRaw)
		if err != nil {
			return links.Link{}, err
		}
		next.ExpiresAt = expiresAt
	}
	if p.Enabled != nil {
		if *p.Enabled && next.Expired(time.Now()) {
			return links.Link{}, links.ErrLinkExpired
		}
		next.Enabled = *p.Enabled
	}

	r.store.state.Links[idx] = next
	if err := r.store.persistLocked(ctx); err != nil {
		r.store.state.Links[idx] = prev
		return links.Link{}, err
	}

	if r.filter != nil {
		r.filter.Add(strings.ToLower(next.Slug))
	}
	if r.miss != nil {
		r.miss.Forget(strings.ToLower(prev.Slug))
		r.miss.Forget(strings.ToLower(next.Slug))
	}
	return cloneLink(next), nil
}

// Delete 硬删除（无墓碑）。找不到或不属于该 owner 时返回 ErrLinkNotFound。
func (r *LinksRepo) Delete(ctx context.Context, ownerID, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	idx := r.findIndexByIDLocked(id)
	if idx < 0 || r.store.state.Links[idx].OwnerID != ownerID {
		return links.ErrLinkNotFound
	}
	removed := cloneLink(r.store.state.Links[idx])

	r.store.state.Links = append(r.store.state.Links[:idx], r.store.state.Links[idx+1:]...)
	if err := r.store.persistLocked(ctx); err != nil {
		rest := append([]links.Link{removed}, r.store.state.Links[idx:]...)
		r.store.state.Links = append(r.store.state.Links[:idx], rest...)
		return err
	}
	// slug 留在布隆里只会造成一次多余的存储查找，不影响正确性。
	return nil
}

// FindByID 返回该 owner 的一条链接。
func (r *LinksRepo) FindByID(ctx context.Context, ownerID, id string) (links.Link, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	idx := r.findIndexByIDLocked(id)
	if idx < 0 || r.store.state.Links[idx].OwnerID != ownerID {
		return links.Link{}, links.ErrLinkNotFound
	}
	return cloneLink(r.store.state.Links[idx]), nil
}

// accessLocked 是唯一会增加 ClickCount 的路径。
//
// 先做“单条记录范围”的过期清扫（enabled 且已过期 → 关掉并落盘），
// 再按状态拒绝或放行；成功时计数 +1 并落盘，返回目标 URL。
func (r *LinksRepo) accessLocked(ctx context.Context, idx int, now time.Time) (string, error) {
	l := &r.store.state.Links[idx]

	if l.Expired(now) {
		if l.Enabled {
			l.Enabled = false
			if err := r.store.persistLocked(ctx); err != nil {
				l.Enabled = true
				return "", err
			}
		}
		return "", links.ErrLinkExpired
	}
	if !l.Enabled {
		return "", links.ErrLinkDisabled
	}

	l.ClickCount++
	if err := r.store.persistLocked(ctx); err != nil {
		l.ClickCount--
		return "", err
	}
	return l.DestinationURL, nil
}

// AccessBySlug 是 redirect 热路径：负缓存 → 查找 → accessLocked。
func (r *LinksRepo) AccessBySlug(ctx context.Context, slug string, now time.Time) (string, error) {
	key := strings.ToLower(slug)
	if r.miss != nil && r.miss.Miss(key) {
		return "", links.ErrLinkNotFound
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	idx := r.findIndexBySlugLocked(slug)
	if idx < 0 {
		if r.miss != nil {
			r.miss.SetMiss(key)
		}
		return "", links.ErrLinkNotFound
	}
	return r.accessLocked(ctx, idx, now)
}

// AccessByID 按记录 ID 访问（增加点击数），语义同 AccessBySlug。
func (r *LinksRepo) AccessByID(ctx context.Context, id string, now time.Time) (string, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	idx := r.findIndexByIDLocked(id)
	if idx < 0 {
		return "", links.ErrLinkNotFound
	}
	return r.accessLocked(ctx, idx, now)
}

// LinkBySlug 返回 slug 对应的链接（不增加点击数，给内部路径用）。
func (r *LinksRepo) LinkBySlug(ctx context.Context, slug string) (links.Link, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	idx := r.findIndexBySlugLocked(slug)
	if idx < 0 {
		return links.Link{}, links.ErrLinkNotFound
	}
	return cloneLink(r.store.state.Links[idx]), nil
}

// sweepLocked 扫描全部记录，关掉 enabled 且已过期的链接。
// 返回本次关掉的条数；没有任何变化时不写快照（幂等、无副作用）。
func (r *LinksRepo) sweepLocked(ctx context.Context, now time.Time) (int, error) {
	var swept []int
	for i := range r.store.state.Links {
		l := &r.store.state.Links[i]
		if l.Enabled && l.Expired(now) {
			l.Enabled = false
			swept = append(swept, i)
		}
	}
	if len(swept) == 0 {
		return 0, nil
	}
	if err := r.store.persistLocked(ctx); err != nil {
		for _, i := range swept {
			r.store.state.Links[i].Enabled = true
		}
		return 0, err
	}
	return len(swept), nil
}

// SweepExpired 对外的全量清扫入口（后台定时器 / 管理端点）。
func (r *LinksRepo) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return r.sweepLocked(ctx, now)
}

// List 返回该 owner 的链接，插入序倒排（最新创建在前），清扫先行。
func (r *LinksRepo) List(ctx context.Context, ownerID string, f Filter, now time.Time) ([]links.Link, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, err := r.sweepLocked(ctx, now); err != nil {
		return nil, err
	}

	query := strings.ToLower(strings.TrimSpace(f.Query))
	var out []links.Link
	for i := len(r.store.state.Links) - 1; i >= 0; i-- {
		l := &r.store.state.Links[i]
		if l.OwnerID != ownerID {
			continue
		}
		if f.Status != "" && l.StatusAt(now) != f.Status {
			continue
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(l.Slug), query) &&
			!strings.Contains(strings.ToLower(l.DestinationURL), query) {
			continue
		}
		out = append(out, cloneLink(*l))
	}
	return out, nil
}

// Disable 是管理端的强制下线（不做 owner 校验）。已关闭时返回 ErrAlreadyDisabled。
func (r *LinksRepo) Disable(ctx context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	idx := r.findIndexByIDLocked(id)
	if idx < 0 {
		return links.ErrLinkNotFound
	}
	l := &r.store.state.Links[idx]
	if !l.Enabled {
		return ErrAlreadyDisabled
	}
	l.Enabled = false
	if err := r.store.persistLocked(ctx); err != nil {
		l.Enabled = true
		return err
	}
	if r.miss != nil {
		r.miss.Forget(strings.ToLower(l.Slug))
	}
	return nil
}
