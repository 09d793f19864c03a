package repo

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"shortd.local/internal/app/links"
)

var ErrAccountNotFound = errors.New("account not found")
var ErrAccountAlreadyExists = errors.New("username already exists")
var ErrInvalidUsername = errors.New("username is not allowed")
var ErrInvalidPassword = errors.New("password is not allowed")

// AccountsRepo 管理 owner 账号，与链接共用同一个快照 Store。
type AccountsRepo struct {
	store *Store
}

func NewAccountsRepo(store *Store) *AccountsRepo {
	return &AccountsRepo{store: store}
}

func (a *AccountsRepo) findIndexByUsernameLocked(username string) int {
	for i := range a.store.state.Accounts {
		if strings.EqualFold(a.store.state.Accounts[i].Username, username) {
			return i
		}
	}
	return -1
}

// Register 创建账号。用户名 3~32、密码 8~72（bcrypt 上限），用户名大小写不敏感唯一。
func (a *AccountsRepo) Register(ctx context.Context, username, password string) (Account, error) {
	username = strings.TrimSpace(username)
	if len(username) < 3 || len(username) > 32 {
		return Account{}, ErrInvalidUsername
	}
	if len(password) < 8 || len(password) > 72 {
		return Account{}, ErrInvalidPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		slog.Error(err.Error())
		return Account{}, err
	}

	a.store.mu.Lock()
	defer a.store.mu.Unlock()

	if a.findIndexByUsernameLocked(username) >= 0 {
		return Account{}, ErrAccountAlreadyExists
	}
	acc := Account{
		ID:           links.NewID(),
		Username:     username,
		PasswordHash: string(hash),
		Role:         "user",
		CreatedAt:    time.Now().UTC(),
	}
	a.store.state.Accounts = append(a.store.state.Accounts, acc)
	if err := a.store.persistLocked(ctx); err != nil {
		a.store.state.Accounts = a.store.state.Accounts[:len(a.store.state.Accounts)-1]
		return Account{}, err
	}
	return acc, nil
}

func (a *AccountsRepo) FindByUsername(ctx context.Context, username string) (Account, error) {
	username = strings.TrimSpace(username)

	a.store.mu.Lock()
	defer a.store.mu.Unlock()

	idx := a.findIndexByUsernameLocked(username)
	if idx < 0 {
		return Account{}, ErrAccountNotFound
	}
	return a.store.state.Accounts[idx], nil
}

// EnsureAdmin 幂等地保证存在一个 admin 账号（hash 用 cmd/tools/hashpass 生成）。
// 已存在同名账号时把它提升为 admin 并更新密码哈希。
func (a *AccountsRepo) EnsureAdmin(ctx context.Context, username, passwordHash string) (Account, error) {
	username = strings.TrimSpace(username)
	if username == "" || passwordHash == "" {
		return Account{}, ErrInvalidUsername
	}

	a.store.mu.Lock()
	defer a.store.mu.Unlock()

	if idx := a.findIndexByUsernameLocked(username); idx >= 0 {
		prev := a.store.state.Accounts[idx]
		a.store.state.Accounts[idx].Role = "admin"
		a.store.state.Accounts[idx].PasswordHash = passwordHash
		if err := a.store.persistLocked(ctx); err != nil {
			a.store.state.Accounts[idx] = prev
			return Account{}, err
		}
		return a.store.state.Accounts[idx], nil
	}

	acc := Account{
		ID:           links.NewID(),
		Username:     username,
		PasswordHash: passwordHash,
		Role:         "admin",
		CreatedAt:    time.Now().UTC(),
	}
	a.store.state.Accounts = append(a.store.state.Accounts, acc)
	if err := a.store.persistLocked(ctx); err != nil {
		a.store.state.Accounts = a.store.state.Accounts[:len(a.store.state.Accounts)-1]
		return Account{}, err
	}
	return acc, nil
}
