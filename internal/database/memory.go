package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"authorization-server/internal/models"
)

// MemoryRepository is an in-process Repository used for development and
// tests. A single mutex makes the conditional updates atomic.
type MemoryRepository struct {
	mu      sync.Mutex
	clients map[string]models.Client
	codes   map[string]models.AuthorizationCode
	tokens  map[string]models.Token
	access  map[string]string // access hash -> token id
	refresh map[string]string // refresh hash -> token id
	users   map[string]models.User
}

// NewMemoryRepository returns an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		clients: make(map[string]models.Client),
		codes:   make(map[string]models.AuthorizationCode),
		tokens:  make(map[string]models.Token),
		access:  make(map[string]string),
		refresh: make(map[string]string),
		users:   make(map[string]models.User),
	}
}

func (m *MemoryRepository) Close() error { return nil }

func (m *MemoryRepository) Ping(context.Context) error { return nil }

func (m *MemoryRepository) CreateClient(_ context.Context, client *models.Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.clients[client.ID]; ok {
		return ErrConflict
	}
	m.clients[client.ID] = cloneClient(*client)
	return nil
}

func (m *MemoryRepository) GetClientByID(_ context.Context, clientID string) (*models.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[clientID]
	if !ok {
		return nil, nil
	}
	c = cloneClient(c)
	return &c, nil
}

func (m *MemoryRepository) UpdateClient(_ context.Context, client *models.Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.clients[client.ID]; !ok {
		return ErrNotFound
	}
	m.clients[client.ID] = cloneClient(*client)
	return nil
}

func (m *MemoryRepository) ListClients(context.Context) ([]*models.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	clients := make([]*models.Client, 0, len(m.clients))
	for _, c := range m.clients {
		c := cloneClient(c)
		clients = append(clients, &c)
	}
	sort.Slice(clients, func(i, j int) bool {
		if clients[i].CreatedAt.Equal(clients[j].CreatedAt) {
			return clients[i].ID < clients[j].ID
		}
		return clients[i].CreatedAt.Before(clients[j].CreatedAt)
	})
	return clients, nil
}

func (m *MemoryRepository) DeleteClient(_ context.Context, clientID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.clients[clientID]; !ok {
		return ErrNotFound
	}
	delete(m.clients, clientID)
	for hash, code := range m.codes {
		if code.ClientID == clientID {
			delete(m.codes, hash)
		}
	}
	for id, tok := range m.tokens {
		if tok.ClientID == clientID {
			m.dropToken(id, tok)
		}
	}
	return nil
}

func (m *MemoryRepository) SaveAuthorizationCode(_ context.Context, code *models.AuthorizationCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.clients[code.ClientID]; !ok {
		return ErrNotFound
	}
	if _, ok := m.codes[code.CodeHash]; ok {
		return ErrConflict
	}
	m.codes[code.CodeHash] = *code
	return nil
}

func (m *MemoryRepository) GetAuthorizationCode(_ context.Context, codeHash string) (*models.AuthorizationCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	code, ok := m.codes[codeHash]
	if !ok {
		return nil, nil
	}
	return &code, nil
}

func (m *MemoryRepository) DeleteAuthorizationCode(_ context.Context, codeHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.codes, codeHash)
	return nil
}

func (m *MemoryRepository) RedeemAuthorizationCode(_ context.Context, codeHash string, token *models.Token, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	code, ok := m.codes[codeHash]
	if !ok || !code.IsValid(now) {
		return ErrCodeNotRedeemable
	}
	if err := m.insertToken(token); err != nil {
		return err
	}
	code.Used = true
	m.codes[codeHash] = code
	return nil
}

func (m *MemoryRepository) CreateToken(_ context.Context, token *models.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertToken(token)
}

func (m *MemoryRepository) GetTokenByAccessHash(_ context.Context, hash string) (*models.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lookup(m.access, hash), nil
}

func (m *MemoryRepository) GetTokenByRefreshHash(_ context.Context, hash string) (*models.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lookup(m.refresh, hash), nil
}

func (m *MemoryRepository) RotateToken(_ context.Context, oldID string, next *models.Token, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.tokens[oldID]
	if !ok || !old.RefreshValid(now) {
		return ErrTokenNotRotatable
	}
	if err := m.insertToken(next); err != nil {
		return err
	}
	markRevoked(&old, now)
	m.tokens[oldID] = old
	return nil
}

func (m *MemoryRepository) RevokeToken(_ context.Context, tokenID string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tok, ok := m.tokens[tokenID]
	if !ok || tok.Revoked {
		return nil
	}
	markRevoked(&tok, now)
	m.tokens[tokenID] = tok
	return nil
}

func (m *MemoryRepository) RevokeTokenFamily(_ context.Context, familyID string, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.revokeFamilies(map[string]bool{familyID: true}, now), nil
}

func (m *MemoryRepository) RevokeTokensForCode(_ context.Context, codeHash string, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	families := make(map[string]bool)
	for _, tok := range m.tokens {
		if tok.CodeHash == codeHash {
			families[tok.FamilyID] = true
		}
	}
	return m.revokeFamilies(families, now), nil
}

func (m *MemoryRepository) GetUserByID(_ context.Context, userID string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (m *MemoryRepository) UpsertUser(_ context.Context, user models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	if existing, ok := m.users[user.ID]; ok {
		user.CreatedAt = existing.CreatedAt
	} else {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	m.users[user.ID] = user
	return nil
}

// insertToken must be called with mu held.
func (m *MemoryRepository) insertToken(token *models.Token) error {
	if _, ok := m.clients[token.ClientID]; !ok {
		return ErrNotFound
	}
	if _, ok := m.tokens[token.ID]; ok {
		return ErrConflict
	}
	if _, ok := m.access[token.AccessTokenHash]; ok {
		return ErrConflict
	}
	if token.RefreshTokenHash != "" {
		if _, ok := m.refresh[token.RefreshTokenHash]; ok {
			return ErrConflict
		}
		m.refresh[token.RefreshTokenHash] = token.ID
	}
	m.access[token.AccessTokenHash] = token.ID
	m.tokens[token.ID] = *token
	return nil
}

func (m *MemoryRepository) dropToken(id string, tok models.Token) {
	delete(m.tokens, id)
	delete(m.access, tok.AccessTokenHash)
	if tok.RefreshTokenHash != "" {
		delete(m.refresh, tok.RefreshTokenHash)
	}
}

func (m *MemoryRepository) lookup(index map[string]string, hash string) *models.Token {
	id, ok := index[hash]
	if !ok {
		return nil
	}
	tok, ok := m.tokens[id]
	if !ok {
		return nil
	}
	return &tok
}

func (m *MemoryRepository) revokeFamilies(families map[string]bool, now time.Time) int64 {
	var n int64
	for id, tok := range m.tokens {
		if tok.Revoked || !families[tok.FamilyID] {
			continue
		}
		markRevoked(&tok, now)
		m.tokens[id] = tok
		n++
	}
	return n
}

func markRevoked(tok *models.Token, now time.Time) {
	tok.Revoked = true
	t := now
	tok.RevokedAt = &t
}

func cloneClient(c models.Client) models.Client {
	c.RedirectURIs = append([]string(nil), c.RedirectURIs...)
	c.Scopes = append([]string(nil), c.Scopes...)
	c.GrantTypes = append([]string(nil), c.GrantTypes...)
	c.ResponseTypes = append([]string(nil), c.ResponseTypes...)
	return c
}
