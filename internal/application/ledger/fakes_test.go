package ledger

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/gamehub/backend/internal/domain/ledger"
	"github.com/gamehub/backend/internal/domain/partner"
	"github.com/gamehub/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// memState is the content of the fake database
type memState struct {
	partners     map[uuid.UUID]partner.Partner
	users        map[uuid.UUID]partner.EndUser
	entries      []ledger.Entry
	unreconciled map[uuid.UUID]ledger.UnreconciledSettlement
}

func (s *memState) clone() *memState {
	c := &memState{
		partners:     make(map[uuid.UUID]partner.Partner, len(s.partners)),
		users:        make(map[uuid.UUID]partner.EndUser, len(s.users)),
		entries:      append([]ledger.Entry(nil), s.entries...),
		unreconciled: make(map[uuid.UUID]ledger.UnreconciledSettlement, len(s.unreconciled)),
	}
	for k, v := range s.partners {
		c.partners[k] = v
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.unreconciled {
		c.unreconciled[k] = v
	}
	return c
}

// memScope runs fn against a copy of the state and publishes it only when
// fn succeeds, which gives all-or-nothing commits
type memScope struct {
	mu    sync.Mutex
	state *memState
	// failEntries makes every ledger insert fail
	failEntries bool
	// beforeSave runs before each partner CAS write, to simulate a racing writer
	beforeSave func(st *memState, id uuid.UUID)
}

func newMemScope() *memScope {
	return &memScope{state: &memState{
		partners:     map[uuid.UUID]partner.Partner{},
		users:        map[uuid.UUID]partner.EndUser{},
		unreconciled: map[uuid.UUID]ledger.UnreconciledSettlement{},
	}}
}

func (s *memScope) Execute(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := s.state.clone()
	if err := fn(&memRepos{scope: s, st: tx}); err != nil {
		return err
	}
	s.state = tx
	return nil
}

func (s *memScope) addPartner(p *partner.Partner) {
	s.state.partners[p.ID] = *p
}

func (s *memScope) addUser(u *partner.EndUser) {
	s.state.users[u.ID] = *u
}

func (s *memScope) partnerBalance(id uuid.UUID) decimal.Decimal {
	return s.state.partners[id].Balance
}

// setPartnerBalance commits a balance change made by another writer
func (s *memScope) setPartnerBalance(id uuid.UUID, balance decimal.Decimal) {
	p := s.state.partners[id]
	p.SetBalance(balance)
	s.state.partners[id] = p
}

func (s *memScope) userBalance(id uuid.UUID) decimal.Decimal {
	return s.state.users[id].Balance
}

type memRepos struct {
	scope *memScope
	st    *memState
}

func (r *memRepos) PartnerRepo() partner.PartnerRepository {
	return &memPartnerRepo{scope: r.scope, st: r.st}
}
func (r *memRepos) EndUserRepo() partner.EndUserRepository { return &memUserRepo{st: r.st} }
func (r *memRepos) EntryRepo() ledger.EntryRepository {
	return &memEntryRepo{st: r.st, fail: r.scope.failEntries}
}
func (r *memRepos) UnreconciledRepo() ledger.UnreconciledRepository {
	return &memUnreconciledRepo{st: r.st}
}

type memPartnerRepo struct {
	partner.PartnerRepository
	scope *memScope
	st    *memState
}

func (r *memPartnerRepo) FindByID(_ context.Context, id uuid.UUID) (*partner.Partner, error) {
	p, ok := r.st.partners[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &p, nil
}

func (r *memPartnerRepo) SaveWithLock(_ context.Context, p *partner.Partner) error {
	if r.scope.beforeSave != nil {
		r.scope.beforeSave(r.st, p.ID)
	}
	stored, ok := r.st.partners[p.ID]
	if !ok || stored.Version != p.Version-1 {
		return shared.ErrConcurrencyConflict
	}
	r.st.partners[p.ID] = *p
	return nil
}

type memUserRepo struct {
	partner.EndUserRepository
	st *memState
}

func (r *memUserRepo) FindByID(_ context.Context, id uuid.UUID) (*partner.EndUser, error) {
	u, ok := r.st.users[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &u, nil
}

func (r *memUserRepo) SaveWithLock(_ context.Context, u *partner.EndUser) error {
	stored, ok := r.st.users[u.ID]
	if !ok || stored.Version != u.Version-1 {
		return shared.ErrConcurrencyConflict
	}
	r.st.users[u.ID] = *u
	return nil
}

var errInsertFailed = errors.New("insert failed")

type memEntryRepo struct {
	st   *memState
	fail bool
}

func (r *memEntryRepo) Create(ctx context.Context, e *ledger.Entry) error {
	return r.CreateBatch(ctx, []*ledger.Entry{e})
}

func (r *memEntryRepo) CreateBatch(_ context.Context, entries []*ledger.Entry) error {
	if r.fail {
		return errInsertFailed
	}
	for _, e := range entries {
		r.st.entries = append(r.st.entries, *e)
	}
	return nil
}

func (r *memEntryRepo) FindByID(_ context.Context, id uuid.UUID) (*ledger.Entry, error) {
	for i := range r.st.entries {
		if r.st.entries[i].ID == id {
			e := r.st.entries[i]
			return &e, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memEntryRepo) FindByTransferID(_ context.Context, transferID uuid.UUID) ([]ledger.Entry, error) {
	var out []ledger.Entry
	for _, e := range r.st.entries {
		if e.TransferID != nil && *e.TransferID == transferID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memEntryRepo) FindAll(_ context.Context, filter ledger.EntryFilter) ([]ledger.Entry, error) {
	var out []ledger.Entry
	for _, e := range r.st.entries {
		if filter.Subject != nil && e.Subject() != *filter.Subject {
			continue
		}
		if filter.ScopePartnerIDs != nil && !inScope(r.st, e, filter.ScopePartnerIDs) {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *memEntryRepo) Count(ctx context.Context, filter ledger.EntryFilter) (int64, error) {
	rows, _ := r.FindAll(ctx, filter)
	return int64(len(rows)), nil
}

func inScope(st *memState, e ledger.Entry, ids []uuid.UUID) bool {
	owner := e.SubjectID
	if e.SubjectKind == ledger.SubjectUser {
		owner = st.users[e.SubjectID].ReferrerID
	}
	for _, id := range ids {
		if id == owner {
			return true
		}
	}
	return false
}

type memUnreconciledRepo struct {
	st *memState
}

func (r *memUnreconciledRepo) Create(_ context.Context, u *ledger.UnreconciledSettlement) error {
	r.st.unreconciled[u.ID] = *u
	return nil
}

func (r *memUnreconciledRepo) FindByID(_ context.Context, id uuid.UUID) (*ledger.UnreconciledSettlement, error) {
	u, ok := r.st.unreconciled[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &u, nil
}

func (r *memUnreconciledRepo) FindByStatus(_ context.Context, status ledger.ReconciliationStatus, _ shared.Filter) ([]ledger.UnreconciledSettlement, error) {
	var out []ledger.UnreconciledSettlement
	for _, u := range r.st.unreconciled {
		if u.Status == status {
			out = append(out, u)
		}
	}
	return out, nil
}

func (r *memUnreconciledRepo) CountByStatus(ctx context.Context, status ledger.ReconciliationStatus) (int64, error) {
	rows, _ := r.FindByStatus(ctx, status, shared.Filter{})
	return int64(len(rows)), nil
}

func (r *memUnreconciledRepo) SaveWithLock(_ context.Context, u *ledger.UnreconciledSettlement) error {
	stored, ok := r.st.unreconciled[u.ID]
	if !ok || stored.Version != u.Version-1 {
		return shared.ErrConcurrencyConflict
	}
	r.st.unreconciled[u.ID] = *u
	return nil
}

// scopeAccess sees the parties listed per actor; a nil scope means everything
type scopeAccess struct {
	scopes map[uuid.UUID][]uuid.UUID
	st     func() *memState
}

func (a *scopeAccess) CanAccessParty(_ context.Context, actor partner.Actor, party ledger.Party) (bool, error) {
	if actor.IsSystemAdmin() {
		return true, nil
	}
	owner := party.ID
	if party.Kind == ledger.SubjectUser {
		owner = a.st().users[party.ID].ReferrerID
	}
	for _, id := range a.scopes[actor.PartnerID] {
		if id == owner {
			return true, nil
		}
	}
	return false, nil
}

func (a *scopeAccess) ScopePartnerIDs(_ context.Context, actor partner.Actor) ([]uuid.UUID, error) {
	if actor.IsSystemAdmin() {
		return nil, nil
	}
	return a.scopes[actor.PartnerID], nil
}

// memStorage keeps uploaded objects in memory
type memStorage struct {
	objects map[string][]byte
	types   map[string]string
}

func newMemStorage() *memStorage {
	return &memStorage{objects: map[string][]byte{}, types: map[string]string{}}
}

func (s *memStorage) Upload(_ context.Context, key string, data []byte, contentType string) error {
	s.objects[key] = data
	s.types[key] = contentType
	return nil
}

func (s *memStorage) GenerateDownloadURL(_ context.Context, key string, expiresIn time.Duration) (string, time.Time, error) {
	if _, ok := s.objects[key]; !ok {
		return "", time.Time{}, shared.ErrNotFound
	}
	return "https://statements.example/" + key, time.Now().Add(expiresIn), nil
}
