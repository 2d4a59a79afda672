package partner

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gamehub/backend/internal/domain/partner"
	"github.com/gamehub/backend/internal/domain/settlement"
	"github.com/gamehub/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// memPartnerRepo is an in-memory partner.PartnerRepository
type memPartnerRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]partner.Partner
}

func newMemPartnerRepo() *memPartnerRepo {
	return &memPartnerRepo{rows: map[uuid.UUID]partner.Partner{}}
}

func (r *memPartnerRepo) put(p *partner.Partner) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	cp.ClearEvents()
	r.rows[p.ID] = cp
}

func (r *memPartnerRepo) FindByID(_ context.Context, id uuid.UUID) (*partner.Partner, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.rows[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &p, nil
}

func (r *memPartnerRepo) FindByUsername(_ context.Context, username string) (*partner.Partner, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.rows {
		if p.Username == username {
			cp := p
			return &cp, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memPartnerRepo) FindChildrenOf(_ context.Context, parentIDs []uuid.UUID) ([]partner.Partner, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	want := map[uuid.UUID]bool{}
	for _, id := range parentIDs {
		want[id] = true
	}
	var out []partner.Partner
	for _, p := range r.rows {
		if p.ParentID != nil && want[*p.ParentID] {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *memPartnerRepo) FindByType(_ context.Context, t partner.PartnerType) ([]partner.Partner, error) {
	return r.filter(partner.PartnerFilter{Type: t}), nil
}

func (r *memPartnerRepo) filter(f partner.PartnerFilter) []partner.Partner {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids map[uuid.UUID]bool
	if f.IDs != nil {
		ids = map[uuid.UUID]bool{}
		for _, id := range f.IDs {
			ids[id] = true
		}
	}
	var out []partner.Partner
	for _, p := range r.rows {
		if ids != nil && !ids[p.ID] {
			continue
		}
		if f.Type != "" && p.Type != f.Type {
			continue
		}
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		if f.ParentID != nil && (p.ParentID == nil || *p.ParentID != *f.ParentID) {
			continue
		}
		if f.Search != "" && !strings.Contains(strings.ToLower(p.Username+p.Nickname), strings.ToLower(f.Search)) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (r *memPartnerRepo) FindAll(_ context.Context, f partner.PartnerFilter) ([]partner.Partner, error) {
	return r.filter(f), nil
}

func (r *memPartnerRepo) Count(_ context.Context, f partner.PartnerFilter) (int64, error) {
	return int64(len(r.filter(f))), nil
}

func (r *memPartnerRepo) SumChildBalances(_ context.Context, parentID uuid.UUID, childType partner.PartnerType) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, p := range r.filter(partner.PartnerFilter{ParentID: &parentID, Type: childType}) {
		sum = sum.Add(p.Balance)
	}
	return sum, nil
}

func (r *memPartnerRepo) CountChildren(_ context.Context, parentID uuid.UUID) (int64, error) {
	return int64(len(r.filter(partner.PartnerFilter{ParentID: &parentID}))), nil
}

func (r *memPartnerRepo) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	_, err := r.FindByUsername(ctx, username)
	return err == nil, nil
}

func (r *memPartnerRepo) Save(_ context.Context, p *partner.Partner) error {
	r.put(p)
	return nil
}

func (r *memPartnerRepo) SaveWithLock(_ context.Context, p *partner.Partner) error {
	r.mu.Lock()
	stored, ok := r.rows[p.ID]
	r.mu.Unlock()
	if !ok {
		return shared.ErrNotFound
	}
	if stored.Version != p.Version-1 {
		return shared.ErrConcurrencyConflict
	}
	r.put(p)
	return nil
}

func (r *memPartnerRepo) UpdateLastLogin(_ context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.rows[id]
	if !ok {
		return shared.ErrNotFound
	}
	p.LastLoginAt = &at
	r.rows[id] = p
	return nil
}

func (r *memPartnerRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rows, id)
	return nil
}

// memUserRepo is an in-memory partner.EndUserRepository
type memUserRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]partner.EndUser
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{rows: map[uuid.UUID]partner.EndUser{}}
}

func (r *memUserRepo) FindByID(_ context.Context, id uuid.UUID) (*partner.EndUser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.rows[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &u, nil
}

func (r *memUserRepo) FindByUsername(_ context.Context, username string) (*partner.EndUser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.rows {
		if u.Username == username {
			cp := u
			return &cp, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memUserRepo) filter(f partner.EndUserFilter) []partner.EndUser {
	r.mu.Lock()
	defer r.mu.Unlock()
	var refs map[uuid.UUID]bool
	if f.ReferrerIDs != nil {
		refs = map[uuid.UUID]bool{}
		for _, id := range f.ReferrerIDs {
			refs[id] = true
		}
	}
	var out []partner.EndUser
	for _, u := range r.rows {
		if refs != nil && !refs[u.ReferrerID] {
			continue
		}
		if f.Status != "" && u.Status != f.Status {
			continue
		}
		out = append(out, u)
	}
	return out
}

func (r *memUserRepo) FindAll(_ context.Context, f partner.EndUserFilter) ([]partner.EndUser, error) {
	return r.filter(f), nil
}

func (r *memUserRepo) Count(_ context.Context, f partner.EndUserFilter) (int64, error) {
	return int64(len(r.filter(f))), nil
}

func (r *memUserRepo) CountByReferrer(_ context.Context, referrerID uuid.UUID) (int64, error) {
	return int64(len(r.filter(partner.EndUserFilter{ReferrerIDs: []uuid.UUID{referrerID}}))), nil
}

func (r *memUserRepo) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	_, err := r.FindByUsername(ctx, username)
	return err == nil, nil
}

func (r *memUserRepo) Save(_ context.Context, u *partner.EndUser) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[u.ID] = *u
	return nil
}

func (r *memUserRepo) SaveWithLock(_ context.Context, u *partner.EndUser) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.rows[u.ID]
	if !ok {
		return shared.ErrNotFound
	}
	if stored.Version != u.Version-1 {
		return shared.ErrConcurrencyConflict
	}
	r.rows[u.ID] = *u
	return nil
}

// MockProvisioner is a mock implementation of AccountProvisioner
type MockProvisioner struct {
	mock.Mock
}

func (m *MockProvisioner) CreateAccount(ctx context.Context, account string, creds partner.Credentials) (*settlement.Result, error) {
	args := m.Called(ctx, account, creds)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settlement.Result), args.Error(1)
}

// testTree is a small partner tree:
//
//	admin -> head -> main -> sub
//	      -> head2
type testTree struct {
	partners *memPartnerRepo
	users    *memUserRepo
	admin    *partner.Partner
	head     *partner.Partner
	head2    *partner.Partner
	main     *partner.Partner
	sub      *partner.Partner
}

func mustPartner(username string, pt partner.PartnerType, parent *partner.Partner, rates partner.CommissionRates, createdAt time.Time) *partner.Partner {
	p, err := partner.NewPartner(username, "", pt, parent, rates)
	if err != nil {
		panic(err)
	}
	p.CreatedAt = createdAt
	return p
}

func newTestTree() *testTree {
	t0 := time.Now().Add(-time.Hour)
	tr := &testTree{partners: newMemPartnerRepo(), users: newMemUserRepo()}
	tr.admin = mustPartner("sysadmin", partner.PartnerTypeSystemAdmin, nil, partner.FullCommission(), t0)
	tr.admin.Credentials = partner.Credentials{Opcode: "ROOT", SecretKey: "root-secret", APIToken: "root-token"}
	tr.head = mustPartner("head_one", partner.PartnerTypeHeadOffice, tr.admin, partner.FullCommission(), t0.Add(time.Minute))
	tr.head2 = mustPartner("head_two", partner.PartnerTypeHeadOffice, tr.admin, partner.FullCommission(), t0.Add(2*time.Minute))
	tr.main = mustPartner("main_one", partner.PartnerTypeMainOffice, tr.head, partner.NewCommissionRates(80, 70, 5), t0.Add(3*time.Minute))
	tr.main.Credentials = partner.Credentials{Opcode: "MAIN", SecretKey: "main-secret", APIToken: "main-token"}
	tr.sub = mustPartner("sub_one", partner.PartnerTypeSubOffice, tr.main, partner.NewCommissionRates(60, 50, 5), t0.Add(4*time.Minute))
	for _, p := range []*partner.Partner{tr.admin, tr.head, tr.head2, tr.main, tr.sub} {
		tr.partners.put(p)
	}
	return tr
}
