package transfer

import (
	"context"
	"sync"
	"time"

	ledgerapp "github.com/gamehub/backend/internal/application/ledger"
	"github.com/gamehub/backend/internal/domain/ledger"
	"github.com/gamehub/backend/internal/domain/partner"
	"github.com/gamehub/backend/internal/domain/settlement"
	"github.com/gamehub/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// memPartners implements partner.PartnerRepository over a map
type memPartners struct {
	rows map[uuid.UUID]partner.Partner
}

func (r *memPartners) FindByID(_ context.Context, id uuid.UUID) (*partner.Partner, error) {
	p, ok := r.rows[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &p, nil
}

func (r *memPartners) FindByUsername(_ context.Context, username string) (*partner.Partner, error) {
	for _, p := range r.rows {
		if p.Username == username {
			cp := p
			return &cp, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memPartners) FindChildrenOf(_ context.Context, parentIDs []uuid.UUID) ([]partner.Partner, error) {
	var out []partner.Partner
	for _, p := range r.rows {
		for _, id := range parentIDs {
			if p.ParentID != nil && *p.ParentID == id {
				out = append(out, p)
			}
		}
	}
	return out, nil
}

func (r *memPartners) FindByType(_ context.Context, t partner.PartnerType) ([]partner.Partner, error) {
	var out []partner.Partner
	for _, p := range r.rows {
		if p.Type == t {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memPartners) FindAll(_ context.Context, _ partner.PartnerFilter) ([]partner.Partner, error) {
	out := make([]partner.Partner, 0, len(r.rows))
	for _, p := range r.rows {
		out = append(out, p)
	}
	return out, nil
}

func (r *memPartners) Count(_ context.Context, _ partner.PartnerFilter) (int64, error) {
	return int64(len(r.rows)), nil
}

func (r *memPartners) SumChildBalances(_ context.Context, parentID uuid.UUID, childType partner.PartnerType) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, p := range r.rows {
		if p.ParentID != nil && *p.ParentID == parentID && p.Type == childType {
			sum = sum.Add(p.Balance)
		}
	}
	return sum, nil
}

func (r *memPartners) CountChildren(ctx context.Context, parentID uuid.UUID) (int64, error) {
	children, _ := r.FindChildrenOf(ctx, []uuid.UUID{parentID})
	return int64(len(children)), nil
}

func (r *memPartners) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	_, err := r.FindByUsername(ctx, username)
	return err == nil, nil
}

func (r *memPartners) Save(_ context.Context, p *partner.Partner) error {
	r.rows[p.ID] = *p
	return nil
}

func (r *memPartners) SaveWithLock(_ context.Context, p *partner.Partner) error {
	stored, ok := r.rows[p.ID]
	if !ok || stored.Version != p.Version-1 {
		return shared.ErrConcurrencyConflict
	}
	r.rows[p.ID] = *p
	return nil
}

func (r *memPartners) UpdateLastLogin(_ context.Context, _ uuid.UUID, _ time.Time) error {
	return nil
}

func (r *memPartners) Delete(_ context.Context, id uuid.UUID) error {
	delete(r.rows, id)
	return nil
}

// memUsers implements partner.EndUserRepository over a map
type memUsers struct {
	rows map[uuid.UUID]partner.EndUser
}

func (r *memUsers) FindByID(_ context.Context, id uuid.UUID) (*partner.EndUser, error) {
	u, ok := r.rows[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &u, nil
}

func (r *memUsers) FindByUsername(_ context.Context, username string) (*partner.EndUser, error) {
	for _, u := range r.rows {
		if u.Username == username {
			cp := u
			return &cp, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memUsers) FindAll(_ context.Context, _ partner.EndUserFilter) ([]partner.EndUser, error) {
	out := make([]partner.EndUser, 0, len(r.rows))
	for _, u := range r.rows {
		out = append(out, u)
	}
	return out, nil
}

func (r *memUsers) Count(_ context.Context, _ partner.EndUserFilter) (int64, error) {
	return int64(len(r.rows)), nil
}

func (r *memUsers) CountByReferrer(_ context.Context, referrerID uuid.UUID) (int64, error) {
	var n int64
	for _, u := range r.rows {
		if u.ReferrerID == referrerID {
			n++
		}
	}
	return n, nil
}

func (r *memUsers) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	_, err := r.FindByUsername(ctx, username)
	return err == nil, nil
}

func (r *memUsers) Save(_ context.Context, u *partner.EndUser) error {
	r.rows[u.ID] = *u
	return nil
}

func (r *memUsers) SaveWithLock(_ context.Context, u *partner.EndUser) error {
	stored, ok := r.rows[u.ID]
	if !ok || stored.Version != u.Version-1 {
		return shared.ErrConcurrencyConflict
	}
	r.rows[u.ID] = *u
	return nil
}

// subtreeAccess grants an actor access to an explicit set of party ids
type subtreeAccess map[uuid.UUID][]uuid.UUID

func (a subtreeAccess) CanAccessParty(_ context.Context, actor partner.Actor, party ledger.Party) (bool, error) {
	if actor.IsSystemAdmin() {
		return true, nil
	}
	for _, id := range a[actor.PartnerID] {
		if id == party.ID {
			return true, nil
		}
	}
	return false, nil
}

// MockResolver is a mock implementation of CredentialResolver
type MockResolver struct {
	mock.Mock
}

func (m *MockResolver) Resolve(ctx context.Context, party ledger.Party) (*partner.ResolvedCredentials, error) {
	args := m.Called(ctx, party)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*partner.ResolvedCredentials), args.Error(1)
}

// MockGateway is a mock implementation of settlement.Gateway
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) Deposit(ctx context.Context, req settlement.Request) (*settlement.Result, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settlement.Result), args.Error(1)
}

func (m *MockGateway) Withdraw(ctx context.Context, req settlement.Request) (*settlement.Result, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settlement.Result), args.Error(1)
}

func (m *MockGateway) CreateAccount(ctx context.Context, account string, creds partner.Credentials) (*settlement.Result, error) {
	args := m.Called(ctx, account, creds)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settlement.Result), args.Error(1)
}

// MockLedger is a mock implementation of LedgerWriter
type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) ApplyPairedMutation(ctx context.Context, mut ledgerapp.PairedMutation) (*ledgerapp.MutationResult, error) {
	args := m.Called(ctx, mut)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledgerapp.MutationResult), args.Error(1)
}

func (m *MockLedger) ApplySingleMutation(ctx context.Context, mut ledgerapp.SingleMutation) (*ledgerapp.MutationResult, error) {
	args := m.Called(ctx, mut)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledgerapp.MutationResult), args.Error(1)
}

// worldScope runs ledger commits straight against the world's maps. It
// does not roll back, so tests using it only fail before the first write.
type worldScope struct {
	w       *world
	entries memEntries
}

func (s *worldScope) Execute(_ context.Context, fn func(repos ledgerapp.TransactionalRepositories) error) error {
	return fn(s)
}

func (s *worldScope) PartnerRepo() partner.PartnerRepository          { return s.w.partners }
func (s *worldScope) EndUserRepo() partner.EndUserRepository          { return s.w.users }
func (s *worldScope) EntryRepo() ledger.EntryRepository               { return &s.entries }
func (s *worldScope) UnreconciledRepo() ledger.UnreconciledRepository { return nil }

// memEntries keeps inserted ledger rows; queries are not needed here
type memEntries struct {
	ledger.EntryRepository
	rows []*ledger.Entry
}

func (r *memEntries) Create(_ context.Context, e *ledger.Entry) error {
	r.rows = append(r.rows, e)
	return nil
}

func (r *memEntries) CreateBatch(_ context.Context, entries []*ledger.Entry) error {
	r.rows = append(r.rows, entries...)
	return nil
}

// reentrantGateway accepts every call and runs during once, inside the
// first settlement
type reentrantGateway struct {
	during func()
	calls  int
}

func (g *reentrantGateway) settle() (*settlement.Result, error) {
	g.calls++
	if g.calls == 1 && g.during != nil {
		g.during()
	}
	return &settlement.Result{Raw: `{"RESULT":true}`}, nil
}

func (g *reentrantGateway) Deposit(_ context.Context, _ settlement.Request) (*settlement.Result, error) {
	return g.settle()
}

func (g *reentrantGateway) Withdraw(_ context.Context, _ settlement.Request) (*settlement.Result, error) {
	return g.settle()
}

func (g *reentrantGateway) CreateAccount(_ context.Context, _ string, _ partner.Credentials) (*settlement.Result, error) {
	return &settlement.Result{}, nil
}

// recordingRecorder keeps every unreconciled settlement it is handed
type recordingRecorder struct {
	mu      sync.Mutex
	records []*ledger.UnreconciledSettlement
}

func (r *recordingRecorder) Record(_ context.Context, rec *ledger.UnreconciledSettlement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

// capturingPublisher keeps every published event
type capturingPublisher struct {
	events []shared.DomainEvent
}

func (p *capturingPublisher) Publish(_ context.Context, events ...shared.DomainEvent) error {
	p.events = append(p.events, events...)
	return nil
}

// world is a small tree with balances:
//
//	admin -> head(1000) -> main1(300) -> sub(50) -> player(20)
//	                    -> main2(200)             -> blocked player(5)
type world struct {
	partners *memPartners
	users    *memUsers
	admin    *partner.Partner
	head     *partner.Partner
	main1    *partner.Partner
	main2    *partner.Partner
	sub      *partner.Partner
	player   *partner.EndUser
	blocked  *partner.EndUser
	access   subtreeAccess
}

func withBalance(p *partner.Partner, amount int64) *partner.Partner {
	p.Balance = decimal.NewFromInt(amount)
	return p
}

func mustNewPartner(username string, pt partner.PartnerType, parent *partner.Partner, rates partner.CommissionRates) *partner.Partner {
	p, err := partner.NewPartner(username, "", pt, parent, rates)
	if err != nil {
		panic(err)
	}
	return p
}

func mustNewUser(username string, referrer *partner.Partner, status partner.EndUserStatus, balance int64) *partner.EndUser {
	u, err := partner.NewEndUser(username, "", referrer)
	if err != nil {
		panic(err)
	}
	if err := u.ChangeStatus(status); err != nil {
		panic(err)
	}
	u.Balance = decimal.NewFromInt(balance)
	return u
}

func newWorld() *world {
	w := &world{
		partners: &memPartners{rows: map[uuid.UUID]partner.Partner{}},
		users:    &memUsers{rows: map[uuid.UUID]partner.EndUser{}},
	}
	w.admin = mustNewPartner("gh_admin", partner.PartnerTypeSystemAdmin, nil, partner.FullCommission())
	w.head = withBalance(mustNewPartner("gh_head", partner.PartnerTypeHeadOffice, w.admin, partner.FullCommission()), 1000)
	w.main1 = withBalance(mustNewPartner("gh_main_one", partner.PartnerTypeMainOffice, w.head, partner.NewCommissionRates(80, 70, 5)), 300)
	w.main2 = withBalance(mustNewPartner("gh_main_two", partner.PartnerTypeMainOffice, w.head, partner.NewCommissionRates(80, 70, 5)), 200)
	w.sub = withBalance(mustNewPartner("gh_sub", partner.PartnerTypeSubOffice, w.main1, partner.NewCommissionRates(60, 50, 5)), 50)
	w.player = mustNewUser("gh_player", w.sub, partner.EndUserStatusActive, 20)
	w.blocked = mustNewUser("gh_blocked", w.sub, partner.EndUserStatusBlocked, 5)

	for _, p := range []*partner.Partner{w.admin, w.head, w.main1, w.main2, w.sub} {
		w.partners.rows[p.ID] = *p
	}
	for _, u := range []*partner.EndUser{w.player, w.blocked} {
		w.users.rows[u.ID] = *u
	}

	w.access = subtreeAccess{
		w.head.ID:  {w.head.ID, w.main1.ID, w.main2.ID, w.sub.ID, w.player.ID, w.blocked.ID},
		w.main1.ID: {w.main1.ID, w.sub.ID, w.player.ID, w.blocked.ID},
		w.main2.ID: {w.main2.ID},
		w.sub.ID:   {w.sub.ID, w.player.ID, w.blocked.ID},
	}
	return w
}
