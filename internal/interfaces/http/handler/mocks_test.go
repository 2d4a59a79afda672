package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	ledgerapp "github.com/gamehub/backend/internal/application/ledger"
	partnerapp "github.com/gamehub/backend/internal/application/partner"
	transferapp "github.com/gamehub/backend/internal/application/transfer"
	"github.com/gamehub/backend/internal/domain/ledger"
	"github.com/gamehub/backend/internal/domain/partner"
	"github.com/gamehub/backend/internal/domain/shared"
	"github.com/gamehub/backend/internal/domain/transfer"
	"github.com/gamehub/backend/internal/infrastructure/auth"
	"github.com/gamehub/backend/internal/interfaces/http/dto"
	"github.com/gamehub/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
	middleware.SetupValidator()
}

var (
	adminActor = partner.Actor{PartnerID: uuid.New(), Type: partner.PartnerTypeSystemAdmin, Username: "admin"}
	storeActor = partner.Actor{PartnerID: uuid.New(), Type: partner.PartnerTypeStore, Username: "store01"}
)

// newRouter returns an engine that authenticates every request as actor.
// A nil actor leaves the request anonymous.
func newRouter(actor *partner.Actor) *gin.Engine {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.RequestIDKey, "req-test")
		if actor != nil {
			c.Set(middleware.ActorKey, *actor)
		}
		c.Next()
	})
	return r
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) dto.Response {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

// MockAuthService mocks AuthUseCase
type MockAuthService struct {
	mock.Mock
}

func (m *MockAuthService) Login(ctx context.Context, input partnerapp.LoginInput) (*partnerapp.LoginResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*partnerapp.LoginResult), args.Error(1)
}

func (m *MockAuthService) RefreshToken(ctx context.Context, refreshToken string) (*auth.TokenPair, error) {
	args := m.Called(ctx, refreshToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.TokenPair), args.Error(1)
}

func (m *MockAuthService) Logout(ctx context.Context, input partnerapp.LogoutInput) error {
	return m.Called(ctx, input).Error(0)
}

func (m *MockAuthService) CurrentPartner(ctx context.Context, partnerID uuid.UUID) (*partnerapp.PartnerResponse, error) {
	args := m.Called(ctx, partnerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*partnerapp.PartnerResponse), args.Error(1)
}

// MockPartnerService mocks PartnerUseCase and HierarchyUseCase
type MockPartnerService struct {
	mock.Mock
}

func (m *MockPartnerService) response(args mock.Arguments) (*partnerapp.PartnerResponse, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*partnerapp.PartnerResponse), args.Error(1)
}

func (m *MockPartnerService) Create(ctx context.Context, actor partner.Actor, req partnerapp.CreatePartnerRequest) (*partnerapp.PartnerResponse, error) {
	return m.response(m.Called(ctx, actor, req))
}

func (m *MockPartnerService) GetByID(ctx context.Context, actor partner.Actor, id uuid.UUID) (*partnerapp.PartnerResponse, error) {
	return m.response(m.Called(ctx, actor, id))
}

func (m *MockPartnerService) List(ctx context.Context, actor partner.Actor, filter partnerapp.PartnerListFilter) ([]partnerapp.PartnerResponse, int64, error) {
	args := m.Called(ctx, actor, filter)
	return args.Get(0).([]partnerapp.PartnerResponse), args.Get(1).(int64), args.Error(2)
}

func (m *MockPartnerService) Update(ctx context.Context, actor partner.Actor, id uuid.UUID, req partnerapp.UpdatePartnerRequest) (*partnerapp.PartnerResponse, error) {
	return m.response(m.Called(ctx, actor, id, req))
}

func (m *MockPartnerService) ChangeStatus(ctx context.Context, actor partner.Actor, id uuid.UUID, req partnerapp.ChangePartnerStatusRequest) (*partnerapp.PartnerResponse, error) {
	return m.response(m.Called(ctx, actor, id, req))
}

func (m *MockPartnerService) SetCredentials(ctx context.Context, actor partner.Actor, id uuid.UUID, req partnerapp.SetCredentialsRequest) (*partnerapp.PartnerResponse, error) {
	return m.response(m.Called(ctx, actor, id, req))
}

func (m *MockPartnerService) Delete(ctx context.Context, actor partner.Actor, id uuid.UUID) error {
	return m.Called(ctx, actor, id).Error(0)
}

func (m *MockPartnerService) Subtree(ctx context.Context, actor partner.Actor, partnerID uuid.UUID) (*partnerapp.SubtreeResponse, error) {
	args := m.Called(ctx, actor, partnerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*partnerapp.SubtreeResponse), args.Error(1)
}

func (m *MockPartnerService) FindHierarchyGap(ctx context.Context, actor partner.Actor, targetType partner.PartnerType) (*partner.HierarchyGap, error) {
	args := m.Called(ctx, actor, targetType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*partner.HierarchyGap), args.Error(1)
}

// MockEndUserService mocks EndUserUseCase
type MockEndUserService struct {
	mock.Mock
}

func (m *MockEndUserService) response(args mock.Arguments) (*partnerapp.EndUserResponse, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*partnerapp.EndUserResponse), args.Error(1)
}

func (m *MockEndUserService) Create(ctx context.Context, actor partner.Actor, req partnerapp.CreateEndUserRequest) (*partnerapp.EndUserResponse, error) {
	return m.response(m.Called(ctx, actor, req))
}

func (m *MockEndUserService) GetByID(ctx context.Context, actor partner.Actor, id uuid.UUID) (*partnerapp.EndUserResponse, error) {
	return m.response(m.Called(ctx, actor, id))
}

func (m *MockEndUserService) List(ctx context.Context, actor partner.Actor, filter partnerapp.EndUserListFilter) ([]partnerapp.EndUserResponse, int64, error) {
	args := m.Called(ctx, actor, filter)
	return args.Get(0).([]partnerapp.EndUserResponse), args.Get(1).(int64), args.Error(2)
}

func (m *MockEndUserService) ChangeStatus(ctx context.Context, actor partner.Actor, id uuid.UUID, req partnerapp.ChangeEndUserStatusRequest) (*partnerapp.EndUserResponse, error) {
	return m.response(m.Called(ctx, actor, id, req))
}

// MockOrchestrator mocks TransferExecutor
type MockOrchestrator struct {
	mock.Mock
}

func (m *MockOrchestrator) Execute(ctx context.Context, actor partner.Actor, req transfer.Request) (*transferapp.Result, error) {
	args := m.Called(ctx, actor, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*transferapp.Result), args.Error(1)
}

// MockLedgerService mocks LedgerQuery, StatementExporter and
// ReconciliationUseCase
type MockLedgerService struct {
	mock.Mock
}

func (m *MockLedgerService) ListEntries(ctx context.Context, actor partner.Actor, filter ledger.EntryFilter) ([]ledgerapp.EntryResponse, int64, error) {
	args := m.Called(ctx, actor, filter)
	return args.Get(0).([]ledgerapp.EntryResponse), args.Get(1).(int64), args.Error(2)
}

func (m *MockLedgerService) GetTransfer(ctx context.Context, actor partner.Actor, transferID uuid.UUID) ([]ledgerapp.EntryResponse, error) {
	args := m.Called(ctx, actor, transferID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ledgerapp.EntryResponse), args.Error(1)
}

func (m *MockLedgerService) Export(ctx context.Context, actor partner.Actor, req ledgerapp.StatementRequest) (*ledgerapp.StatementResponse, error) {
	args := m.Called(ctx, actor, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledgerapp.StatementResponse), args.Error(1)
}

func (m *MockLedgerService) ListPending(ctx context.Context, filter shared.Filter) ([]ledgerapp.UnreconciledResponse, int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]ledgerapp.UnreconciledResponse), args.Get(1).(int64), args.Error(2)
}

func (m *MockLedgerService) PendingCount(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockLedgerService) Resolve(ctx context.Context, actor partner.Actor, id uuid.UUID) (*ledgerapp.UnreconciledResponse, error) {
	args := m.Called(ctx, actor, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledgerapp.UnreconciledResponse), args.Error(1)
}

// MockPartyAccess mocks PartyAccessChecker
type MockPartyAccess struct {
	mock.Mock
}

func (m *MockPartyAccess) CanAccessParty(ctx context.Context, actor partner.Actor, party ledger.Party) (bool, error) {
	args := m.Called(ctx, actor, party)
	return args.Bool(0), args.Error(1)
}
