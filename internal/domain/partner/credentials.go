package partner

import (
	"context"
	"fmt"

	"github.com/gamehub/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// MaxCredentialHops bounds the ancestor walk when resolving inherited credentials
const MaxCredentialHops = 10

// Error codes raised while resolving aggregator credentials
const (
	CodeCredentialsNotFound      = "CREDENTIALS_NOT_FOUND"
	CodeCredentialDepthExceeded  = "CREDENTIAL_DEPTH_EXCEEDED"
	credentialsContactHigherTier = "contact a higher-tier administrator to configure aggregator access"
)

// Credentials identify a reseller's account on the external aggregator
type Credentials struct {
	Opcode    string `json:"opcode"`
	SecretKey string `json:"-"`
	APIToken  string `json:"-"`
}

// IsComplete reports whether all three fields are set
func (c Credentials) IsComplete() bool {
	return c.Opcode != "" && c.SecretKey != "" && c.APIToken != ""
}

// IsEmpty reports whether no field is set
func (c Credentials) IsEmpty() bool {
	return c.Opcode == "" && c.SecretKey == "" && c.APIToken == ""
}

// ResolvedCredentials are credentials together with the partner that owns them
type ResolvedCredentials struct {
	Credentials
	OwnerID uuid.UUID
	Hops    int
}

// PartnerLoader loads a single partner by id
type PartnerLoader func(ctx context.Context, id uuid.UUID) (*Partner, error)

// ResolveCredentials walks from start up the parent chain until it finds a
// partner with complete credentials. The walk visits at most
// MaxCredentialHops ancestors after start.
func ResolveCredentials(ctx context.Context, start *Partner, load PartnerLoader) (*ResolvedCredentials, error) {
	current := start
	for hops := 0; ; hops++ {
		if current.Credentials.IsComplete() {
			return &ResolvedCredentials{
				Credentials: current.Credentials,
				OwnerID:     current.ID,
				Hops:        hops,
			}, nil
		}
		if current.ParentID == nil {
			return nil, shared.NewDomainError(CodeCredentialsNotFound,
				fmt.Sprintf("no ancestor of %s has aggregator credentials; %s", start.Username, credentialsContactHigherTier))
		}
		if hops >= MaxCredentialHops {
			return nil, shared.NewDomainError(CodeCredentialDepthExceeded,
				fmt.Sprintf("credential lookup for %s exceeded %d ancestors; %s", start.Username, MaxCredentialHops, credentialsContactHigherTier))
		}
		parent, err := load(ctx, *current.ParentID)
		if err != nil {
			return nil, fmt.Errorf("load ancestor %s: %w", current.ParentID, err)
		}
		current = parent
	}
}
