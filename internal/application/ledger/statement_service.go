package ledger

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"time"

	"github.com/gamehub/backend/internal/domain/ledger"
	"github.com/gamehub/backend/internal/domain/partner"
	"github.com/gamehub/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// statement exports are capped to keep a single upload bounded
const maxStatementRows = 50000

// StatementStorage is the object store statements are uploaded to
type StatementStorage interface {
	Upload(ctx context.Context, storageKey string, data []byte, contentType string) error
	GenerateDownloadURL(ctx context.Context, storageKey string, expiresIn time.Duration) (string, time.Time, error)
}

// StatementRequest selects the rows of one party's statement
type StatementRequest struct {
	Party ledger.Party
	From  *time.Time
	To    *time.Time
}

// StatementResponse points at an exported statement
type StatementResponse struct {
	StorageKey  string    `json:"storage_key"`
	DownloadURL string    `json:"download_url"`
	ExpiresAt   time.Time `json:"expires_at"`
	Rows        int       `json:"rows"`
}

// StatementService renders ledger statements as CSV and uploads them
type StatementService struct {
	entryRepo ledger.EntryRepository
	storage   StatementStorage
	access    AccessChecker
	urlTTL    time.Duration
	logger    *zap.Logger
}

// NewStatementService creates a new StatementService
func NewStatementService(entryRepo ledger.EntryRepository, storage StatementStorage, access AccessChecker, urlTTL time.Duration, logger *zap.Logger) *StatementService {
	if urlTTL <= 0 {
		urlTTL = 15 * time.Minute
	}
	return &StatementService{
		entryRepo: entryRepo,
		storage:   storage,
		access:    access,
		urlTTL:    urlTTL,
		logger:    logger,
	}
}

var statementHeader = []string{
	"created_at", "transfer_id", "transaction_type", "amount",
	"balance_before", "balance_after", "from_party_id", "to_party_id", "processed_by", "memo",
}

// Export writes the party's ledger rows to a CSV object and returns a
// presigned download URL
func (s *StatementService) Export(ctx context.Context, actor partner.Actor, req StatementRequest) (*StatementResponse, error) {
	ok, err := s.access.CanAccessParty(ctx, actor, req.Party)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, shared.ErrForbidden
	}

	filter := ledger.EntryFilter{
		Filter:  shared.Filter{Page: 1, PageSize: maxStatementRows, OrderBy: "created_at", OrderDir: "asc"},
		Subject: &req.Party,
		From:    req.From,
		To:      req.To,
	}
	entries, err := s.entryRepo.FindAll(ctx, filter)
	if err != nil {
		return nil, err
	}

	data, err := renderStatement(entries)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("statements/%s/%s/%s.csv", req.Party.Kind, req.Party.ID, time.Now().UTC().Format("20060102T150405Z"))
	if err := s.storage.Upload(ctx, key, data, "text/csv"); err != nil {
		return nil, fmt.Errorf("upload statement: %w", err)
	}
	url, expiresAt, err := s.storage.GenerateDownloadURL(ctx, key, s.urlTTL)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Statement exported",
		zap.String("party", req.Party.String()),
		zap.String("key", key),
		zap.Int("rows", len(entries)))

	return &StatementResponse{StorageKey: key, DownloadURL: url, ExpiresAt: expiresAt, Rows: len(entries)}, nil
}

func renderStatement(entries []ledger.Entry) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(statementHeader); err != nil {
		return nil, err
	}
	for i := range entries {
		e := &entries[i]
		if err := w.Write([]string{
			e.CreatedAt.UTC().Format(time.RFC3339),
			optionalID(e.TransferID),
			string(e.TransactionType),
			e.Amount.StringFixed(4),
			e.BalanceBefore.StringFixed(4),
			e.BalanceAfter.StringFixed(4),
			optionalID(e.FromPartyID),
			optionalID(e.ToPartyID),
			e.ProcessedBy.String(),
			e.Memo,
		}); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}
