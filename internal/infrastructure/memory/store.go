// Package memory is an in-process store with the same transactional
// guarantees as the postgres repositories. It backs tests and the "memory"
// driver for local runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/LavaJover/shvark-recovery-service/internal/domain"
)

type Store struct {
	mu       sync.Mutex
	requests map[string]*domain.RecoveryRequest
	audit    []*domain.AuditLogEntry
	wallets  map[string]*domain.CustodyWallet
	signers  map[string]*domain.Signer

	auditErr error
}

func NewStore() *Store {
	return &Store{
		requests: make(map[string]*domain.RecoveryRequest),
		wallets:  make(map[string]*domain.CustodyWallet),
		signers:  make(map[string]*domain.Signer),
	}
}

// FailAuditWrites makes every following audit write fail with err, which
// aborts the surrounding commit. Pass nil to restore.
func (s *Store) FailAuditWrites(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auditErr = err
}

func (s *Store) Create(_ context.Context, req *domain.RecoveryRequest, audit *domain.AuditLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.requests[req.ID]; ok {
		return fmt.Errorf("%w: request %s already exists", domain.ErrConflict, req.ID)
	}
	for _, existing := range s.requests {
		if existing.WalletID == req.WalletID && existing.Status.IsOpen() {
			return domain.ErrDuplicateRequest
		}
	}
	if s.auditErr != nil {
		return fmt.Errorf("write audit log: %w", s.auditErr)
	}
	req.Version = 1
	s.requests[req.ID] = req.Clone()
	s.audit = append(s.audit, cloneEntry(audit))
	return nil
}

func (s *Store) GetByID(_ context.Context, id string) (*domain.RecoveryRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return nil, fmt.Errorf("%w: recovery request %s", domain.ErrNotFound, id)
	}
	return req.Clone(), nil
}

func (s *Store) FindOpen(_ context.Context, userID, walletID string) (*domain.RecoveryRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, req := range s.requests {
		if req.UserID == userID && req.WalletID == walletID && req.Status.IsOpen() {
			return req.Clone(), nil
		}
	}
	return nil, fmt.Errorf("%w: no open request for wallet %s", domain.ErrNotFound, walletID)
}

func (s *Store) List(_ context.Context, filter domain.RecoveryFilter) ([]*domain.RecoveryRequest, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*domain.RecoveryRequest
	for _, req := range s.requests {
		if filter.Status != nil && req.Status != *filter.Status {
			continue
		}
		if filter.UserID != nil && req.UserID != *filter.UserID {
			continue
		}
		if filter.WalletID != nil && req.WalletID != *filter.WalletID {
			continue
		}
		matched = append(matched, req)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	page, limit := filter.Page, filter.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = len(matched)
	}
	start := (page - 1) * limit
	if start > len(matched) {
		start = len(matched)
	}
	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}

	out := make([]*domain.RecoveryRequest, 0, end-start)
	for _, req := range matched[start:end] {
		out = append(out, req.Clone())
	}
	return out, total, nil
}

func (s *Store) ListByStatus(_ context.Context, statuses ...domain.RecoveryStatus) ([]*domain.RecoveryRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	want := make(map[domain.RecoveryStatus]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}
	var out []*domain.RecoveryRequest
	for _, req := range s.requests {
		if want[req.Status] {
			out = append(out, req.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ExecutableAfter.Before(out[j].ExecutableAfter)
	})
	return out, nil
}

func (s *Store) Commit(_ context.Context, c *domain.Commit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.requests[c.Request.ID]
	if !ok {
		return fmt.Errorf("%w: recovery request %s", domain.ErrNotFound, c.Request.ID)
	}
	if current.Version != c.Request.Version || current.Status != c.ExpectedStatus {
		return domain.ErrStaleState
	}
	if c.NewApproval != nil && current.Approvals.Has(c.NewApproval.ApproverID) {
		return domain.ErrStaleState
	}
	if len(c.Audit) > 0 && s.auditErr != nil {
		return fmt.Errorf("write audit log: %w", s.auditErr)
	}
	if c.Rotation != nil {
		old, ok := s.signers[c.Rotation.OldSigner.ID]
		if !ok || old.Status != domain.SignerActive {
			return fmt.Errorf("apply signer rotation: %w: signer %s is no longer active", domain.ErrConflict, c.Rotation.OldSigner.ID)
		}
		if _, exists := s.signers[c.Rotation.NewSigner.ID]; exists {
			return fmt.Errorf("apply signer rotation: %w: signer %s exists", domain.ErrConflict, c.Rotation.NewSigner.ID)
		}
	}

	// All checks passed; apply every part.
	next := c.Request.Clone()
	next.Version = current.Version + 1
	s.requests[next.ID] = next
	for _, e := range c.Audit {
		s.audit = append(s.audit, cloneEntry(e))
	}
	if c.Rotation != nil {
		s.signers[c.Rotation.OldSigner.ID] = cloneSigner(c.Rotation.OldSigner)
		s.signers[c.Rotation.NewSigner.ID] = cloneSigner(c.Rotation.NewSigner)
	}
	c.Request.Version = next.Version
	return nil
}

func (s *Store) ListByRequest(_ context.Context, requestID string) ([]*domain.AuditLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.AuditLogEntry
	for _, e := range s.audit {
		if e.RecoveryRequestID == requestID {
			out = append(out, cloneEntry(e))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PerformedAt.Before(out[j].PerformedAt)
	})
	return out, nil
}

// PurgeBefore drops entries older than cutoff belonging to closed requests.
func (s *Store) PurgeBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.audit[:0]
	var purged int64
	for _, e := range s.audit {
		req, ok := s.requests[e.RecoveryRequestID]
		closed := ok && req.Status.IsTerminal()
		if closed && e.PerformedAt.Before(cutoff) {
			purged++
			continue
		}
		kept = append(kept, e)
	}
	s.audit = kept
	return purged, nil
}

func (s *Store) GetWallet(_ context.Context, walletID string) (*domain.CustodyWallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wallets[walletID]
	if !ok {
		return nil, fmt.Errorf("%w: custody wallet %s", domain.ErrNotFound, walletID)
	}
	c := *w
	return &c, nil
}

func (s *Store) SaveWallet(_ context.Context, wallet *domain.CustodyWallet) error {
	if err := wallet.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *wallet
	s.wallets[wallet.ID] = &c
	return nil
}

func (s *Store) ListSigners(_ context.Context, walletID string) ([]*domain.Signer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Signer
	for _, signer := range s.signers {
		if signer.WalletID == walletID {
			out = append(out, cloneSigner(signer))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) AddSigner(_ context.Context, signer *domain.Signer) error {
	if err := signer.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.wallets[signer.WalletID]; !ok {
		return fmt.Errorf("%w: custody wallet %s", domain.ErrNotFound, signer.WalletID)
	}
	if _, ok := s.signers[signer.ID]; ok {
		return fmt.Errorf("%w: signer %s already exists", domain.ErrConflict, signer.ID)
	}
	s.signers[signer.ID] = cloneSigner(signer)
	return nil
}

func cloneEntry(e *domain.AuditLogEntry) *domain.AuditLogEntry {
	c := *e
	if e.Details != nil {
		c.Details = make(map[string]any, len(e.Details))
		for k, v := range e.Details {
			c.Details[k] = v
		}
	}
	return &c
}

func cloneSigner(s *domain.Signer) *domain.Signer {
	c := *s
	if s.Metadata != nil {
		c.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}
