package domain

import "time"

type Approval struct {
	ApproverID string    `json:"approver_id"`
	ApprovedAt time.Time `json:"approved_at"`
}

// ApprovalSet is an ordered set of approvals keyed by approver identity.
type ApprovalSet struct {
	items []Approval
	index map[string]int
}

func NewApprovalSet(approvals ...Approval) ApprovalSet {
	var s ApprovalSet
	for _, a := range approvals {
		s.insert(a)
	}
	return s
}

func (s *ApprovalSet) insert(a Approval) bool {
	if s.index == nil {
		s.index = make(map[string]int)
	}
	if _, ok := s.index[a.ApproverID]; ok {
		return false
	}
	s.index[a.ApproverID] = len(s.items)
	s.items = append(s.items, a)
	return true
}

// Add inserts an approval once per approver. crossed is true only for the
// insert that takes the count from below threshold to exactly threshold; a
// duplicate or any insert once the threshold is met never reports it again.
// Inserts beyond the threshold are dropped so the count stays capped.
func (s *ApprovalSet) Add(approverID string, at time.Time, threshold int) (added, crossed bool) {
	if s.Has(approverID) || s.Len() >= threshold {
		return false, false
	}
	before := s.Len()
	s.insert(Approval{ApproverID: approverID, ApprovedAt: at})
	return true, before < threshold && s.Len() == threshold
}

func (s ApprovalSet) Has(approverID string) bool {
	_, ok := s.index[approverID]
	return ok
}

func (s ApprovalSet) Len() int {
	return len(s.items)
}

func (s ApprovalSet) List() []Approval {
	out := make([]Approval, len(s.items))
	copy(out, s.items)
	return out
}

func (s ApprovalSet) Clone() ApprovalSet {
	return NewApprovalSet(s.items...)
}
