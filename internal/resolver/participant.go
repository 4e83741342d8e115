package resolver

import "sync"

// ParticipantInfo is what the resolver and heuristic evaluator need to know
// about a message sender beyond their raw numeric ID (original_source's
// participant_info.py). The chat platform adapter is the source of truth;
// this package only defines the contract and an in-memory fallback.
type ParticipantInfo struct {
	UserID      int64
	DisplayName string
	IsAdmin     bool
	IsBot       bool
}

// ParticipantLookup is implemented by the chat platform adapter (out of
// scope per spec.md §1 — an external collaborator). The worker consults it
// to decide prioritize_admin scoring without owning any platform client.
type ParticipantLookup interface {
	Lookup(chatID, userID int64) (ParticipantInfo, bool)
}

// StaticParticipantLookup is a simple in-memory ParticipantLookup, useful
// for tests and for deployments that pre-seed admin/bot rosters instead of
// querying the live platform client on every message.
type StaticParticipantLookup struct {
	mu    sync.RWMutex
	byKey map[[2]int64]ParticipantInfo
}

// NewStaticParticipantLookup returns an empty lookup ready for Set calls.
func NewStaticParticipantLookup() *StaticParticipantLookup {
	return &StaticParticipantLookup{byKey: make(map[[2]int64]ParticipantInfo)}
}

// Set records (or overwrites) participant info for a chat/user pair.
func (s *StaticParticipantLookup) Set(chatID int64, info ParticipantInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byKey[[2]int64{chatID, info.UserID}] = info
}

// Lookup implements ParticipantLookup.
func (s *StaticParticipantLookup) Lookup(chatID, userID int64) (ParticipantInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.byKey[[2]int64{chatID, userID}]
	return info, ok
}

// IsVIP reports whether userID appears in the resolved profile's VIP list.
func (rp ResolvedProfile) IsVIP(userID int64) bool {
	for _, id := range rp.VIPSenders {
		if id == userID {
			return true
		}
	}
	return false
}

// IsExcluded reports whether userID appears in the resolved profile's
// excluded-users list.
func (rp ResolvedProfile) IsExcluded(userID int64) bool {
	for _, id := range rp.ExcludedUsers {
		if id == userID {
			return true
		}
	}
	return false
}
