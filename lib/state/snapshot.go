package state

import "fmt"

// Snapshot is the serializable form of a State. It is what gets published to consumers and persisted to the store.
type Snapshot struct {
	Account        string    `json:"account,omitempty" bson:"account"`
	IsSyncing      bool      `json:"isSyncing" bson:"isSyncing"`
	OrgTokens      []Token   `json:"orgTokens" bson:"orgTokens"`
	AcceptedTokens []Token   `json:"acceptedTokens" bson:"acceptedTokens"`
	Requests       []Request `json:"requests" bson:"requests"`
	LastBlock      uint64    `json:"lastBlock" bson:"lastBlock"`
}

// Snapshot returns a deep copy of s in its serializable form.
func (s *State) Snapshot() Snapshot {
	return Snapshot{
		Account:        s.account,
		IsSyncing:      s.isSyncing,
		OrgTokens:      s.OrgTokens(),
		AcceptedTokens: s.AcceptedTokens(),
		Requests:       s.Requests(),
		LastBlock:      s.lastBlock,
	}
}

// FromSnapshot rebuilds a State, and its request index, from a snapshot. A snapshot with repeated request ids or
// unknown status values is rejected.
func FromSnapshot(snap Snapshot) (*State, error) {
	s := New()
	s.account = snap.Account
	s.isSyncing = snap.IsSyncing
	s.lastBlock = snap.LastBlock
	s.orgTokens = append(s.orgTokens, snap.OrgTokens...)
	s.acceptedTokens = append(s.acceptedTokens, snap.AcceptedTokens...)

	s.requests = make([]Request, 0, len(snap.Requests))
	for _, r := range snap.Requests {
		if _, ok := s.index[r.RequestID]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateRequest, r.RequestID)
		}
		if !r.Status.Valid() {
			return nil, fmt.Errorf("%w: %q for request %s", ErrBadStatus, r.Status, r.RequestID)
		}
		s.index[r.RequestID] = len(s.requests)
		s.requests = append(s.requests, r)
	}

	return s, nil
}
