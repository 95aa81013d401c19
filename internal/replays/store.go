package replays

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Store counts the distinct stored replays linked to events of each issue.
// Issues without any such replay are left out of the result, and counts
// above limit are reported as limit.
type Store interface {
	CountReplays(ctx context.Context, organization string, issueIDs []int64, limit int) (map[int64]int, error)
}

// NormalizeReplayID returns the canonical form of a replay id. Ids that are
// not UUIDs are rejected.
func NormalizeReplayID(id string) (string, bool) {
	u, err := uuid.Parse(id)
	if err != nil {
		return "", false
	}
	return u.String(), true
}

type issueKey struct {
	organization string
	issueID      int64
}

// MemoryStore keeps replays and their issue links in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	replays map[string]map[string]struct{}
	links   map[issueKey]map[string]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		replays: make(map[string]map[string]struct{}),
		links:   make(map[issueKey]map[string]struct{}),
	}
}

// AddReplay records a stored replay for organization.
func (m *MemoryStore) AddReplay(organization, replayID string) bool {
	id, ok := NormalizeReplayID(replayID)
	if !ok {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.replays[organization] == nil {
		m.replays[organization] = make(map[string]struct{})
	}
	m.replays[organization][id] = struct{}{}
	return true
}

// LinkEvent records that an event of issueID carried replayID. Links to ids
// that are not UUIDs are ignored.
func (m *MemoryStore) LinkEvent(organization string, issueID int64, replayID string) bool {
	id, ok := NormalizeReplayID(replayID)
	if !ok {
		return false
	}
	key := issueKey{organization: organization, issueID: issueID}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.links[key] == nil {
		m.links[key] = make(map[string]struct{})
	}
	m.links[key][id] = struct{}{}
	return true
}

func (m *MemoryStore) CountReplays(_ context.Context, organization string, issueIDs []int64, limit int) (map[int64]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	known := m.replays[organization]
	out := make(map[int64]int, len(issueIDs))
	for _, issueID := range issueIDs {
		n := 0
		for replayID := range m.links[issueKey{organization: organization, issueID: issueID}] {
			if _, ok := known[replayID]; ok {
				n++
			}
		}
		if n == 0 {
			continue
		}
		out[issueID] = capCount(n, limit)
	}
	return out, nil
}

func capCount(n, limit int) int {
	if limit > 0 && n > limit {
		return limit
	}
	return n
}
