package storytree

import (
	"encoding/json"
	"fmt"
)

// SnapshotVersion is the only draft format Restore accepts.
const SnapshotVersion = 1

// Snapshot is the persisted form of a Session, used for drafts.
type Snapshot struct {
	Version int           `json:"version"`
	Nodes   []SessionNode `json:"nodes"`
	HeadID  NodeID        `json:"headId"`
}

// Snapshot captures every node in creation order plus the head.
func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		Version: SnapshotVersion,
		Nodes:   s.Nodes(),
		HeadID:  s.head,
	}
}

// MarshalJSON encodes the session as its snapshot.
func (s *Session) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Snapshot())
}

// Restore rebuilds a session from a snapshot. Child lists are derived from
// parent links in snapshot order. A node whose parent is absent is kept as is;
// walks through it stop there.
func Restore(snap Snapshot, opts ...SessionOption) (*Session, error) {
	if snap.Version != SnapshotVersion {
		return nil, fmt.Errorf("restore snapshot version %d: %w", snap.Version, ErrSnapshotVersion)
	}
	s := NewSession(opts...)
	for _, n := range snap.Nodes {
		if n.ID == "" {
			return nil, fmt.Errorf("restore snapshot: node with empty id")
		}
		if _, dup := s.nodes[n.ID]; dup {
			return nil, fmt.Errorf("restore snapshot: duplicate node id %q", n.ID)
		}
		node := n
		node.ChildIDs = nil
		s.nodes[n.ID] = &node
		s.order = append(s.order, n.ID)
		if node.CreatedAt.After(s.last) {
			s.last = node.CreatedAt
		}
	}
	for _, id := range s.order {
		n := s.nodes[id]
		if n.ParentID == "" {
			if s.root == "" {
				s.root = id
			}
			continue
		}
		if parent, ok := s.nodes[n.ParentID]; ok {
			parent.ChildIDs = append(parent.ChildIDs, id)
		}
	}

	if snap.HeadID != "" {
		if _, ok := s.nodes[snap.HeadID]; !ok {
			return nil, missingNode("restore head", snap.HeadID)
		}
		s.head = snap.HeadID
	} else if len(s.order) > 0 {
		s.head = s.order[len(s.order)-1]
	}
	return s, nil
}

// ParseSnapshot decodes and restores a JSON snapshot.
func ParseSnapshot(data []byte, opts ...SessionOption) (*Session, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return Restore(snap, opts...)
}
