package storytree

import (
	"fmt"
	"iter"
	"slices"
	"time"

	"github.com/google/uuid"
)

// NodeID identifies a node inside one Session. Ids are unique per session and
// never reused.
type NodeID string

// SessionNode is one authored sentence. Values handed out by Session are
// copies; mutate the tree only through Session methods.
type SessionNode struct {
	ID        NodeID    `json:"id"`
	Text      string    `json:"text"`
	ParentID  NodeID    `json:"parentId,omitempty"`
	ChildIDs  []NodeID  `json:"childIds"`
	CreatedAt time.Time `json:"createdAt"`
	IsManual  bool      `json:"isManual"`
}

// IsRoot reports whether the node has no parent.
func (n SessionNode) IsRoot() bool {
	return n.ParentID == ""
}

func (n SessionNode) clone() SessionNode {
	n.ChildIDs = slices.Clone(n.ChildIDs)
	return n
}

// Session is the append-only authoring tree for one story. Nodes live in an
// arena keyed by id; branching only moves the head.
//
// A Session is owned by a single writer and is not safe for concurrent use.
type Session struct {
	nodes map[NodeID]*SessionNode
	order []NodeID
	root  NodeID
	head  NodeID

	now   func() time.Time
	newID func() NodeID
	last  time.Time
}

// SessionOption configures a Session at construction.
type SessionOption func(*Session)

// WithClock sets the time source used for CreatedAt stamps.
func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator replaces the default UUID node ids.
func WithIDGenerator(gen func() NodeID) SessionOption {
	return func(s *Session) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// NewSession returns an empty session with no head.
func NewSession(opts ...SessionOption) *Session {
	s := &Session{
		nodes: make(map[NodeID]*SessionNode),
		now:   time.Now,
		newID: func() NodeID { return NodeID(uuid.NewString()) },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Len returns the number of nodes ever appended.
func (s *Session) Len() int {
	return len(s.order)
}

// RootID returns the id of the first sentence, or "" for an empty session.
func (s *Session) RootID() NodeID {
	return s.root
}

// HeadID returns the current writing position, or "" for an empty session.
func (s *Session) HeadID() NodeID {
	return s.head
}

// Head returns the node at the writing position.
func (s *Session) Head() (SessionNode, bool) {
	return s.Node(s.head)
}

// Node looks up a node by id.
func (s *Session) Node(id NodeID) (SessionNode, bool) {
	n, ok := s.nodes[id]
	if !ok {
		return SessionNode{}, false
	}
	return n.clone(), true
}

// Nodes returns every node in creation order.
func (s *Session) Nodes() []SessionNode {
	out := make([]SessionNode, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.nodes[id].clone())
	}
	return out
}

// Children returns the direct children of id in branch creation order.
func (s *Session) Children(id NodeID) ([]SessionNode, error) {
	n, ok := s.nodes[id]
	if !ok {
		return nil, missingNode("children", id)
	}
	out := make([]SessionNode, 0, len(n.ChildIDs))
	for _, childID := range n.ChildIDs {
		if child, ok := s.nodes[childID]; ok {
			out = append(out, child.clone())
		}
	}
	return out, nil
}

// AppendChild adds a sentence under parentID and moves the head to it. An
// empty parentID is accepted only while the session is empty and creates the
// root sentence.
func (s *Session) AppendChild(text string, parentID NodeID, manual bool) (SessionNode, error) {
	var parent *SessionNode
	if parentID == "" {
		if len(s.nodes) > 0 {
			return SessionNode{}, missingNode("append child", parentID)
		}
	} else {
		p, ok := s.nodes[parentID]
		if !ok {
			return SessionNode{}, missingNode("append child", parentID)
		}
		parent = p
	}

	id := s.newID()
	if _, exists := s.nodes[id]; exists || id == "" {
		return SessionNode{}, fmt.Errorf("append child: id generator returned unusable id %q", id)
	}

	node := &SessionNode{
		ID:        id,
		Text:      text,
		ParentID:  parentID,
		CreatedAt: s.stamp(),
		IsManual:  manual,
	}
	s.nodes[id] = node
	s.order = append(s.order, id)
	if parent == nil {
		s.root = id
	} else {
		parent.ChildIDs = append(parent.ChildIDs, id)
	}
	s.head = id
	return node.clone(), nil
}

// Append continues the story from the current head.
func (s *Session) Append(text string, manual bool) (SessionNode, error) {
	return s.AppendChild(text, s.head, manual)
}

// SetHead moves the writing position to an existing node. Descendants of the
// old head stay in the tree.
func (s *Session) SetHead(id NodeID) error {
	if _, ok := s.nodes[id]; !ok {
		return missingNode("set head", id)
	}
	s.head = id
	return nil
}

// Ancestors yields id and then each parent up to the root. The walk ends
// quietly at a parent reference the session does not hold.
func (s *Session) Ancestors(id NodeID) iter.Seq[SessionNode] {
	return func(yield func(SessionNode) bool) {
		seen := make(map[NodeID]bool)
		for cur := id; cur != ""; {
			n, ok := s.nodes[cur]
			if !ok || seen[cur] {
				return
			}
			seen[cur] = true
			if !yield(n.clone()) {
				return
			}
			cur = n.ParentID
		}
	}
}

// PathTo returns the chain from the root (or the first dangling ancestor)
// down to id.
func (s *Session) PathTo(id NodeID) []SessionNode {
	path := slices.Collect(s.Ancestors(id))
	slices.Reverse(path)
	return path
}

// CurrentPath returns the story so far: the chain ending at the head.
func (s *Session) CurrentPath() []SessionNode {
	if s.head == "" {
		return nil
	}
	return s.PathTo(s.head)
}

// Lines returns the sentence texts along the current path.
func (s *Session) Lines() []string {
	path := s.CurrentPath()
	lines := make([]string, 0, len(path))
	for _, n := range path {
		lines = append(lines, n.Text)
	}
	return lines
}

// PathLen returns the number of sentences from the root to id inclusive.
// Callers use it after SetHead to decide whether the story may end.
func (s *Session) PathLen(id NodeID) (int, error) {
	if _, ok := s.nodes[id]; !ok {
		return 0, missingNode("path length", id)
	}
	n := 0
	for range s.Ancestors(id) {
		n++
	}
	return n, nil
}

// HeadPathLen is PathLen of the head.
func (s *Session) HeadPathLen() (int, error) {
	if s.head == "" {
		return 0, ErrEmptySession
	}
	return s.PathLen(s.head)
}

// stamp returns a creation time strictly after every earlier stamp.
func (s *Session) stamp() time.Time {
	t := s.now()
	if !s.last.IsZero() && !t.After(s.last) {
		t = s.last.Add(time.Nanosecond)
	}
	s.last = t
	return t
}

type forkConfig struct {
	replacement *string
	sessionOpts []SessionOption
}

// ForkOption configures Fork.
type ForkOption func(*forkConfig)

// WithReplacement substitutes text for the sentence at the fork index.
func WithReplacement(text string) ForkOption {
	return func(c *forkConfig) {
		c.replacement = &text
	}
}

// WithForkSession passes options to the session Fork creates.
func WithForkSession(opts ...SessionOption) ForkOption {
	return func(c *forkConfig) {
		c.sessionOpts = append(c.sessionOpts, opts...)
	}
}

// forkStagger separates the creation times of forked sentences so their
// order survives a round trip through storage that sorts by time.
const forkStagger = time.Second

// Fork copies lines[0..at] into a new, unrelated session with fresh ids. The
// copy never shares nodes with its source. The head of the result is the
// node at index at.
func Fork(lines []string, at int, opts ...ForkOption) (*Session, error) {
	if at < 0 || at >= len(lines) {
		return nil, fmt.Errorf("fork at %d of %d lines: %w", at, len(lines), ErrForkIndex)
	}
	var cfg forkConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	s := NewSession(cfg.sessionOpts...)
	clock := s.now
	base := clock()
	step := 0
	s.now = func() time.Time {
		t := base.Add(time.Duration(step) * forkStagger)
		step++
		return t
	}

	var parent NodeID
	for i := 0; i <= at; i++ {
		text := lines[i]
		if i == at && cfg.replacement != nil {
			text = *cfg.replacement
		}
		n, err := s.AppendChild(text, parent, false)
		if err != nil {
			return nil, fmt.Errorf("fork line %d: %w", i, err)
		}
		parent = n.ID
	}
	s.now = clock
	return s, nil
}
