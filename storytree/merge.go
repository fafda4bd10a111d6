package storytree

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
)

// RootNodeID is the id of the synthetic start node every story hangs from.
const RootNodeID = "root"

// TrieNode is a read-only view of one merged sentence position.
type TrieNode struct {
	ID       string
	Text     string
	Depth    int
	Owners   []string
	Endings  []string
	ChildIDs []string
}

type trieNode struct {
	id       string
	text     string
	depth    int
	children []int
	byText   map[string]int
	owners   []string
	ownerSet map[string]struct{}
	endings  []string
}

func (n *trieNode) own(storyID string) {
	if _, ok := n.ownerSet[storyID]; ok {
		return
	}
	n.ownerSet[storyID] = struct{}{}
	n.owners = append(n.owners, storyID)
}

// Trie is the prefix merge of a set of sequences. Sentences merge only when
// their text is byte-for-byte equal under the same parent, so unrelated
// stories that happen to repeat a sentence at the same position share a node.
type Trie struct {
	nodes []*trieNode
	index map[string]int
}

// BuildTrie merges seqs in order. The root owns every sequence; children keep
// the order in which their first owner reached them.
func BuildTrie(seqs []Sequence) *Trie {
	t := &Trie{index: make(map[string]int)}
	root := t.add(RootNodeID, "", 0)
	for _, seq := range seqs {
		cur := root
		cur.own(seq.StoryID)
		for _, sentence := range seq.Sentences {
			next, ok := cur.byText[sentence]
			if !ok {
				child := t.add(childNodeID(cur.id, sentence), sentence, cur.depth+1)
				next = len(t.nodes) - 1
				cur.byText[sentence] = next
				cur.children = append(cur.children, next)
				cur = child
			} else {
				cur = t.nodes[next]
			}
			cur.own(seq.StoryID)
		}
		if !slices.Contains(cur.endings, seq.StoryID) {
			cur.endings = append(cur.endings, seq.StoryID)
		}
	}
	return t
}

func (t *Trie) add(id, text string, depth int) *trieNode {
	n := &trieNode{
		id:       id,
		text:     text,
		depth:    depth,
		byText:   make(map[string]int),
		ownerSet: make(map[string]struct{}),
	}
	t.index[id] = len(t.nodes)
	t.nodes = append(t.nodes, n)
	return n
}

// childNodeID derives a node id from its merge position, so the same prefix
// yields the same id on every rebuild.
func childNodeID(parentID, text string) string {
	h := sha256.New()
	h.Write([]byte(parentID))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// Len returns the number of nodes including the root.
func (t *Trie) Len() int {
	return len(t.nodes)
}

// Node returns the node with id.
func (t *Trie) Node(id string) (TrieNode, bool) {
	i, ok := t.index[id]
	if !ok {
		return TrieNode{}, false
	}
	n := t.nodes[i]
	view := TrieNode{
		ID:      n.id,
		Text:    n.text,
		Depth:   n.depth,
		Owners:  slices.Clone(n.owners),
		Endings: slices.Clone(n.endings),
	}
	for _, c := range n.children {
		view.ChildIDs = append(view.ChildIDs, t.nodes[c].id)
	}
	return view, true
}

// Lookup follows sentences from the root and returns the node they end at.
func (t *Trie) Lookup(sentences ...string) (TrieNode, bool) {
	cur := t.nodes[0]
	for _, s := range sentences {
		i, ok := cur.byText[s]
		if !ok {
			return TrieNode{}, false
		}
		cur = t.nodes[i]
	}
	return t.Node(cur.id)
}

// important reports whether node i is shown: the root, a branch point or a leaf.
func (t *Trie) important(i int) bool {
	return i == 0 || len(t.nodes[i].children) != 1
}
