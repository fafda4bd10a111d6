// Package storytree holds the branching-story model behind the story map.
//
// A Session is the authoring tree for one story in progress: every line the
// author writes is a node, and the head marks the line the next sentence
// continues from. Rewinding the head and appending again grows a sibling
// branch without discarding anything.
//
// BuildMergeLayout takes finished stories as flat sentence sequences, merges
// them into a prefix trie, collapses single-child chains, and places the
// remaining decision points on a row/column grid that renderers can draw
// directly. Nothing in this package performs I/O or logging.
package storytree
