package models

// LookupEntry points a reconstructed sentence at a parse tree. Index is
// 1-based into a treebank file; 0 addresses a file whose root is a single
// tree.
type LookupEntry struct {
	Sentence string `json:"sentence" msgpack:"sentence"`
	Source   string `json:"source" msgpack:"source"`
	Index    int    `json:"index" msgpack:"index"`
}
