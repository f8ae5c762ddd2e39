package bpe

// Rule is one learned merge: Pair is replaced by ID.
type Rule struct {
	Pair Pair
	ID   int
}

// MergeTable maps pairs to the ids they were merged into.
//
// Ids are dense and strictly increasing from ByteSymbols, and both members
// of every pair precede the id it produces, so every learned id expands to
// a finite byte string.
type MergeTable struct {
	ids   map[Pair]int
	rules []Rule // rules[i].ID == ByteSymbols+i
}

// NewMergeTable returns a table with no merges.
func NewMergeTable() *MergeTable {
	return &MergeTable{ids: make(map[Pair]int)}
}

// Add records p under the next free id and returns that id.
func (t *MergeTable) Add(p Pair) (int, error) {
	id := t.NextID()
	if err := t.Insert(p, id); err != nil {
		return 0, err
	}
	return id, nil
}

// Insert records p under id. id must be the next free id, p must not be
// present already and both members must be known symbols.
func (t *MergeTable) Insert(p Pair, id int) error {
	next := t.NextID()
	if id != next {
		return malformed("merge id %d out of order: expected %d", id, next)
	}
	if existing, ok := t.ids[p]; ok {
		return malformed("pair %s already merged into %d", p, existing)
	}
	if p.Left < 0 || p.Right < 0 || p.Left >= id || p.Right >= id {
		return malformed("pair %s references a symbol not defined before %d", p, id)
	}
	t.ids[p] = id
	t.rules = append(t.rules, Rule{Pair: p, ID: id})
	return nil
}

// Lookup returns the id p was merged into.
func (t *MergeTable) Lookup(p Pair) (int, bool) {
	id, ok := t.ids[p]
	return id, ok
}

// Pair returns the two symbols id expands to. Byte ids have no pair.
func (t *MergeTable) Pair(id int) (Pair, bool) {
	i := id - ByteSymbols
	if i < 0 || i >= len(t.rules) {
		return Pair{}, false
	}
	return t.rules[i].Pair, true
}

// Len returns the number of merges.
func (t *MergeTable) Len() int {
	return len(t.rules)
}

// VocabSize returns the total symbol count: base bytes plus merges.
func (t *MergeTable) VocabSize() int {
	return ByteSymbols + len(t.rules)
}

// NextID returns the id the next merge will receive.
func (t *MergeTable) NextID() int {
	return ByteSymbols + len(t.rules)
}

// Valid reports whether id is defined by this table.
func (t *MergeTable) Valid(id int) bool {
	return id >= 0 && id < t.NextID()
}

// Rules returns the merges in id order.
func (t *MergeTable) Rules() []Rule {
	out := make([]Rule, len(t.rules))
	copy(out, t.rules)
	return out
}

// Clone returns an independently owned copy.
func (t *MergeTable) Clone() *MergeTable {
	c := &MergeTable{
		ids:   make(map[Pair]int, len(t.ids)),
		rules: make([]Rule, len(t.rules)),
	}
	copy(c.rules, t.rules)
	for p, id := range t.ids {
		c.ids[p] = id
	}
	return c
}

// Equal reports whether both tables hold the same merges.
func (t *MergeTable) Equal(other *MergeTable) bool {
	if other == nil || len(t.rules) != len(other.rules) {
		return false
	}
	for i := range t.rules {
		if t.rules[i] != other.rules[i] {
			return false
		}
	}
	return true
}

// Expand returns the raw bytes id stands for. It walks an explicit stack
// rather than recursing, so long merge chains cannot overflow.
func (t *MergeTable) Expand(id int) ([]byte, error) {
	if !t.Valid(id) {
		return nil, decodeError("unknown symbol %d", id)
	}
	var out []byte
	stack := []int{id}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if top < ByteSymbols {
			out = append(out, byte(top))
			continue
		}
		p := t.rules[top-ByteSymbols].Pair
		// Right is pushed first so Left is emitted first.
		stack = append(stack, p.Right, p.Left)
	}
	return out, nil
}
