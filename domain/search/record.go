package search

// Metadata keys written by the vector index.
const (
	MetaSourceFile  = "source_file"
	MetaChunkIndex  = "chunk_index"
	MetaTotalChunks = "total_chunks"
	MetaTags        = "tags"
	MetaGeneration  = "generation"
	MetaTag         = "tag"
	MetaDescription = "description"
)

// Record is one vector in a collection.
type Record struct {
	id       string
	text     string
	vector   []float64
	metadata Metadata
}

// NewRecord creates a Record.
func NewRecord(id, text string, vector []float64, metadata Metadata) Record {
	v := make([]float64, len(vector))
	copy(v, vector)
	if metadata == nil {
		metadata = Metadata{}
	}
	return Record{id: id, text: text, vector: v, metadata: metadata.Clone()}
}

// ID returns the record identifier, unique within its collection.
func (r Record) ID() string { return r.id }

// Text returns the text the vector was computed from.
func (r Record) Text() string { return r.text }

// Vector returns a copy of the vector.
func (r Record) Vector() []float64 {
	v := make([]float64, len(r.vector))
	copy(v, r.vector)
	return v
}

// Metadata returns a copy of the metadata.
func (r Record) Metadata() Metadata { return r.metadata.Clone() }

// Match is a record ranked against a query vector.
type Match struct {
	record Record
	score  float64
}

// NewMatch creates a Match.
func NewMatch(record Record, score float64) Match {
	return Match{record: record, score: score}
}

// Record returns the matched record.
func (m Match) Record() Record { return m.record }

// Score returns the cosine similarity to the query.
func (m Match) Score() float64 { return m.score }

// FilterCondition is a single metadata equality or inequality test.
type FilterCondition struct {
	key    string
	value  string
	negate bool
}

// Key returns the metadata key.
func (c FilterCondition) Key() string { return c.key }

// Value returns the compared value.
func (c FilterCondition) Value() string { return c.value }

// Negate returns true for "not equal" conditions.
func (c FilterCondition) Negate() bool { return c.negate }

// Filter selects records by metadata. The zero Filter matches everything.
type Filter struct {
	conditions []FilterCondition
}

// NewFilter creates an empty filter.
func NewFilter() Filter { return Filter{} }

// BySourceFile matches the chunks of one file.
func BySourceFile(path string) Filter {
	return NewFilter().Where(MetaSourceFile, path)
}

// Where adds a key == value condition.
func (f Filter) Where(key, value string) Filter {
	c := make([]FilterCondition, len(f.conditions), len(f.conditions)+1)
	copy(c, f.conditions)
	f.conditions = append(c, FilterCondition{key: key, value: value})
	return f
}

// WhereNot adds a key != value condition.
func (f Filter) WhereNot(key, value string) Filter {
	c := make([]FilterCondition, len(f.conditions), len(f.conditions)+1)
	copy(c, f.conditions)
	f.conditions = append(c, FilterCondition{key: key, value: value, negate: true})
	return f
}

// Conditions returns the filter conditions.
func (f Filter) Conditions() []FilterCondition {
	c := make([]FilterCondition, len(f.conditions))
	copy(c, f.conditions)
	return c
}

// IsEmpty reports whether the filter matches every record.
func (f Filter) IsEmpty() bool { return len(f.conditions) == 0 }

// Matches evaluates the filter against metadata.
func (f Filter) Matches(m Metadata) bool {
	for _, c := range f.conditions {
		if (m[c.key] == c.value) == c.negate {
			return false
		}
	}
	return true
}
