package datasets

// Collection is the loaded form of one dataset: either a metadata Table or
// a FileMap. Both expose a column view keyed by name so callers can query
// them uniformly. Collections are read-only once built.
type Collection interface {
	// Kind returns the dataset kind the collection was loaded for.
	Kind() Kind
	// Keys returns the available column names in a stable order.
	Keys() []string
	// Column returns a copy of the named column's values in subject order.
	Column(name string) ([]string, bool)
	// Len returns the number of subjects.
	Len() int
}

// SubjectFiles is implemented by file-backed collections.
type SubjectFiles interface {
	Files(subject string) ([]string, bool)
}

// SubjectRows is implemented by table-backed collections.
type SubjectRows interface {
	Row(subject string) (map[string]string, bool)
}
