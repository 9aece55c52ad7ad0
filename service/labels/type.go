package labels

// IService is a read-only class index to class name table. Implementations
// are immutable after construction and safe for concurrent use.
type IService interface {
	Lookup(index int) (string, error)
	Len() int
}
