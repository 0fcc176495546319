package memory

// A Controller is the byte-level port to main memory that the MMU uses after
// translation. Storage is the only implementation.
type Controller interface {
	CanRead(address uint64, len uint64) bool
	CanWrite(address uint64, len uint64) bool
	Read(address uint64, len uint64) ([]byte, error)
	Write(address uint64, data []byte) error
}

// CanRead reports whether the range lies inside the storage.
func (s *Storage) CanRead(address uint64, len uint64) bool {
	return address+len <= s.capacity
}

// CanWrite reports whether the range lies inside the storage.
func (s *Storage) CanWrite(address uint64, len uint64) bool {
	return address+len <= s.capacity
}
