package prefs

// TagSet is a set of strings that remembers insertion order for display.
// Membership is exact and case-sensitive.
type TagSet struct {
	order []string
	index map[string]int
}

// NewTagSet builds a set from values, dropping duplicates.
func NewTagSet(values ...string) *TagSet {
	s := &TagSet{index: make(map[string]int, len(values))}
	for _, v := range values {
		s.Add(v)
	}
	return s
}

// Contains reports membership.
func (s *TagSet) Contains(v string) bool {
	_, ok := s.index[v]
	return ok
}

// Add appends v if absent and reports whether the set changed.
func (s *TagSet) Add(v string) bool {
	if s.Contains(v) {
		return false
	}
	s.index[v] = len(s.order)
	s.order = append(s.order, v)
	return true
}

// Remove drops v if present and reports whether the set changed.
func (s *TagSet) Remove(v string) bool {
	i, ok := s.index[v]
	if !ok {
		return false
	}
	s.order = append(s.order[:i], s.order[i+1:]...)
	delete(s.index, v)
	for j := i; j < len(s.order); j++ {
		s.index[s.order[j]] = j
	}
	return true
}

// Toggle adds v if absent, otherwise removes it. It returns the new membership.
func (s *TagSet) Toggle(v string) bool {
	if s.Remove(v) {
		return false
	}
	s.Add(v)
	return true
}

// Len returns the number of members.
func (s *TagSet) Len() int { return len(s.order) }

// Values returns the members in insertion order. The result is a copy and
// is never nil.
func (s *TagSet) Values() []string {
	return append([]string{}, s.order...)
}

// Clone returns an independent copy.
func (s *TagSet) Clone() *TagSet {
	return NewTagSet(s.order...)
}

// Equal compares membership, ignoring order.
func (s *TagSet) Equal(o *TagSet) bool {
	if s.Len() != o.Len() {
		return false
	}
	for _, v := range s.order {
		if !o.Contains(v) {
			return false
		}
	}
	return true
}
