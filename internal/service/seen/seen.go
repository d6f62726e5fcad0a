package seen

import "sync"

// Set упорядоченное множество идентификаторов уже показанных сообщений.
// Растёт монотонно, между запусками не сохраняется.
type Set struct {
	mu    sync.Mutex
	order []string
	index map[string]struct{}
}

func New() *Set {
	return &Set{index: make(map[string]struct{})}
}

// Add добавляет id. Возвращает false, если id уже был в множестве.
func (s *Set) Add(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.index[id]; ok {
		return false
	}
	s.index[id] = struct{}{}
	s.order = append(s.order, id)
	return true
}

func (s *Set) Has(id string) bool {
	s.mu.Lock()
	_, ok := s.index[id]
	s.mu.Unlock()
	return ok
}

func (s *Set) Len() int {
	s.mu.Lock()
	l := len(s.order)
	s.mu.Unlock()
	return l
}

// IDs возвращает копию идентификаторов в порядке добавления.
func (s *Set) IDs() []string {
	s.mu.Lock()
	ids := make([]string, len(s.order))
	copy(ids, s.order)
	s.mu.Unlock()
	return ids
}
