package runner

import "sync"

// SymbolLocks: мьютекс на символ. Запись удаляется, когда её никто не держит и не ждёт.
type SymbolLocks struct {
	mu    sync.Mutex
	locks map[string]*symbolLock
}

type symbolLock struct {
	mu   sync.Mutex
	refs int
}

func NewSymbolLocks() *SymbolLocks {
	return &SymbolLocks{locks: make(map[string]*symbolLock)}
}

func (s *SymbolLocks) Lock(symbol string) func() {
	s.mu.Lock()
	l, ok := s.locks[symbol]
	if !ok {
		l = &symbolLock{}
		s.locks[symbol] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Unlock()
			s.mu.Lock()
			l.refs--
			if l.refs == 0 {
				delete(s.locks, symbol)
			}
			s.mu.Unlock()
		})
	}
}

func (s *SymbolLocks) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.locks)
}
