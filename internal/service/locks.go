package service

import (
	"bytes"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// keyedLocks выдаёт эксклюзив по набору uuid-ключей (товары, заказы).
// Захват всегда идёт в каноническом порядке (ключ по возрастанию), поэтому
// два пересекающихся набора не могут встать в циклическое ожидание.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[uuid.UUID]*sync.Mutex)}
}

func (l *keyedLocks) get(id uuid.UUID) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, ok := l.locks[id]
	if !ok {
		m = &sync.Mutex{}
		l.locks[id] = m
	}
	return m
}

// lockAll дедуплицирует и сортирует ids, захватывает мьютексы по порядку и
// возвращает функцию освобождения (в обратном порядке).
func (l *keyedLocks) lockAll(ids []uuid.UUID) (unlock func()) {
	distinct := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		distinct[id] = struct{}{}
	}

	ordered := make([]uuid.UUID, 0, len(distinct))
	for id := range distinct {
		ordered = append(ordered, id)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return bytes.Compare(ordered[i][:], ordered[j][:]) < 0
	})

	held := make([]*sync.Mutex, 0, len(ordered))
	for _, id := range ordered {
		m := l.get(id)
		m.Lock()
		held = append(held, m)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}
