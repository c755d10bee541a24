package bot

import "sync"

// serializer выполняет задачи одного ключа строго по очереди, а задачи
// разных ключей параллельно.
type serializer struct {
	mu     sync.Mutex
	queues map[int64][]func()
	wg     sync.WaitGroup
}

func newSerializer() *serializer {
	return &serializer{queues: make(map[int64][]func())}
}

// Do ставит fn в очередь ключа. Ключ присутствует в map, пока его очередь обрабатывается.
func (s *serializer) Do(key int64, fn func()) {
	s.wg.Add(1)

	s.mu.Lock()
	q, busy := s.queues[key]
	s.queues[key] = append(q, fn)
	s.mu.Unlock()

	if !busy {
		go s.drain(key)
	}
}

func (s *serializer) drain(key int64) {
	for {
		s.mu.Lock()
		q := s.queues[key]
		if len(q) == 0 {
			delete(s.queues, key)
			s.mu.Unlock()
			return
		}
		fn := q[0]
		s.queues[key] = q[1:]
		s.mu.Unlock()

		func() {
			defer s.wg.Done()
			fn()
		}()
	}
}

// Wait ждет завершения всех поставленных задач.
func (s *serializer) Wait() {
	s.wg.Wait()
}
