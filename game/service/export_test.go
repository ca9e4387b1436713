package service

// StreamCount reports how many per-connection stream locks are held.
func (s *Service) StreamCount() int {
	n := 0
	s.streams.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
