package scheduler

// feedback carries verifier-reject text forward into a retried node's next
// dispatch context (spec.md §4.4.5, §7). Stored on the scheduler rather
// than the graph because it is transient retry guidance, not part of a
// node's durable state.
func (s *Scheduler) feedbackFor(nodeID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.feedback == nil {
		return ""
	}
	return s.feedback[nodeID]
}

func (s *Scheduler) setFeedback(nodeID, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.feedback == nil {
		s.feedback = make(map[string]string)
	}
	s.feedback[nodeID] = text
}

func (s *Scheduler) clearFeedback(nodeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.feedback, nodeID)
}
