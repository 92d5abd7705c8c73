package workflow

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running   bool
	RunID     string
	Cycles    int
	LastError string
	LastCycle CycleSummary
}

// Status returns the latest workflow information.
func (m *Manager) Status() StatusSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	summary := StatusSummary{
		Running:   m.running,
		RunID:     m.runID,
		Cycles:    m.cycles,
		LastCycle: m.lastCycle,
	}
	if m.lastErr != nil {
		summary.LastError = m.lastErr.Error()
	}
	return summary
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}
