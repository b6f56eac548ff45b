package engine

// PendingKeys counts the order keys with messages still in flight.
func PendingKeys(d *Dispatcher) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}
