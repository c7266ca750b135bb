package window

// Hit is the outcome of a hit test on the window body.
type Hit int

const (
	// HitClient leaves the event to the application.
	HitClient Hit = iota
	// HitDrag hands the event to the system so the window moves.
	HitDrag
)

// String returns "client" or "drag".
func (h Hit) String() string {
	if h == HitDrag {
		return "drag"
	}
	return "client"
}

// HitTest decides whether a press at p, in client coordinates of a client
// area of the given size, should drag the window. Only a pinned, unlocked
// window drags, and never from the pin button region in the top-right
// corner or the lock button region in the bottom-right corner.
func (m *Machine) HitTest(p Point, client Size, scale float64) (Hit, error) {
	m.mu.Lock()
	if err := m.availableLocked(); err != nil {
		m.mu.Unlock()
		return HitClient, err
	}
	pinned, locked := m.mode == ModePinned, m.locked
	region := m.cfg.SafeRegion
	m.mu.Unlock()

	if !pinned || locked {
		return HitClient, nil
	}

	side := ScaleToDPI(region, scale)
	inRightColumn := p.X >= client.Width-side && p.X <= client.Width
	inPin := inRightColumn && p.Y >= 0 && p.Y <= side
	inLock := inRightColumn && p.Y >= client.Height-side && p.Y <= client.Height
	if inPin || inLock {
		return HitClient, nil
	}
	return HitDrag, nil
}
