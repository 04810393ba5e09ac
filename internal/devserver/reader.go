package devserver

// backlogLines is how much history a reader receives on connect.
const backlogLines = 20

// handleReader streams chat lines to a reader client until it disconnects.
func (s *Server) handleReader(client Client) {
	backlog, lines, cancel, err := s.hub.Subscribe(backlogLines)
	if err != nil {
		s.log.Error("Failed to subscribe reader", "error", err)
		return
	}
	defer cancel()

	// Readers never send anything; a read returns only once they leave.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, err := client.ReadLine(); err != nil {
				return
			}
		}
	}()

	for _, line := range backlog {
		if err := client.WriteLine(line); err != nil {
			return
		}
	}

	for {
		select {
		case line := <-lines:
			if err := client.WriteLine(line); err != nil {
				return
			}
		case <-gone:
			return
		case <-s.shutdown:
			return
		}
	}
}
