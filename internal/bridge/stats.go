package bridge

// Stats are the bridge traffic counters. They are 32 bits wide and wrap.
type Stats struct {
	UartTxBytes        uint32 `json:"uart_tx_bytes"`
	UartRxBytes        uint32 `json:"uart_rx_bytes"`
	UartTxDropBytes    uint32 `json:"uart_tx_drop_bytes"`
	UartTxErrorBytes   uint32 `json:"uart_tx_error_bytes"`
	TCPTxBytes         uint32 `json:"tcp_tx_bytes"`
	TCPRxBytes         uint32 `json:"tcp_rx_bytes"`
	TCPTxErrorBytes    uint32 `json:"tcp_tx_error_bytes"`
	TCPConnectCount    uint32 `json:"tcp_connect_count"`
	TCPDisconnectCount uint32 `json:"tcp_disconnect_count"`
}

func (b *Bridge) addStats(update func(s *Stats)) {
	b.statsMu.Lock()
	update(&b.stats)
	b.statsMu.Unlock()
}

// GetStats returns a snapshot of the counters.
func (b *Bridge) GetStats() Stats {
	b.statsMu.Lock()
	defer b.statsMu.Unlock()
	return b.stats
}

// ResetStats zeroes every counter.
func (b *Bridge) ResetStats() {
	b.statsMu.Lock()
	b.stats = Stats{}
	b.statsMu.Unlock()
	b.log.Info("Statistics reset")
}
