package wifi

// candidate pairs a scan entry with the record it matched.
type candidate struct {
	entry  ScanEntry
	record Record
}

// better reports whether a should be preferred over b.
func (a candidate) better(b candidate) bool {
	if a.record.EverSuccess != b.record.EverSuccess {
		return a.record.EverSuccess
	}
	if a.entry.RSSI != b.entry.RSSI {
		return a.entry.RSSI > b.entry.RSSI
	}
	return a.record.Sequence > b.record.Sequence
}

// selectBest picks the network to auto-connect to. A scan entry is eligible
// when a record with its SSID exists and the user has not disconnected from
// it. Records that have connected before win over those that have not; then
// stronger signal, then higher sequence. Full ties keep the earlier entry.
func selectBest(entries []ScanEntry, records []Record) (candidate, bool) {
	bySSID := make(map[string]Record, len(records))
	for _, r := range records {
		if r.Valid {
			bySSID[r.SSID] = r
		}
	}

	var best candidate
	found := false
	for _, e := range entries {
		r, ok := bySSID[e.SSID]
		if !ok || r.UserDisconnected {
			continue
		}
		c := candidate{entry: e, record: r}
		if !found || c.better(best) {
			best = c
			found = true
		}
	}
	return best, found
}
