package wifi

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/muurk/serial2ip/internal/nvs"
	"github.com/muurk/serial2ip/internal/syserr"
	"go.uber.org/zap"
)

// Namespace is the key/value namespace holding the credential records.
const Namespace = "wifi_records"

const keySequence = "sequence"

func keySSID(id int) string     { return fmt.Sprintf("ssid_%d", id) }
func keyPassword(id int) string { return fmt.Sprintf("passwd_%d", id) }
func keyRecord(id int) string   { return fmt.Sprintf("record_%d", id) }

// Store holds the credential slots and persists them in a key/value
// namespace. Store is not safe for concurrent use; the Manager serializes
// access with its own mutex.
type Store struct {
	h        *nvs.Handle
	records  [MaxRecords]Record
	sequence uint32
	log      *zap.Logger

	// unreadable marks slots whose keys failed to read on Load. Save and
	// slot allocation leave them alone.
	unreadable [MaxRecords]bool
}

// NewStore creates an empty store bound to h. Call Load to read persisted
// records.
func NewStore(h *nvs.Handle, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Store{h: h, sequence: 1, log: log}
	s.clear()
	return s
}

func (s *Store) clear() {
	for i := range s.records {
		s.records[i] = Record{ID: uint16(i)}
		s.unreadable[i] = false
	}
}

// Load replaces the in-memory slots with the persisted ones. Missing slots
// are skipped silently, malformed ones with a warning. A slot that cannot be
// read is left untouched by later saves.
func (s *Store) Load() error {
	s.clear()

	s.sequence = 1
	seq, err := s.h.GetU32(keySequence)
	switch {
	case err == nil:
		s.sequence = seq
	case !syserr.IsNotFound(err):
		// Rebuilt from the records below.
		s.log.Warn("Ignoring unreadable sequence counter", zap.Error(err))
	}

	for id := 0; id < MaxRecords; id++ {
		r, err := s.loadSlot(id)
		if err != nil {
			s.unreadable[id] = true
			s.log.Warn("Skipping unreadable record", zap.Int("id", id), zap.Error(err))
			continue
		}
		if !r.Valid {
			continue
		}
		s.records[id] = r
		if r.Sequence > s.sequence {
			s.sequence = r.Sequence
		}
	}

	s.log.Debug("Records loaded", zap.Int("count", s.Count()), zap.Uint32("sequence", s.sequence))
	return nil
}

// loadSlot reads one slot. An invalid record with a nil error means the slot
// is empty or malformed; an error means the keys could not be read.
func (s *Store) loadSlot(id int) (Record, error) {
	empty := Record{ID: uint16(id)}

	ssid, err := s.h.GetString(keySSID(id))
	if syserr.IsNotFound(err) {
		return empty, nil
	}
	if err != nil {
		return empty, err
	}
	if ssid == "" || len(ssid) > MaxSSIDLen {
		s.log.Warn("Skipping malformed record", zap.Int("id", id), zap.String("reason", "bad ssid"))
		return empty, nil
	}

	password, err := s.h.GetString(keyPassword(id))
	if err != nil && !syserr.IsNotFound(err) {
		return empty, err
	}
	if len(password) > MaxPasswordLen {
		s.log.Warn("Skipping malformed record", zap.Int("id", id), zap.String("reason", "bad password"))
		return empty, nil
	}

	raw, err := s.h.GetString(keyRecord(id))
	if err != nil && !syserr.IsNotFound(err) {
		return empty, err
	}
	everSuccess, sequence, ok := parseRecordMeta(raw)
	if !ok {
		s.log.Warn("Skipping malformed record",
			zap.Int("id", id),
			zap.String("ssid", ssid),
			zap.String("meta", raw))
		return empty, nil
	}

	return Record{
		ID:          uint16(id),
		SSID:        ssid,
		Password:    password,
		Sequence:    sequence,
		EverSuccess: everSuccess,
		Valid:       true,
	}, nil
}

// parseRecordMeta parses "<0|1>;<sequence>".
func parseRecordMeta(raw string) (everSuccess bool, sequence uint32, ok bool) {
	flag, seq, found := strings.Cut(raw, ";")
	if !found {
		return false, 0, false
	}
	switch flag {
	case "0":
	case "1":
		everSuccess = true
	default:
		return false, 0, false
	}
	n, err := strconv.ParseUint(seq, 10, 32)
	if err != nil {
		return false, 0, false
	}
	return everSuccess, uint32(n), true
}

func formatRecordMeta(r Record) string {
	flag := 0
	if r.EverSuccess {
		flag = 1
	}
	return fmt.Sprintf("%d;%d", flag, r.Sequence)
}

// Save writes every slot and commits once. Invalid slots have their keys
// erased.
func (s *Store) Save() error {
	for id, r := range s.records {
		if s.unreadable[id] {
			continue
		}
		if !r.Valid {
			for _, key := range []string{keySSID(id), keyPassword(id), keyRecord(id)} {
				if err := s.h.Erase(key); err != nil {
					return err
				}
			}
			continue
		}
		if err := s.h.SetString(keySSID(id), r.SSID); err != nil {
			return err
		}
		if err := s.h.SetString(keyPassword(id), r.Password); err != nil {
			return err
		}
		if err := s.h.SetString(keyRecord(id), formatRecordMeta(r)); err != nil {
			return err
		}
	}
	if err := s.h.SetU32(keySequence, s.sequence); err != nil {
		return err
	}
	return s.h.Commit()
}

// Records returns copies of the valid records in slot order.
func (s *Store) Records() []Record {
	out := make([]Record, 0, MaxRecords)
	for _, r := range s.records {
		if r.Valid {
			out = append(out, r)
		}
	}
	return out
}

// Count returns the number of valid records.
func (s *Store) Count() int {
	n := 0
	for _, r := range s.records {
		if r.Valid {
			n++
		}
	}
	return n
}

// Sequence returns the current sequence counter.
func (s *Store) Sequence() uint32 {
	return s.sequence
}

// find returns the slot index holding ssid, or -1.
func (s *Store) find(ssid string) int {
	for i, r := range s.records {
		if r.Valid && r.SSID == ssid {
			return i
		}
	}
	return -1
}

// Lookup returns the record stored for ssid.
func (s *Store) Lookup(ssid string) (Record, bool) {
	if i := s.find(ssid); i >= 0 {
		return s.records[i], true
	}
	return Record{}, false
}

// AddOrUpdate stores credentials for ssid and saves the store. An existing
// record keeps its slot and user-disconnected flag; a new one takes the first
// free slot or evicts the record with the smallest sequence.
func (s *Store) AddOrUpdate(ssid, password string, everSuccess bool) error {
	if err := validateCredentials(ssid, password); err != nil {
		return err
	}

	s.sequence++
	if i := s.find(ssid); i >= 0 {
		r := &s.records[i]
		r.Password = password
		r.Sequence = s.sequence
		r.EverSuccess = everSuccess
		s.log.Debug("Record updated", zap.String("ssid", ssid), zap.Int("id", i))
		return s.Save()
	}

	slot := s.freeSlot()
	if slot < 0 {
		slot = s.oldestSlot()
		if slot < 0 {
			s.sequence--
			return syserr.NoMemory("wifi.add", "no usable record slot")
		}
		s.log.Info("Record store full, evicting oldest",
			zap.String("evicted", s.records[slot].SSID),
			zap.Uint32("sequence", s.records[slot].Sequence))
	}

	s.records[slot] = Record{
		ID:          uint16(slot),
		SSID:        ssid,
		Password:    password,
		Sequence:    s.sequence,
		EverSuccess: everSuccess,
		Valid:       true,
	}
	s.log.Debug("Record added", zap.String("ssid", ssid), zap.Int("id", slot))
	return s.Save()
}

func (s *Store) freeSlot() int {
	for i, r := range s.records {
		if !r.Valid && !s.unreadable[i] {
			return i
		}
	}
	return -1
}

// oldestSlot returns the valid slot with the smallest sequence, lowest id on
// ties.
func (s *Store) oldestSlot() int {
	oldest := -1
	for i, r := range s.records {
		if !r.Valid {
			continue
		}
		if oldest < 0 || r.Sequence < s.records[oldest].Sequence {
			oldest = i
		}
	}
	return oldest
}

// Delete removes the record for ssid and saves the store.
func (s *Store) Delete(ssid string) error {
	i := s.find(ssid)
	if i < 0 {
		return syserr.NotFound("wifi.delete", "no record for ssid %q", ssid)
	}
	s.records[i] = Record{ID: uint16(i)}
	s.log.Debug("Record deleted", zap.String("ssid", ssid), zap.Int("id", i))
	return s.Save()
}

// ResetNetworkStatus marks ssid as usable again: ever-success set and the
// user-disconnected flag cleared.
func (s *Store) ResetNetworkStatus(ssid string) error {
	i := s.find(ssid)
	if i < 0 {
		return syserr.NotFound("wifi.reset_status", "no record for ssid %q", ssid)
	}
	s.records[i].EverSuccess = true
	s.records[i].UserDisconnected = false
	return s.Save()
}

// setEverSuccess updates the flag and reports whether it changed.
func (s *Store) setEverSuccess(ssid string, v bool) bool {
	i := s.find(ssid)
	if i < 0 || s.records[i].EverSuccess == v {
		return false
	}
	s.records[i].EverSuccess = v
	return true
}

// setUserDisconnected updates the in-memory flag. It is not persisted.
func (s *Store) setUserDisconnected(ssid string, v bool) {
	if i := s.find(ssid); i >= 0 {
		s.records[i].UserDisconnected = v
	}
}

func validateCredentials(ssid, password string) error {
	if ssid == "" {
		return syserr.InvalidArgument("wifi.credentials", "empty ssid")
	}
	if len(ssid) > MaxSSIDLen {
		return syserr.InvalidArgument("wifi.credentials", "ssid too long (%d > %d)", len(ssid), MaxSSIDLen)
	}
	if len(password) > MaxPasswordLen {
		return syserr.InvalidArgument("wifi.credentials", "password too long (%d > %d)", len(password), MaxPasswordLen)
	}
	return nil
}
