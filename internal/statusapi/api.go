package statusapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/muurk/serial2ip/internal/bridge"
	"github.com/muurk/serial2ip/internal/syserr"
	"github.com/muurk/serial2ip/internal/version"
	"github.com/muurk/serial2ip/internal/wifi"
)

// Station is the part of the Wi-Fi manager the API reads.
type Station interface {
	GetStatus() wifi.ConnectionStatus
	Records() []wifi.Record
	Scanner() *wifi.Scanner
	Subscribe(h func(wifi.Event)) func()
}

// Bridge is the part of the bridge supervisor the API reads.
type Bridge interface {
	GetStatus() bridge.Status
	GetStats() bridge.Stats
	ResetStats()
}

// WifiStatus is the station half of /api/status.
type WifiStatus struct {
	State         string `json:"state"`
	SSID          string `json:"ssid,omitempty"`
	BSSID         string `json:"bssid,omitempty"`
	RSSI          int8   `json:"rssi"`
	Level         int    `json:"level"`
	IP            string `json:"ip"`
	Netmask       string `json:"netmask"`
	Gateway       string `json:"gateway"`
	DNS           string `json:"dns"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// StatusResponse is the body of /api/status.
type StatusResponse struct {
	Wifi   WifiStatus    `json:"wifi"`
	Bridge bridge.Status `json:"bridge"`
}

// RecordView is a stored network without its password.
type RecordView struct {
	ID          uint16 `json:"id"`
	SSID        string `json:"ssid"`
	Sequence    uint32 `json:"sequence"`
	EverSuccess bool   `json:"ever_success"`
	HasPassword bool   `json:"has_password"`
}

// ScanView is one access point from a scan.
type ScanView struct {
	SSID  string `json:"ssid"`
	BSSID string `json:"bssid"`
	RSSI  int8   `json:"rssi"`
	Level int    `json:"level"`
}

func wifiStatus(st wifi.ConnectionStatus, now time.Time) WifiStatus {
	ws := WifiStatus{
		State:         st.State.String(),
		IP:            wifi.FormatIPv4(st.IP),
		Netmask:       wifi.FormatIPv4(st.Netmask),
		Gateway:       wifi.FormatIPv4(st.Gateway),
		DNS:           wifi.FormatIPv4(st.DNS1),
		UptimeSeconds: int64(st.Uptime(now) / time.Second),
	}
	if st.State == wifi.StateConnected {
		ws.SSID = st.SSID
		ws.BSSID = wifi.FormatBSSID(st.BSSID)
		ws.RSSI = st.RSSI
		ws.Level = wifi.SignalLevel(st.RSSI)
	}
	return ws
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"model":   version.Model,
		"serial":  version.Serial,
		"version": version.Version,
	})
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.snapshot())
}

func (s *Server) snapshot() StatusResponse {
	return StatusResponse{
		Wifi:   wifiStatus(s.station.GetStatus(), s.now()),
		Bridge: s.bridge.GetStatus(),
	}
}

func (s *Server) stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.bridge.GetStats())
}

func (s *Server) resetStats(w http.ResponseWriter, _ *http.Request) {
	s.bridge.ResetStats()
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) records(w http.ResponseWriter, _ *http.Request) {
	recs := s.station.Records()
	items := make([]RecordView, 0, len(recs))
	for _, r := range recs {
		items = append(items, RecordView{
			ID:          r.ID,
			SSID:        r.SSID,
			Sequence:    r.Sequence,
			EverSuccess: r.EverSuccess,
			HasPassword: r.Password != "",
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) startScan(w http.ResponseWriter, _ *http.Request) {
	if err := s.station.Scanner().StartAsync(); err != nil {
		writeSysError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"ok": true})
}

func (s *Server) scanResult(w http.ResponseWriter, _ *http.Request) {
	entries, err := s.station.Scanner().Result()
	if err != nil {
		writeSysError(w, err)
		return
	}
	items := make([]ScanView, 0, len(entries))
	for _, e := range entries {
		items = append(items, ScanView{
			SSID:  e.SSID,
			BSSID: wifi.FormatBSSID(e.BSSID),
			RSSI:  e.RSSI,
			Level: wifi.SignalLevel(e.RSSI),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// httpStatus maps an error kind onto a response code.
func httpStatus(err error) int {
	t, ok := syserr.TypeOf(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch t {
	case syserr.ErrTypeInvalidArgument:
		return http.StatusBadRequest
	case syserr.ErrTypeNotFound:
		return http.StatusNotFound
	case syserr.ErrTypeInvalidState, syserr.ErrTypeScanInProgress:
		return http.StatusConflict
	case syserr.ErrTypeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeSysError(w http.ResponseWriter, err error) {
	var se *syserr.Error
	msg := err.Error()
	if errors.As(err, &se) && se.Message != "" {
		msg = se.Message
	}
	writeError(w, httpStatus(err), syserr.ShortMessage(err), msg)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}
