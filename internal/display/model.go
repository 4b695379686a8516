package display

import (
	"fmt"
	"time"

	"github.com/muurk/serial2ip/internal/bridge"
	"github.com/muurk/serial2ip/internal/wifi"
)

// Page is a full-screen view.
type Page int

const (
	PageHome Page = iota
	PageUart
	PageNetwork
	PageHelp
)

func (p Page) String() string {
	switch p {
	case PageHome:
		return "home"
	case PageUart:
		return "uart"
	case PageNetwork:
		return "network"
	case PageHelp:
		return "help"
	default:
		return fmt.Sprintf("Page(%d)", int(p))
	}
}

// Popup is an overlay drawn on top of the current page.
type Popup int

const (
	PopupNone Popup = iota
	PopupMenu
	PopupMsg
)

func (p Popup) String() string {
	switch p {
	case PopupNone:
		return "none"
	case PopupMenu:
		return "menu"
	case PopupMsg:
		return "msg"
	default:
		return fmt.Sprintf("Popup(%d)", int(p))
	}
}

// Message identifies the text of a message popup.
type Message int

const (
	MsgNone Message = iota
	MsgScanning
	MsgNoSavedNetwork
	MsgAlreadyConnected
	MsgNotAvailable
	MsgStartConnecting
	MsgStatsReset
	MsgError
)

var messageText = map[Message]string{
	MsgScanning:         "Scanning...",
	MsgNoSavedNetwork:   "No saved network",
	MsgAlreadyConnected: "Already connected",
	MsgNotAvailable:     "Not available",
	MsgStartConnecting:  "Connecting...",
	MsgStatsReset:       "Stats reset",
	MsgError:            "Failed",
}

func (m Message) String() string {
	if s, ok := messageText[m]; ok {
		return s
	}
	return ""
}

// MenuEntries are the items of the Home menu popup, in selector order.
var MenuEntries = []struct {
	Label string
	Page  Page
}{
	{"Uart", PageUart},
	{"Network", PageNetwork},
	{"Help", PageHelp},
}

// HomeData is the sampled state shown on the Home page.
type HomeData struct {
	State      wifi.State
	SSID       string
	IP         string
	Level      uint8
	Baudrate   uint32
	TCPPort    uint16
	Clients    int
	Forwarding bool
	Stats      bridge.Stats
	CPU        int // percent, -1 when unknown
}

// NetworkRow is one stored network on the Network page.
type NetworkRow struct {
	SSID      string
	Password  string
	Level     uint8
	Connected bool
}

// Model is a snapshot of the controller state.
type Model struct {
	Page          Page
	Popup         Popup
	Message       Message
	MessageText   string
	MenuSelection int
	UartSelection int
	UartRates     []uint32
	Networks      []NetworkRow
	NetworkCursor int
	Scanning      bool
	PageExpire    time.Time
	PopupExpire   time.Time
	ForceHelp     bool
	ShowCPU       bool
	Home          HomeData
}
