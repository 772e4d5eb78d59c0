package transport

// Type identifies the transport a PeerAddress refers to.
type Type uint8

const (
	TypeUndefined Type = iota
	TypeUDP
	TypeBLE
	TypeTCP
	TypeNFC
	TypeWiFiPAF
)

func (t Type) String() string {
	switch t {
	case TypeUDP:
		return "UDP"
	case TypeBLE:
		return "BLE"
	case TypeTCP:
		return "TCP"
	case TypeNFC:
		return "NFC"
	case TypeWiFiPAF:
		return "Wi-Fi PAF"
	default:
		return "Undefined"
	}
}

// IsIP reports whether addresses of this type carry IP destinations and a
// port.
func (t Type) IsIP() bool {
	return t == TypeUDP || t == TypeTCP
}
