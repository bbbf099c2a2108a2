package types

// DeliveryMode es el backchannel_token_delivery_mode de CIBA.
type DeliveryMode string

const (
	DeliveryModePoll DeliveryMode = "poll"
	DeliveryModePing DeliveryMode = "ping"
	DeliveryModePush DeliveryMode = "push"
)

// ParseDeliveryMode devuelve ok=false ante un modo desconocido.
func ParseDeliveryMode(raw string) (DeliveryMode, bool) {
	switch m := DeliveryMode(raw); m {
	case DeliveryModePoll, DeliveryModePing, DeliveryModePush:
		return m, true
	}
	return "", false
}

// RequiresNotification indica si el client recibe una notificación (ping/push).
func (m DeliveryMode) RequiresNotification() bool {
	return m == DeliveryModePing || m == DeliveryModePush
}

// CibaStatus es el estado persistido de un CibaGrant.
// "expired" no existe como estado: se calcula al leer.
type CibaStatus string

const (
	CibaStatusPending      CibaStatus = "pending"
	CibaStatusAuthorized   CibaStatus = "authorized"
	CibaStatusAccessDenied CibaStatus = "access_denied"
)

// ParseCibaStatus devuelve ok=false ante un estado desconocido.
func ParseCibaStatus(raw string) (CibaStatus, bool) {
	switch s := CibaStatus(raw); s {
	case CibaStatusPending, CibaStatusAuthorized, CibaStatusAccessDenied:
		return s, true
	}
	return "", false
}
