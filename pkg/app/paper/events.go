package paper

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/papertrade/pkg/app/core/account"
	"github.com/uhyunpark/papertrade/pkg/app/core/order"
)

type EventType string

const (
	EventOrderAccepted   EventType = "order_accepted"
	EventOrderTriggered  EventType = "order_triggered"
	EventOrderFilled     EventType = "order_filled" // partial or full, see Order.Status
	EventOrderCancelled  EventType = "order_cancelled"
	EventOrderExpired    EventType = "order_expired"
	EventExecution       EventType = "execution"
	EventPositionUpdated EventType = "position_updated"
	EventPositionClosed  EventType = "position_closed"
	EventBreakerTripped  EventType = "breaker_tripped"
)

// Event reports a change after it has been persisted.
type Event struct {
	Type      EventType          `json:"type"`
	Account   common.Address     `json:"account"`
	Order     *order.Order       `json:"order,omitempty"`
	Position  *account.Position  `json:"position,omitempty"`
	Execution *account.Execution `json:"execution,omitempty"`
	At        time.Time          `json:"at"`
}
