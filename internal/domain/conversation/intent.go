package conversation

import "github.com/convo/backend/internal/domain/orders"

// Intent is the coarse classification of an inbound message
type Intent string

const (
	IntentOrders   Intent = "orders"
	IntentProducts Intent = "products"
	IntentGreeting Intent = "greeting"
	IntentFarewell Intent = "farewell"
	IntentHelp     Intent = "help"
	IntentUnknown  Intent = "unknown"
)

// Polarity is the yes/no reading of a short reply
type Polarity int

const (
	PolarityUnknown Polarity = iota
	PolarityAffirmative
	PolarityNegative
)

// ClassifiedMessage is the fully parsed view of one inbound message that the
// guest-flow reducer consumes: the resolved intent plus everything the
// message itself carries (yes/no polarity, an order id, identity factors).
type ClassifiedMessage struct {
	Text       string
	Intent     Intent
	Confidence float64
	Polarity   Polarity
	OrderID    int64
	Factors    orders.IdentityFactors
}

// HasOrderID reports whether the message carried a recognizable order id
func (m ClassifiedMessage) HasOrderID() bool {
	return m.OrderID > 0
}
