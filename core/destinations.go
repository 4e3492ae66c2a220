package core

import "time"

// Destination is a named broker queue with fixed routing and policy.
// The catalog is closed: critical, high, normal, low, batch and anomaly.
type Destination string

const (
	DestinationCritical Destination = "critical"
	DestinationHigh     Destination = "high"
	DestinationNormal   Destination = "normal"
	DestinationLow      Destination = "low"
	DestinationBatch    Destination = "batch"
	DestinationAnomaly  Destination = "anomaly"
)

// Exchange and queue names for the broker topology.
const (
	PriorityExchange = "priority-exchange"
	AnomalyExchange  = "anomaly-exchange"
	DLQExchange      = "dlq-exchange"
	DLQQueue         = "dlq-queue"
	DLQRoutingKey    = "failed"
)

// DestinationProperties are the fixed wire-level properties of one
// destination.
type DestinationProperties struct {
	// WirePriority is the 0-255 broker message priority published to this
	// destination by default.
	WirePriority uint8

	// TTL is the per-queue message time-to-live.
	TTL time.Duration

	// MaxDepth is the x-max-length of the queue. Overflow policy on every
	// destination is reject-publish.
	MaxDepth int

	// RoutingKey binds the destination to its exchange.
	RoutingKey string

	// Exchange carries messages for this destination.
	Exchange string
}

var destinationCatalog = map[Destination]DestinationProperties{
	DestinationCritical: {WirePriority: 255, TTL: 60 * time.Second, MaxDepth: 1000, RoutingKey: "priority.critical", Exchange: PriorityExchange},
	DestinationHigh:     {WirePriority: 200, TTL: 300 * time.Second, MaxDepth: 5000, RoutingKey: "priority.high", Exchange: PriorityExchange},
	DestinationNormal:   {WirePriority: 100, TTL: 600 * time.Second, MaxDepth: 10000, RoutingKey: "priority.normal", Exchange: PriorityExchange},
	DestinationLow:      {WirePriority: 50, TTL: 1800 * time.Second, MaxDepth: 20000, RoutingKey: "priority.low", Exchange: PriorityExchange},
	DestinationBatch:    {WirePriority: 10, TTL: 3600 * time.Second, MaxDepth: 50000, RoutingKey: "priority.batch", Exchange: PriorityExchange},
	DestinationAnomaly:  {WirePriority: 150, TTL: 300 * time.Second, MaxDepth: 2000, RoutingKey: "anomaly.detected", Exchange: AnomalyExchange},
}

// Destinations lists the catalog in descending wire-priority order.
var Destinations = []Destination{
	DestinationCritical,
	DestinationHigh,
	DestinationAnomaly,
	DestinationNormal,
	DestinationLow,
	DestinationBatch,
}

// Properties returns the fixed wire properties of d. Unknown destinations
// return the normal destination's properties.
func (d Destination) Properties() DestinationProperties {
	if props, ok := destinationCatalog[d]; ok {
		return props
	}
	return destinationCatalog[DestinationNormal]
}

// QueueName returns the broker queue name for d.
func (d Destination) QueueName() string {
	return string(d)
}

// Valid reports whether d is part of the closed catalog.
func (d Destination) Valid() bool {
	_, ok := destinationCatalog[d]
	return ok
}

// ParseDestination validates a destination name against the closed catalog.
// Unknown names return (DestinationNormal, false) so callers can route the
// message and note the validation failure.
func ParseDestination(name string) (Destination, bool) {
	d := Destination(name)
	if d.Valid() {
		return d, true
	}
	return DestinationNormal, false
}
