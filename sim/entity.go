// Defines the Entity that flows through the queueing network.
// Tracks arrival/departure times, per-step waits and service times, and outcome flags.

package sim

import "fmt"

// EntityState is the lifecycle state of an entity.
type EntityState string

const (
	EntityArrived   EntityState = "arrived"
	EntityBalked    EntityState = "balked"
	EntityQueued    EntityState = "queued"
	EntityInService EntityState = "in_service"
	EntityReneged   EntityState = "reneged"
	EntityDeparted  EntityState = "departed"
	EntityDropped   EntityState = "dropped"
)

// Built-in attribute keys injected into every entity so that routing conditions can test them.
const (
	AttrPriority   = "priority"
	AttrEntityType = "entity_type"
	AttrValue      = "value"
)

// Entity is one unit of flow (customer, job, patient).
// Created at arrival, mutated only by its process and the metrics collector.
type Entity struct {
	ID       int
	Type     string
	Priority int     // smaller = more urgent
	Value    float64 // contributes to total value when served

	Attributes Attributes

	State         EntityState
	ArrivalTime   float64
	DepartureTime float64
	WaitTimes     map[string]float64 // resource name -> time spent queued there
	ServiceTimes  map[string]float64 // resource name -> service duration received there

	Served  bool
	Balked  bool
	Reneged bool
}

func newEntity(id int, typ *entityType, value float64, now float64) *Entity {
	attrs := typ.attributes.Clone()
	attrs[AttrPriority] = Number(float64(typ.priority))
	attrs[AttrEntityType] = String(typ.name)
	attrs[AttrValue] = Number(value)
	return &Entity{
		ID:           id,
		Type:         typ.name,
		Priority:     typ.priority,
		Value:        value,
		Attributes:   attrs,
		State:        EntityArrived,
		ArrivalTime:  now,
		WaitTimes:    make(map[string]float64),
		ServiceTimes: make(map[string]float64),
	}
}

// Name returns the identifier used in logs, traces and resource requests.
func (e *Entity) Name() string {
	return fmt.Sprintf("%s_%d", e.Type, e.ID)
}

func (e Entity) String() string {
	return fmt.Sprintf("Entity: (ID: %d, Type: %s, Priority: %d, State: %s, ArrivalTime: %.4f)",
		e.ID, e.Type, e.Priority, e.State, e.ArrivalTime)
}
