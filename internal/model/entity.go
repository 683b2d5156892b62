package model

import "time"

// Entity is a persisted master record for a real-world building/complex. It
// carries several alternate address identifiers and, once backfilled, a
// coordinate pair.
type Entity struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	RoadAddress string    `json:"road_address"`
	LotAddress  string    `json:"lot_address"`
	BuildYear   string    `json:"build_year"`
	Latitude    *float64  `json:"latitude,omitempty"`
	Longitude   *float64  `json:"longitude,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Located reports whether the entity has coordinates assigned.
func (e *Entity) Located() bool {
	return e.Latitude != nil && e.Longitude != nil
}

// Key returns the deduplication tuple for this entity.
func (e *Entity) Key() AddressKey {
	return AddressKey{
		Name:        e.Name,
		RoadAddress: e.RoadAddress,
		LotAddress:  e.LotAddress,
		BuildYear:   e.BuildYear,
	}
}
