package model

import "time"

// DateLayout is the calendar-day format used for record and note dates.
const DateLayout = "2006-01-02"

// UnknownSeller is stored when the seller name or its UUID is not known.
const UnknownSeller = "UNKNOWN"

// RecordDate returns the calendar day of t as stored in the idempotency key.
func RecordDate(t time.Time) string {
	return t.Format(DateLayout)
}

// Submission is one raw listing text with the coordinates of its barrel.
type Submission struct {
	Text string `json:"text"`
	X    int    `json:"x"`
	Y    int    `json:"y"`
	Z    int    `json:"z"`
}

// Coordinates is a block position in the world.
type Coordinates struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

// Listing is the structured result extracted from a submission's text.
type Listing struct {
	Name        string      `json:"name"`
	Price       float64     `json:"price"`
	Quantity    float64     `json:"quantity"`
	Seller      string      `json:"seller"`
	MinecraftID string      `json:"minecraft_id"`
	TypeID      string      `json:"typeId"`
	TypeRu      string      `json:"typeRu"`
	Coordinates Coordinates `json:"coordinates"`
}

// Record is a persisted listing. At most one record exists per Key.
type Record struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Price        float64   `json:"price"`
	Quantity     float64   `json:"quantity"`
	Seller       string    `json:"seller"`
	SellerUUID   string    `json:"seller_uuid"`
	MinecraftID  string    `json:"minecraft_id"`
	TypeID       string    `json:"typeId"`
	TypeRu       string    `json:"typeRu"`
	BenefitRatio float64   `json:"benefit_ratio"`
	X            int       `json:"x"`
	Y            int       `json:"y"`
	Z            int       `json:"z"`
	RecordDate   string    `json:"record_date"`
	CreatedAt    time.Time `json:"created_at"`
}

// Key returns the idempotency key of the record.
func (r *Record) Key() Key {
	return Key{Day: r.RecordDate, X: r.X, Y: r.Y, Z: r.Z}
}

// Key identifies a barrel on one calendar day.
type Key struct {
	Day string
	X   int
	Y   int
	Z   int
}

// Position is a coordinate triple without a day.
type Position struct {
	X int
	Y int
	Z int
}

// Position returns the coordinate triple of the record.
func (r *Record) Position() Position {
	return Position{X: r.X, Y: r.Y, Z: r.Z}
}

// NewRecord builds a record from a validated listing. Coordinates come from
// the submission, not from the model's echo of them.
func NewRecord(sub Submission, l *Listing, sellerUUID string, now time.Time) *Record {
	return &Record{
		Name:         l.Name,
		Price:        l.Price,
		Quantity:     l.Quantity,
		Seller:       l.Seller,
		SellerUUID:   sellerUUID,
		MinecraftID:  l.MinecraftID,
		TypeID:       l.TypeID,
		TypeRu:       l.TypeRu,
		BenefitRatio: BenefitRatio(l.Quantity, l.Price),
		X:            sub.X,
		Y:            sub.Y,
		Z:            sub.Z,
		RecordDate:   RecordDate(now),
		CreatedAt:    now,
	}
}

// BenefitRatio is quantity per unit of price.
func BenefitRatio(quantity, price float64) float64 {
	if price <= 0 {
		return 0
	}
	return quantity / price
}

// TypeCount is one row of the per-type summary.
type TypeCount struct {
	TypeID string `json:"typeId"`
	Type   string `json:"type"`
	Count  int64  `json:"count"`
}

// ItemCount is one row of the per-item summary within a type.
type ItemCount struct {
	MinecraftID string `json:"minecraft_id"`
	Name        string `json:"name"`
	Count       int64  `json:"count"`
}
