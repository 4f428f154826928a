package entity

import (
	"time"
)

// Coordinate is a WGS 84 point. An unknown location is represented by a nil
// *Coordinate, never by the zero value.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// LocationSource identifies how a session coordinate was obtained.
type LocationSource string

const (
	SourceManual  LocationSource = "manual"
	SourceDevice  LocationSource = "device"
	SourceCached  LocationSource = "cached"
	SourceDefault LocationSource = "default"
	// SourceExplicit marks a coordinate supplied inline with a single query,
	// as opposed to the persisted manual override.
	SourceExplicit LocationSource = "explicit"
)

// LocationState is the persisted last-known location for a user. The manual
// override flag lives next to the cached coordinate so that clearing the
// override keeps the coordinate available as a fallback.
type LocationState struct {
	UserID         string      `json:"user_id"`
	Cached         *Coordinate `json:"cached,omitempty"`
	ManualOverride bool        `json:"manual_override"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// Item is a listing in the shared catalog.
type Item struct {
	ID         string      `json:"id"`
	SellerID   string      `json:"seller_id"`
	Title      string      `json:"title"`
	Category   string      `json:"category"`
	Price      float64     `json:"price"`
	ImageURL   string      `json:"image_url"`
	Coordinate *Coordinate `json:"coordinate,omitempty"`
	IsSold     bool        `json:"is_sold"`
	PostedAt   time.Time   `json:"posted_at"`
}

// ItemWithDistance annotates a catalog item with its distance from the
// requester's resolved location.
type ItemWithDistance struct {
	Item
	DistanceKm float64 `json:"distance_km"`
}

// RequestStatus is the lifecycle state of a buy request.
type RequestStatus string

const (
	StatusPending   RequestStatus = "pending"
	StatusAccepted  RequestStatus = "accepted"
	StatusRejected  RequestStatus = "rejected"
	StatusDelivered RequestStatus = "delivered"
)

// Terminal reports whether no further transition is allowed out of s.
func (s RequestStatus) Terminal() bool {
	return s == StatusRejected || s == StatusDelivered
}

// Request is a buyer's claim on an item. At most one request may exist per
// (ItemID, BuyerID) pair, and at most one request per item ever reaches
// StatusAccepted.
type Request struct {
	ID        string        `json:"id"`
	ItemID    string        `json:"item_id"`
	ItemTitle string        `json:"item_title"`
	BuyerID   string        `json:"buyer_id"`
	BuyerName string        `json:"buyer_name"`
	SellerID  string        `json:"seller_id"`
	Status    RequestStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
}

// ChatChannel is the conversation provisioned when a request is accepted.
// Its ID is deterministic in (ItemID, BuyerID, SellerID) so repeated
// provisioning never duplicates a channel.
type ChatChannel struct {
	ID        string    `json:"id"`
	ItemID    string    `json:"item_id"`
	BuyerID   string    `json:"buyer_id"`
	SellerID  string    `json:"seller_id"`
	CreatedAt time.Time `json:"created_at"`
}
