package entity

import "time"

// Room is a 1:1 chat channel between the buyer and the seller of a product.
// At most one room exists per (product, buyer, seller) triple; the composite
// unique index is what resolves concurrent creation races.
type Room struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ProductID uint64    `gorm:"not null;uniqueIndex:uniq_room_triple,priority:1" json:"product_id"`
	BuyerID   uint64    `gorm:"not null;uniqueIndex:uniq_room_triple,priority:2" json:"buyer_id"`
	SellerID  uint64    `gorm:"not null;uniqueIndex:uniq_room_triple,priority:3" json:"seller_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (Room) TableName() string { return "chat_rooms" }

// OtherParty returns the counterpart of userID in the room.
func (r *Room) OtherParty(userID uint64) uint64 {
	if r.BuyerID == userID {
		return r.SellerID
	}
	return r.BuyerID
}

func (r *Room) HasParty(userID uint64) bool {
	return r.BuyerID == userID || r.SellerID == userID
}
