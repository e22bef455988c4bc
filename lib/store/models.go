package store

// Name contains the fields for a display name saved to DB.
type Name struct {
	Addr string `json:"address" bson:"address"`
	Name string `json:"name" bson:"name"`
}

// Game contains the fields of the game checkpoint saved to DB.
type Game struct {
	Price      uint64 `json:"price" bson:"price"`
	StartBlock uint64 `json:"startBlock" bson:"startBlock"`
	EndBlock   uint64 `json:"endBlock" bson:"endBlock"`
	Height     uint64 `json:"height" bson:"height"`
}
