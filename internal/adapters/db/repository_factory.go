package db

// RepositoryFactory wires every repository onto one shared connection
type RepositoryFactory struct {
	conn *Connection
}

// NewRepositoryFactory creates a new repository factory
func NewRepositoryFactory(conn *Connection) *RepositoryFactory {
	return &RepositoryFactory{conn: conn}
}

// GetAuctionRepository returns the auction repository
func (f *RepositoryFactory) GetAuctionRepository() *AuctionRepository {
	return NewAuctionRepository(f.conn)
}

// GetSettlementRepository returns the settlement repository
func (f *RepositoryFactory) GetSettlementRepository() *SettlementRepository {
	return NewSettlementRepository(f.conn)
}

// GetVehicleRepository returns the vehicle repository
func (f *RepositoryFactory) GetVehicleRepository() *VehicleRepository {
	return NewVehicleRepository(f.conn)
}

// GetBidderRepository returns the bidder repository
func (f *RepositoryFactory) GetBidderRepository() *BidderRepository {
	return NewBidderRepository(f.conn)
}
