package db

import (
	"context"
	"database/sql"
	"fmt"

	"veles-auction-engine/internal/domain/shared"
)

// VehicleRepository resolves catalog references. The catalog itself lives in
// an external system; this table mirrors the references auctions may bind to.
type VehicleRepository struct {
	conn *Connection
}

// NewVehicleRepository creates a new vehicle repository
func NewVehicleRepository(conn *Connection) *VehicleRepository {
	return &VehicleRepository{conn: conn}
}

func (r *VehicleRepository) GetByRef(ctx context.Context, ref string) (*shared.Vehicle, error) {
	query := `
		SELECT ref, title, created_at, updated_at
		FROM vehicles
		WHERE ref = $1
	`

	var v shared.Vehicle
	err := r.conn.DB().QueryRowContext(ctx, query, ref).Scan(
		&v.Ref,
		&v.Title,
		&v.CreatedAt,
		&v.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, shared.ErrVehicleNotFound
		}
		return nil, fmt.Errorf("failed to get vehicle: %w", err)
	}

	return &v, nil
}

func (r *VehicleRepository) Create(ctx context.Context, v *shared.Vehicle) error {
	query := `
		INSERT INTO vehicles (ref, title, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
	`

	if _, err := r.conn.DB().ExecContext(ctx, query, v.Ref, v.Title, v.CreatedAt, v.UpdatedAt); err != nil {
		return fmt.Errorf("failed to create vehicle: %w", err)
	}

	return nil
}
