package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type User struct {
	ID             uuid.UUID
	Email          string
	FullName       string
	HashedPassword string
	Role           string
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type SalesRep struct {
	ID        uuid.UUID
	Code      string
	Name      string
	Phone     pgtype.Text
	Email     pgtype.Text
	APIToken  pgtype.Text
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Customer struct {
	ID        uuid.UUID
	Code      string
	Name      string
	Document  pgtype.Text
	Phone     pgtype.Text
	Email     pgtype.Text
	Address   pgtype.Text
	City      pgtype.Text
	RouteID   pgtype.UUID
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Product struct {
	ID        uuid.UUID
	Code      string
	Name      string
	Unit      string
	Price     pgtype.Numeric
	Stock     pgtype.Numeric
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Route struct {
	ID          uuid.UUID
	Code        string
	Name        string
	Description pgtype.Text
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Load struct {
	ID        uuid.UUID
	RouteID   uuid.UUID
	LoadDate  time.Time
	Vehicle   pgtype.Text
	Driver    pgtype.Text
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Order struct {
	ID            uuid.UUID
	CustomerID    pgtype.UUID
	CustomerName  string
	SalesRepID    pgtype.UUID
	SalesRepName  pgtype.Text
	OrderDate     time.Time
	Subtotal      pgtype.Numeric
	Discount      pgtype.Numeric
	TotalAmount   pgtype.Numeric
	PaymentMethod pgtype.Text
	Status        string
	Source        string
	MobileOrderID pgtype.Text
	Notes         pgtype.Text
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type OrderItem struct {
	ID          uuid.UUID
	OrderID     uuid.UUID
	ProductID   uuid.UUID
	ProductCode string
	ProductName string
	Quantity    pgtype.Numeric
	Unit        string
	UnitPrice   pgtype.Numeric
	Discount    pgtype.Numeric
	Total       pgtype.Numeric
	CreatedAt   time.Time
}

type Payment struct {
	ID        uuid.UUID
	OrderID   uuid.UUID
	Method    string
	Amount    pgtype.Numeric
	Reference pgtype.Text
	PaidAt    time.Time
	CreatedAt time.Time
}

type SyncUpdate struct {
	ID          uuid.UUID
	DataTypes   []string
	Description string
	IsActive    bool
	CreatedBy   pgtype.Text
	ConsumedBy  pgtype.Text
	DeviceID    pgtype.Text
	CompletedAt pgtype.Timestamptz
	CreatedAt   time.Time
}

type SyncLog struct {
	ID         uuid.UUID
	Event      string
	SalesRepID pgtype.UUID
	DeviceID   pgtype.Text
	Details    []byte
	CreatedAt  time.Time
}
