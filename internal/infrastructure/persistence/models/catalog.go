package models

import (
	"github.com/shopspring/decimal"
)

// StoreModel is a tracked POS domain table: one physical store location
// within a tenant. The change-capture subsystem itself is table-agnostic;
// stores and products exist so migrations and tests exercise it against
// realistic tracked rows.
type StoreModel struct {
	TenantAggregateModel
	Code     string `gorm:"type:varchar(50);not null"`
	Name     string `gorm:"type:varchar(200);not null"`
	Timezone string `gorm:"type:varchar(50)"`
	Active   bool   `gorm:"not null;default:true"`
}

// TableName returns the table name for GORM
func (StoreModel) TableName() string {
	return "stores"
}

// ProductModel is a tracked POS domain table: a sellable product. StoreID is
// nil for tenant-wide catalog entries and set for store overrides.
type ProductModel struct {
	TenantAggregateModel
	SKU    string          `gorm:"type:varchar(100);not null"`
	Name   string          `gorm:"type:varchar(200);not null"`
	Price  decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Active bool            `gorm:"not null;default:true"`
}

// TableName returns the table name for GORM
func (ProductModel) TableName() string {
	return "products"
}
