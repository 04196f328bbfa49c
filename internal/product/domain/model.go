package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type ProductType string

const (
	ProductTypeProduct ProductType = "product"
	ProductTypeService ProductType = "service"
)

const DefaultUnit = "Stück"

var DefaultTaxRate = decimal.NewFromInt(19)

type Product struct {
	ID          snowflake.ID      `json:"id" gorm:"primaryKey"`
	UserID      snowflake.ID      `json:"user_id" gorm:"not null;index"`
	Type        ProductType       `json:"type" gorm:"type:varchar(16);not null"`
	Name        string            `json:"name" gorm:"type:text;not null"`
	Description string            `json:"description" gorm:"type:text"`
	SKU         string            `json:"sku" gorm:"column:sku;type:varchar(64)"`
	Price       decimal.Decimal   `json:"price" gorm:"type:decimal(12,2);not null"`
	TaxRate     decimal.Decimal   `json:"tax_rate" gorm:"type:decimal(5,2);not null"`
	Unit        string            `json:"unit" gorm:"type:varchar(32);not null"`
	Category    string            `json:"category" gorm:"type:varchar(64);index"`
	IsActive    bool              `json:"is_active" gorm:"not null"`
	Metadata    datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at" gorm:"not null;index"`
	UpdatedAt   time.Time         `json:"updated_at" gorm:"not null"`
}

func (Product) TableName() string { return "products" }
