package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

type CustomerType string

const (
	CustomerTypePrivate  CustomerType = "private"
	CustomerTypeBusiness CustomerType = "business"
)

type Customer struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	UserID      snowflake.ID `gorm:"not null;index" json:"user_id"`
	Type        CustomerType `gorm:"type:varchar(16);not null;default:'business'" json:"type"`
	CompanyName string       `gorm:"type:text" json:"company_name"`
	FirstName   string       `gorm:"type:text" json:"first_name"`
	LastName    string       `gorm:"type:text" json:"last_name"`
	Email       string       `gorm:"type:varchar(255)" json:"email"`
	Phone       string       `gorm:"type:varchar(64)" json:"phone"`
	Address     string       `gorm:"type:text" json:"address"`
	City        string       `gorm:"type:text" json:"city"`
	PostalCode  string       `gorm:"type:varchar(16)" json:"postal_code"`
	Country     string       `gorm:"type:varchar(64)" json:"country"`
	TaxID       string       `gorm:"column:tax_id;type:varchar(64)" json:"tax_id"`
	Notes       string       `gorm:"type:text" json:"notes"`
	CreatedAt   time.Time    `gorm:"not null;index" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"not null" json:"updated_at"`
}

func (Customer) TableName() string { return "customers" }

func (c Customer) DisplayName() string {
	return DisplayName(c.CompanyName, c.FirstName, c.LastName)
}

// DisplayName prefers the company name and falls back to the person's name.
func DisplayName(company, first, last string) string {
	if company = strings.TrimSpace(company); company != "" {
		return company
	}
	return strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))
}
