package models

import "github.com/uptrace/bun"

type Bus struct {
	bun.BaseModel `bun:"table:buses"`

	ID        int64  `bun:"id,pk,autoincrement" json:"id"`
	BusNumber string `bun:"bus_number,notnull" json:"bus_number"`
	IsActive  bool   `bun:"is_active,notnull" json:"is_active"`
}

type Route struct {
	bun.BaseModel `bun:"table:routes"`

	ID       int64  `bun:"id,pk,autoincrement" json:"id"`
	Code     string `bun:"code,notnull" json:"code"`
	Name     string `bun:"name,notnull" json:"name"`
	IsActive bool   `bun:"is_active,notnull" json:"is_active"`
}
