package models

// DataPlan maps a storefront bundle to the delivery gateway's plan code.
type DataPlan struct {
	BaseModel
	Network  string `gorm:"index;not null" json:"network"`
	Data     string `json:"data"`
	Validity string `json:"validity"`
	Price    int64  `json:"price"`
	PlanCode int    `gorm:"column:plan_code" json:"plan_code"`
}

// Product is a physical item (router, SIM) fulfilled by staff.
type Product struct {
	BaseModel
	Name        string `gorm:"not null" json:"name"`
	Description string `json:"description"`
	Price       int64  `json:"price"`
	Image       string `json:"image"`
	InStock     bool   `gorm:"default:true" json:"in_stock"`
	Category    string `gorm:"default:device" json:"category"`
}

type SystemMessage struct {
	BaseModel
	Content  string `gorm:"type:text" json:"content"`
	Type     string `json:"type"`
	IsActive bool   `gorm:"index" json:"is_active"`
}
