package model

import "time"

// AllocationStatus 分配状态
type AllocationStatus string

const (
	AllocationActive     AllocationStatus = "active"
	AllocationCheckedOut AllocationStatus = "checked_out"
	AllocationCancelled  AllocationStatus = "cancelled"
)

// Terminal 终态不可再变更
func (s AllocationStatus) Terminal() bool {
	return s == AllocationCheckedOut || s == AllocationCancelled
}

// Allocation 住宿分配表，对应 allocations
type Allocation struct {
	AllocationID   string           `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"allocation_id"`
	StudentID      string           `gorm:"type:varchar(32);not null"                     json:"student_id"`
	RoomID         string           `gorm:"type:uuid;not null"                            json:"room_id"`
	AllocationDate time.Time        `gorm:"type:date;not null"                            json:"allocation_date"`
	CheckInDate    *time.Time       `gorm:"type:date"                                     json:"check_in_date,omitempty"`
	CheckOutDate   *time.Time       `gorm:"type:date"                                     json:"check_out_date,omitempty"`
	Status         AllocationStatus `gorm:"type:varchar(20);not null;default:'active'"    json:"status"`
	CancelReason   *string          `gorm:"type:varchar(255)"                             json:"cancel_reason,omitempty"`
	BaseModel

	// 关联
	Room *Room `gorm:"foreignKey:RoomID;references:RoomID" json:"room,omitempty"`
}

// TableName 指定表名
func (Allocation) TableName() string { return "allocations" }
