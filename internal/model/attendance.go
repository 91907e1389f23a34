package model

import "time"

// AttendanceStatus 出勤状态
type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "present"
	AttendanceAbsent  AttendanceStatus = "absent"
	AttendanceLate    AttendanceStatus = "late"
)

// Valid 是否为已知状态
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendancePresent, AttendanceAbsent, AttendanceLate:
		return true
	}
	return false
}

// AttendanceRecord 考勤记录表，对应 attendance_records
// (student_id, course, subject, date) 概念唯一，但数据库不约束
type AttendanceRecord struct {
	AttendanceID string           `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"attendance_id"`
	StudentID    string           `gorm:"type:varchar(32);not null"                     json:"student_id"`
	Course       string           `gorm:"type:varchar(50);not null"                     json:"course"`
	Subject      string           `gorm:"type:varchar(100);not null"                    json:"subject"`
	Date         time.Time        `gorm:"type:date;not null"                            json:"date"`
	Status       AttendanceStatus `gorm:"type:varchar(10);not null"                     json:"status"`
	MarkedBy     string           `gorm:"type:varchar(64);not null"                     json:"marked_by"`
	CreatedAt    time.Time        `gorm:"not null;default:CURRENT_TIMESTAMP"            json:"created_at"`
	UpdatedAt    time.Time        `gorm:"not null;default:CURRENT_TIMESTAMP"            json:"updated_at"`
}

// TableName 指定表名
func (AttendanceRecord) TableName() string { return "attendance_records" }
