package model

// Student 学生名录表，对应 students
// RollNumber 决定名录的稳定顺序，考勤序号解析依赖它
type Student struct {
	StudentID  string  `gorm:"type:varchar(32);primaryKey"              json:"student_id"`
	Name       string  `gorm:"type:varchar(100);not null"               json:"name"`
	RollNumber int     `gorm:"not null"                                 json:"roll_number"`
	Gender     string  `gorm:"type:varchar(10);not null;default:'mixed'" json:"gender"`
	Course     *string `gorm:"type:varchar(50)"                         json:"course,omitempty"`
	IsActive   bool    `gorm:"not null;default:true"                    json:"is_active"`
	BaseModel
}

// TableName 指定表名
func (Student) TableName() string { return "students" }
