package model

// RoomStatus 房间占用状态
type RoomStatus string

const (
	RoomAvailable   RoomStatus = "available"
	RoomOccupied    RoomStatus = "occupied"
	RoomMaintenance RoomStatus = "maintenance"
)

// Valid 是否为已知状态
func (s RoomStatus) Valid() bool {
	switch s {
	case RoomAvailable, RoomOccupied, RoomMaintenance:
		return true
	}
	return false
}

// Room 宿舍房间表，对应 rooms
// Status 是 active 分配数量的缓存摘要，只允许 Coordinator 修改（maintenance 为人工覆盖）
type Room struct {
	RoomID     string     `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"room_id"`
	RoomNumber string     `gorm:"type:varchar(20);not null"                     json:"room_number"`
	Block      string     `gorm:"type:varchar(20);not null"                     json:"block"`
	Floor      int        `gorm:"not null;default:0"                            json:"floor"`
	Capacity   int        `gorm:"not null;default:1"                            json:"capacity"` // 存储但不参与分配判定
	Gender     string     `gorm:"type:varchar(10);not null;default:'mixed'"     json:"gender"`   // male | female | mixed
	Status     RoomStatus `gorm:"type:varchar(20);not null;default:'available'" json:"status"`
	VersionedModel
}

// TableName 指定表名
func (Room) TableName() string { return "rooms" }
