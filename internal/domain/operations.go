package domain

import "time"

// Operational store tables. The service only reads them.

type Vessel struct {
	VesselID     int64     `gorm:"primaryKey;autoIncrement" json:"vessel_id"`
	IMONo        int       `gorm:"not null;uniqueIndex" json:"imo_no"`
	VesselName   string    `gorm:"size:100;not null;index" json:"vessel_name"`
	CallSign     string    `gorm:"size:20" json:"call_sign,omitempty"`
	OperatorName string    `gorm:"size:100" json:"operator_name,omitempty"`
	FlagState    string    `gorm:"size:50" json:"flag_state,omitempty"`
	CapacityTEU  int       `json:"capacity_teu,omitempty"`
	LastPort     string    `gorm:"size:5" json:"last_port,omitempty"`
	NextPort     string    `gorm:"size:5" json:"next_port,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func (Vessel) TableName() string { return "vessel" }

type Container struct {
	ContainerID     int64      `gorm:"primaryKey;autoIncrement" json:"container_id"`
	CntrNo          string     `gorm:"size:11;not null;index" json:"cntr_no"`
	ISOCode         string     `gorm:"size:4" json:"iso_code"`
	SizeType        string     `gorm:"size:10" json:"size_type"`
	Status          string     `gorm:"size:16;not null;index" json:"status"`
	OriginPort      string     `gorm:"size:5" json:"origin_port"`
	TranshipPort    string     `gorm:"size:5" json:"tranship_port"`
	DestinationPort string     `gorm:"size:5" json:"destination_port"`
	HazardClass     string     `gorm:"size:10" json:"hazard_class,omitempty"`
	VesselID        *int64     `json:"vessel_id,omitempty"`
	ETA             *time.Time `gorm:"column:eta_ts" json:"eta_ts,omitempty"`
	ETD             *time.Time `gorm:"column:etd_ts" json:"etd_ts,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

func (Container) TableName() string { return "container" }

type EDIMessage struct {
	EDIID       int64      `gorm:"column:edi_id;primaryKey;autoIncrement" json:"edi_id"`
	ContainerID *int64     `json:"container_id,omitempty"`
	VesselID    *int64     `json:"vessel_id,omitempty"`
	MessageType string     `gorm:"size:16;not null" json:"message_type"`
	Direction   string     `gorm:"size:4" json:"direction"`
	Status      string     `gorm:"size:16;not null;index" json:"status"`
	MessageRef  string     `gorm:"size:50" json:"message_ref"`
	Sender      string     `gorm:"size:100" json:"sender"`
	Receiver    string     `gorm:"size:100" json:"receiver"`
	SentAt      time.Time  `gorm:"not null;index" json:"sent_at"`
	AckAt       *time.Time `json:"ack_at,omitempty"`
	ErrorText   string     `gorm:"size:500" json:"error_text,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func (EDIMessage) TableName() string { return "edi_message" }

type APIEvent struct {
	APIID         int64     `gorm:"column:api_id;primaryKey;autoIncrement" json:"api_id"`
	ContainerID   *int64    `json:"container_id,omitempty"`
	VesselID      *int64    `json:"vessel_id,omitempty"`
	EventType     string    `gorm:"size:32;not null" json:"event_type"`
	SourceSystem  string    `gorm:"size:50" json:"source_system"`
	HTTPStatus    int       `json:"http_status"`
	CorrelationID string    `gorm:"size:64" json:"correlation_id,omitempty"`
	EventTS       time.Time `gorm:"column:event_ts;not null;index" json:"event_ts"`
	PayloadJSON   string    `gorm:"type:text" json:"payload_json,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func (APIEvent) TableName() string { return "api_event" }

type VesselAdvice struct {
	VesselAdviceNo         int64      `gorm:"primaryKey;autoIncrement" json:"vessel_advice_no"`
	VesselName             string     `gorm:"size:100;not null" json:"vessel_name"`
	SystemVesselName       string     `gorm:"size:20" json:"system_vessel_name"`
	EffectiveStartDatetime time.Time  `json:"effective_start_datetime"`
	EffectiveEndDatetime   *time.Time `json:"effective_end_datetime,omitempty"`
	CreatedAt              time.Time  `json:"created_at"`
}

func (VesselAdvice) TableName() string { return "vessel_advice" }

// OperationalModels lists the tables AutoMigrate should create.
func OperationalModels() []interface{} {
	return []interface{}{&Vessel{}, &Container{}, &EDIMessage{}, &APIEvent{}, &VesselAdvice{}}
}
