package model

import "time"

// ConvergeInstance 收敛实例
type ConvergeInstance struct {
	ID           int64        `json:"id"`
	ConvergeType ConvergeType `json:"converge_type"`
	Description  string       `json:"description"`
	BkBizID      int64        `json:"bk_biz_id"`
	CreateTime   time.Time    `json:"create_time"`
}

// ConvergeRelation 收敛实例与被收敛对象的关系
type ConvergeRelation struct {
	ConvergeID     int64        `json:"converge_id"`
	RelatedID      int64        `json:"related_id"`
	RelatedType    ConvergeType `json:"related_type"`
	ConvergeStatus string       `json:"converge_status"`
	Alerts         []string     `json:"alerts"`
}
