package model

// 日別の注文番号カウンタ。day は YYYYMMDD。
type OrderCodeSequence struct {
	Day     string `gorm:"type:char(8);primaryKey"`
	LastSeq int64  `gorm:"not null"`
}
