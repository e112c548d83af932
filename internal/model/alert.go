package model

import "time"

// Alert は「価格が目標以下に下がったら通知する」というユーザーの登録を表す。
// 発火したアラートは削除される（発火済み状態は存在しない）。
// 発火は1回限りで、通知の送信失敗でも削除は行われる。
type Alert struct {
	ID          string
	ProductID   string
	OwnerID     string
	TargetPrice float64
	NotifyEmail string
	CreatedAt   time.Time
}
