// Package alert は価格アラートの発火判定を行う。
package alert

import "github.com/pricepulse/pricepulse/internal/model"

// Evaluation はアラート評価の結果。
type Evaluation struct {
	// Fired は発火条件を満たしたアラート。入力順を保持する。
	Fired []*model.Alert
	// Remaining は発火しなかったアラート。入力順を保持する。
	Remaining []*model.Alert
}

// Evaluate は新しい観測価格に対して各アラートを独立に判定する。
// 観測価格が目標価格以下（等しい場合を含む）なら発火とする。
// 価格履歴上の経過は考慮せず、現在の観測値だけで判定する。
func Evaluate(newPrice float64, alerts []*model.Alert) Evaluation {
	var result Evaluation
	for _, a := range alerts {
		if newPrice <= a.TargetPrice {
			result.Fired = append(result.Fired, a)
		} else {
			result.Remaining = append(result.Remaining, a)
		}
	}
	return result
}
