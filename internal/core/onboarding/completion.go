package onboarding

import "math"

// Derive はタスク一覧から完了率 (小数第 2 位で四捨五入、0.5 は 0 から遠い方向へ丸める) と全完了フラグを算出します。
// タスクが空の場合は (0, false) です。
func Derive(tasks []Task) (float64, bool) {
	total := len(tasks)
	if total == 0 {
		return 0, false
	}

	completed := 0
	for _, t := range tasks {
		if t.Status == TaskStatusCompleted {
			completed++
		}
	}

	return roundPercentage(100 * float64(completed) / float64(total)), completed == total
}

func roundPercentage(v float64) float64 {
	return math.Round(v*100) / 100
}
