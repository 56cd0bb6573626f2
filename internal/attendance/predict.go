package attendance

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/your-org/facegate/internal/models"
)

// MinPredictionSamples is the smallest history that yields a usable fit.
const MinPredictionSamples = 3

// PredictCheckout estimates today's check-out time from completed past
// cycles: session length is regressed against check-in minute-of-day, then
// evaluated at today's check-in. Returns an error when fewer than
// MinPredictionSamples completed cycles exist.
func PredictCheckout(history []models.AttendanceRecord, checkIn time.Time) (time.Time, error) {
	var xs, ys []float64
	for _, rec := range history {
		if rec.CheckOutTime == nil {
			continue
		}
		dur := rec.CheckOutTime.Sub(rec.CheckInTime)
		if dur <= 0 {
			continue
		}
		xs = append(xs, minuteOfDay(rec.CheckInTime))
		ys = append(ys, dur.Minutes())
	}

	if len(xs) < MinPredictionSamples {
		return time.Time{}, fmt.Errorf("need at least %d completed cycles, have %d",
			MinPredictionSamples, len(xs))
	}

	alpha, beta := stat.LinearRegression(xs, ys, nil, false)
	predicted := alpha + beta*minuteOfDay(checkIn)
	if predicted < 0 {
		predicted = 0
	}

	return checkIn.Add(time.Duration(predicted * float64(time.Minute))), nil
}

func minuteOfDay(t time.Time) float64 {
	return float64(t.Hour()*60 + t.Minute())
}
