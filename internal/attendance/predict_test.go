package attendance

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/facegate/internal/models"
)

func completedRecord(day time.Time, inHour, outHour int) models.AttendanceRecord {
	in := day.Add(time.Duration(inHour) * time.Hour)
	out := day.Add(time.Duration(outHour) * time.Hour)
	return models.AttendanceRecord{
		ID:           uuid.New(),
		IdentityID:   uuid.New(),
		Day:          day,
		CheckInTime:  in,
		CheckOutTime: &out,
	}
}

func TestPredictCheckoutNeedsHistory(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	history := []models.AttendanceRecord{
		completedRecord(day, 8, 17),
		completedRecord(day.AddDate(0, 0, 1), 8, 17),
	}

	_, err := PredictCheckout(history, day.Add(8*time.Hour))
	if err == nil {
		t.Fatal("expected an error with fewer than 3 completed cycles")
	}
}

func TestPredictCheckoutConstantSchedule(t *testing.T) {
	// Five identical 8:00 -> 17:00 days predict another 9h session.
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	var history []models.AttendanceRecord
	for i := 0; i < 5; i++ {
		history = append(history, completedRecord(day.AddDate(0, 0, i), 8, 17))
	}

	checkIn := time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)
	got, err := PredictCheckout(history, checkIn)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}

	want := time.Date(2026, 3, 9, 17, 0, 0, 0, time.UTC)
	if diff := got.Sub(want); diff < -time.Minute || diff > time.Minute {
		t.Errorf("predicted %v, want about %v", got, want)
	}
}

func TestPredictCheckoutIgnoresOpenOrInvertedRecords(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	open := models.AttendanceRecord{
		CheckInTime: day.Add(8 * time.Hour),
		// no check-out
	}
	inverted := completedRecord(day, 17, 8) // check-out before check-in

	history := []models.AttendanceRecord{open, inverted, completedRecord(day, 8, 16)}

	_, err := PredictCheckout(history, day.Add(8*time.Hour))
	if err == nil {
		t.Fatal("open and inverted records must not count toward the sample minimum")
	}
}

func TestPredictCheckoutNeverBeforeCheckIn(t *testing.T) {
	// History that regresses to a negative session length must clamp.
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	history := []models.AttendanceRecord{
		completedRecord(day, 6, 7),
		completedRecord(day.AddDate(0, 0, 1), 7, 8),
		completedRecord(day.AddDate(0, 0, 2), 8, 9),
	}

	// Sessions are 1h regardless of check-in, so this is a sanity check
	// on the fitted value rather than the clamp path.
	checkIn := time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)
	got, err := PredictCheckout(history, checkIn)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if got.Before(checkIn) {
		t.Errorf("predicted %v is before check-in %v", got, checkIn)
	}
}
