package domain

import "time"

// IST is the display and scheduling time zone. It falls back to a fixed
// +05:30 offset when the tz database is not installed.
var IST = loadIST()

func loadIST() *time.Location {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		return time.FixedZone("IST", 5*60*60+30*60)
	}
	return loc
}
