package store

import "time"

// ReviewSLABusinessDays is how long staff have to complete a manual
// research request.
const ReviewSLABusinessDays = 2

// SLADeadline returns the timestamp n business days after from,
// skipping Saturdays and Sundays. Public holidays are not modelled;
// the queue listing treats the deadline as a soft target.
func SLADeadline(from time.Time, businessDays int) time.Time {
	d := from
	for i := 0; i < businessDays; i++ {
		d = d.AddDate(0, 0, 1)
		for d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			d = d.AddDate(0, 0, 1)
		}
	}
	return d
}
