package applications

import (
	"slices"
	"time"
)

// Stats is the funnel of a set of applications. Everything is derived from
// the application histories.
type Stats struct {
	Total                  int            `json:"total"`
	ByStatus               map[Status]int `json:"by_status"`
	Responded              int            `json:"responded"`
	Interviewed            int            `json:"interviewed"`
	Offered                int            `json:"offered"`
	ResponseRate           float64        `json:"response_rate"`
	InterviewRate          float64        `json:"interview_rate"`
	OfferRate              float64        `json:"offer_rate"`
	MeanTimeToResponse     time.Duration  `json:"mean_time_to_response"`
	MedianTimeToResponse   time.Duration  `json:"median_time_to_response"`
	ApplicationsWithOffers []string       `json:"applications_with_offers,omitempty"`
}

// ComputeStats derives funnel statistics from applications.
func ComputeStats(apps []*Application) Stats {
	st := Stats{ByStatus: make(map[Status]int, len(Statuses))}
	var waits []time.Duration

	for _, a := range apps {
		st.Total++
		st.ByStatus[a.Status]++

		if at, ok := a.FirstResponseAt(); ok {
			st.Responded++
			waits = append(waits, at.Sub(a.AppliedAt))
		}
		if a.Reached(StatusInterview) {
			st.Interviewed++
		}
		if a.Reached(StatusOffer) {
			st.Offered++
			st.ApplicationsWithOffers = append(st.ApplicationsWithOffers, a.ID)
		}
	}

	if st.Total > 0 {
		total := float64(st.Total)
		st.ResponseRate = float64(st.Responded) / total
		st.InterviewRate = float64(st.Interviewed) / total
		st.OfferRate = float64(st.Offered) / total
	}

	if len(waits) > 0 {
		var sum time.Duration
		for _, w := range waits {
			sum += w
		}
		st.MeanTimeToResponse = sum / time.Duration(len(waits))

		slices.Sort(waits)
		mid := len(waits) / 2
		if len(waits)%2 == 1 {
			st.MedianTimeToResponse = waits[mid]
		} else {
			st.MedianTimeToResponse = (waits[mid-1] + waits[mid]) / 2
		}
	}

	return st
}
