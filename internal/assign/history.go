package assign

// Flight is one entry of a drone's mock flight history.
type Flight struct {
	Time     string `json:"time"`
	From     string `json:"from"`
	To       string `json:"to"`
	Duration string `json:"duration"`
	Status   string `json:"status"`
}

var (
	historyStatuses  = []string{"Completed", "Completed", "Completed", "Cancelled"}
	historyDurations = []string{"12 min", "18 min", "8 min", "22 min", "15 min", "6 min"}
	historyTimes     = []string{"2 hours ago", "5 hours ago", "Yesterday", "2 days ago", "3 days ago"}
)

// History returns 3-5 deterministic past flights for a drone.
func (g *Generator) History(id string) []Flight {
	locs := g.Landmarks(id)
	seed := Seed(id)
	count := 3 + seed%3
	out := make([]Flight, 0, count)
	for i := 0; i < count; i++ {
		s := seed + i
		f := Flight{
			Time:     historyTimes[i%len(historyTimes)],
			Duration: historyDurations[(s+i)%len(historyDurations)],
			Status:   historyStatuses[(s+i)%len(historyStatuses)],
		}
		if len(locs) > 0 {
			from, to := pickPair(s, len(locs))
			f.From, f.To = locs[from], locs[to]
		}
		out = append(out, f)
	}
	return out
}
