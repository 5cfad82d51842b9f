package entity

// Outcome describes how a finished game ended.
type Outcome struct {
	Winner Mark `json:"winner"`
	Draw   bool `json:"draw"`
}

func Win(mark Mark) Outcome {
	return Outcome{Winner: mark}
}

func Draw() Outcome {
	return Outcome{Draw: true}
}

func (that Outcome) String() string {
	if that.Draw {
		return "draw"
	}

	return that.Winner.String() + " wins"
}
