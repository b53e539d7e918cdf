package governance

// ApprovalThreshold is the minimum weighted score that makes a proposal
// eligible for approval.
const ApprovalThreshold = 70

// Sliders are the three council scores, each in [0, 100].
type Sliders struct {
	Human  int `json:"human"`
	Safety int `json:"safety"`
	Ops    int `json:"ops"`
}

func (s Sliders) validate() error {
	for _, field := range []struct {
		name  string
		value int
	}{{"human", s.Human}, {"safety", s.Safety}, {"ops", s.Ops}} {
		if field.value < 0 || field.value > 100 {
			return invalid(field.name, "must be between 0 and 100, got %d", field.value)
		}
	}
	return nil
}

// WeightedScore is the mean of the three sliders rounded half up.
func WeightedScore(s Sliders) (int, error) {
	if err := s.validate(); err != nil {
		return 0, err
	}
	sum := s.Human + s.Safety + s.Ops
	return (2*sum + 3) / 6, nil
}

// Eligible reports whether score allows the Approve action.
func Eligible(score int) bool {
	return score >= ApprovalThreshold
}
