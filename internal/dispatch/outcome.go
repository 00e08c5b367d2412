package dispatch

// Outcome is a per-handler decision for one consumed message. Values are
// ordered by severity so that aggregation is a plain max.
type Outcome int

const (
	Success Outcome = iota
	Skip
	Retry
	DeadLetter
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Skip:
		return "skip"
	case Retry:
		return "retry"
	case DeadLetter:
		return "dead_letter"
	default:
		return "unknown"
	}
}

// Terminal reports whether the outcome ends the consumer's retry loop.
func (o Outcome) Terminal() bool {
	return o != Retry
}

// Aggregate folds per-handler outcomes into one decision with strict
// priority DeadLetter > Retry > Skip > Success. An empty slice means no
// handler ran, which is a Skip.
func Aggregate(outcomes []Outcome) Outcome {
	if len(outcomes) == 0 {
		return Skip
	}
	result := Success
	for _, o := range outcomes {
		if o > result {
			result = o
		}
	}
	return result
}
