package lyceum

// Terminal is the supervisor's routing decision once every stage has
// completed.
const Terminal = "FINISH"

// NextStage routes to the first stage in pipeline order that does not
// appear in completed, or Terminal when all stages have run. It is a pure
// function of its input: the same completed set always yields the same
// decision, with no clock, I/O, or randomness involved. Because routing
// only ever picks the first gap, a partially failed run re-offers exactly
// the stage that did not finish.
func NextStage(completed []string) string {
	done := make(map[string]bool, len(completed))
	for _, c := range completed {
		done[c] = true
	}
	for _, s := range Stages {
		if !done[s.Name] {
			return s.Name
		}
	}
	return Terminal
}
