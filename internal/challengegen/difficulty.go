package challengegen

import "fmt"

// difficultyDescriptions describes each difficulty level to the model.
var difficultyDescriptions = [...]string{
	1:  "Basic recall, simple facts",
	2:  "Simple recall with minor context",
	3:  "Understanding basic relationships",
	4:  "Applying knowledge to straightforward situations",
	5:  "Analyzing moderately complex scenarios",
	6:  "Combining multiple concepts",
	7:  "Evaluating edge cases",
	8:  "Complex problem-solving with nuance",
	9:  "Expert-level synthesis",
	10: "Master-level with subtle distinctions",
}

// DifficultyDescription returns the description for a level, or a generic
// label outside 1-10.
func DifficultyDescription(level int) string {
	if level >= 1 && level < len(difficultyDescriptions) {
		return difficultyDescriptions[level]
	}
	return fmt.Sprintf("Difficulty level %d", level)
}
