package grading

import "math"

// Band maps a half-open percentage range [Min, Max) to a letter. The top band
// is closed at 100.
type Band struct {
	Letter Letter
	Min    float64
	Max    float64
}

// Bands is the deterministic rubric, highest first.
var Bands = []Band{
	{Letter: LetterA, Min: 70, Max: 100},
	{Letter: LetterB, Min: 55, Max: 70},
	{Letter: LetterC, Min: 45, Max: 55},
	{Letter: LetterD, Min: 40, Max: 45},
	{Letter: LetterF, Min: 0, Max: 40},
}

// LetterFor applies the rubric to a percentage in [0,100].
func LetterFor(percentage float64) (Letter, error) {
	if math.IsNaN(percentage) || percentage < 0 || percentage > 100 {
		return "", RubricBoundsError{Percentage: percentage}
	}

	for _, band := range Bands {
		if percentage >= band.Min {
			return band.Letter, nil
		}
	}

	return LetterF, nil
}

// BandFor returns the band holding the letter.
func BandFor(letter Letter) (Band, bool) {
	for _, band := range Bands {
		if band.Letter == letter {
			return band, true
		}
	}
	return Band{}, false
}
