// Package grading computes lab-course grades from weekly performance records.
//
// Aggregator caps and weights the lab, quiz, viva and attendance components.
// Classifier turns the total into a letter: a fixed rubric when every expected
// week is recorded, a PredictivePolicy otherwise. Neither performs I/O.
//
// Quiz and viva are read only from the final-week record while lab marks are
// summed across all weeks. That asymmetry mirrors how marks are entered today.
package grading
