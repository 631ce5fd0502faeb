// Package analysis inspects sampled trajectories.
//
//   - [DominantFrequency]: main oscillation frequency from a windowed FFT
//   - [NewPhasePortrait]: 2D projection of sampled states
//   - [NewPoincareSection]: upward crossings of a threshold, with
//     [PoincareSection.DecayRate] for the envelope of a damped oscillation
//
// # Checking an extrapolated sample
//
// For a damped linear oscillator the frequency and the decay rate of a
// good prior sample match the eigenvalues of the system matrix:
//
//	f, _ := analysis.DominantFrequency(ts, channel0)
//	rate, _ := analysis.NewPoincareSection(ts, ys, 1, 0, 0, 1).DecayRate()
package analysis
