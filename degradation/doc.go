// Package degradation maps CPU load onto a discrete quality tier so the
// engine can shed work before the audio callback starts missing deadlines.
//
// The controller is stateless with respect to history: every Update
// rebuilds the State from the utilization and voice count it is given, so
// the result never depends on the order of earlier calls. Only the
// previous Level is remembered, to decide whether OnChange listeners fire.
//
// Level bands with the default configuration:
//
//	none      utilization < 0.70
//	minor     0.70 <= utilization < 0.85   shed 25% of voices
//	moderate  0.85 <= utilization < 0.95   shed 50% of voices, reduced quality, 1 effect off
//	severe    utilization >= 0.95          shed 75% of voices, reduced quality, 3 effects off
package degradation
