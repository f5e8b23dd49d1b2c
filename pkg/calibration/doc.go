// Package calibration holds the calibration points of a pH probe and their
// on-disk representation. It contains:
//
//   - Point: one pairing of a buffer's nominal pH and the raw ADC reading
//     observed in it
//   - Set: an immutable, pH-sorted snapshot of all points
//   - Store: the mutable, lock-guarded owner of the points, with Load/Save
//     to the JSON calibration file
//
// The file is a JSON object that maps pH values (as decimal strings) to raw
// readings, e.g. {"4.0": 1925, "7.0": 1498, "10.0": 1001}. Writes go to a
// temporary file that is renamed over the target, so a crash mid-write never
// leaves a truncated file behind.
package calibration
