// Package extract finds 13-digit codes (EAN-13 style barcodes) in lines of sensor text.
//
// Extraction is a pure function of the line: no state, no allocation beyond the
// returned substring, safe for concurrent use. A line either yields exactly one code,
// the leftmost bounded run, or nothing.
//
//	code, ok := extract.Code("scan 4006381333931 OK")
//	// code == "4006381333931", ok == true
//
// A run is bounded when the bytes immediately before and after it are not ASCII
// digits (or do not exist). Runs of any other length are ignored entirely; a
// 14-digit run never yields its first 13 digits.
package extract
