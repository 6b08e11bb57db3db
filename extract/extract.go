// Package extract locates fixed-width numeric codes in sensor text lines
package extract

// CodeLength is the number of consecutive ASCII digits that make up a code
const CodeLength = 13

// Code returns the leftmost run of exactly CodeLength ASCII digits in line.
// The run must be bounded on both sides by a non-digit byte or by the start or
// end of the line, so 12- and 14-digit runs never match. The boolean is false
// when the line holds no such run; that is an expected filtering outcome, not an error.
func Code(line string) (string, bool) {
	start, ok := next(line, 0)
	if !ok {
		return "", false
	}
	return line[start : start+CodeLength], true
}

// Codes returns every bounded run in line, left to right.
func Codes(line string) []string {
	var codes []string
	for from := 0; ; {
		start, ok := next(line, from)
		if !ok {
			return codes
		}
		codes = append(codes, line[start:start+CodeLength])
		from = start + CodeLength
	}
}

// next scans line from offset from and returns the start index of the first
// bounded run of exactly CodeLength digits.
func next(line string, from int) (int, bool) {
	i := from
	for i < len(line) {
		if !isDigit(line[i]) {
			i++
			continue
		}

		// i is the first digit of a maximal run, since the scan only enters a run
		// at its first byte
		j := i
		for j < len(line) && isDigit(line[j]) {
			j++
		}
		if j-i == CodeLength {
			return i, true
		}
		i = j
	}
	return 0, false
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}
