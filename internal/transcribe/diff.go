package transcribe

import "strings"

// Status classifies a span of words in a Diff.
type Status int

const (
	Unchanged Status = iota
	Added            // present only in the transcript
	Removed          // present only in the ground truth
)

func (s Status) String() string {
	switch s {
	case Added:
		return "added"
	case Removed:
		return "removed"
	default:
		return "unchanged"
	}
}

// Part is a run of consecutive words sharing one Status.
type Part struct {
	Text   string
	Status Status
}

type editOp int

const (
	opMatch editOp = iota
	opSub
	opDel // reference word missing from hypothesis
	opIns // extra word in hypothesis
)

type edit struct {
	op       editOp
	ref, hyp string
}

// align computes a minimum edit-distance alignment of ref to hyp and returns
// the edit script in reading order.
func align(ref, hyp []string) []edit {
	n, m := len(ref), len(hyp)

	// DP table for minimum edit distance.
	d := make([][]int, n+1)
	for i := range d {
		d[i] = make([]int, m+1)
		d[i][0] = i
	}
	for j := 0; j <= m; j++ {
		d[0][j] = j
	}
	for i := 1; i <= n; i++ {
		for j := 1; j <= m; j++ {
			if ref[i-1] == hyp[j-1] {
				d[i][j] = d[i-1][j-1]
			} else {
				d[i][j] = 1 + min(d[i-1][j-1], d[i-1][j], d[i][j-1])
			}
		}
	}

	// Backtrace from the end, then reverse.
	var script []edit
	i, j := n, m
	for i > 0 || j > 0 {
		switch {
		case i > 0 && j > 0 && ref[i-1] == hyp[j-1]:
			script = append(script, edit{op: opMatch, ref: ref[i-1], hyp: hyp[j-1]})
			i--
			j--
		case i > 0 && j > 0 && d[i][j] == d[i-1][j-1]+1:
			script = append(script, edit{op: opSub, ref: ref[i-1], hyp: hyp[j-1]})
			i--
			j--
		case i > 0 && d[i][j] == d[i-1][j]+1:
			script = append(script, edit{op: opDel, ref: ref[i-1]})
			i--
		default:
			script = append(script, edit{op: opIns, hyp: hyp[j-1]})
			j--
		}
	}
	for l, r := 0, len(script)-1; l < r; l, r = l+1, r-1 {
		script[l], script[r] = script[r], script[l]
	}
	return script
}

// Diff compares the normalized words of groundTruth and transcript. Words only
// in groundTruth are Removed, words only in transcript are Added. Within each
// changed stretch the Removed part precedes the Added part, and consecutive
// words with the same Status are merged into one Part separated by spaces.
func Diff(groundTruth, transcript string) []Part {
	script := align(Normalize(groundTruth), Normalize(transcript))

	var parts []Part
	var removed, added []string
	emit := func(status Status, words []string) {
		if len(words) == 0 {
			return
		}
		text := strings.Join(words, " ")
		if n := len(parts); n > 0 && parts[n-1].Status == status {
			parts[n-1].Text += " " + text
			return
		}
		parts = append(parts, Part{Text: text, Status: status})
	}
	flush := func() {
		emit(Removed, removed)
		emit(Added, added)
		removed, added = nil, nil
	}

	for _, e := range script {
		switch e.op {
		case opMatch:
			flush()
			emit(Unchanged, []string{e.ref})
		case opSub:
			removed = append(removed, e.ref)
			added = append(added, e.hyp)
		case opDel:
			removed = append(removed, e.ref)
		case opIns:
			added = append(added, e.hyp)
		}
	}
	flush()
	return parts
}

