package transcribe

// WERResult is the word error rate of a transcript against its prompt,
// with the edit counts behind it.
type WERResult struct {
	WER           float64 // edits per reference word; 0 is a perfect read
	Substitutions int
	Insertions    int // words spoken but not in the prompt
	Deletions     int // prompt words the transcript lacks
	RefWords      int
}

// ComputeWER calculates the word error rate between reference and hypothesis text.
// Both strings go through Normalize first.
// WER = (Substitutions + Insertions + Deletions) / ReferenceWordCount.
func ComputeWER(reference, hypothesis string) WERResult {
	refWords := Normalize(reference)
	n := len(refWords)
	if n == 0 {
		return WERResult{}
	}

	var subs, ins, dels int
	for _, e := range align(refWords, Normalize(hypothesis)) {
		switch e.op {
		case opSub:
			subs++
		case opDel:
			dels++
		case opIns:
			ins++
		}
	}

	return WERResult{
		WER:           float64(subs+ins+dels) / float64(n),
		Substitutions: subs,
		Insertions:    ins,
		Deletions:     dels,
		RefWords:      n,
	}
}
