package recovery

import "fmt"

// MaxBadChapters is the largest contiguous run of corrupt chapter
// entries findVolumeChapterBoundaries will tolerate.7
// "Volume chapter boundaries".
const MaxBadChapters = 100

// ChapterProbe reads the virtual chapter number recorded at a given
// physical chapter slot, or reports the slot corrupt.
type ChapterProbe interface {
	// ChapterAt returns the virtual chapter number stored at slot
	// (0 <= slot < chapterLimit), or ok=false if that slot is a
	// corrupt/sentinel entry.
	ChapterAt(slot int) (virtualChapter uint64, ok bool)
}

// FindVolumeChapterBoundaries probes a circular, monotonically
// increasing sequence of virtual chapter numbers (with up to
// MaxBadChapters contiguous corrupt entries tolerated) to find the
// lowest and highest virtual chapters present.7
// "Volume chapter boundaries (dedup index tie-in)". Grounded on
// eth/protocols/snap/rangeutils.go's register of careful, well-tested
// boundary arithmetic over an ordered range — no binary-search-with-
// tolerance routine exists anywhere in the teacher or the rest of the
// pack, so this function's algorithm itself is built directly from
// stated tie-break rule rather than adapted from an existing
// routine (see DESIGN.md).
func FindVolumeChapterBoundaries(probe ChapterProbe, chapterLimit int) (lowest, highest uint64, err error) {
	if chapterLimit <= 0 {
		return 0, 0, fmt.Errorf("recovery: chapterLimit must be positive, got %d", chapterLimit)
	}

	first, ok := firstGoodChapter(probe, chapterLimit)
	if !ok {
		return 0, 0, fmt.Errorf("recovery: no valid chapter entries found within %d contiguous bad entries", MaxBadChapters)
	}

	left, right := 0, chapterLimit
	for left < right {
		mid := left + (right-left)/2
		v, ok := probe.ChapterAt(mid % chapterLimit)
		if !ok || v == first {
			// Tie-break
			// compares equal to the observed first value (or is
			// itself corrupt, treated the same as "not yet past
			// the wrap point"), move left = mid + 1.
			left = mid + 1
			continue
		}
		if v < first {
			// mid has wrapped past the sequence's start.
			right = mid
			continue
		}
		left = mid + 1
	}

	lowSlot := left % chapterLimit
	low, ok := probe.ChapterAt(lowSlot)
	if !ok {
		return 0, 0, fmt.Errorf("recovery: lowest chapter slot %d is corrupt", lowSlot)
	}

	highSlot, ok := scanBackForGood(probe, (left-1+chapterLimit)%chapterLimit, chapterLimit)
	if !ok {
		return 0, 0, fmt.Errorf("recovery: no valid chapter entries found scanning backward for highest chapter")
	}
	high, _ := probe.ChapterAt(highSlot)

	return low, high, nil
}

// firstGoodChapter returns the virtual chapter number at the first
// non-corrupt slot, tolerating up to MaxBadChapters contiguous corrupt
// entries at the start of the scan.
func firstGoodChapter(probe ChapterProbe, chapterLimit int) (uint64, bool) {
	for i := 0; i < chapterLimit && i <= MaxBadChapters; i++ {
		if v, ok := probe.ChapterAt(i % chapterLimit); ok {
			return v, true
		}
	}
	return 0, false
}

// scanBackForGood walks backward from start (inclusive) for a
// non-corrupt slot, tolerating up to MaxBadChapters contiguous bad
// spots.
func scanBackForGood(probe ChapterProbe, start int, chapterLimit int) (int, bool) {
	for i := 0; i <= MaxBadChapters && i < chapterLimit; i++ {
		slot := ((start-i)%chapterLimit + chapterLimit) % chapterLimit
		if _, ok := probe.ChapterAt(slot); ok {
			return slot, true
		}
	}
	return 0, false
}
