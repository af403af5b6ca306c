package engine

import "mixfm/model"

// diversityWindow is the live admission state while a batch is built: the
// recent-artist list (most recent first) and genre histogram, seeded from
// the listener's recent plays and slid forward for every admitted track.
type diversityWindow struct {
	minGap   int
	maxRatio float64
	artists  []string
	genres   map[string]int
	total    int
}

func newDiversityWindow(recent []*model.CandidateTrack, minGap int, maxRatio float64) *diversityWindow {
	w := &diversityWindow{
		minGap:   minGap,
		maxRatio: maxRatio,
		genres:   make(map[string]int),
	}
	// recent arrives most recent first; keep that order for the gap check.
	for _, c := range recent {
		w.artists = append(w.artists, c.Track.ArtistKey())
		for _, g := range c.Track.GenreTags() {
			w.genres[g]++
		}
		w.total++
	}
	return w
}

// admit reports whether the candidate passes the artist spacing and genre
// ratio rules against the current window. It does not mutate the window;
// callers record the track separately once admitted.
func (w *diversityWindow) admit(t *model.Track) bool {
	key := t.ArtistKey()
	gap := w.minGap
	if gap > len(w.artists) {
		gap = len(w.artists)
	}
	for _, artist := range w.artists[:gap] {
		if artist == key {
			return false
		}
	}

	if w.total > 0 {
		for _, g := range t.GenreTags() {
			if float64(w.genres[g])/float64(w.total) >= w.maxRatio {
				return false
			}
		}
	}

	return true
}

// record slides the window forward past an admitted track.
func (w *diversityWindow) record(t *model.Track) {
	w.artists = append([]string{t.ArtistKey()}, w.artists...)
	for _, g := range t.GenreTags() {
		w.genres[g]++
	}
	w.total++
}
