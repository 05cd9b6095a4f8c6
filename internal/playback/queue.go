/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playback

import (
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/samber/lo"

	"github.com/friendsincode/squarewave/internal/models"
)

// RestartThresholdMs is how far into a track "previous" restarts it instead of
// moving back a track.
const RestartThresholdMs = 3000

// RetreatOutcome tells the caller what TrackQueue.Retreat decided.
type RetreatOutcome int

const (
	// RetreatHead means there is nothing before the current position; replay index 0.
	RetreatHead RetreatOutcome = iota
	// RetreatRestart means restart the current track from the beginning.
	RetreatRestart
	// RetreatPrevious means the position moved back one track.
	RetreatPrevious
)

func (r RetreatOutcome) String() string {
	switch r {
	case RetreatRestart:
		return "restart"
	case RetreatPrevious:
		return "previous"
	default:
		return "head"
	}
}

// TrackQueue is the ordered now-playing list with a current position and, while
// shuffled, the pre-shuffle order. Tracks are compared by ID. The same track
// may be queued more than once; the copy at the position is the one playing.
//
// TrackQueue is not safe for concurrent use; the orchestrator owns it.
type TrackQueue struct {
	tracks   []*models.Track
	position int
	original []*models.Track
	// order[i] is the index in original of tracks[i] while shuffled.
	order []int
}

// NewTrackQueue returns a queue positioned at the first of tracks.
func NewTrackQueue(tracks []*models.Track) *TrackQueue {
	return &TrackQueue{tracks: slices.Clone(tracks)}
}

// Len returns the number of queued tracks.
func (q *TrackQueue) Len() int { return len(q.tracks) }

// Position returns the current index. It is 0 for an empty queue.
func (q *TrackQueue) Position() int { return q.position }

// Shuffled reports whether a pre-shuffle snapshot is held.
func (q *TrackQueue) Shuffled() bool { return q.original != nil }

// Current returns the track at the current position, or nil when empty.
func (q *TrackQueue) Current() *models.Track {
	if q.position < 0 || q.position >= len(q.tracks) {
		return nil
	}
	return q.tracks[q.position]
}

// Tracks returns a copy of the queue in play order.
func (q *TrackQueue) Tracks() []*models.Track {
	return slices.Clone(q.tracks)
}

// OriginalOrder returns a copy of the pre-shuffle order, or nil when not shuffled.
func (q *TrackQueue) OriginalOrder() []*models.Track {
	if q.original == nil {
		return nil
	}
	return slices.Clone(q.original)
}

// Replace installs tracks as the new queue and drops any shuffle snapshot.
// With preserveCurrent, the position follows current when it is in the new
// list; otherwise it resets to 0. Replacing with an empty list while
// preserving is refused and reported as false.
func (q *TrackQueue) Replace(tracks []*models.Track, current *models.Track, preserveCurrent bool) bool {
	if len(tracks) == 0 && preserveCurrent {
		return false
	}
	q.tracks = slices.Clone(tracks)
	q.original, q.order = nil, nil
	q.position = 0
	if preserveCurrent {
		if i := indexOf(q.tracks, current); i >= 0 {
			q.position = i
		}
	}
	return true
}

// Advance moves to the next track. It returns nil at the end of the queue
// and leaves the position on the last track.
func (q *TrackQueue) Advance() *models.Track {
	if q.position+1 >= len(q.tracks) {
		return nil
	}
	q.position++
	return q.tracks[q.position]
}

// Retreat applies the previous-track rule for a track elapsedMs in.
func (q *TrackQueue) Retreat(elapsedMs int) (*models.Track, RetreatOutcome) {
	switch {
	case q.position > 0 && q.position < len(q.tracks) && elapsedMs >= RestartThresholdMs:
		return q.tracks[q.position], RetreatRestart
	case q.position > 0 && q.position < len(q.tracks):
		q.position--
		return q.tracks[q.position], RetreatPrevious
	default:
		return nil, RetreatHead
	}
}

// JumpTo seeks to index.
func (q *TrackQueue) JumpTo(index int) (*models.Track, error) {
	if index < 0 || index >= len(q.tracks) {
		return nil, fmt.Errorf("%w: %d not in [0,%d)", ErrIndexOutOfRange, index, len(q.tracks))
	}
	q.position = index
	return q.tracks[index], nil
}

// Shuffle turns shuffle on or off.
//
// Turning it on snapshots the play order (unless a snapshot is already held),
// permutes every track except nowPlaying and puts nowPlaying first, so the
// sounding track is never interrupted. Calling it again while shuffled
// reshuffles from the snapshot anchored on nowPlaying.
//
// Turning it off restores the snapshot exactly and points the position at
// the snapshot entry nowPlaying came from, or at 0 when nowPlaying is no
// longer queued.
func (q *TrackQueue) Shuffle(enable bool, nowPlaying *models.Track, rng *rand.Rand) {
	anchor := q.anchorIndex(nowPlaying)
	if enable {
		q.shuffleFrom(anchor, rng)
		return
	}
	if q.original == nil {
		return
	}
	pos := 0
	if anchor >= 0 {
		pos = q.order[anchor]
	}
	q.tracks = q.original
	q.original, q.order = nil, nil
	q.position = pos
}

// ShuffleAt reshuffles with the track at index of the current play order
// first and returns it. The snapshot is taken if none is held.
func (q *TrackQueue) ShuffleAt(index int, rng *rand.Rand) (*models.Track, error) {
	if index < 0 || index >= len(q.tracks) {
		return nil, fmt.Errorf("%w: %d not in [0,%d)", ErrIndexOutOfRange, index, len(q.tracks))
	}
	q.shuffleFrom(index, rng)
	return q.tracks[0], nil
}

// shuffleFrom permutes the snapshot with tracks[anchor] first. A negative
// anchor shuffles everything.
func (q *TrackQueue) shuffleFrom(anchor int, rng *rand.Rand) {
	if q.original == nil {
		q.adoptAsShuffled()
	}
	head := -1
	if anchor >= 0 {
		head = q.order[anchor]
	}

	rest := make([]int, 0, len(q.original))
	for i := range q.original {
		if i != head {
			rest = append(rest, i)
		}
	}
	swap := func(i, j int) { rest[i], rest[j] = rest[j], rest[i] }
	if rng != nil {
		rng.Shuffle(len(rest), swap)
	} else {
		rand.Shuffle(len(rest), swap)
	}
	if head >= 0 {
		rest = append([]int{head}, rest...)
	}

	q.order = rest
	q.tracks = lo.Map(rest, func(i, _ int) *models.Track { return q.original[i] })
	q.position = 0
}

// anchorIndex finds t in the play order, preferring the copy at the position.
func (q *TrackQueue) anchorIndex(t *models.Track) int {
	if t == nil {
		return -1
	}
	if cur := q.Current(); cur != nil && cur.ID == t.ID {
		return q.position
	}
	return indexOf(q.tracks, t)
}

// adoptAsShuffled marks the current order as already shuffled, with itself as
// the snapshot. Used when restoring a persisted shuffled queue whose
// pre-shuffle order was not kept.
func (q *TrackQueue) adoptAsShuffled() {
	q.original = slices.Clone(q.tracks)
	q.order = make([]int, len(q.tracks))
	for i := range q.order {
		q.order[i] = i
	}
}

// Remove drops the first occurrence of id from the queue and the snapshot.
// The position keeps pointing at the same track where possible; removing the
// current track leaves the position on its successor.
func (q *TrackQueue) Remove(id string) bool {
	i := indexOfID(q.tracks, id)
	if i < 0 {
		return false
	}
	if q.original != nil {
		j := q.order[i]
		q.original = slices.Delete(q.original, j, j+1)
		q.order = slices.Delete(q.order, i, i+1)
		for k, v := range q.order {
			if v > j {
				q.order[k] = v - 1
			}
		}
	}
	q.tracks = slices.Delete(q.tracks, i, i+1)

	switch {
	case i < q.position:
		q.position--
	case q.position >= len(q.tracks):
		q.position = max(len(q.tracks)-1, 0)
	}
	return true
}

// Clear empties the queue and drops the snapshot.
func (q *TrackQueue) Clear() {
	q.tracks = nil
	q.original, q.order = nil, nil
	q.position = 0
}

func indexOf(tracks []*models.Track, t *models.Track) int {
	if t == nil {
		return -1
	}
	return indexOfID(tracks, t.ID)
}

func indexOfID(tracks []*models.Track, id string) int {
	_, i, ok := lo.FindIndexOf(tracks, func(candidate *models.Track) bool {
		return candidate != nil && candidate.ID == id
	})
	if !ok {
		return -1
	}
	return i
}
